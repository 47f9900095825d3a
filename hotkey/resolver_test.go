package hotkey

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestResolver(policy Policy, active *atomic.Bool) (*Resolver, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	r := NewResolver(ResolverConfig{Policy: policy, Now: clk.Now}, active.Load)
	return r, clk
}

func waitSignal(t *testing.T, r *Resolver) Signal {
	t.Helper()
	select {
	case s := <-r.Signals():
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
	}
	return Signal{}
}

func expectNoSignal(t *testing.T, r *Resolver) {
	t.Helper()
	select {
	case s := <-r.Signals():
		t.Fatalf("unexpected signal %s", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestHybridShortTapStartsToggle(t *testing.T) {
	var active atomic.Bool
	r, clk := newTestResolver(PolicyHybrid, &active)

	r.OnPress()
	if s := waitSignal(t, r); s != (Signal{SignalStart, ModeToggle}) {
		t.Fatalf("got %s, want start(toggle)", s)
	}
	active.Store(true)
	clk.Advance(200 * time.Millisecond)
	r.OnRelease()
	expectNoSignal(t, r)
}

func TestHybridLongPressStopsAsPTT(t *testing.T) {
	var active atomic.Bool
	r, clk := newTestResolver(PolicyHybrid, &active)

	r.OnPress()
	waitSignal(t, r)
	active.Store(true)
	clk.Advance(2 * time.Second)
	r.OnRelease()
	if s := waitSignal(t, r); s != (Signal{SignalStop, ModePTT}) {
		t.Fatalf("got %s, want stop(ptt)", s)
	}
}

func TestHybridLongPressThresholdIsInclusive(t *testing.T) {
	var active atomic.Bool
	r, clk := newTestResolver(PolicyHybrid, &active)

	r.OnPress()
	waitSignal(t, r)
	active.Store(true)
	clk.Advance(DefaultLongPress)
	r.OnRelease()
	if s := waitSignal(t, r); s.Kind != SignalStop {
		t.Fatalf("got %s, want stop at exactly the long-press threshold", s)
	}
}

func TestHybridReleaseWithoutSessionIgnored(t *testing.T) {
	var active atomic.Bool
	r, clk := newTestResolver(PolicyHybrid, &active)

	r.OnPress()
	waitSignal(t, r)
	// session failed to start
	clk.Advance(2 * time.Second)
	r.OnRelease()
	expectNoSignal(t, r)
}

func TestHybridStuckKeyIgnored(t *testing.T) {
	var active atomic.Bool
	r, clk := newTestResolver(PolicyHybrid, &active)

	r.OnPress()
	waitSignal(t, r)
	active.Store(true)
	clk.Advance(12 * time.Second)
	r.OnRelease()
	expectNoSignal(t, r)
}

func TestHybridSecondTapStopsToggle(t *testing.T) {
	var active atomic.Bool
	r, clk := newTestResolver(PolicyHybrid, &active)

	r.OnPress()
	waitSignal(t, r)
	active.Store(true)
	clk.Advance(100 * time.Millisecond)
	r.OnRelease()

	clk.Advance(5 * time.Second)
	r.OnPress()
	if s := waitSignal(t, r); s != (Signal{SignalStop, ModeToggle}) {
		t.Fatalf("got %s, want stop(toggle)", s)
	}
	// a long hold on the stopping press must not emit anything else
	clk.Advance(2 * time.Second)
	r.OnRelease()
	expectNoSignal(t, r)
}

func TestDuplicatePressDropped(t *testing.T) {
	var active atomic.Bool
	r, _ := newTestResolver(PolicyHybrid, &active)

	r.OnPress()
	waitSignal(t, r)
	active.Store(true)
	r.OnPress()
	expectNoSignal(t, r)
}

func TestReleaseWithoutPressIgnored(t *testing.T) {
	var active atomic.Bool
	active.Store(true)
	r, _ := newTestResolver(PolicyPTT, &active)
	r.OnRelease()
	expectNoSignal(t, r)
}

func TestPTTPolicy(t *testing.T) {
	var active atomic.Bool
	r, clk := newTestResolver(PolicyPTT, &active)

	r.OnPress()
	if s := waitSignal(t, r); s != (Signal{SignalStart, ModePTT}) {
		t.Fatalf("got %s, want start(ptt)", s)
	}
	active.Store(true)
	clk.Advance(50 * time.Millisecond)
	r.OnRelease()
	if s := waitSignal(t, r); s != (Signal{SignalStop, ModePTT}) {
		t.Fatalf("got %s, want stop(ptt)", s)
	}
}

func TestTogglePolicyIgnoresLongHold(t *testing.T) {
	var active atomic.Bool
	r, clk := newTestResolver(PolicyToggle, &active)

	r.OnPress()
	waitSignal(t, r)
	active.Store(true)
	clk.Advance(3 * time.Second)
	r.OnRelease()
	expectNoSignal(t, r)

	r.OnPress()
	if s := waitSignal(t, r); s != (Signal{SignalStop, ModeToggle}) {
		t.Fatalf("got %s, want stop(toggle)", s)
	}
}

func TestAttachMultipleSources(t *testing.T) {
	var active atomic.Bool
	r := NewResolver(ResolverConfig{Policy: PolicyHybrid}, active.Load)
	defer r.Close()

	global, local := NewFake(), NewFake()
	r.Attach(global, local)

	global.SimKeydown()
	if s := waitSignal(t, r); s != (Signal{SignalStart, ModeToggle}) {
		t.Fatalf("got %s, want start(toggle)", s)
	}
	active.Store(true)

	// same physical gesture seen twice
	local.SimKeydown()
	expectNoSignal(t, r)

	global.SimKeyup()
	time.Sleep(10 * time.Millisecond)

	local.SimKeydown()
	if s := waitSignal(t, r); s != (Signal{SignalStop, ModeToggle}) {
		t.Fatalf("got %s, want stop(toggle)", s)
	}
}

func TestAttachTapOrdersPressBeforeRelease(t *testing.T) {
	var active atomic.Bool
	r := NewResolver(ResolverConfig{Policy: PolicyHybrid}, active.Load)
	defer r.Close()

	fk := NewFake()
	fk.SimTap()
	r.Attach(fk)

	if s := waitSignal(t, r); s != (Signal{SignalStart, ModeToggle}) {
		t.Fatalf("got %s, want start(toggle)", s)
	}
	active.Store(true)
	fk.SimTap()
	if s := waitSignal(t, r); s != (Signal{SignalStop, ModeToggle}) {
		t.Fatalf("got %s, want stop(toggle)", s)
	}
}

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in      string
		want    Combo
		wantErr bool
	}{
		{"", Combo{Ctrl: true, Shift: true, Key: "space"}, false},
		{"Ctrl+Shift+Space", Combo{Ctrl: true, Shift: true, Key: "space"}, false},
		{"alt+d", Combo{Alt: true, Key: "d"}, false},
		{"f9", Combo{Key: "f9"}, false},
		{"cmd+shift+f12", Combo{Super: true, Shift: true, Key: "f12"}, false},
		{"d", Combo{}, true},
		{"ctrl+f13", Combo{}, true},
		{"hyper+space", Combo{}, true},
	}
	for _, tt := range tests {
		got, err := ParseCombo(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCombo(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCombo(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	if p, _ := ParsePolicy(""); p != PolicyHybrid {
		t.Errorf("default policy = %q, want hybrid", p)
	}
	if _, err := ParsePolicy("hold"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
