package delivery

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeInserter struct {
	mu       sync.Mutex
	focused  string
	running  map[string]bool
	launched []string
	inserted []string
	undone   int
	calls    []string

	launchErr    error
	startsAfter  int // IsRunning polls before a launched app reports running
	activateErrs []error
	insertErrs   []error
	afterInsert  error // returned after the text has been recorded
	restoreErr   error
	focusedErr   error
}

func newFakeInserter() *fakeInserter {
	return &fakeInserter{focused: "Terminal", running: map[string]bool{"Terminal": true}}
}

func (f *fakeInserter) log(s string) { f.calls = append(f.calls, s) }

func (f *fakeInserter) Focused(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("focused")
	return f.focused, f.focusedErr
}

func (f *fakeInserter) IsRunning(_ context.Context, target string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("running:" + target)
	if !f.running[target] && len(f.launched) > 0 {
		if f.startsAfter == 0 {
			f.running[target] = true
		} else {
			f.startsAfter--
		}
	}
	return f.running[target], nil
}

func (f *fakeInserter) Launch(_ context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("launch:" + target)
	if f.launchErr != nil {
		return f.launchErr
	}
	f.launched = append(f.launched, target)
	return nil
}

func (f *fakeInserter) Activate(_ context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("activate:" + target)
	if len(f.activateErrs) > 0 {
		err := f.activateErrs[0]
		f.activateErrs = f.activateErrs[1:]
		return err
	}
	f.focused = target
	return nil
}

func (f *fakeInserter) Insert(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("insert")
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		return err
	}
	f.inserted = append(f.inserted, text)
	return f.afterInsert
}

func (f *fakeInserter) Undo(_ context.Context, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("undo")
	f.undone += n
	return nil
}

func (f *fakeInserter) Restore(_ context.Context, app string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("restore:" + app)
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.focused = app
	return nil
}

func fastConfig() Config {
	return Config{
		LaunchWait:   200 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		FocusSettle:  0,
		Attempts:     3,
		Backoff:      time.Millisecond,
	}
}

func TestDeliverToRunningTarget(t *testing.T) {
	ins := newFakeInserter()
	ins.running["TextEdit"] = true
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: "hello", Target: "TextEdit", LeadingSpace: true})
	if rep.Outcome != Success || rep.Err != nil {
		t.Fatalf("report = %+v", rep)
	}
	if len(ins.inserted) != 1 || ins.inserted[0] != " hello" {
		t.Errorf("inserted = %q", ins.inserted)
	}
	if ins.focused != "Terminal" {
		t.Errorf("focus not restored, focused = %q", ins.focused)
	}
	want := "focused running:TextEdit activate:TextEdit insert restore:Terminal"
	if got := strings.Join(ins.calls, " "); got != want {
		t.Errorf("calls = %q\nwant    %q", got, want)
	}
}

func TestDeliverLaunchesTarget(t *testing.T) {
	ins := newFakeInserter()
	ins.startsAfter = 2
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: "x", Target: "Notes"})
	if rep.Outcome != Success {
		t.Fatalf("report = %+v", rep)
	}
	if len(ins.launched) != 1 || ins.launched[0] != "Notes" {
		t.Errorf("launched = %v", ins.launched)
	}
}

func TestDeliverLaunchTimeout(t *testing.T) {
	ins := newFakeInserter()
	ins.startsAfter = 1 << 20
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: "x", Target: "Slow"})
	if rep.Outcome != LaunchFailed {
		t.Fatalf("outcome = %s, want launch_failed", rep.Outcome)
	}
	if len(ins.inserted) != 0 {
		t.Error("text inserted despite launch failure")
	}
}

func TestDeliverTargetNotFound(t *testing.T) {
	ins := newFakeInserter()
	ins.launchErr = ErrNotFound
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: "x", Target: "Nope"})
	if rep.Outcome != TargetNotFound {
		t.Fatalf("outcome = %s, want target_not_found", rep.Outcome)
	}
}

func TestDeliverLaunchError(t *testing.T) {
	ins := newFakeInserter()
	ins.launchErr = errors.New("exec format error")
	c := NewCoordinator(ins, fastConfig(), nil)

	if rep := c.Deliver(context.Background(), Request{Text: "x", Target: "Broken"}); rep.Outcome != LaunchFailed {
		t.Fatalf("outcome = %s, want launch_failed", rep.Outcome)
	}
}

func TestDeliverRetriesActivateAndInsert(t *testing.T) {
	ins := newFakeInserter()
	ins.running["TextEdit"] = true
	flaky := errors.New("flaky")
	ins.activateErrs = []error{flaky}
	ins.insertErrs = []error{flaky, flaky}
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: "x", Target: "TextEdit"})
	if rep.Outcome != Success {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Attempts != 3 {
		t.Errorf("insert attempts = %d, want 3", rep.Attempts)
	}
	if len(ins.inserted) != 1 {
		t.Errorf("inserted %d times, want exactly once", len(ins.inserted))
	}
}

func TestDeliverInsertFailsAfterAttempts(t *testing.T) {
	ins := newFakeInserter()
	ins.running["TextEdit"] = true
	boom := errors.New("boom")
	ins.insertErrs = []error{boom, boom, boom, boom}
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: "x", Target: "TextEdit"})
	if rep.Outcome != InsertFailed || !errors.Is(rep.Err, boom) {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", rep.Attempts)
	}
}

func TestDeliverPermissionNotRetried(t *testing.T) {
	ins := newFakeInserter()
	ins.insertErrs = []error{ErrPermission, ErrPermission}
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: "x"})
	if rep.Outcome != InsertFailed || rep.Attempts != 1 {
		t.Fatalf("report = %+v, want one failed attempt", rep)
	}
}

func TestDeliverPartialInsertNotRetried(t *testing.T) {
	for _, target := range []string{"", "TextEdit"} {
		ins := newFakeInserter()
		ins.running["TextEdit"] = true
		ins.afterInsert = partial(errors.New("paste keystroke: exit status 1"))
		c := NewCoordinator(ins, fastConfig(), nil)

		rep := c.Deliver(context.Background(), Request{Text: "patient stable.", Target: target})
		if rep.Outcome != InsertFailed || rep.Attempts != 1 {
			t.Errorf("target %q: report = %+v, want one failed attempt", target, rep)
		}
		if !errors.Is(rep.Err, ErrPartial) {
			t.Errorf("target %q: err = %v, want ErrPartial", target, rep.Err)
		}
		if len(ins.inserted) != 1 {
			t.Errorf("target %q: inserted %q, want exactly once", target, ins.inserted)
		}
	}
}

func TestPartialWrapsOnce(t *testing.T) {
	if partial(nil) != nil {
		t.Error("partial(nil) should be nil")
	}
	err := partial(partial(ErrPermission))
	if !errors.Is(err, ErrPartial) || !errors.Is(err, ErrPermission) {
		t.Errorf("err = %v, want both ErrPartial and ErrPermission", err)
	}
	if strings.Count(err.Error(), ErrPartial.Error()) != 1 {
		t.Errorf("ErrPartial wrapped twice: %v", err)
	}
}

func TestDeliverFocusRestoreFailedIsSoft(t *testing.T) {
	ins := newFakeInserter()
	ins.running["TextEdit"] = true
	ins.restoreErr = errors.New("window gone")
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: "x", Target: "TextEdit"})
	if rep.Outcome != FocusRestoreFailed {
		t.Fatalf("outcome = %s, want focus_restore_failed", rep.Outcome)
	}
	if !rep.Outcome.Delivered() {
		t.Error("focus restore failure must still count as delivered")
	}
	if len(ins.inserted) != 1 {
		t.Error("text not inserted")
	}
}

func TestDeliverToFocusedApp(t *testing.T) {
	ins := newFakeInserter()
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: ",", TrailingSpace: true})
	if rep.Outcome != Success {
		t.Fatalf("report = %+v", rep)
	}
	if got := strings.Join(ins.calls, " "); got != "insert" {
		t.Errorf("calls = %q, want only insert", got)
	}
	if ins.inserted[0] != ", " {
		t.Errorf("inserted %q", ins.inserted[0])
	}
}

func TestDeliverEmptyIsNoop(t *testing.T) {
	ins := newFakeInserter()
	c := NewCoordinator(ins, fastConfig(), nil)
	if rep := c.Deliver(context.Background(), Request{Target: "TextEdit"}); rep.Outcome != Success {
		t.Fatalf("report = %+v", rep)
	}
	if len(ins.calls) != 0 {
		t.Errorf("calls = %v, want none", ins.calls)
	}
}

func TestDeliverUnknownFocusSkipsRestore(t *testing.T) {
	ins := newFakeInserter()
	ins.running["TextEdit"] = true
	ins.focusedErr = ErrUnsupported
	ins.focused = ""
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Deliver(context.Background(), Request{Text: "x", Target: "TextEdit"})
	if rep.Outcome != Success {
		t.Fatalf("report = %+v", rep)
	}
	for _, call := range ins.calls {
		if strings.HasPrefix(call, "restore") {
			t.Error("restore attempted without a known previous app")
		}
	}
}

func TestUndo(t *testing.T) {
	ins := newFakeInserter()
	ins.running["TextEdit"] = true
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Undo(context.Background(), "TextEdit", 3)
	if rep.Outcome != Success {
		t.Fatalf("report = %+v", rep)
	}
	if ins.undone != 3 {
		t.Errorf("undone = %d, want 3", ins.undone)
	}
	if ins.focused != "Terminal" {
		t.Errorf("focus not restored")
	}
}

func TestUndoTargetNotRunning(t *testing.T) {
	ins := newFakeInserter()
	c := NewCoordinator(ins, fastConfig(), nil)

	rep := c.Undo(context.Background(), "Gone", 1)
	if rep.Outcome != TargetNotFound {
		t.Fatalf("outcome = %s, want target_not_found", rep.Outcome)
	}
	if ins.undone != 0 {
		t.Error("undo sent to wrong application")
	}
}

func TestDeliverCancelled(t *testing.T) {
	ins := newFakeInserter()
	ins.startsAfter = 1 << 20
	c := NewCoordinator(ins, Config{LaunchWait: time.Minute, PollInterval: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	rep := c.Deliver(ctx, Request{Text: "x", Target: "Slow"})
	if rep.Outcome != LaunchFailed {
		t.Fatalf("outcome = %s", rep.Outcome)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not cut the launch wait short")
	}
}

func TestWriterInserter(t *testing.T) {
	var buf bytes.Buffer
	c := NewCoordinator(NewWriter(&buf), fastConfig(), nil)
	c.Deliver(context.Background(), Request{Text: "hi", Target: "Notes", LeadingSpace: true})
	c.Undo(context.Background(), "Notes", 2)
	want := "TEXT \" hi\"\nUNDO 2\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestRetryBackoffDoubles(t *testing.T) {
	var stamps []time.Time
	n, err := retry(context.Background(), 3, 10*time.Millisecond, func() error {
		stamps = append(stamps, time.Now())
		return errors.New("again")
	})
	if n != 3 || err == nil {
		t.Fatalf("n = %d, err = %v", n, err)
	}
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	if first < 10*time.Millisecond || second < 20*time.Millisecond {
		t.Errorf("pauses %v, %v; want >= 10ms then >= 20ms", first, second)
	}
}
