package hotkey

import (
	"fmt"
	"sync"
	"time"

	"dictate/log"
)

// Mode is how a session is ended: by a second press (toggle) or by
// releasing a held key (push-to-talk).
type Mode string

const (
	ModeToggle Mode = "toggle"
	ModePTT    Mode = "ptt"
)

// Policy selects how raw press/release gestures map to session signals.
type Policy string

const (
	PolicyHybrid Policy = "hybrid"
	PolicyToggle Policy = "toggle"
	PolicyPTT    Policy = "ptt"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyHybrid, PolicyToggle, PolicyPTT:
		return Policy(s), nil
	case "":
		return PolicyHybrid, nil
	}
	return "", fmt.Errorf("unknown hotkey mode %q (want hybrid, toggle or ptt)", s)
}

type SignalKind int

const (
	SignalStart SignalKind = iota
	SignalStop
)

func (k SignalKind) String() string {
	if k == SignalStart {
		return "start"
	}
	return "stop"
}

type Signal struct {
	Kind SignalKind
	Mode Mode
}

func (s Signal) String() string { return s.Kind.String() + "(" + string(s.Mode) + ")" }

const (
	DefaultLongPress = 500 * time.Millisecond
	DefaultMaxHold   = 10 * time.Second
)

type ResolverConfig struct {
	Policy Policy
	// LongPress is the minimum hold that counts as push-to-talk.
	LongPress time.Duration
	// MaxHold is the hold length beyond which a release is treated as a
	// stuck key and ignored.
	MaxHold time.Duration
	Now     func() time.Time
}

// Resolver turns press/release gestures from one or more hotkey sources
// into Start/Stop signals. In hybrid mode a press always starts a toggle
// session; a release after a long press stops it as push-to-talk.
type Resolver struct {
	cfg    ResolverConfig
	active func() bool

	mu             sync.Mutex
	pressed        bool
	pressAt        time.Time
	swallowRelease bool

	signals chan Signal
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewResolver creates a resolver. active reports whether a session is
// currently running; it is consulted on release and on press.
func NewResolver(cfg ResolverConfig, active func() bool) *Resolver {
	if cfg.Policy == "" {
		cfg.Policy = PolicyHybrid
	}
	if cfg.LongPress <= 0 {
		cfg.LongPress = DefaultLongPress
	}
	if cfg.MaxHold <= 0 {
		cfg.MaxHold = DefaultMaxHold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if active == nil {
		active = func() bool { return false }
	}
	return &Resolver{
		cfg:     cfg,
		active:  active,
		signals: make(chan Signal, 8),
		done:    make(chan struct{}),
	}
}

func (r *Resolver) Signals() <-chan Signal { return r.signals }

func (r *Resolver) emit(s Signal) {
	select {
	case r.signals <- s:
	default:
		log.Warnf("hotkey signal dropped: %s", s)
	}
}

func (r *Resolver) OnPress() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pressed {
		return
	}
	r.pressed = true
	r.pressAt = r.cfg.Now()
	r.swallowRelease = false

	if r.cfg.Policy == PolicyPTT {
		r.emit(Signal{Kind: SignalStart, Mode: ModePTT})
		return
	}
	if r.active() {
		r.swallowRelease = true
		r.emit(Signal{Kind: SignalStop, Mode: ModeToggle})
		return
	}
	r.emit(Signal{Kind: SignalStart, Mode: ModeToggle})
}

func (r *Resolver) OnRelease() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.pressed {
		return
	}
	r.pressed = false
	if r.swallowRelease {
		r.swallowRelease = false
		return
	}

	switch r.cfg.Policy {
	case PolicyPTT:
		r.emit(Signal{Kind: SignalStop, Mode: ModePTT})
	case PolicyHybrid:
		held := r.cfg.Now().Sub(r.pressAt)
		if held < r.cfg.LongPress || held >= r.cfg.MaxHold {
			return
		}
		if r.active() {
			r.emit(Signal{Kind: SignalStop, Mode: ModePTT})
		}
	}
}

// Attach forwards gestures from each source until Close.
func (r *Resolver) Attach(sources ...Hotkey) {
	for _, src := range sources {
		r.wg.Add(1)
		go r.pump(src)
	}
}

func (r *Resolver) pump(src Hotkey) {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case <-src.Keydown():
			r.OnPress()
		case <-src.Keyup():
			// A quick tap can leave both channels ready; handle the press first.
			select {
			case <-src.Keydown():
				r.OnPress()
			default:
			}
			r.OnRelease()
		}
	}
}

func (r *Resolver) Close() {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
}
