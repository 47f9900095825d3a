// Package event defines what the dictation core reports to its caller:
// lifecycle notifications, committed and delivered text, executed voice
// commands and classified errors.
package event

import (
	"fmt"
	"sync"

	"dictate/log"
)

type Kind int

const (
	SessionStarted Kind = iota
	SessionStopped
	UtteranceCommitted
	Delivered
	CommandExecuted
	Error
)

func (k Kind) String() string {
	switch k {
	case SessionStarted:
		return "session_started"
	case SessionStopped:
		return "session_stopped"
	case UtteranceCommitted:
		return "utterance_committed"
	case Delivered:
		return "delivered"
	case CommandExecuted:
		return "command_executed"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrorKind classifies failures reported through Error events.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrEngineUnavailable
	ErrResourceAcquisition
	ErrRecognitionTransient
	ErrRecognitionFatal
	ErrDeliveryAppNotFound
	ErrDeliveryLaunchFailed
	ErrDeliveryInsertFailed
	ErrDeliveryFocusRestore
	ErrCommandNotRecognized
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrEngineUnavailable:
		return "engine_unavailable"
	case ErrResourceAcquisition:
		return "resource_acquisition_failed"
	case ErrRecognitionTransient:
		return "recognition_transient"
	case ErrRecognitionFatal:
		return "recognition_fatal"
	case ErrDeliveryAppNotFound:
		return "delivery_app_not_found"
	case ErrDeliveryLaunchFailed:
		return "delivery_launch_failed"
	case ErrDeliveryInsertFailed:
		return "delivery_insert_failed"
	case ErrDeliveryFocusRestore:
		return "delivery_focus_restore_failed"
	case ErrCommandNotRecognized:
		return "command_not_recognized"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// Soft reports whether the error is a warning the caller may surface
// without treating the operation as failed.
func (k ErrorKind) Soft() bool {
	return k == ErrDeliveryFocusRestore || k == ErrCommandNotRecognized || k == ErrRecognitionTransient
}

type Event struct {
	Kind      Kind
	SessionID string
	Text      string
	UndoCount int
	ErrKind   ErrorKind
	Err       error
}

func (e Event) String() string {
	switch e.Kind {
	case Error:
		if e.Err != nil {
			return fmt.Sprintf("%s(%s): %v", e.Kind, e.ErrKind, e.Err)
		}
		return fmt.Sprintf("%s(%s)", e.Kind, e.ErrKind)
	case CommandExecuted:
		return fmt.Sprintf("%s(undo=%d)", e.Kind, e.UndoCount)
	case UtteranceCommitted, Delivered:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Text)
	default:
		return e.Kind.String()
	}
}

// Sink receives events. Implementations must not block the emitter.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Chan is a buffered channel sink. Events that do not fit are dropped and logged.
type Chan struct {
	ch chan Event
}

func NewChan(size int) *Chan {
	return &Chan{ch: make(chan Event, size)}
}

func (c *Chan) Emit(e Event) {
	select {
	case c.ch <- e:
	default:
		log.Warnf("event dropped: %s", e)
	}
}

func (c *Chan) Events() <-chan Event { return c.ch }

// Fanout delivers every event to each sink in order.
type Fanout []Sink

func (f Fanout) Emit(e Event) {
	for _, s := range f {
		s.Emit(e)
	}
}

// Recorder keeps every emitted event. Used by tests and the headless script mode.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded events have the given kind.
func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Changed is signaled (coalesced) after each Emit.
func (r *Recorder) Changed() <-chan struct{} { return r.notify }
