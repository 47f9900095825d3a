// Package dispatch takes committed utterances from the session, formats
// them for the cursor position in the target application and delivers
// them or executes the voice command they carry.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"dictate/cursor"
	"dictate/delivery"
	"dictate/event"
	"dictate/log"
	"dictate/metrics"
	"dictate/pipeline"
	"dictate/session"
)

// Deliverer is implemented by *delivery.Coordinator.
type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) delivery.Report
	Undo(ctx context.Context, target string, n int) delivery.Report
}

// history is implemented by detectors that learn from delivered text,
// such as *cursor.Tracker.
type history interface {
	Record(target, delivered string)
	Forget(target string)
}

type Dispatcher struct {
	pipeline  *pipeline.Pipeline
	deliverer Deliverer
	detector  cursor.Detector
	sink      event.Sink
	target    string
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New returns a dispatcher delivering to target; an empty target is
// whatever application has focus.
func New(p *pipeline.Pipeline, d Deliverer, det cursor.Detector, sink event.Sink, target string, m *metrics.Metrics) *Dispatcher {
	if det == nil {
		det = cursor.Fixed{Class: cursor.Unknown}
	}
	if sink == nil {
		sink = event.SinkFunc(func(event.Event) {})
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Dispatcher{
		pipeline:  p,
		deliverer: d,
		detector:  det,
		sink:      sink,
		target:    target,
		metrics:   m,
		logger:    log.Component("dispatch"),
	}
}

// Run handles utterances in order until ctx is done or the channel closes.
func (d *Dispatcher) Run(ctx context.Context, utterances <-chan session.Utterance) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-utterances:
			if !ok {
				return
			}
			d.Handle(ctx, u)
		}
	}
}

func (d *Dispatcher) Handle(ctx context.Context, u session.Utterance) {
	cc := d.detector.Detect(d.target)
	res := d.pipeline.Process(u.Text, cc)
	d.logger.Debug().
		Str("session", u.SessionID).
		Int("seq", u.Seq).
		Str("cursor", cc.Class.String()).
		Str("kind", res.Kind.String()).
		Msg("utterance")

	switch res.Kind {
	case pipeline.KindEmpty:
		return

	case pipeline.KindUnrecognizedCommand:
		d.metrics.Commands.WithLabelValues("unrecognized").Inc()
		log.Command("unrecognized", 0)
		d.sink.Emit(event.Event{
			Kind:      event.Error,
			SessionID: u.SessionID,
			Text:      res.Text,
			ErrKind:   event.ErrCommandNotRecognized,
			Err:       fmt.Errorf("unrecognized command %q", res.Text),
		})

	case pipeline.KindCommand:
		d.metrics.Commands.WithLabelValues("undo").Inc()
		log.Command("undo", res.UndoCount)
		rep := d.deliverer.Undo(ctx, d.target, res.UndoCount)
		if h, ok := d.detector.(history); ok {
			h.Forget(d.target)
		}
		if !rep.Outcome.Delivered() {
			d.fail(u, rep)
			return
		}
		d.sink.Emit(event.Event{Kind: event.CommandExecuted, SessionID: u.SessionID, UndoCount: res.UndoCount})
		if rep.Outcome == delivery.FocusRestoreFailed {
			d.fail(u, rep)
		}

	case pipeline.KindText:
		rep := d.deliverer.Deliver(ctx, delivery.Request{
			Text:          res.Text,
			Target:        d.target,
			LeadingSpace:  res.LeadingSpace,
			TrailingSpace: res.TrailingSpace,
		})
		if !rep.Outcome.Delivered() {
			d.fail(u, rep)
			return
		}
		out := res.Output()
		if h, ok := d.detector.(history); ok {
			h.Record(d.target, out)
		}
		log.TranscriptionText(res.Text)
		d.sink.Emit(event.Event{Kind: event.Delivered, SessionID: u.SessionID, Text: out})
		if rep.Outcome == delivery.FocusRestoreFailed {
			d.fail(u, rep)
		}
	}
}

func (d *Dispatcher) fail(u session.Utterance, rep delivery.Report) {
	kind := ErrorKind(rep.Outcome)
	err := rep.Err
	if err == nil {
		err = fmt.Errorf("delivery: %s", rep.Outcome)
	}
	d.sink.Emit(event.Event{Kind: event.Error, SessionID: u.SessionID, Text: u.Text, ErrKind: kind, Err: err})
}

// ErrorKind maps a delivery outcome onto the reported error taxonomy.
func ErrorKind(o delivery.Outcome) event.ErrorKind {
	switch o {
	case delivery.TargetNotFound:
		return event.ErrDeliveryAppNotFound
	case delivery.LaunchFailed:
		return event.ErrDeliveryLaunchFailed
	case delivery.InsertFailed:
		return event.ErrDeliveryInsertFailed
	case delivery.FocusRestoreFailed:
		return event.ErrDeliveryFocusRestore
	default:
		return event.ErrNone
	}
}
