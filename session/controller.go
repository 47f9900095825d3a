package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dictate/event"
	"dictate/hotkey"
	"dictate/log"
	"dictate/metrics"
	"dictate/transcriber"
)

var errStreamClosed = errors.New("recognition stream closed")

// Controller owns the single dictation session of the process. All state
// lives on the goroutine running Run; Start, Stop and Snapshot post
// messages to it.
type Controller struct {
	engine  transcriber.Engine
	capture Capture
	sink    event.Sink
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger

	inbox chan any
	out   chan Utterance
	done  chan struct{}
	ctx   context.Context

	state State
	ep    *episode
	// inflight is set while an utterance is being handed downstream.
	inflight bool
}

// episode is one listening session from Start until its terminal event.
type episode struct {
	id      string
	mode    hotkey.Mode
	logger  zerolog.Logger
	started time.Time
	cancel  context.CancelFunc

	stream      transcriber.Stream
	stopCapture func()
	listening   bool

	buffer        string
	confidence    float64
	lastCommitted string
	gotResult     bool
	commits       int
	rearm         bool

	stopping bool
	stopMode hotkey.Mode
	// closed is set when the engine has nothing more to report.
	closed bool
	// waitingAck defers the stop procedure until the in-flight handoff completes.
	waitingAck bool

	commitTimer *time.Timer
	commitGen   uint64
	lateTimer   *time.Timer
	lateGen     uint64
	idleTimer   *time.Timer
	idleGen     uint64
}

type (
	startMsg struct{ mode hotkey.Mode }
	stopMsg  struct{ mode hotkey.Mode }
	queryMsg struct{ reply chan Snapshot }
	warmMsg  struct {
		ep     *episode
		stream transcriber.Stream
		stop   func()
		err    error
	}
	eventMsg struct {
		ep *episode
		ev transcriber.Event
	}
	closedMsg struct{ ep *episode }
	timerMsg  struct {
		ep   *episode
		kind timerKind
		gen  uint64
	}
	ackMsg struct{ err error }
)

// warmDrainTimeout bounds how long shutdown waits for an acquisition in
// progress.
const warmDrainTimeout = 5 * time.Second

type timerKind int

const (
	commitTimer timerKind = iota
	lateTimer
	idleTimer
)

func New(engine transcriber.Engine, capture Capture, sink event.Sink, cfg Config, m *metrics.Metrics) *Controller {
	d := DefaultConfig()
	if cfg.Timing == (Timing{}) {
		cfg.Timing = d.Timing
	}
	if cfg.LateResultWait <= 0 {
		cfg.LateResultWait = d.LateResultWait
	}
	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	}
	if cfg.AcquireAttempts <= 0 {
		cfg.AcquireAttempts = d.AcquireAttempts
	}
	if cfg.AcquireBackoff <= 0 {
		cfg.AcquireBackoff = d.AcquireBackoff
	}
	if cfg.Stream.SampleRate == 0 {
		cfg.Stream.SampleRate = d.Stream.SampleRate
	}
	if cfg.Stream.Channels == 0 {
		cfg.Stream.Channels = d.Stream.Channels
	}
	if sink == nil {
		sink = event.SinkFunc(func(event.Event) {})
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Controller{
		engine:  engine,
		capture: capture,
		sink:    sink,
		cfg:     cfg,
		metrics: m,
		logger:  log.Component("session"),
		inbox:   make(chan any, 64),
		out:     make(chan Utterance),
		done:    make(chan struct{}),
	}
}

// Utterances yields committed utterances. A commit is complete once the
// receiver takes it; until then further commits are dropped.
func (c *Controller) Utterances() <-chan Utterance { return c.out }

// Start requests a new session in the given mode. It is ignored while a
// session is already active.
func (c *Controller) Start(mode hotkey.Mode) { c.post(startMsg{mode: mode}) }

// Stop ends the active session using the stop procedure of mode. Stopping
// an idle controller does nothing.
func (c *Controller) Stop(mode hotkey.Mode) { c.post(stopMsg{mode: mode}) }

// Snapshot reports the current state. Run must be running.
func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	c.post(queryMsg{reply: reply})
	select {
	case s := <-reply:
		return s
	case <-c.done:
		return Snapshot{State: Idle}
	}
}

// Active reports whether a session is warming up or listening.
func (c *Controller) Active() bool { return c.Snapshot().State.Active() }

// Handle applies a resolver signal.
func (c *Controller) Handle(sig hotkey.Signal) {
	if sig.Kind == hotkey.SignalStart {
		c.Start(sig.Mode)
		return
	}
	c.Stop(sig.Mode)
}

func (c *Controller) post(m any) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

// Run processes messages until ctx is done. An active session is shut
// down on the way out.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			switch {
			case c.state == Warming:
				ep := c.ep
				ep.cancel()
				c.ep = nil
				c.state = Idle
				c.awaitWarm(ep)
			case c.ep != nil:
				c.finish("shutdown", event.ErrNone, nil)
			}
			return
		case m := <-c.inbox:
			c.handle(m)
		}
	}
}

// awaitWarm waits for ep's acquisition to report back so that a stream
// and capture it opened just before shutdown are released.
func (c *Controller) awaitWarm(ep *episode) {
	t := time.NewTimer(warmDrainTimeout)
	defer t.Stop()
	for {
		select {
		case m := <-c.inbox:
			switch m := m.(type) {
			case warmMsg:
				c.onWarm(m)
				if m.ep == ep {
					return
				}
			case queryMsg:
				m.reply <- c.snapshot()
			}
		case <-t.C:
			ep.logger.Warn().Dur("waited", warmDrainTimeout).Msg("acquisition still running at shutdown")
			return
		}
	}
}

func (c *Controller) handle(m any) {
	switch m := m.(type) {
	case startMsg:
		c.onStart(m.mode)
	case stopMsg:
		c.onStop(m.mode, "stop")
	case queryMsg:
		m.reply <- c.snapshot()
	case warmMsg:
		c.onWarm(m)
	case eventMsg:
		if m.ep == c.ep && c.ep.listening {
			c.onEvent(m.ev)
		}
	case closedMsg:
		if m.ep == c.ep && c.ep.listening {
			c.onClosed()
		}
	case timerMsg:
		if m.ep == c.ep {
			c.onTimer(m)
		}
	case ackMsg:
		c.onAck(m.err)
	}
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{State: c.state}
	if c.ep != nil {
		s.Mode = c.ep.mode
		s.SessionID = c.ep.id
		s.Buffer = c.ep.buffer
		s.Commits = c.ep.commits
	}
	return s
}

func (c *Controller) setState(s State) {
	if c.state != s && c.ep != nil {
		c.ep.logger.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("state")
	}
	c.state = s
}

func (c *Controller) onStart(mode hotkey.Mode) {
	if c.state.Active() {
		c.logger.Debug().Str("state", c.state.String()).Msg("start ignored: session active")
		return
	}
	if mode == "" {
		mode = hotkey.ModeToggle
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(c.ctx)
	ep := &episode{
		id:      id,
		mode:    mode,
		logger:  c.logger.With().Str("session", id).Logger(),
		started: time.Now(),
		cancel:  cancel,
	}
	c.ep = ep
	c.setState(Warming)
	ep.logger.Info().Str("mode", string(mode)).Msg("warming")

	go func() {
		stream, stop, err := c.acquire(ctx, ep)
		c.post(warmMsg{ep: ep, stream: stream, stop: stop, err: err})
	}()
}

// acquire opens the recognition stream and starts capture into it,
// retrying with doubling backoff. ErrUnavailable is returned at once.
func (c *Controller) acquire(ctx context.Context, ep *episode) (transcriber.Stream, func(), error) {
	backoff := c.cfg.AcquireBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.AcquireAttempts; attempt++ {
		if attempt > 1 {
			c.metrics.AcquireRetries.Inc()
			ep.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("acquire retry")
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, nil, ctx.Err()
			case <-t.C:
			}
			backoff *= 2
		}

		stream, err := c.engine.Open(ctx, c.cfg.Stream)
		if err != nil {
			if errors.Is(err, transcriber.ErrUnavailable) || ctx.Err() != nil {
				return nil, nil, err
			}
			lastErr = fmt.Errorf("open %s stream: %w", c.engine.Name(), err)
			continue
		}
		stop, err := c.capture.Start(stream.Feed)
		if err != nil {
			stream.Close()
			lastErr = err
			continue
		}
		return stream, stop, nil
	}
	return nil, nil, lastErr
}

func (c *Controller) onWarm(m warmMsg) {
	ep := m.ep
	if ep != c.ep || c.state != Warming {
		// Stopped while warming.
		if m.err == nil {
			m.stop()
			m.stream.Close()
		}
		ep.cancel()
		return
	}
	if m.err != nil {
		kind := event.ErrResourceAcquisition
		if errors.Is(m.err, transcriber.ErrUnavailable) {
			kind = event.ErrEngineUnavailable
		}
		c.finish("acquire_failed", kind, m.err)
		return
	}

	ep.stream = m.stream
	ep.stopCapture = m.stop
	ep.listening = true
	c.setState(Listening)
	c.metrics.SessionsTotal.WithLabelValues(string(ep.mode)).Inc()
	c.metrics.SessionsActive.Inc()
	log.SessionStart(ep.id, string(ep.mode))
	c.sink.Emit(event.Event{Kind: event.SessionStarted, SessionID: ep.id})
	c.armIdle()

	go func(events <-chan transcriber.Event) {
		for ev := range events {
			c.post(eventMsg{ep: ep, ev: ev})
		}
		c.post(closedMsg{ep: ep})
	}(m.stream.Events())
}

func (c *Controller) onEvent(ev transcriber.Event) {
	ep := c.ep
	if ev.Err != nil {
		if errors.Is(ev.Err, transcriber.ErrNoSpeech) {
			c.metrics.TranscriptEvents.WithLabelValues("no_speech").Inc()
			switch {
			case ep.stopping && ep.waitingAck:
				ep.closed = true
				return
			case ep.stopping:
				ep.logger.Info().Msg("no speech before stop")
				c.finish("no_speech", event.ErrNone, nil)
				return
			case !ep.gotResult:
				ep.logger.Debug().Msg("no speech detected")
				return
			}
		} else {
			c.metrics.TranscriptEvents.WithLabelValues("error").Inc()
		}
		c.finish("recognition_error", event.ErrRecognitionFatal, ev.Err)
		return
	}

	switch {
	case ev.HighConfidence:
		c.metrics.TranscriptEvents.WithLabelValues("marker").Inc()
	case ev.IsFinal:
		c.metrics.TranscriptEvents.WithLabelValues("final").Inc()
	default:
		c.metrics.TranscriptEvents.WithLabelValues("partial").Inc()
	}

	ep.buffer = ev.Text
	ep.confidence = ev.Confidence
	ep.gotResult = true

	if ep.stopping {
		if ep.stopMode == hotkey.ModePTT && !ep.waitingAck {
			c.commit(TriggerLate)
			c.finish("stop", event.ErrNone, nil)
		}
		return
	}
	c.armIdle()

	switch {
	case ev.HighConfidence:
		c.commit(TriggerMarker)
	case ep.mode == hotkey.ModePTT && ev.IsFinal:
		c.commit(TriggerFinal)
	case ep.mode == hotkey.ModeToggle:
		c.armCommit()
	}
}

func (c *Controller) onClosed() {
	ep := c.ep
	if ep.stopping && !ep.waitingAck {
		c.commit(TriggerStop)
		c.finish("stream_closed", event.ErrNone, nil)
		return
	}
	if ep.stopping {
		ep.closed = true
		return
	}
	c.finish("stream_closed", event.ErrRecognitionFatal, errStreamClosed)
}

func (c *Controller) onTimer(m timerMsg) {
	ep := c.ep
	switch m.kind {
	case commitTimer:
		if m.gen != ep.commitGen || ep.stopping {
			return
		}
		ep.commitTimer = nil
		c.commit(TriggerTimer)
	case lateTimer:
		if m.gen != ep.lateGen {
			return
		}
		ep.lateTimer = nil
		c.commit(TriggerLate)
		c.finish("stop", event.ErrNone, nil)
	case idleTimer:
		if m.gen != ep.idleGen || ep.stopping {
			return
		}
		ep.idleTimer = nil
		ep.logger.Info().Dur("idle", c.cfg.IdleTimeout).Msg("idle timeout")
		c.onStop(hotkey.ModeToggle, "idle")
	}
}

func (c *Controller) onStop(mode hotkey.Mode, reason string) {
	switch c.state {
	case Idle:
		return
	case Error:
		c.setState(Idle)
		return
	case Warming:
		c.ep.logger.Info().Msg("stopped while warming")
		c.ep.cancel()
		c.ep = nil
		c.setState(Idle)
		return
	}

	ep := c.ep
	if ep.stopping {
		return
	}
	if mode == "" {
		mode = ep.mode
	}
	ep.stopping = true
	ep.stopMode = mode
	stopTimer(&ep.commitTimer, &ep.commitGen)
	stopTimer(&ep.idleTimer, &ep.idleGen)
	ep.stopCapture()
	if mode == hotkey.ModePTT {
		if err := ep.stream.EndAudio(); err != nil {
			ep.logger.Warn().Err(err).Msg("end audio")
		}
	}
	ep.logger.Info().Str("mode", string(mode)).Str("reason", reason).Msg("stopping")

	if c.inflight {
		ep.waitingAck = true
		return
	}
	c.proceedStop(reason)
}

// proceedStop flushes and shuts down, or for push-to-talk without any
// result yet, waits for a late result.
func (c *Controller) proceedStop(reason string) {
	ep := c.ep
	ep.waitingAck = false
	if ep.stopMode == hotkey.ModePTT && !ep.gotResult && !ep.closed {
		ep.lateGen++
		gen := ep.lateGen
		ep.lateTimer = time.AfterFunc(c.cfg.LateResultWait, func() {
			c.post(timerMsg{ep: ep, kind: lateTimer, gen: gen})
		})
		return
	}
	trigger := TriggerStop
	if reason == "idle" {
		trigger = TriggerIdle
	}
	c.commit(trigger)
	c.finish(reason, event.ErrNone, nil)
}

func (c *Controller) onAck(err error) {
	c.inflight = false
	ep := c.ep
	if ep == nil {
		return
	}
	if err != nil {
		ep.logger.Warn().Err(err).Msg("handoff failed")
	}
	if c.state == Processing {
		c.setState(Listening)
	}
	if ep.waitingAck {
		c.proceedStop("stop")
		return
	}
	if ep.rearm && !ep.stopping {
		ep.rearm = false
		c.armCommit()
	}
}

// commit hands the buffer downstream unless it is empty, repeats the last
// committed text or another handoff is still in flight.
func (c *Controller) commit(trigger Trigger) {
	ep := c.ep
	stopTimer(&ep.commitTimer, &ep.commitGen)

	if c.inflight {
		ep.rearm = true
		c.skip("in_flight")
		return
	}
	text := strings.TrimSpace(ep.buffer)
	if text == "" {
		c.skip("empty")
		return
	}
	if Similar(text, ep.lastCommitted) {
		ep.buffer = ""
		ep.stream.ResetUtterance()
		c.skip("duplicate")
		return
	}

	ep.lastCommitted = text
	ep.buffer = ""
	ep.commits++
	ep.stream.ResetUtterance()
	c.inflight = true
	c.setState(Processing)

	c.metrics.Commits.WithLabelValues(string(trigger)).Inc()
	log.Commit(ep.id, len(text), string(trigger))
	c.sink.Emit(event.Event{Kind: event.UtteranceCommitted, SessionID: ep.id, Text: text})

	u := Utterance{SessionID: ep.id, Seq: ep.commits, Text: text, Mode: ep.mode, Trigger: trigger}
	ctx := c.ctx
	go func() {
		var err error
		select {
		case c.out <- u:
		case <-ctx.Done():
			err = ctx.Err()
		}
		c.post(ackMsg{err: err})
	}()
}

func (c *Controller) skip(reason string) {
	c.metrics.CommitsSkipped.WithLabelValues(reason).Inc()
	log.CommitSkipped(c.ep.id, reason)
}

// finish is the single shutdown path. It releases everything the episode
// holds and emits its terminal event.
func (c *Controller) finish(reason string, kind event.ErrorKind, err error) {
	ep := c.ep
	stopTimer(&ep.commitTimer, &ep.commitGen)
	stopTimer(&ep.lateTimer, &ep.lateGen)
	stopTimer(&ep.idleTimer, &ep.idleGen)
	if ep.stopCapture != nil {
		ep.stopCapture()
	}
	if ep.stream != nil {
		if cerr := ep.stream.Close(); cerr != nil {
			ep.logger.Debug().Err(cerr).Msg("stream close")
		}
	}
	ep.cancel()
	ep.buffer = ""

	if ep.listening {
		c.metrics.SessionsActive.Dec()
		c.metrics.SessionDuration.Observe(time.Since(ep.started).Seconds())
		ep.listening = false
	}
	log.SessionEnd(ep.id, ep.commits, reason)

	c.ep = nil
	if err != nil {
		c.setState(Error)
		c.metrics.SessionErrors.WithLabelValues(kind.String()).Inc()
		ep.logger.Error().Err(err).Str("kind", kind.String()).Msg("session failed")
		c.sink.Emit(event.Event{Kind: event.Error, SessionID: ep.id, ErrKind: kind, Err: err})
		return
	}
	c.setState(Idle)
	c.sink.Emit(event.Event{Kind: event.SessionStopped, SessionID: ep.id})
}

func (c *Controller) armCommit() {
	ep := c.ep
	d := c.cfg.Timing.Timeout(ep.confidence, ep.buffer)
	stopTimer(&ep.commitTimer, &ep.commitGen)
	gen := ep.commitGen
	ep.commitTimer = time.AfterFunc(d, func() {
		c.post(timerMsg{ep: ep, kind: commitTimer, gen: gen})
	})
}

func (c *Controller) armIdle() {
	ep := c.ep
	if ep.mode != hotkey.ModeToggle || c.cfg.IdleTimeout <= 0 {
		return
	}
	stopTimer(&ep.idleTimer, &ep.idleGen)
	gen := ep.idleGen
	ep.idleTimer = time.AfterFunc(c.cfg.IdleTimeout, func() {
		c.post(timerMsg{ep: ep, kind: idleTimer, gen: gen})
	})
}

// stopTimer cancels t and bumps its generation so a fire already queued
// is ignored.
func stopTimer(t **time.Timer, gen *uint64) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
	*gen++
}
