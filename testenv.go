package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dictate/audio"
	"dictate/config"
	"dictate/cursor"
	"dictate/delivery"
	"dictate/dispatch"
	"dictate/event"
	"dictate/hotkey"
	"dictate/log"
	"dictate/metrics"
	"dictate/pipeline"
	"dictate/session"
	"dictate/transcriber"
)

const scriptWaitTimeout = 10 * time.Second

// scriptCmd is one line of the headless driver.
//
//	KEYDOWN | KEYUP | TAP
//	PARTIAL <confidence> <text>
//	FINAL <text> | MARKED <text>
//	NOSPEECH | FAIL <message>
//	SLEEP <ms> | WAIT | STATE | QUIT
type scriptCmd struct {
	op         string
	text       string
	confidence float64
	ms         int
}

func parseScriptLine(line string) (scriptCmd, error) {
	line = strings.TrimSpace(line)
	op, rest, _ := strings.Cut(line, " ")
	cmd := scriptCmd{op: strings.ToUpper(op)}
	switch cmd.op {
	case "", "KEYDOWN", "KEYUP", "TAP", "NOSPEECH", "WAIT", "STATE", "QUIT":
	case "FINAL", "MARKED", "FAIL":
		cmd.text = strings.TrimSpace(rest)
	case "PARTIAL":
		conf, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
		c, err := strconv.ParseFloat(conf, 64)
		if err != nil || c < 0 || c > 1 {
			return cmd, fmt.Errorf("PARTIAL: bad confidence %q", conf)
		}
		cmd.confidence = c
		cmd.text = strings.TrimSpace(text)
	case "SLEEP":
		ms, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || ms < 0 {
			return cmd, fmt.Errorf("SLEEP: bad duration %q", rest)
		}
		cmd.ms = ms
	default:
		if strings.HasPrefix(cmd.op, "#") {
			cmd.op = ""
			return cmd, nil
		}
		return cmd, fmt.Errorf("unknown command %q", op)
	}
	return cmd, nil
}

// lockedWriter serializes lines written from the session and delivery
// goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// runScript drives the full pipeline headlessly: a fake hotkey, a scripted
// engine and a writer standing in for the desktop. Delivered text and
// events are printed to out.
func runScript(cfg config.Config, wavPath string, in io.Reader, out io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lw := &lockedWriter{w: out}

	var actx *audio.FakeContext
	if wavPath != "" {
		var err error
		actx, err = audio.NewFakeContextFromWAV(wavPath)
		if err != nil {
			fmt.Fprintf(lw, "ERROR loading WAV: %v\n", err)
			return 1
		}
	} else {
		actx = audio.NewFakeContext(nil)
	}
	rec := audio.NewRecorder(actx, nil, audio.CaptureConfig{})
	engine := transcriber.NewFake()

	vocabulary, err := loadVocabulary(cfg.Vocabulary.Path)
	if err != nil {
		fmt.Fprintf(lw, "ERROR %v\n", err)
		return 1
	}

	recorder := event.NewRecorder()
	sinks := event.Fanout{
		recorder,
		event.SinkFunc(logEvent),
		event.SinkFunc(func(e event.Event) { fmt.Fprintf(lw, "EVENT %s\n", e) }),
	}

	m := metrics.Discard()
	ctrl := session.New(engine, rec, sinks, cfg.SessionConfig(), m)
	disp := dispatch.New(
		pipeline.New(vocabulary, cfg.Vocabulary.Categories),
		delivery.NewCoordinator(delivery.NewWriter(lw), cfg.DeliveryConfig(), m),
		cursor.NewTracker(cfg.Cursor.StaleAfter),
		sinks,
		cfg.Delivery.Target,
		m,
	)

	var handled atomic.Int64
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); ctrl.Run(ctx) }()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-ctrl.Utterances():
				disp.Handle(ctx, u)
				handled.Add(1)
			}
		}
	}()

	hk := hotkey.NewFake()
	resolver := hotkey.NewResolver(cfg.Resolver(), ctrl.Active)
	resolver.Attach(hk)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-resolver.Signals():
				ctrl.Handle(sig)
			}
		}
	}()

	settled := func() bool {
		return !ctrl.Snapshot().State.Active() &&
			handled.Load() == int64(recorder.Count(event.UtteranceCommitted))
	}

	code := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd, err := parseScriptLine(scanner.Text())
		if err != nil {
			fmt.Fprintf(lw, "ERROR %v\n", err)
			code = 1
			continue
		}
		if cmd.op == "QUIT" {
			break
		}
		if err := execScript(cmd, hk, engine, ctrl, settled, lw); err != nil {
			fmt.Fprintf(lw, "ERROR %v\n", err)
			code = 1
		}
	}

	if !waitFor(settled, scriptWaitTimeout) {
		log.Warn("script ended with a session still active")
	}
	resolver.Close()
	cancel()
	wg.Wait()
	return code
}

func execScript(cmd scriptCmd, hk *hotkey.FakeHotkey, engine *transcriber.FakeEngine, ctrl *session.Controller, settled func() bool, out io.Writer) error {
	switch cmd.op {
	case "":
	case "KEYDOWN":
		hk.SimKeydown()
	case "KEYUP":
		hk.SimKeyup()
	case "TAP":
		hk.SimTap()
	case "SLEEP":
		time.Sleep(time.Duration(cmd.ms) * time.Millisecond)
	case "WAIT":
		if !waitFor(settled, scriptWaitTimeout) {
			return errors.New("WAIT: timed out")
		}
	case "STATE":
		s := ctrl.Snapshot()
		fmt.Fprintf(out, "STATE %s commits=%d buffer=%q\n", s.State, s.Commits, s.Buffer)
	default:
		stream, err := liveStream(engine, ctrl)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.op, err)
		}
		switch cmd.op {
		case "PARTIAL":
			stream.Partial(cmd.text, cmd.confidence)
		case "FINAL":
			stream.Final(cmd.text)
		case "MARKED":
			stream.Marked(cmd.text)
		case "NOSPEECH":
			stream.NoSpeech()
		case "FAIL":
			stream.Fail(errors.New(cmd.text))
		}
	}
	return nil
}

// liveStream waits for the session to finish warming up and returns the
// stream it opened.
func liveStream(engine *transcriber.FakeEngine, ctrl *session.Controller) (*transcriber.FakeStream, error) {
	var stream *transcriber.FakeStream
	ok := waitFor(func() bool {
		st := ctrl.Snapshot().State
		if st != session.Listening && st != session.Processing {
			return false
		}
		stream = engine.Last()
		return stream != nil
	}, scriptWaitTimeout)
	if !ok {
		return nil, errors.New("no listening session")
	}
	return stream, nil
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
