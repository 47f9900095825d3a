// Package doctor runs interactive checks of everything dictation touches:
// the global hotkey, the microphone, the recognition engine and keystroke
// output.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"dictate/audio"
	"dictate/clipboard"
	"dictate/config"
	"dictate/delivery"
	"dictate/hotkey"
	"dictate/shutdown"
	"dictate/transcriber"
)

const (
	hotkeyWait   = 10 * time.Second
	recordFor    = 3 * time.Second
	engineWait   = 10 * time.Second
	clipboardTTL = 3 * time.Second
)

type state struct {
	cfg config.Config
	out io.Writer
	pcm []byte
}

type check struct {
	name string
	run  func(*state) (string, error)
}

// Run executes the checks and returns an exit code (0=all pass, 1=any fail).
func Run(cfg config.Config) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("dictate doctor - interactive system diagnostics")
	fmt.Println("===============================================")

	st := &state{cfg: cfg, out: os.Stdout}
	checks := []check{
		{"Hotkey detection", checkHotkey},
		{"Microphone", checkMicrophone},
		{"Recognition engine", checkEngine},
		{"Clipboard", checkClipboard},
		{"Keystroke output", checkKeystrokes},
		{"Delivery target", checkTarget},
	}

	fmt.Println()
	if runChecks(os.Stdout, st, checks) {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		fmt.Fprintln(os.Stderr, "\nInterrupted")
		os.Exit(1)
	}()
}

func runChecks(out io.Writer, st *state, checks []check) bool {
	pass := true
	for i, c := range checks {
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(checks), c.name)
		msg, err := c.run(st)
		if err != nil {
			fmt.Fprintf(out, "  FAIL: %v\n\n", err)
			pass = false
			continue
		}
		fmt.Fprintf(out, "  PASS: %s\n\n", msg)
	}
	return pass
}

func checkHotkey(st *state) (string, error) {
	combo, err := hotkey.ParseCombo(st.cfg.Hotkey.Combo)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(st.out, "Press %s...\n", combo)

	hk := hotkey.New(combo)
	if err := hk.Register(); err != nil {
		if diag, derr := hotkey.Diagnose(combo); derr == nil && diag != "" {
			fmt.Fprintln(st.out, diag)
		}
		return "", fmt.Errorf("could not register hotkey: %w", err)
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		// Wait for keyup to avoid triggering next step
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// Reset terminal after hotkey - it may leave terminal in raw mode
		resetTerminal()
		return "hotkey detected", nil
	case <-time.After(hotkeyWait):
		return "", errors.New("timeout waiting for hotkey")
	}
}

func checkMicrophone(st *state) (string, error) {
	actx, err := audio.NewContext()
	if err != nil {
		return "", fmt.Errorf("cannot connect to audio: %w", err)
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if st.cfg.Audio.Device != "" {
		if device, err = audio.FindDevice(actx, st.cfg.Audio.Device); err != nil {
			return "", err
		}
	}
	rec := audio.NewRecorder(actx, device, audio.CaptureConfig{Gain: st.cfg.Audio.Gain})
	fmt.Fprintf(st.out, "Using device: %s\n", rec.DeviceName())
	fmt.Fprintf(st.out, "Speak for %s", recordFor)

	var mu sync.Mutex
	var peak float64
	stop, err := rec.Start(func(pcm []byte) {
		lvl := audio.Level(pcm)
		mu.Lock()
		st.pcm = append(st.pcm, pcm...)
		if lvl > peak {
			peak = lvl
		}
		mu.Unlock()
	})
	if err != nil {
		fmt.Fprintln(st.out)
		return "", err
	}
	for i := 0; i < int(recordFor/(500*time.Millisecond)); i++ {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(st.out, ".")
	}
	stop()
	fmt.Fprintln(st.out, " done")

	mu.Lock()
	defer mu.Unlock()
	if len(st.pcm) == 0 {
		return "", errors.New("no audio captured")
	}
	if peak < 0.01 {
		return "", fmt.Errorf("captured %.1f KB of silence; check the input device and gain", float64(len(st.pcm))/1024)
	}
	return fmt.Sprintf("captured %.1f KB, peak level %.2f", float64(len(st.pcm))/1024, peak), nil
}

func checkEngine(st *state) (string, error) {
	engine, err := transcriber.New(st.cfg.TranscriberConfig())
	if err != nil {
		return "", err
	}
	if len(st.pcm) == 0 {
		return "", errors.New("skipped: no audio from the microphone check")
	}

	ctx, cancel := context.WithTimeout(context.Background(), engineWait)
	defer cancel()

	scfg := st.cfg.SessionConfig().Stream
	stream, err := engine.Open(ctx, scfg)
	if err != nil {
		return "", fmt.Errorf("open %s stream: %w", engine.Name(), err)
	}
	defer stream.Close()

	stream.Feed(st.pcm)
	if err := stream.EndAudio(); err != nil {
		return "", fmt.Errorf("end audio: %w", err)
	}

	var text string
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return report(engine.Name(), text)
			}
			if errors.Is(ev.Err, transcriber.ErrNoSpeech) {
				return report(engine.Name(), text)
			}
			if ev.Err != nil {
				return "", ev.Err
			}
			if ev.Text != "" {
				text = ev.Text
			}
			if ev.IsFinal {
				return report(engine.Name(), text)
			}
		case <-ctx.Done():
			if text != "" {
				return report(engine.Name(), text)
			}
			return "", fmt.Errorf("no result from %s: %w", engine.Name(), ctx.Err())
		}
	}
}

func report(engine, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return engine + " answered (no speech detected)", nil
	}
	return fmt.Sprintf("%s heard %q", engine, text), nil
}

func checkClipboard(*state) (string, error) {
	testStr := fmt.Sprintf("dictate-doctor-%d", time.Now().UnixNano())

	type cbResult struct {
		readback string
		err      error
		phase    string
	}
	ch := make(chan cbResult, 1)
	go func() {
		prev, _ := clipboard.Read()
		defer clipboard.Copy(prev)
		if err := clipboard.Copy(testStr); err != nil {
			ch <- cbResult{err: err, phase: "write"}
			return
		}
		got, err := clipboard.Read()
		if err != nil {
			ch <- cbResult{err: err, phase: "read"}
			return
		}
		ch <- cbResult{readback: got}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("clipboard %s failed: %w", res.phase, res.err)
		}
		if res.readback != testStr {
			return "", fmt.Errorf("clipboard mismatch: wrote %q, got %q", testStr, res.readback)
		}
		return "clipboard write/read verified", nil
	case <-time.After(clipboardTTL):
		return "", errors.New("clipboard timed out (clipboard tool hung - compositor not accessible?)")
	}
}

func checkKeystrokes(*state) (string, error) {
	if err := clipboard.Init(); err != nil {
		return "", fmt.Errorf("%w\n  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput", err)
	}
	return clipboard.Verify()
}

func checkTarget(st *state) (string, error) {
	target := st.cfg.Delivery.Target
	d := delivery.NewDesktop(st.cfg.Delivery.Method, clipboard.PasteOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if target == "" {
		app, err := d.Focused(ctx)
		if err != nil {
			return "", fmt.Errorf("cannot read focused application: %w", err)
		}
		return fmt.Sprintf("no target configured; text goes to the focused application (now %q)", app), nil
	}
	running, err := d.IsRunning(ctx, target)
	if err != nil {
		return "", fmt.Errorf("cannot query %q: %w", target, err)
	}
	if !running {
		return fmt.Sprintf("%q is not running; it will be launched on first delivery", target), nil
	}
	return fmt.Sprintf("%q is running", target), nil
}
