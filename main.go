package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dictate/audio"
	"dictate/beep"
	"dictate/clipboard"
	"dictate/config"
	"dictate/cursor"
	"dictate/delivery"
	"dictate/dispatch"
	"dictate/doctor"
	"dictate/event"
	"dictate/hotkey"
	"dictate/log"
	"dictate/metrics"
	"dictate/pipeline"
	"dictate/session"
	"dictate/shutdown"
	"dictate/transcriber"
	"dictate/vocab"
)

var version = "dev"

type options struct {
	configPath string
	logPath    string
	device     string
	setup      bool
	target     string
	mode       string
	metrics    string
	tui        bool
	script     bool
	wav        string
	doctor     bool
	version    bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("dictate", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "config file path (default: OS-specific location)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.device, "device", "", "Use named microphone device")
	fs.BoolVar(&o.setup, "setup", false, "Select microphone device interactively")
	fs.StringVar(&o.target, "target", "", "Application to deliver text into (default: focused window)")
	fs.StringVar(&o.mode, "mode", "", "Hotkey mode: hybrid, toggle or ptt")
	fs.StringVar(&o.metrics, "metrics", "", "Serve Prometheus metrics on this address (e.g., localhost:9464)")
	fs.BoolVar(&o.tui, "tui", true, "Run with terminal UI")
	fs.BoolVar(&o.script, "script", false, "Headless mode driven by commands on stdin")
	fs.StringVar(&o.wav, "wav", "", "WAV file used as microphone input in -script mode")
	fs.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

// applyFlags lets command-line flags override file and environment settings.
func applyFlags(cfg *config.Config, o options) error {
	if o.target != "" {
		cfg.Delivery.Target = o.target
	}
	if o.mode != "" {
		cfg.Hotkey.Mode = o.mode
	}
	if o.device != "" {
		cfg.Audio.Device = o.device
	}
	if o.metrics != "" {
		cfg.Metrics.Addr = o.metrics
	}
	return cfg.Validate()
}

// initCrashLog routes fatal runtime output to crash_log.txt before any
// CGO code runs.
func initCrashLog() {
	dir, err := log.ResolveDir("")
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}

func run() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if o.version {
		fmt.Printf("dictate %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(o.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	cfg, err := config.Load(o.configPath)
	if err == nil {
		err = applyFlags(&cfg, o)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log.SetLevel(cfg.Log.Level)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	var code int
	switch {
	case o.doctor:
		code = doctor.Run(cfg)
	case o.script:
		code = runScript(cfg, o.wav, os.Stdin, os.Stdout)
	default:
		code = runLive(cfg, o)
	}
	log.Close()
	os.Exit(code)
}

func runLive(cfg config.Config, o options) int {
	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	engine, err := transcriber.New(cfg.TranscriberConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}
	defer actx.Close()

	device, err := pickDevice(actx, cfg.Audio.Device, o.setup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	rec := audio.NewRecorder(actx, device, audio.CaptureConfig{Gain: cfg.Audio.Gain})

	vocabulary, err := loadVocabulary(cfg.Vocabulary.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := clipboard.Init(); err != nil {
		log.Warnf("paste init failed: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: paste init failed: %v\n", err)
	}
	desktop := delivery.NewDesktop(cfg.Delivery.Method, clipboard.PasteOptions{
		Restore: cfg.Delivery.RestoreClipboard,
		Settle:  cfg.Delivery.FocusSettle,
	})
	coord := delivery.NewCoordinator(desktop, cfg.DeliveryConfig(), m)

	var sinks event.Fanout
	sinks = append(sinks, event.SinkFunc(logEvent))
	if cfg.Audio.Cues {
		sinks = append(sinks, beep.Sink())
	}

	var ui *tuiBridge
	var keys *hotkey.FakeHotkey
	if o.tui {
		keys = hotkey.NewFake()
		ui = &tuiBridge{}
		sinks = append(sinks, ui)
	}

	ctrl := session.New(engine, rec, sinks, cfg.SessionConfig(), m)
	disp := dispatch.New(
		pipeline.New(vocabulary, cfg.Vocabulary.Categories),
		coord,
		cursor.NewTracker(cfg.Cursor.StaleAfter),
		sinks,
		cfg.Delivery.Target,
		m,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); ctrl.Run(ctx) }()
	go func() { defer wg.Done(); disp.Run(ctx, ctrl.Utterances()) }()

	resolver := hotkey.NewResolver(cfg.Resolver(), ctrl.Active)
	defer resolver.Close()

	combo, _ := hotkey.ParseCombo(cfg.Hotkey.Combo)
	hk := hotkey.New(combo)
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register: %v", err)
		if diag, derr := hotkey.Diagnose(combo); derr == nil && diag != "" {
			fmt.Fprintln(os.Stderr, diag)
		}
		if !o.tui {
			fmt.Fprintf(os.Stderr, "Error: could not register hotkey %s: %v\n", combo, err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Warning: global hotkey %s unavailable, use space in the terminal\n", combo)
	} else {
		defer hk.Unregister()
		resolver.Attach(hk)
	}
	if keys != nil {
		resolver.Attach(keys)
	}

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

	log.Info(fmt.Sprintf("ready: engine=%s mode=%s combo=%s target=%q", engine.Name(), cfg.Hotkey.Mode, combo, cfg.Delivery.Target))

	if ui != nil {
		target := cfg.Delivery.Target
		if target == "" {
			target = "focused window"
		}
		header := fmt.Sprintf("[%s | %s | %s → %s]", engine.Name(), cfg.Hotkey.Mode, combo, target)
		p := NewTUIProgram(newTUIModel(ctrl, rec, keys, header, rec.DeviceName()))
		ui.attach(p)
		go func() {
			<-ctx.Done()
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
		}
		cancel()
	} else {
		fmt.Printf("dictate %s listening on %s (ctrl+c to quit)\n", version, combo)
		<-ctx.Done()
	}

	wg.Wait()
	return 0
}

func pickDevice(actx audio.Context, name string, setup bool) (*audio.DeviceInfo, error) {
	if name != "" {
		return audio.FindDevice(actx, name)
	}
	if !setup {
		return nil, nil
	}
	dev, err := audio.SelectDevice(actx, os.Stdout)
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Printf("Warning: device selection failed: %v\n", err)
		fmt.Println("Falling back to default device")
		return nil, nil
	}
	return dev, nil
}

func loadVocabulary(path string) (*vocab.Dictionary, error) {
	d := vocab.Default()
	if path == "" {
		return d, nil
	}
	extra, err := vocab.Load(path)
	if err != nil {
		return nil, err
	}
	d.Merge(extra)
	return d, nil
}

func logEvent(e event.Event) {
	if e.Kind == event.Error && !e.ErrKind.Soft() {
		log.Errorf("event: %s", e)
		return
	}
	l := log.Component("event")
	l.Debug().Str("session", e.SessionID).Msg(e.String())
}
