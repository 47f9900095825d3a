// Package config loads dictate settings: built-in defaults, then an
// optional TOML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"dictate/cursor"
	"dictate/delivery"
	"dictate/hotkey"
	"dictate/session"
	"dictate/transcriber"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Hotkey     HotkeyConfig     `toml:"hotkey"`
	Session    SessionConfig    `toml:"session"`
	Engine     EngineConfig     `toml:"engine"`
	Audio      AudioConfig      `toml:"audio"`
	Delivery   DeliveryConfig   `toml:"delivery"`
	Vocabulary VocabularyConfig `toml:"vocabulary"`
	Cursor     CursorConfig     `toml:"cursor"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

type HotkeyConfig struct {
	// Mode is hybrid, toggle or ptt.
	Mode      string        `toml:"mode"`
	Combo     string        `toml:"combo"`
	LongPress time.Duration `toml:"long_press"`
	MaxHold   time.Duration `toml:"max_hold"`
}

type SessionConfig struct {
	CommitConfident time.Duration `toml:"commit_confident"`
	CommitLikely    time.Duration `toml:"commit_likely"`
	CommitTerminal  time.Duration `toml:"commit_terminal"`
	CommitDefault   time.Duration `toml:"commit_default"`
	LateResultWait  time.Duration `toml:"late_result_wait"`
	IdleTimeout     time.Duration `toml:"idle_timeout"`
	AcquireAttempts int           `toml:"acquire_attempts"`
	AcquireBackoff  time.Duration `toml:"acquire_backoff"`
}

type EngineConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Language   string `toml:"language"`
	APIKey     string `toml:"api_key"`
	Endpoint   string `toml:"endpoint"`
	SampleRate int    `toml:"sample_rate"`
}

type AudioConfig struct {
	Device string `toml:"device"`
	Gain   int    `toml:"gain"`
	// Cues plays a short tone when a session starts, stops or fails.
	Cues bool `toml:"cues"`
}

type DeliveryConfig struct {
	// Target is the application to type into; empty means the focused one.
	Target string `toml:"target"`
	// Method is paste or type.
	Method           string        `toml:"method"`
	LaunchWait       time.Duration `toml:"launch_wait"`
	FocusSettle      time.Duration `toml:"focus_settle"`
	Attempts         int           `toml:"attempts"`
	Backoff          time.Duration `toml:"backoff"`
	RestoreClipboard bool          `toml:"restore_clipboard"`
}

type VocabularyConfig struct {
	Path string `toml:"path"`
	// Categories lists the enabled categories; unset enables all.
	Categories []string `toml:"categories"`
}

type CursorConfig struct {
	StaleAfter time.Duration `toml:"stale_after"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

func Default() Config {
	t := session.DefaultTiming()
	s := session.DefaultConfig()
	d := delivery.DefaultConfig()
	return Config{
		Hotkey: HotkeyConfig{
			Mode:      string(hotkey.PolicyHybrid),
			Combo:     hotkey.DefaultCombo,
			LongPress: hotkey.DefaultLongPress,
			MaxHold:   hotkey.DefaultMaxHold,
		},
		Session: SessionConfig{
			CommitConfident: t.Confident,
			CommitLikely:    t.Likely,
			CommitTerminal:  t.Terminal,
			CommitDefault:   t.Default,
			LateResultWait:  s.LateResultWait,
			IdleTimeout:     s.IdleTimeout,
			AcquireAttempts: s.AcquireAttempts,
			AcquireBackoff:  s.AcquireBackoff,
		},
		Engine: EngineConfig{
			Provider:   "deepgram",
			Language:   "en",
			SampleRate: s.Stream.SampleRate,
		},
		Audio: AudioConfig{Gain: 8, Cues: true},
		Delivery: DeliveryConfig{
			Method:           delivery.MethodPaste,
			LaunchWait:       d.LaunchWait,
			FocusSettle:      d.FocusSettle,
			Attempts:         d.Attempts,
			Backoff:          d.Backoff,
			RestoreClipboard: true,
		},
		Cursor: CursorConfig{StaleAfter: cursor.DefaultStaleAfter},
		Log:    LogConfig{Level: "info"},
	}
}

// DefaultPath is config.toml in the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dictate", "config.toml")
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return Config{}, fmt.Errorf("%w: %s: unknown keys %s", ErrInvalid, path, strings.Join(keys, ", "))
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Engine.APIKey, "DEEPGRAM_API_KEY")
	set(&c.Delivery.Target, "DICTATE_TARGET")
	set(&c.Vocabulary.Path, "DICTATE_VOCAB_FILE")
	set(&c.Log.Level, "DICTATE_LOG_LEVEL")
	set(&c.Metrics.Addr, "DICTATE_METRICS_ADDR")
	set(&c.Hotkey.Mode, "DICTATE_HOTKEY_MODE")
}

// Validate reports every problem at once, wrapped in ErrInvalid.
func (c Config) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			bad("%s must be positive, got %s", name, d)
		}
	}

	if _, err := hotkey.ParsePolicy(c.Hotkey.Mode); err != nil {
		bad("hotkey.mode: %v", err)
	}
	if _, err := hotkey.ParseCombo(c.Hotkey.Combo); err != nil {
		bad("hotkey.combo: %v", err)
	}
	positive("hotkey.long_press", c.Hotkey.LongPress)
	if c.Hotkey.MaxHold <= c.Hotkey.LongPress {
		bad("hotkey.max_hold (%s) must exceed hotkey.long_press (%s)", c.Hotkey.MaxHold, c.Hotkey.LongPress)
	}

	positive("session.commit_confident", c.Session.CommitConfident)
	positive("session.commit_likely", c.Session.CommitLikely)
	positive("session.commit_terminal", c.Session.CommitTerminal)
	positive("session.commit_default", c.Session.CommitDefault)
	positive("session.late_result_wait", c.Session.LateResultWait)
	positive("session.acquire_backoff", c.Session.AcquireBackoff)
	if c.Session.IdleTimeout < 0 {
		bad("session.idle_timeout must not be negative")
	}
	if c.Session.AcquireAttempts < 1 {
		bad("session.acquire_attempts must be at least 1")
	}

	if c.Engine.SampleRate <= 0 {
		bad("engine.sample_rate must be positive")
	}
	if c.Audio.Gain < 1 {
		bad("audio.gain must be at least 1")
	}

	switch c.Delivery.Method {
	case delivery.MethodPaste, delivery.MethodType:
	default:
		bad("delivery.method %q (want paste or type)", c.Delivery.Method)
	}
	positive("delivery.launch_wait", c.Delivery.LaunchWait)
	positive("delivery.backoff", c.Delivery.Backoff)
	if c.Delivery.FocusSettle < 0 {
		bad("delivery.focus_settle must not be negative")
	}
	if c.Delivery.Attempts < 1 {
		bad("delivery.attempts must be at least 1")
	}

	positive("cursor.stale_after", c.Cursor.StaleAfter)

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		bad("log.level %q (want debug, info, warn or error)", c.Log.Level)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) Resolver() hotkey.ResolverConfig {
	p, _ := hotkey.ParsePolicy(c.Hotkey.Mode)
	return hotkey.ResolverConfig{Policy: p, LongPress: c.Hotkey.LongPress, MaxHold: c.Hotkey.MaxHold}
}

func (c Config) SessionConfig() session.Config {
	return session.Config{
		Timing: session.Timing{
			Confident: c.Session.CommitConfident,
			Likely:    c.Session.CommitLikely,
			Terminal:  c.Session.CommitTerminal,
			Default:   c.Session.CommitDefault,
		},
		LateResultWait:  c.Session.LateResultWait,
		IdleTimeout:     c.Session.IdleTimeout,
		AcquireAttempts: c.Session.AcquireAttempts,
		AcquireBackoff:  c.Session.AcquireBackoff,
		Stream: transcriber.StreamConfig{
			SampleRate: c.Engine.SampleRate,
			Channels:   1,
			Language:   c.Engine.Language,
			Model:      c.Engine.Model,
		},
	}
}

func (c Config) DeliveryConfig() delivery.Config {
	return delivery.Config{
		LaunchWait:   c.Delivery.LaunchWait,
		PollInterval: 100 * time.Millisecond,
		FocusSettle:  c.Delivery.FocusSettle,
		Attempts:     c.Delivery.Attempts,
		Backoff:      c.Delivery.Backoff,
	}
}

func (c Config) TranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Provider: c.Engine.Provider,
		APIKey:   c.Engine.APIKey,
		Model:    c.Engine.Model,
		Language: c.Engine.Language,
		Endpoint: c.Engine.Endpoint,
	}
}
