package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dictate/hotkey"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DEEPGRAM_API_KEY", "DICTATE_TARGET", "DICTATE_VOCAB_FILE",
		"DICTATE_LOG_LEVEL", "DICTATE_METRICS_ADDR", "DICTATE_HOTKEY_MODE",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Session.LateResultWait != 3*time.Second {
		t.Errorf("late_result_wait = %s", cfg.Session.LateResultWait)
	}
	if cfg.Session.IdleTimeout != 30*time.Second {
		t.Errorf("idle_timeout = %s", cfg.Session.IdleTimeout)
	}
	if cfg.Hotkey.LongPress != 500*time.Millisecond || cfg.Hotkey.MaxHold != 10*time.Second {
		t.Errorf("hotkey = %+v", cfg.Hotkey)
	}
	if cfg.Vocabulary.Categories != nil {
		t.Errorf("categories = %v, want nil (all enabled)", cfg.Vocabulary.Categories)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[hotkey]
mode = "ptt"
long_press = "400ms"

[session]
commit_default = "2s"
idle_timeout = "0s"

[engine]
model = "nova-2"

[delivery]
target = "TextEdit"
method = "type"
attempts = 5

[vocabulary]
categories = ["medical"]

[metrics]
addr = ":9464"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hotkey.Mode != "ptt" || cfg.Hotkey.LongPress != 400*time.Millisecond {
		t.Errorf("hotkey = %+v", cfg.Hotkey)
	}
	if cfg.Session.CommitDefault != 2*time.Second || cfg.Session.IdleTimeout != 0 {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Session.CommitConfident != 300*time.Millisecond {
		t.Errorf("unset key lost its default: %s", cfg.Session.CommitConfident)
	}
	if cfg.Delivery.Target != "TextEdit" || cfg.Delivery.Method != "type" || cfg.Delivery.Attempts != 5 {
		t.Errorf("delivery = %+v", cfg.Delivery)
	}
	if len(cfg.Vocabulary.Categories) != 1 || cfg.Vocabulary.Categories[0] != "medical" {
		t.Errorf("categories = %v", cfg.Vocabulary.Categories)
	}
	if cfg.Metrics.Addr != ":9464" || cfg.Engine.Model != "nova-2" {
		t.Errorf("metrics/engine = %+v %+v", cfg.Metrics, cfg.Engine)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[delivery]\ntarget = \"TextEdit\"\n")
	t.Setenv("DICTATE_TARGET", "Notes")
	t.Setenv("DEEPGRAM_API_KEY", "secret")
	t.Setenv("DICTATE_HOTKEY_MODE", "toggle")
	t.Setenv("DICTATE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Delivery.Target != "Notes" {
		t.Errorf("target = %q", cfg.Delivery.Target)
	}
	if cfg.Engine.APIKey != "secret" || cfg.Hotkey.Mode != "toggle" || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "[session]\ncommit_soon = \"1s\"\n",
		"bad syntax":    "[session\n",
		"bad mode":      "[hotkey]\nmode = \"sometimes\"\n",
		"bad combo":     "[hotkey]\ncombo = \"ctrl+shift+enter\"\n",
		"hold order":    "[hotkey]\nlong_press = \"2s\"\nmax_hold = \"1s\"\n",
		"zero timing":   "[session]\ncommit_likely = \"0s\"\n",
		"attempts":      "[session]\nacquire_attempts = 0\n",
		"method":        "[delivery]\nmethod = \"telepathy\"\n",
		"log level":     "[log]\nlevel = \"loud\"\n",
		"negative idle": "[session]\nidle_timeout = \"-1s\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, body))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Delivery.Attempts = 0
	cfg.Engine.SampleRate = 0
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
	for _, want := range []string{"delivery.attempts", "engine.sample_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Hotkey.Mode = "ptt"
	cfg.Engine.Model = "nova-3"

	if r := cfg.Resolver(); r.Policy != hotkey.PolicyPTT || r.LongPress != cfg.Hotkey.LongPress {
		t.Errorf("resolver = %+v", r)
	}
	s := cfg.SessionConfig()
	if s.Timing.Confident != 300*time.Millisecond || s.LateResultWait != 3*time.Second {
		t.Errorf("session = %+v", s)
	}
	if s.Stream.SampleRate != 16000 || s.Stream.Model != "nova-3" {
		t.Errorf("stream = %+v", s.Stream)
	}
	if d := cfg.DeliveryConfig(); d.Attempts != 3 || d.LaunchWait != 5*time.Second {
		t.Errorf("delivery = %+v", d)
	}
	if tc := cfg.TranscriberConfig(); tc.Provider != "deepgram" || tc.Model != "nova-3" {
		t.Errorf("transcriber = %+v", tc)
	}
}
