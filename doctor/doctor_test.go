package doctor

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRunChecksReportsEachResult(t *testing.T) {
	var out bytes.Buffer
	var order []string
	checks := []check{
		{"first", func(*state) (string, error) { order = append(order, "first"); return "ok", nil }},
		{"second", func(*state) (string, error) { order = append(order, "second"); return "", errors.New("broken") }},
		{"third", func(*state) (string, error) { order = append(order, "third"); return "fine", nil }},
	}

	if runChecks(&out, &state{out: &out}, checks) {
		t.Fatal("expected overall failure")
	}
	if strings.Join(order, ",") != "first,second,third" {
		t.Errorf("checks ran as %v, want all three in order", order)
	}
	got := out.String()
	for _, want := range []string{"[1/3] first", "PASS: ok", "[2/3] second", "FAIL: broken", "[3/3] third", "PASS: fine"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunChecksAllPass(t *testing.T) {
	var out bytes.Buffer
	checks := []check{
		{"only", func(*state) (string, error) { return "ok", nil }},
	}
	if !runChecks(&out, &state{out: &out}, checks) {
		t.Fatalf("expected pass, output:\n%s", out.String())
	}
}

func TestEngineCheckNeedsAudio(t *testing.T) {
	st := &state{}
	st.cfg.Engine.Provider = "deepgram"
	st.cfg.Engine.APIKey = "test-key"
	if _, err := checkEngine(st); err == nil || !strings.Contains(err.Error(), "no audio") {
		t.Fatalf("got %v, want skip error for missing audio", err)
	}
}

func TestReport(t *testing.T) {
	if got, _ := report("fake", "  "); !strings.Contains(got, "no speech") {
		t.Errorf("empty text: got %q", got)
	}
	if got, _ := report("fake", "hello there"); got != `fake heard "hello there"` {
		t.Errorf("got %q", got)
	}
}
