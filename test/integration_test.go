//go:build integration

package test_test

import (
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("DICTATE_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "DICTATE_TEST_BIN not set; build dictate and point it at the binary")
		os.Exit(1)
	}

	if err := os.MkdirAll("data", 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data dir: %v\n", err)
		os.Exit(1)
	}
	silencePath := filepath.Join("data", "silence.wav")
	if err := generateSilenceWAV(silencePath, 16000, 1.0); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate silence.wav: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(silencePath)

	os.Exit(m.Run())
}

func generateSilenceWAV(path string, sampleRate int, durationS float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	return os.WriteFile(path, buf, 0644)
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const fastConfig = `
[hotkey]
mode = "%s"

[session]
commit_confident = "50ms"
commit_likely = "80ms"
commit_terminal = "80ms"
commit_default = "120ms"
late_result_wait = "500ms"

[delivery]
target = "Editor"
focus_settle = "0s"
`

func runDictate(t *testing.T, mode, stdin string, args ...string) (out, logDir string) {
	t.Helper()
	logDir = t.TempDir()
	cfg := writeConfig(t, fmt.Sprintf(fastConfig, mode))
	cmdArgs := append([]string{"-script", "-tui=false", "-logpath", logDir, "-config", cfg}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	data, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("dictate exited with error: %v\noutput: %s", err, data)
	}
	return string(data), logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

// --- Push-to-talk ---

func TestPTTFinal(t *testing.T) {
	out, logDir := runDictate(t, "ptt", cmds("KEYDOWN", "FINAL ct shows no abnormality period", "KEYUP", "WAIT", "QUIT"))
	if !strings.Contains(out, "CT shows no abnormality.") {
		t.Errorf("formatted text not delivered:\n%s", out)
	}
	if !strings.Contains(readLog(t, logDir, "transcribe_log.txt"), "CT shows no abnormality.") {
		t.Error("transcribe_log.txt missing delivered text")
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "commit", "delivery", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics missing %q", want)
		}
	}
}

func TestPTTLateResult(t *testing.T) {
	out, _ := runDictate(t, "ptt", cmds("KEYDOWN", "PARTIAL 0.5 hello there", "KEYUP", "SLEEP 100", "FINAL hello there", "WAIT", "QUIT"))
	if strings.Count(out, "TEXT ") != 1 {
		t.Errorf("expected exactly one delivery:\n%s", out)
	}
}

func TestPTTNoSpeech(t *testing.T) {
	out, _ := runDictate(t, "ptt", cmds("KEYDOWN", "SLEEP 200", "KEYUP", "NOSPEECH", "WAIT", "QUIT"))
	if strings.Contains(out, "TEXT ") {
		t.Errorf("nothing should be delivered:\n%s", out)
	}
	if !strings.Contains(out, "EVENT session_stopped") {
		t.Errorf("session did not stop:\n%s", out)
	}
}

func TestPTTWithWAV(t *testing.T) {
	out, _ := runDictate(t, "ptt", cmds("KEYDOWN", "SLEEP 300", "MARKED testing one two", "KEYUP", "WAIT", "QUIT"),
		"-wav", "data/silence.wav")
	if !strings.Contains(out, "testing one two") {
		t.Errorf("marked text not delivered:\n%s", out)
	}
}

// --- Toggle ---

func TestToggleTimerCommits(t *testing.T) {
	out, _ := runDictate(t, "toggle", cmds(
		"TAP",
		"PARTIAL 0.95 first sentence period",
		"SLEEP 300",
		"PARTIAL 0.95 second sentence period",
		"SLEEP 300",
		"TAP",
		"WAIT",
		"QUIT",
	))
	if strings.Count(out, "EVENT utterance_committed") != 2 {
		t.Errorf("expected two timer commits:\n%s", out)
	}
	if !strings.Contains(out, "Second sentence.") {
		t.Errorf("second utterance should start capitalized after a sentence end:\n%s", out)
	}
}

func TestToggleUndo(t *testing.T) {
	out, _ := runDictate(t, "toggle", cmds(
		"TAP",
		"FINAL patient stable period",
		"SLEEP 200",
		"FINAL undo that",
		"SLEEP 200",
		"TAP",
		"WAIT",
		"QUIT",
	))
	if !strings.Contains(out, "UNDO ") || !strings.Contains(out, "EVENT command_executed") {
		t.Errorf("undo not executed:\n%s", out)
	}
}

func TestUnrecognizedCommand(t *testing.T) {
	out, _ := runDictate(t, "toggle", cmds("TAP", "FINAL banana that", "SLEEP 200", "TAP", "WAIT", "QUIT"))
	if !strings.Contains(out, "command_not_recognized") {
		t.Errorf("expected soft command error:\n%s", out)
	}
}

func TestEngineFailure(t *testing.T) {
	out, _ := runDictate(t, "toggle", cmds("TAP", "FAIL socket closed", "WAIT", "QUIT"))
	if !strings.Contains(out, "recognition_fatal") {
		t.Errorf("expected fatal recognition error:\n%s", out)
	}
}
