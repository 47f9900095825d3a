package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        = zerolog.Nop()
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
	level          = zerolog.InfoLevel
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: DICTATE_LOG_PATH environment variable
	if envPath := os.Getenv("DICTATE_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

// SetLevel parses a zerolog level name; unknown names keep the current level.
func SetLevel(name string) {
	if name == "" {
		return
	}
	l, err := zerolog.ParseLevel(name)
	if err != nil {
		return
	}
	logMu.Lock()
	level = l
	if logReady {
		diagLog = diagLog.Level(l)
	}
	logMu.Unlock()
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(level).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	diagLog = zerolog.Nop()
	logReady = false
}

// Component returns a child logger tagged with the component name.
// Before Init it discards everything.
func Component(name string) zerolog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	return diagLog.With().Str("component", name).Logger()
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(id, mode string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("mode", mode).
		Msg("session_start")
}

func SessionEnd(id string, commits int, reason string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Int("commits", commits).
		Str("reason", reason).
		Msg("session_end")
}

func Commit(id string, chars int, trigger string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Int("chars", chars).
		Str("trigger", trigger).
		Msg("commit")
}

func CommitSkipped(id, reason string) {
	if !logReady {
		return
	}
	diagLog.Debug().
		Str("session", id).
		Str("reason", reason).
		Msg("commit_skipped")
}

func Delivery(target, outcome string, attempts int, dur time.Duration) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if target != "" {
		ev = ev.Str("target", target)
	}
	ev.Str("outcome", outcome).
		Int("attempts", attempts).
		Float64("total_ms", float64(dur.Microseconds())/1000).
		Msg("delivery")
}

func Command(kind string, undo int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("kind", kind).
		Int("undo", undo).
		Msg("voice_command")
}

func TranscriptionText(text string) {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady || transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}
