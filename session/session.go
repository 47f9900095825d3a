// Package session runs dictation sessions: it acquires capture and a
// recognition stream, buffers transcript events, decides when an utterance
// is finished and hands finished utterances downstream one at a time.
package session

import (
	"fmt"
	"strings"
	"time"

	"dictate/audio"
	"dictate/hotkey"
	"dictate/transcriber"
)

type State int

const (
	Idle State = iota
	Warming
	Listening
	Processing
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Warming:
		return "warming"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a session is running or being set up.
func (s State) Active() bool {
	return s == Warming || s == Listening || s == Processing
}

// Trigger records why an utterance was committed.
type Trigger string

const (
	TriggerMarker Trigger = "marker"
	TriggerFinal  Trigger = "final"
	TriggerTimer  Trigger = "timer"
	TriggerStop   Trigger = "stop"
	TriggerLate   Trigger = "late"
	TriggerIdle   Trigger = "idle"
)

// Utterance is one committed chunk of raw transcript text.
type Utterance struct {
	SessionID string
	Seq       int
	Text      string
	Mode      hotkey.Mode
	Trigger   Trigger
}

// Capture starts microphone capture feeding sink. *audio.Recorder
// satisfies it.
type Capture interface {
	Start(sink func(pcm []byte)) (stop func(), err error)
}

// Timing holds the adaptive commit timeouts used for partial results in
// toggle mode.
type Timing struct {
	// Confident applies above 0.9 confidence when the text ends a sentence.
	Confident time.Duration
	// Likely applies above 0.8 confidence when the text does not end a sentence.
	Likely time.Duration
	// Terminal applies to any other text ending a sentence.
	Terminal time.Duration
	Default  time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Confident: 300 * time.Millisecond,
		Likely:    800 * time.Millisecond,
		Terminal:  time.Second,
		Default:   1500 * time.Millisecond,
	}
}

// Timeout picks how long to wait for more speech before committing text
// reported with the given confidence.
func (t Timing) Timeout(confidence float64, text string) time.Duration {
	terminal := endsSentence(text)
	switch {
	case confidence > 0.9 && terminal:
		return t.Confident
	case confidence > 0.8 && !terminal:
		return t.Likely
	case terminal:
		return t.Terminal
	default:
		return t.Default
	}
}

// CommitTimeout is DefaultTiming().Timeout.
func CommitTimeout(confidence float64, text string) time.Duration {
	return DefaultTiming().Timeout(confidence, text)
}

func endsSentence(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// Similar reports whether b repeats a: equal after normalization, or the
// shorter of the two (longer than five characters) contained in the other.
func Similar(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return a == b
	}
	if a == b {
		return true
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	return len(short) > 5 && strings.Contains(long, short)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type Config struct {
	Timing Timing
	// LateResultWait bounds how long a push-to-talk stop waits for a first
	// result after the end of audio.
	LateResultWait time.Duration
	// IdleTimeout stops a toggle session after this long without
	// transcript events. Zero disables it.
	IdleTimeout     time.Duration
	AcquireAttempts int
	AcquireBackoff  time.Duration
	Stream          transcriber.StreamConfig
}

func DefaultConfig() Config {
	return Config{
		Timing:          DefaultTiming(),
		LateResultWait:  3 * time.Second,
		IdleTimeout:     30 * time.Second,
		AcquireAttempts: 3,
		AcquireBackoff:  250 * time.Millisecond,
		Stream: transcriber.StreamConfig{
			SampleRate: audio.SampleRate,
			Channels:   audio.Channels,
		},
	}
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State     State
	Mode      hotkey.Mode
	SessionID string
	Buffer    string
	Commits   int
}
