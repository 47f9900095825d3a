package transcriber

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNoSpeech is reported when the engine finalized audio without
	// recognizing any words.
	ErrNoSpeech = errors.New("no speech detected")
	// ErrUnavailable means no engine can be constructed (missing
	// credentials, unknown provider). Retrying does not help.
	ErrUnavailable = errors.New("recognition engine unavailable")
)

// Event is one recognition update. Text is the cumulative transcript of
// the current utterance, not a delta.
type Event struct {
	Text           string
	IsFinal        bool
	HighConfidence bool
	Confidence     float64
	Err            error
}

type StreamConfig struct {
	SampleRate int
	Channels   int
	Language   string
	Model      string
}

type Engine interface {
	Name() string
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream is a live recognition stream fed with PCM16 audio.
type Stream interface {
	Feed(pcm []byte)
	// Events is closed when the stream terminates.
	Events() <-chan Event
	// EndAudio flushes buffered audio and asks the engine to finalize.
	// Results may still arrive afterwards.
	EndAudio() error
	// ResetUtterance drops accumulated text so the next event starts a
	// fresh utterance.
	ResetUtterance()
	Close() error
}

type Config struct {
	Provider string
	APIKey   string
	Model    string
	Language string
	Endpoint string
}

func New(cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "", "deepgram":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("DEEPGRAM_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("%w: set DEEPGRAM_API_KEY or engine.api_key", ErrUnavailable)
		}
		dg := NewDeepgram(key)
		dg.model = cfg.Model
		dg.language = cfg.Language
		if cfg.Endpoint != "" {
			dg.endpoint = cfg.Endpoint
		}
		return dg, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnavailable, cfg.Provider)
	}
}

// MeanConfidence averages per-word confidences; 0 when there are none.
func MeanConfidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
