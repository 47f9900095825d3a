// Package beep plays short audio cues when a dictation session starts,
// stops or fails.
package beep

import (
	"math"
	"sync/atomic"

	"dictate/event"
)

type Cue int

const (
	CueStart Cue = iota
	CueEnd
	CueError
)

const sampleRate = 44100

type tone struct {
	freq     float64
	volume   float64
	decay    float64
	duration float64
	// gap > 0 plays the tone twice separated by gap seconds of silence.
	gap float64
}

var tones = map[Cue]tone{
	CueStart: {freq: 1200, volume: 0.5, decay: 60, duration: startDuration},
	CueEnd:   {freq: 900, volume: 0.5, decay: 40, duration: endDuration},
	CueError: {freq: 350, volume: 0.6, decay: 30, duration: 0.08, gap: 0.05},
}

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

// Play renders and plays c without blocking.
func Play(c Cue) {
	if disabled.Load() {
		return
	}
	t, ok := tones[c]
	if !ok {
		return
	}
	go play(render(t))
}

// Sink plays a cue for each lifecycle event. Soft errors stay silent.
func Sink() event.Sink {
	return event.SinkFunc(func(e event.Event) {
		switch e.Kind {
		case event.SessionStarted:
			Play(CueStart)
		case event.SessionStopped:
			Play(CueEnd)
		case event.Error:
			if !e.ErrKind.Soft() {
				Play(CueError)
			}
		}
	})
}

// render produces mono PCM16 samples with an exponential decay envelope.
func render(t tone) []int16 {
	n := int(sampleRate * t.duration)
	out := make([]int16, n)
	for i := range out {
		x := float64(i) / sampleRate
		env := math.Exp(-x * t.decay)
		out[i] = int16(math.Sin(2*math.Pi*t.freq*x) * 32767 * t.volume * env)
	}
	if t.gap <= 0 {
		return out
	}
	gap := make([]int16, int(sampleRate*t.gap))
	twice := make([]int16, 0, 2*n+len(gap))
	twice = append(twice, out...)
	twice = append(twice, gap...)
	return append(twice, out...)
}

func toBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}
