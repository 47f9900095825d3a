package beep

import (
	"testing"

	"dictate/event"
)

func TestRenderLengths(t *testing.T) {
	d := tones[CueStart].duration
	start := render(tones[CueStart])
	if want := int(sampleRate * d); len(start) != want {
		t.Errorf("start cue has %d samples, want %d", len(start), want)
	}

	single := int(sampleRate * tones[CueError].duration)
	gap := int(sampleRate * tones[CueError].gap)
	if got := len(render(tones[CueError])); got != 2*single+gap {
		t.Errorf("error cue has %d samples, want %d", got, 2*single+gap)
	}
}

func TestRenderDecays(t *testing.T) {
	s := render(tone{freq: 1000, volume: 0.5, decay: 60, duration: 0.2})
	peak := func(from, to int) int {
		m := 0
		for _, v := range s[from:to] {
			if a := int(v); a > m {
				m = a
			} else if -a > m {
				m = -a
			}
		}
		return m
	}
	head, tail := peak(0, 400), peak(len(s)-400, len(s))
	if head <= tail {
		t.Errorf("envelope does not decay: head peak %d, tail peak %d", head, tail)
	}
	if head > 32767/2+1 {
		t.Errorf("head peak %d exceeds volume", head)
	}
}

func TestToBytesLittleEndian(t *testing.T) {
	got := toBytes([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xfe, 0xff}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("toBytes = %x, want %x", got, want)
		}
	}
}

func TestSinkIgnoresSoftErrors(t *testing.T) {
	Disable()
	s := Sink()
	// Disabled playback makes these no-ops; they must not panic.
	s.Emit(event.Event{Kind: event.SessionStarted})
	s.Emit(event.Event{Kind: event.Error, ErrKind: event.ErrCommandNotRecognized})
	s.Emit(event.Event{Kind: event.Error, ErrKind: event.ErrRecognitionFatal})
	s.Emit(event.Event{Kind: event.SessionStopped})
}
