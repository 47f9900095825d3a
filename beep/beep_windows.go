//go:build windows

package beep

// No audio playback on Windows; cues are silent.

const (
	startDuration = 0.2
	endDuration   = 0.2
)

func play([]int16) {}
