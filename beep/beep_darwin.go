//go:build darwin

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// darwin uses shorter cues
const (
	startDuration = 0.03
	endDuration   = 0.05
)

var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	initOnce sync.Once
	playMu   sync.Mutex

	// Playback state, read from the device callback.
	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
)

func initPlayback() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: fill})
	return err
}

func fill(out, _ []byte, frameCount uint32) {
	clear(out)
	buf := current.Load()
	if buf == nil {
		return
	}
	p := pos.Load()
	remaining := uint32(len(*buf)) - p
	if remaining == 0 {
		current.Store(nil)
		return
	}
	n := min(frameCount*2, remaining)
	copy(out[:n], (*buf)[p:p+n])
	pos.Store(p + n)
}

func play(samples []int16) {
	initOnce.Do(initPlayback)
	if malgoCtx == nil || len(samples) == 0 {
		return
	}
	buf := toBytes(samples)

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}
	device.Stop()
	pos.Store(0)
	current.Store(&buf)

	if err := device.Start(); err != nil {
		// Recreate the device after sleep/wake.
		device.Uninit()
		if err := initDevice(); err != nil {
			current.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			current.Store(nil)
		}
	}
}
