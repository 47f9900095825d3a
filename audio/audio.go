package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	WAVHeaderSize = 44
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// Gain multiplies samples on backends without hardware gain control.
	Gain int
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{SampleRate: SampleRate, Channels: Channels, Gain: 8}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// FindDevice returns the first capture device whose name contains name
// (case-insensitive).
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	want := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), want) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no capture device matching %q", name)
}

// Recorder opens one capture per dictation session on a shared context.
type Recorder struct {
	ctx    Context
	device *DeviceInfo
	config CaptureConfig
	level  atomic.Uint64
}

func NewRecorder(ctx Context, device *DeviceInfo, config CaptureConfig) *Recorder {
	if config.SampleRate == 0 {
		config.SampleRate = SampleRate
	}
	if config.Channels == 0 {
		config.Channels = Channels
	}
	return &Recorder{ctx: ctx, device: device, config: config}
}

func (r *Recorder) Config() CaptureConfig { return r.config }

func (r *Recorder) DeviceName() string {
	if r.device != nil {
		return r.device.Name
	}
	return "system default"
}

// Start begins delivering PCM16 frames to sink. The returned stop
// function is safe to call more than once.
func (r *Recorder) Start(sink func(pcm []byte)) (stop func(), err error) {
	dev, err := r.ctx.NewCapture(r.device, r.config)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	dev.SetCallback(func(data []byte, _ uint32) {
		r.level.Store(math.Float64bits(Level(data)))
		sink(data)
	})
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, fmt.Errorf("start capture: %w", err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			dev.ClearCallback()
			dev.Stop()
			dev.Close()
			r.level.Store(0)
		})
	}, nil
}

// Level returns the most recent input level in [0,1].
func (r *Recorder) Level() float64 {
	return math.Float64frombits(r.level.Load())
}

// Level computes the RMS of little-endian PCM16 samples scaled to [0,1].
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768
}

// ErrDeviceGone is returned when the selected capture device is no longer
// present.
var ErrDeviceGone = errors.New("capture device not present")

// amplify writes samples as little-endian PCM16 into dst, multiplied by
// gain and clamped to the int16 range. dst must hold 2*len(samples) bytes.
func amplify(dst []byte, samples []int16, gain int) {
	if gain < 1 {
		gain = 1
	}
	g := int32(gain)
	for i, s := range samples {
		v := int32(s) * g
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v)))
	}
}

// amplifyPCM applies gain to little-endian PCM16 bytes, returning a copy.
func amplifyPCM(pcm []byte, gain int) []byte {
	out := make([]byte, len(pcm)&^1)
	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	amplify(out, samples, gain)
	return out
}
