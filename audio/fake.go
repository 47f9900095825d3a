package audio

import (
	"os"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays fixed PCM (or silence) in real time. Start can be
// made to fail a number of times to exercise acquisition retries.
type FakeContext struct {
	pcm []byte

	mu       sync.Mutex
	failures int
	failErr  error
	starts   int
	active   int
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm}
}

// NewFakeContextFromWAV strips the header of a 16kHz mono PCM16 WAV file.
func NewFakeContextFromWAV(wavPath string) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return NewFakeContext(data), nil
}

func (f *FakeContext) FailStarts(n int, err error) {
	f.mu.Lock()
	f.failures = n
	f.failErr = err
	f.mu.Unlock()
}

// Starts counts Start attempts, failed ones included.
func (f *FakeContext) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Active counts captures started and not yet stopped.
func (f *FakeContext) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "Fake Microphone"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{ctx: f, pcm: f.pcm}, nil
}

type FakeCapture struct {
	ctx *FakeContext
	pcm []byte

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) Start() error {
	f.ctx.mu.Lock()
	f.ctx.starts++
	if f.ctx.failures > 0 {
		f.ctx.failures--
		err := f.ctx.failErr
		f.ctx.mu.Unlock()
		return err
	}
	f.ctx.active++
	f.ctx.mu.Unlock()

	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(SampleRate)
	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		for {
			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb != nil {
				if pos < len(f.pcm) {
					end := min(pos+chunkBytes, len(f.pcm))
					chunk := make([]byte, end-pos)
					copy(chunk, f.pcm[pos:end])
					pos = end
					cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
				} else {
					cb(silence, fakeFrameSize)
				}
			}
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
		return
	default:
		close(f.stopCh)
	}
	<-f.feedDone
	f.ctx.mu.Lock()
	f.ctx.active--
	f.ctx.mu.Unlock()
}

func (f *FakeCapture) Close() {}
