package audio

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Sony WH-1000XM4", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
	} {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLevel(t *testing.T) {
	if Level(nil) != 0 {
		t.Error("empty buffer should have zero level")
	}
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm, uint16(16384))
	v := int16(-16384)
	binary.LittleEndian.PutUint16(pcm[2:], uint16(v))
	if got := Level(pcm); got < 0.49 || got > 0.51 {
		t.Errorf("Level = %v, want 0.5", got)
	}
}

func TestFindDevice(t *testing.T) {
	ctx := NewFakeContext(nil)
	d, err := FindDevice(ctx, "fake")
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "Fake Microphone" {
		t.Errorf("got %q", d.Name)
	}
	if _, err := FindDevice(ctx, "webcam"); err == nil {
		t.Error("expected no match")
	}
}

func TestRecorderDeliversAndStops(t *testing.T) {
	ctx := NewFakeContext(make([]byte, 4096))
	r := NewRecorder(ctx, nil, DefaultCaptureConfig())

	var got atomic.Int64
	stop, err := r.Start(func(pcm []byte) { got.Add(int64(len(pcm))) })
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.After(time.Second)
	for got.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no audio delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if ctx.Active() != 1 {
		t.Errorf("active = %d, want 1", ctx.Active())
	}
	stop()
	stop()
	if ctx.Active() != 0 {
		t.Errorf("active after stop = %d, want 0", ctx.Active())
	}
}

func TestRecorderStartFailure(t *testing.T) {
	ctx := NewFakeContext(nil)
	busy := errors.New("device busy")
	ctx.FailStarts(1, busy)
	r := NewRecorder(ctx, nil, CaptureConfig{})

	if _, err := r.Start(func([]byte) {}); !errors.Is(err, busy) {
		t.Fatalf("err = %v, want device busy", err)
	}
	stop, err := r.Start(func([]byte) {})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	stop()
	if ctx.Starts() != 2 {
		t.Errorf("starts = %d, want 2", ctx.Starts())
	}
}

func TestAmplifyClamps(t *testing.T) {
	pcm := make([]byte, 6)
	for i, s := range []int16{100, 20000, -20000} {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	out := amplifyPCM(pcm, 4)
	want := []int16{400, 32767, -32768}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(out[i*2:])); got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestAmplifyUnityGain(t *testing.T) {
	pcm := []byte{0x34, 0x12, 0xcc, 0xfe, 0x01}
	out := amplifyPCM(pcm, 0)
	if len(out) != 4 {
		t.Fatalf("odd trailing byte should be dropped, got %d bytes", len(out))
	}
	for i := range out {
		if out[i] != pcm[i] {
			t.Fatalf("gain <1 should be unity: got %x, want %x", out, pcm[:4])
		}
	}
}
