package transcriber

import (
	"context"
	"sync"
)

// FakeEngine hands out scripted streams. Used by tests and the headless
// script mode.
type FakeEngine struct {
	mu       sync.Mutex
	openErrs []error
	opens    int
	last     *FakeStream
	opened   chan *FakeStream
}

func NewFake() *FakeEngine {
	return &FakeEngine{opened: make(chan *FakeStream, 16)}
}

func (f *FakeEngine) Name() string { return "fake" }

// FailOpen makes the next len(errs) Open calls fail with the given errors.
func (f *FakeEngine) FailOpen(errs ...error) {
	f.mu.Lock()
	f.openErrs = append(f.openErrs, errs...)
	f.mu.Unlock()
}

func (f *FakeEngine) Open(ctx context.Context, _ StreamConfig) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.opens++
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		f.mu.Unlock()
		return nil, err
	}
	s := newFakeStream()
	f.last = s
	f.mu.Unlock()

	select {
	case f.opened <- s:
	default:
	}
	return s, nil
}

// Opened yields each stream as it is opened.
func (f *FakeEngine) Opened() <-chan *FakeStream { return f.opened }

func (f *FakeEngine) Last() *FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *FakeEngine) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type FakeStream struct {
	mu       sync.Mutex
	events   chan Event
	fed      int
	ended    bool
	resets   int
	closed   bool
	endAudio chan struct{}
}

func newFakeStream() *FakeStream {
	return &FakeStream{
		events:   make(chan Event, 64),
		endAudio: make(chan struct{}),
	}
}

func (s *FakeStream) Feed(pcm []byte) {
	s.mu.Lock()
	s.fed += len(pcm)
	s.mu.Unlock()
}

func (s *FakeStream) Events() <-chan Event { return s.events }

func (s *FakeStream) EndAudio() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		close(s.endAudio)
	}
	return nil
}

func (s *FakeStream) ResetUtterance() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Push delivers ev unless the stream is closed.
func (s *FakeStream) Push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

func (s *FakeStream) Partial(text string, confidence float64) {
	s.Push(Event{Text: text, Confidence: confidence})
}

func (s *FakeStream) Final(text string) {
	s.Push(Event{Text: text, IsFinal: true, Confidence: 0.9})
}

func (s *FakeStream) Marked(text string) {
	s.Push(Event{Text: text, IsFinal: true, HighConfidence: true, Confidence: 0.95})
}

func (s *FakeStream) NoSpeech() { s.Push(Event{Err: ErrNoSpeech}) }

func (s *FakeStream) Fail(err error) { s.Push(Event{Err: err}) }

// AudioEnded is closed once EndAudio has been called.
func (s *FakeStream) AudioEnded() <-chan struct{} { return s.endAudio }

func (s *FakeStream) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FakeStream) Fed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fed
}
