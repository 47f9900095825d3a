package transcriber

import (
	"strings"
	"sync"
	"time"

	"dictate/log"
)

const (
	streamChunkMs     = 100
	streamDrainMax    = 2 * time.Second
	streamAudioBuffer = 128
)

type rawStream interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
	Confidence   float64
}

// streamSession drives a rawStream with one sender and one receiver
// goroutine and turns engine segments into cumulative utterance events.
type streamSession struct {
	ws         rawStream
	chunkBytes int
	audioCh    chan []byte
	events     chan Event
	done       chan struct{}
	sendDone   chan struct{}
	recvDone   chan struct{}

	feedMu  sync.Mutex
	feedBuf []byte
	ended   bool

	mu        sync.Mutex
	finals    []string
	heard     bool
	closing   bool
	closeOnce sync.Once
	stats     streamStats
}

type streamStats struct {
	SentChunks    int
	SentBytes     uint64
	DroppedChunks int
	RecvMessages  int
	RecvFinal     int
	RecvInterim   int
	StartedAt     time.Time
}

func newStreamSession(ws rawStream, cfg StreamConfig) *streamSession {
	rate, channels := cfg.SampleRate, cfg.Channels
	if rate <= 0 {
		rate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	s := &streamSession{
		ws:         ws,
		chunkBytes: rate * channels * 2 * streamChunkMs / 1000,
		audioCh:    make(chan []byte, streamAudioBuffer),
		events:     make(chan Event, 32),
		done:       make(chan struct{}),
		sendDone:   make(chan struct{}),
		recvDone:   make(chan struct{}),
	}
	s.stats.StartedAt = time.Now()
	go s.runSender()
	go s.runReceiver()
	return s
}

func (s *streamSession) Feed(pcm []byte) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.ended {
		return
	}
	s.feedBuf = append(s.feedBuf, pcm...)
	for len(s.feedBuf) >= s.chunkBytes {
		chunk := make([]byte, s.chunkBytes)
		copy(chunk, s.feedBuf[:s.chunkBytes])
		s.feedBuf = s.feedBuf[s.chunkBytes:]
		s.enqueue(chunk)
	}
}

// enqueue must be called with feedMu held.
func (s *streamSession) enqueue(chunk []byte) {
	select {
	case s.audioCh <- chunk:
	default:
		s.mu.Lock()
		s.stats.DroppedChunks++
		s.mu.Unlock()
	}
}

func (s *streamSession) Events() <-chan Event { return s.events }

func (s *streamSession) EndAudio() error {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	if len(s.feedBuf) > 0 {
		tail := make([]byte, len(s.feedBuf))
		copy(tail, s.feedBuf)
		s.feedBuf = nil
		s.enqueue(tail)
	}
	close(s.audioCh)
	return nil
}

func (s *streamSession) ResetUtterance() {
	s.mu.Lock()
	s.finals = nil
	s.mu.Unlock()
}

func (s *streamSession) Close() error {
	s.EndAudio()
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		close(s.done)
		err = s.ws.Close()
		select {
		case <-s.recvDone:
		case <-time.After(streamDrainMax):
			log.Warn("stream receiver drain timeout")
		}
		s.mu.Lock()
		st := s.stats
		s.mu.Unlock()
		l := log.Component("transcriber")
		l.Debug().
			Int("sent_chunks", st.SentChunks).
			Float64("sent_kb", float64(st.SentBytes)/1024).
			Int("dropped_chunks", st.DroppedChunks).
			Int("recv_final", st.RecvFinal).
			Int("recv_interim", st.RecvInterim).
			Dur("duration", time.Since(st.StartedAt)).
			Msg("stream_closed")
	})
	return err
}

func (s *streamSession) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.ws.Send(chunk); err != nil {
			s.fail(err)
			return
		}
		s.mu.Lock()
		s.stats.SentChunks++
		s.stats.SentBytes += uint64(len(chunk))
		s.mu.Unlock()
	}
	if err := s.ws.CloseSend(); err != nil {
		s.fail(err)
	}
}

func (s *streamSession) runReceiver() {
	defer close(s.recvDone)
	defer close(s.events)
	for {
		update, err := s.ws.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				s.emit(Event{Err: err})
			}
			return
		}
		if ev, ok := s.apply(update); ok {
			s.emit(ev)
		}
	}
}

// apply folds a segment into the utterance state and reports the event
// to emit, if any.
func (s *streamSession) apply(u streamUpdate) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.RecvMessages++
	if u.IsFinal {
		s.stats.RecvFinal++
	} else {
		s.stats.RecvInterim++
	}

	marked := u.SpeechFinal || u.FromFinalize
	text := strings.TrimSpace(u.Transcript)
	if text == "" {
		if u.FromFinalize && !s.heard {
			return Event{Err: ErrNoSpeech}, true
		}
		if marked && len(s.finals) > 0 {
			return Event{
				Text:           strings.Join(s.finals, " "),
				IsFinal:        true,
				HighConfidence: true,
				Confidence:     u.Confidence,
			}, true
		}
		return Event{}, false
	}
	s.heard = true

	parts := s.finals
	if u.IsFinal {
		s.finals = append(s.finals, text)
		parts = s.finals
	} else {
		parts = append(append([]string(nil), s.finals...), text)
	}
	return Event{
		Text:           strings.Join(parts, " "),
		IsFinal:        u.IsFinal,
		HighConfidence: marked,
		Confidence:     u.Confidence,
	}, true
}

func (s *streamSession) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *streamSession) fail(err error) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return
	}
	log.Warnf("stream send failed: %v", err)
	s.ws.Close()
}
