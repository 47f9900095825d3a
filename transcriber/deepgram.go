package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"nhooyr.io/websocket"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

type Deepgram struct {
	apiKey   string
	endpoint string
	model    string
	language string
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{apiKey: apiKey, endpoint: deepgramListenURL}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	if cfg.Model == "" {
		cfg.Model = d.model
	}
	if cfg.Language == "" {
		cfg.Language = d.language
	}
	raw, err := d.dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram connect: %w", err)
	}
	return newStreamSession(raw, cfg), nil
}

func (d *Deepgram) listenURL(cfg StreamConfig) (string, error) {
	endpoint, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}

	q := endpoint.Query()
	model := cfg.Model
	if model == "" {
		model = "nova-3"
	}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

type deepgramStreamResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
			Words      []struct {
				Word       string  `json:"word"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStream struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func (d *Deepgram) dial(ctx context.Context, cfg StreamConfig) (rawStream, error) {
	u, err := d.listenURL(cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, err
	}
	// The dial context only bounds connection setup.
	streamCtx, cancel := context.WithCancel(context.Background())
	return &deepgramStream{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

func (s *deepgramStream) Send(pcm []byte) error {
	return s.conn.Write(s.ctx, websocket.MessageBinary, pcm)
}

func (s *deepgramStream) CloseSend() error {
	return s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"Finalize"}`))
}

func (s *deepgramStream) Recv() (streamUpdate, error) {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return streamUpdate{}, err
		}

		var resp deepgramStreamResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return streamUpdate{}, fmt.Errorf("deepgram response parse error: %w", err)
		}
		// Metadata, SpeechStarted and UtteranceEnd carry no transcript.
		if resp.Type != "" && resp.Type != "Results" {
			continue
		}

		var u streamUpdate
		u.IsFinal = resp.IsFinal
		u.SpeechFinal = resp.SpeechFinal
		u.FromFinalize = resp.FromFinalize
		if len(resp.Channel.Alternatives) > 0 {
			alt := resp.Channel.Alternatives[0]
			u.Transcript = alt.Transcript
			scores := make([]float64, len(alt.Words))
			for i, w := range alt.Words {
				scores[i] = w.Confidence
			}
			u.Confidence = MeanConfidence(scores)
		}
		return u, nil
	}
}

func (s *deepgramStream) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
