package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Deepgram streams PCM16 over the live websocket API.
type Deepgram struct {
	apiKey string
	lang   string
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{apiKey: apiKey}
}

func (d *Deepgram) Name() string            { return "deepgram" }
func (d *Deepgram) Streaming() bool         { return true }
func (d *Deepgram) SetLanguage(lang string) { d.lang = lang }
func (d *Deepgram) GetLanguage() string     { return d.lang }

func (d *Deepgram) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	lang := cfg.Language
	if lang == "" {
		lang = d.lang
	}
	return newStreamSession(func() (rawStreamSession, error) {
		return d.dial(ctx, lang)
	}), nil
}

type deepgramStreamResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStreamSession struct {
	conn *websocket.Conn

	// gorilla/websocket allows one concurrent writer; Send and CloseSend
	// both write.
	writeMu sync.Mutex
}

func (d *Deepgram) dial(ctx context.Context, lang string) (rawStreamSession, error) {
	endpoint, err := url.Parse("wss://api.deepgram.com/v1/listen")
	if err != nil {
		return nil, err
	}

	q := endpoint.Query()
	q.Set("model", "nova-3")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", 16000))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	if lang != "" {
		q.Set("language", lang)
	}
	endpoint.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("deepgram auth rejected: %w", err)
		}
		return nil, fmt.Errorf("deepgram connect: %w", err)
	}

	return &deepgramStreamSession{conn: conn}, nil
}

func (s *deepgramStreamSession) Send(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (s *deepgramStreamSession) CloseSend() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Finalize"}`))
}

func (s *deepgramStreamSession) Recv() (streamUpdate, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return streamUpdate{}, err
	}

	var resp deepgramStreamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return streamUpdate{}, err
	}

	transcript := ""
	if len(resp.Channel.Alternatives) > 0 {
		transcript = resp.Channel.Alternatives[0].Transcript
	}

	return streamUpdate{
		Transcript:   strings.TrimSpace(transcript),
		IsFinal:      resp.IsFinal,
		SpeechFinal:  resp.SpeechFinal,
		FromFinalize: resp.FromFinalize,
	}, nil
}

func (s *deepgramStreamSession) Close() error {
	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}
