package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

// NetworkMetrics breaks one batch request into its wire phases.
type NetworkMetrics struct {
	DNS        time.Duration
	ConnWait   time.Duration
	TCP        time.Duration
	TLS        time.Duration
	ReqHeaders time.Duration
	ReqBody    time.Duration
	TTFB       time.Duration
	Download   time.Duration
	Total      time.Duration

	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// Result is one batch provider response.
type Result struct {
	Text       string
	Metrics    *NetworkMetrics
	RateLimit  string
	Confidence float64
	Duration   float64
}

type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	// Streaming reports whether NewSession produces live incremental sessions.
	Streaming() bool
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

type baseTranscriber struct {
	client *TracedClient
	apiURL string
	lang   string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) GetLanguage() string { return b.lang }

// Credentials holds provider API keys as loaded from config/env.
type Credentials struct {
	Deepgram string
	Groq     string
	OpenAI   string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		Deepgram: os.Getenv("DEEPGRAM_API_KEY"),
		Groq:     os.Getenv("GROQ_API_KEY"),
		OpenAI:   os.Getenv("OPENAI_API_KEY"),
	}
}

func (c Credentials) Empty() bool {
	return c.Deepgram == "" && c.Groq == "" && c.OpenAI == ""
}

// New picks a provider by the first configured credential: Deepgram
// (streaming) wins, then Groq, then OpenAI.
func New(creds Credentials) (Transcriber, error) {
	if creds.Deepgram != "" {
		return NewDeepgram(creds.Deepgram), nil
	}
	if creds.Groq != "" {
		return NewGroq(creds.Groq), nil
	}
	if creds.OpenAI != "" {
		return NewOpenAI(creds.OpenAI), nil
	}
	return nil, fmt.Errorf("set DEEPGRAM_API_KEY, GROQ_API_KEY or OPENAI_API_KEY")
}

// ByName builds a specific provider, for explicit config selection.
func ByName(name string, creds Credentials) (Transcriber, error) {
	switch name {
	case "deepgram":
		if creds.Deepgram == "" {
			return nil, fmt.Errorf("deepgram credential not configured")
		}
		return NewDeepgram(creds.Deepgram), nil
	case "groq":
		if creds.Groq == "" {
			return nil, fmt.Errorf("groq credential not configured")
		}
		return NewGroq(creds.Groq), nil
	case "openai":
		if creds.OpenAI == "" {
			return nil, fmt.Errorf("openai credential not configured")
		}
		return NewOpenAI(creds.OpenAI), nil
	case "":
		return New(creds)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
