package transcriber

import (
	"context"
	"strings"
	"sync"
)

// FakeTranscriber returns scripted sessions; tests and headless runs use it
// in place of a real provider.
type FakeTranscriber struct {
	segments []string
	err      error
	stream   bool
	lang     string

	mu       sync.Mutex
	sessions []*FakeSession
}

// NewFake builds a fake whose sessions produce the given final segments.
// In streaming mode each segment is committed separately; in batch mode the
// segments are joined into one result.
func NewFake(stream bool, segments []string, err error) *FakeTranscriber {
	return &FakeTranscriber{segments: segments, err: err, stream: stream}
}

func (f *FakeTranscriber) Name() string            { return "fake" }
func (f *FakeTranscriber) Streaming() bool         { return f.stream }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }

func (f *FakeTranscriber) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	s := NewFakeSession(f.stream && cfg.Stream, f.segments, f.err)
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// LastSession returns the most recently created session, for tests.
func (f *FakeTranscriber) LastSession() *FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

// SessionCount reports how many sessions were created.
func (f *FakeTranscriber) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// FakeSession implements Session with scripted behavior. In streaming mode
// EmitNext (or Close) publishes segments as running committed text.
type FakeSession struct {
	stream   bool
	segments []string
	err      error
	updates  chan Update

	mu        sync.Mutex
	fedBytes  int
	committed string
	emitted   int
	closed    bool
	cancelled bool
	closeGate chan struct{}
}

func NewFakeSession(stream bool, segments []string, err error) *FakeSession {
	return &FakeSession{
		stream:   stream,
		segments: segments,
		err:      err,
		updates:  make(chan Update, 16),
	}
}

func (s *FakeSession) Feed(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fedBytes += len(pcm)
}

// FedBytes reports how much PCM the session received.
func (s *FakeSession) FedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fedBytes
}

func (s *FakeSession) Updates() <-chan Update {
	return s.updates
}

// EmitNext commits the next scripted segment and publishes the running text.
// Returns false when all segments are spent. Streaming mode only.
func (s *FakeSession) EmitNext() bool {
	s.mu.Lock()
	if !s.stream || s.emitted >= len(s.segments) || s.closed {
		s.mu.Unlock()
		return false
	}
	seg := s.segments[s.emitted]
	s.emitted++
	if s.committed != "" {
		s.committed += " " + seg
	} else {
		s.committed = seg
	}
	full := s.committed
	s.mu.Unlock()

	s.updates <- Update{Text: full, Final: true}
	return true
}

// EmitInterim publishes a non-final update. Streaming mode only.
func (s *FakeSession) EmitInterim(text string) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || !s.stream {
		return
	}
	s.updates <- Update{Text: text, Final: false}
}

// Cancel discards the session; no result is produced.
func (s *FakeSession) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelled = true
	s.mu.Unlock()
	close(s.updates)
}

// Cancelled reports whether the session was torn down via Cancel.
func (s *FakeSession) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// HoldClose makes Close block until the returned release func is called,
// so tests can pin the session in its finalizing phase.
func (s *FakeSession) HoldClose() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.closeGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *FakeSession) Close() (SessionResult, error) {
	s.mu.Lock()
	gate := s.closeGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SessionResult{}, nil
	}
	s.closed = true
	err := s.err

	var text string
	if s.stream {
		// Unemitted segments are lost, as with a real early close
		text = s.committed
	} else {
		text = strings.Join(s.segments, " ")
	}
	fed := s.fedBytes
	s.mu.Unlock()

	close(s.updates)

	if err != nil {
		return SessionResult{NoSpeech: true}, err
	}

	text = strings.TrimSpace(text)
	return SessionResult{
		Text:     text,
		HasText:  text != "",
		NoSpeech: text == "",
		AudioS:   float64(fed) / float64(16000*2),
	}, nil
}
