package transcriber

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestNewRequiresCredential(t *testing.T) {
	if _, err := New(Credentials{}); err == nil {
		t.Error("expected error with no credentials")
	}
}

func TestNewPrefersDeepgram(t *testing.T) {
	tr, err := New(Credentials{Deepgram: "dg", Groq: "gq"})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Name() != "deepgram" {
		t.Errorf("got %q, want deepgram", tr.Name())
	}
	if !tr.Streaming() {
		t.Error("deepgram should be streaming")
	}
}

func TestByName(t *testing.T) {
	creds := Credentials{Groq: "gq"}
	tr, err := ByName("groq", creds)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Name() != "groq" {
		t.Errorf("got %q, want groq", tr.Name())
	}
	if _, err := ByName("deepgram", creds); err == nil {
		t.Error("expected error for missing deepgram credential")
	}
	if _, err := ByName("bogus", creds); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFakeStreamCommitJoin(t *testing.T) {
	sess := NewFakeSession(true, []string{"hello", "world"}, nil)

	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range sess.Updates() {
			if u.Final {
				got = append(got, u.Text)
			}
		}
	}()

	sess.EmitNext()
	sess.EmitNext()
	result, err := sess.Close()
	<-done

	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "hello world" {
		t.Errorf("result text = %q, want %q", result.Text, "hello world")
	}
	if len(got) < 2 || got[0] != "hello" || got[1] != "hello world" {
		t.Errorf("running commits = %v, want [hello, hello world]", got)
	}
}

func TestFakeBatch(t *testing.T) {
	f := NewFake(false, []string{"batch result"}, nil)
	sess, err := f.NewSession(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatal(err)
	}
	sess.Feed(make([]byte, 32000))
	result, err := sess.Close()
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "batch result" {
		t.Errorf("got %q", result.Text)
	}
	if result.AudioS < 0.9 || result.AudioS > 1.1 {
		t.Errorf("AudioS = %v, want ~1.0", result.AudioS)
	}
}

func TestStreamSessionDialFailure(t *testing.T) {
	errDial := context.DeadlineExceeded
	ss := newStreamSession(func() (rawStreamSession, error) {
		return nil, errDial
	})

	ss.Feed(make([]byte, streamChunkBytes))
	_, err := ss.Close()
	if err == nil {
		t.Fatal("expected dial error surfaced from Close")
	}

	// Updates channel must be closed so consumers drain cleanly
	for range ss.Updates() {
	}
}

type scriptedRaw struct {
	recv      chan streamUpdate
	done      chan struct{}
	closeOnce sync.Once
	sent      [][]byte
}

func (r *scriptedRaw) Send(pcm []byte) error { r.sent = append(r.sent, pcm); return nil }
func (r *scriptedRaw) CloseSend() error {
	r.recv <- streamUpdate{FromFinalize: true}
	return nil
}
func (r *scriptedRaw) Recv() (streamUpdate, error) {
	select {
	case u := <-r.recv:
		return u, nil
	case <-r.done:
		return streamUpdate{}, context.Canceled
	}
}
func (r *scriptedRaw) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

func TestStreamSessionCommitsFinals(t *testing.T) {
	raw := &scriptedRaw{recv: make(chan streamUpdate, 8), done: make(chan struct{})}
	raw.recv <- streamUpdate{Transcript: "hello", IsFinal: true}
	raw.recv <- streamUpdate{Transcript: "there", IsFinal: false}
	raw.recv <- streamUpdate{Transcript: "world", SpeechFinal: true}

	ss := newStreamSession(func() (rawStreamSession, error) { return raw, nil })

	go func() {
		for range ss.Updates() {
		}
	}()

	ss.Feed(make([]byte, streamChunkBytes*2))
	result, err := ss.Close()
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "hello world" {
		t.Errorf("got %q, want %q", result.Text, "hello world")
	}
	if len(raw.sent) != 2 {
		t.Errorf("sent %d chunks, want 2", len(raw.sent))
	}
}

// dyingRaw stalls briefly on the first Send and then reports the socket
// dead, like a connection dropped mid-session.
type dyingRaw struct {
	done      chan struct{}
	closeOnce sync.Once
	block     time.Duration
}

func (r *dyingRaw) Send([]byte) error {
	time.Sleep(r.block)
	return context.DeadlineExceeded
}
func (r *dyingRaw) CloseSend() error { return nil }
func (r *dyingRaw) Recv() (streamUpdate, error) {
	<-r.done
	return streamUpdate{}, context.Canceled
}
func (r *dyingRaw) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

func TestStreamSessionCloseAfterSendFailure(t *testing.T) {
	raw := &dyingRaw{done: make(chan struct{}), block: 20 * time.Millisecond}
	ss := newStreamSession(func() (rawStreamSession, error) { return raw, nil })

	// Well past the audio channel capacity, so a wedged sender would
	// block the feeder forever.
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for i := 0; i < 200; i++ {
			ss.Feed(make([]byte, streamChunkBytes))
		}
	}()
	select {
	case <-fed:
	case <-time.After(2 * time.Second):
		t.Fatal("Feed still blocked after sender failure")
	}

	closed := make(chan struct{})
	var closeErr error
	go func() {
		defer close(closed)
		_, closeErr = ss.Close()
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung after sender failure")
	}
	if closeErr == nil {
		t.Error("expected the send error surfaced from Close")
	}
	for range ss.Updates() {
	}
}
