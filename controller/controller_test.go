package controller

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quill/audio"
	"quill/history"
	"quill/inject"
	"quill/transcriber"
)

// stubCapture is a hand-driven microphone: tests push frames explicitly so
// the min-duration gate behaves deterministically.
type stubCapture struct {
	mu       sync.Mutex
	cb       audio.DataCallback
	started  bool
	startErr error
}

func (s *stubCapture) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *stubCapture) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

func (s *stubCapture) Close() {}

func (s *stubCapture) SetCallback(cb audio.DataCallback) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *stubCapture) ClearCallback() {
	s.mu.Lock()
	s.cb = nil
	s.mu.Unlock()
}

func (s *stubCapture) DeviceName() string { return "stub" }

func (s *stubCapture) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// feed delivers n frames of silence through the active callback.
func (s *stubCapture) feed(n int) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(make([]byte, n*2), uint32(n))
	}
}

// recObserver records every event for assertions.
type recObserver struct {
	mu          sync.Mutex
	states      []State
	errs        []error
	entries     []history.Entry
	transcripts []string
}

func (r *recObserver) StatusChanged(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recObserver) TranscriptUpdated(text string, final bool) {
	r.mu.Lock()
	r.transcripts = append(r.transcripts, text)
	r.mu.Unlock()
}

func (r *recObserver) ErrorRaised(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recObserver) HistoryAppended(e history.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *recObserver) AudioLevel(float64)  {}
func (r *recObserver) SilenceWarning(bool) {}

func (r *recObserver) stateSeq() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

func (r *recObserver) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *recObserver) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func (r *recObserver) historyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *recObserver) transcriptSeq() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.transcripts))
	copy(out, r.transcripts)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fixture struct {
	ctl   *Controller
	cap   *stubCapture
	inj   *inject.FakeInjector
	store *history.Store
	obs   *recObserver
	trans *transcriber.FakeTranscriber
}

func newFixture(t *testing.T, trans *transcriber.FakeTranscriber, mutate func(*Options)) *fixture {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.json"), 50)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		cap:   &stubCapture{},
		inj:   inject.NewFakeInjector(),
		store: store,
		obs:   &recObserver{},
		trans: trans,
	}
	opts := Options{
		Transcriber: trans,
		Capture:     f.cap,
		Injector:    f.inj,
		History:     store,
		Format:      "flac",
		MinCapture:  100 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.ctl, err = New(opts)
	if err != nil {
		t.Fatal(err)
	}
	f.ctl.Subscribe(f.obs)
	t.Cleanup(f.ctl.Close)
	return f
}

func TestBatchFlow(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, []string{"hello world"}, nil), nil)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	if !f.cap.Started() {
		t.Error("capture not started")
	}

	f.cap.feed(3200) // 0.2s, above the gate
	f.ctl.Stop()
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle && f.inj.Typed() != "" })

	if got := f.inj.Typed(); got != "hello world" {
		t.Errorf("typed %q", got)
	}
	if f.store.Len() != 1 {
		t.Errorf("history entries = %d", f.store.Len())
	}
	if e, _ := f.store.Latest(); e.Text != "hello world" || e.Provider != "fake" {
		t.Errorf("history entry = %+v", e)
	}

	want := []State{Connecting, Recording, Processing, Injecting, Idle}
	got := f.obs.stateSeq()
	if len(got) != len(want) {
		t.Fatalf("state sequence = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state sequence = %v, want %v", got, want)
		}
	}
	if f.cap.Started() {
		t.Error("capture still running after session end")
	}
}

func TestStreamingIncrementsInOrder(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(true, []string{"hello", "world"}, nil), nil)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	sess := f.trans.LastSession()

	sess.EmitNext() // commits "hello"
	waitFor(t, "first increment", func() bool { return f.inj.Typed() == "hello" })
	sess.EmitNext() // commits "hello world"
	waitFor(t, "second increment", func() bool { return f.inj.Typed() == "hello world" })

	texts := f.inj.Texts()
	if len(texts) != 2 || texts[0] != "hello" || texts[1] != " world" {
		t.Errorf("increments = %q", texts)
	}

	f.cap.feed(3200)
	f.ctl.Stop()
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle })

	// The finalize tail must not re-inject text already typed as increments
	if got := f.inj.Typed(); got != "hello world" {
		t.Errorf("typed after close = %q", got)
	}
	if f.inj.Overlapped() {
		t.Error("injection calls overlapped")
	}
	if e, ok := f.store.Latest(); !ok || e.Text != "hello world" {
		t.Errorf("history entry = %+v, %v", e, ok)
	}
}

func TestShortCaptureDiscarded(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, []string{"ignored"}, nil), nil)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	f.cap.feed(100) // well below 100ms worth of frames
	f.ctl.Stop()
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle })

	if len(f.inj.Texts()) != 0 {
		t.Errorf("injector called for discarded capture: %q", f.inj.Texts())
	}
	if f.store.Len() != 0 {
		t.Errorf("history entries = %d", f.store.Len())
	}
	if !f.trans.LastSession().Cancelled() {
		t.Error("session submitted instead of cancelled")
	}
}

func TestCancelReleasesEverything(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, []string{"never"}, nil), nil)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	f.cap.feed(3200)
	f.ctl.Cancel()
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle })
	waitFor(t, "session cancelled", func() bool { return f.trans.LastSession().Cancelled() })

	if f.cap.Started() {
		t.Error("capture still running after cancel")
	}
	if len(f.inj.Texts()) != 0 || f.store.Len() != 0 {
		t.Error("cancelled session produced output")
	}
}

func TestStopAndCancelAreIdleNoops(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, nil, nil), nil)

	f.ctl.Stop()
	f.ctl.Cancel()
	time.Sleep(50 * time.Millisecond)

	if f.ctl.State() != Idle {
		t.Errorf("state = %v", f.ctl.State())
	}
	if seq := f.obs.stateSeq(); len(seq) != 0 {
		t.Errorf("unexpected transitions: %v", seq)
	}
	if f.trans.SessionCount() != 0 {
		t.Errorf("sessions created: %d", f.trans.SessionCount())
	}
}

func TestSecondStartIgnored(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, []string{"x"}, nil), nil)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	f.ctl.Start()
	time.Sleep(50 * time.Millisecond)

	if n := f.trans.SessionCount(); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
}

func TestServiceErrorSurfaced(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, nil, errors.New("upstream 500")), nil)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	f.cap.feed(3200)
	f.ctl.Stop()
	waitFor(t, "error surfaced", func() bool { return f.obs.errorCount() > 0 })
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle })

	if kind, ok := KindOf(f.obs.lastErr()); !ok || kind != ServiceError {
		t.Errorf("err = %v", f.obs.lastErr())
	}
	if len(f.inj.Texts()) != 0 || f.store.Len() != 0 {
		t.Error("failed session produced output")
	}
	if f.cap.Started() {
		t.Error("capture still running after error")
	}
}

func TestDeviceErrorOnStart(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, []string{"x"}, nil), nil)
	f.cap.startErr = errors.New("device busy")

	f.ctl.Start()
	waitFor(t, "error surfaced", func() bool { return f.obs.errorCount() > 0 })
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle })

	if kind, ok := KindOf(f.obs.lastErr()); !ok || kind != DeviceError {
		t.Errorf("err = %v", f.obs.lastErr())
	}
	waitFor(t, "session cancelled", func() bool { return f.trans.LastSession().Cancelled() })
}

func TestNoSpeechResult(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, nil, nil), nil)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	f.cap.feed(3200)
	f.ctl.Stop()
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle })

	if len(f.inj.Texts()) != 0 || f.store.Len() != 0 {
		t.Error("empty transcript produced output")
	}
	if f.obs.errorCount() != 0 {
		t.Errorf("unexpected error: %v", f.obs.lastErr())
	}
}

func TestCancelDuringProcessingDropsLateResult(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, []string{"late arrival"}, nil), nil)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	release := f.trans.LastSession().HoldClose()
	f.cap.feed(3200)
	f.ctl.Stop()
	waitFor(t, "processing", func() bool { return f.ctl.State() == Processing })

	f.ctl.Cancel()
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle })
	release()
	time.Sleep(100 * time.Millisecond)

	if len(f.inj.Texts()) != 0 {
		t.Errorf("late result injected: %q", f.inj.Texts())
	}
	if f.store.Len() != 0 {
		t.Error("late result recorded in history")
	}
	if f.ctl.State() != Idle {
		t.Errorf("state = %v", f.ctl.State())
	}
}

func TestRetypeBypassesStateMachine(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, nil, nil), nil)
	if _, err := f.store.Add("previous note", "fake", "ptt", 1); err != nil {
		t.Fatal(err)
	}

	f.ctl.Retype("")
	waitFor(t, "retype injected", func() bool { return f.inj.Typed() == "previous note" })

	if seq := f.obs.stateSeq(); len(seq) != 0 {
		t.Errorf("retype caused transitions: %v", seq)
	}
	if f.trans.SessionCount() != 0 {
		t.Error("retype created a session")
	}

	f.ctl.Retype("verbatim text")
	waitFor(t, "explicit retype", func() bool {
		texts := f.inj.Texts()
		return len(texts) == 2 && texts[1] == "verbatim text"
	})
}

func TestCopyLast(t *testing.T) {
	var mu sync.Mutex
	var copied string
	f := newFixture(t, transcriber.NewFake(false, nil, nil), func(o *Options) {
		o.Copy = func(s string) error {
			mu.Lock()
			copied = s
			mu.Unlock()
			return nil
		}
	})
	if _, err := f.store.Add("copy me", "fake", "toggle", 1); err != nil {
		t.Fatal(err)
	}

	f.ctl.CopyLast()
	waitFor(t, "copy", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return copied == "copy me"
	})
}

func TestToggleAutoCloseStopsSession(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, []string{"auto"}, nil), func(o *Options) {
		o.IsToggle = func() bool { return true }
		o.IdleWarn = 200 * time.Millisecond
		o.IdleStop = 400 * time.Millisecond
	})

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	f.cap.feed(8000) // 0.5s of silence, above the min-duration gate

	// No speech ever arrives; the idle monitor must stop the session
	waitFor(t, "auto-close to idle", func() bool {
		return f.ctl.State() == Idle && !f.cap.Started()
	})
	if got := f.inj.Typed(); got != "auto" {
		t.Errorf("typed %q", got)
	}
}

func TestInjectionFailureKeepsTranscript(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, []string{"hello world"}, nil), nil)
	f.inj.SetErr(errors.New("virtual keyboard gone"))

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	f.cap.feed(3200)
	f.ctl.Stop()
	waitFor(t, "error surfaced", func() bool { return f.obs.errorCount() > 0 })
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle })

	if kind, ok := KindOf(f.obs.lastErr()); !ok || kind != InjectionError {
		t.Errorf("err = %v", f.obs.lastErr())
	}
	// The text must survive the failed injection
	if f.store.Len() != 1 {
		t.Fatalf("history entries = %d, want 1", f.store.Len())
	}
	if e, _ := f.store.Latest(); e.Text != "hello world" {
		t.Errorf("history entry = %+v", e)
	}
	if f.obs.historyCount() != 1 {
		t.Errorf("observer history events = %d, want 1", f.obs.historyCount())
	}
}

func TestCancelDuringInjectionReturnsPromptly(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(false, []string{"slow delivery"}, nil), nil)
	f.inj.SetDelay(500 * time.Millisecond)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	f.cap.feed(3200)
	f.ctl.Stop()
	waitFor(t, "injecting", func() bool { return f.ctl.State() == Injecting })

	// Keystrokes are still going out; the command loop must stay live
	start := time.Now()
	f.ctl.Cancel()
	waitFor(t, "idle", func() bool { return f.ctl.State() == Idle })
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("cancel took %v with injection in flight", elapsed)
	}
	if f.store.Len() != 1 {
		t.Errorf("history entries = %d, want 1", f.store.Len())
	}

	// The injection finishes late; its outcome belongs to the cancelled
	// session and must change nothing
	time.Sleep(600 * time.Millisecond)
	if f.ctl.State() != Idle {
		t.Errorf("state = %v after late injection outcome", f.ctl.State())
	}
	if f.obs.errorCount() != 0 {
		t.Errorf("errors = %d, want 0", f.obs.errorCount())
	}
}

func TestInterimComposedOntoCommittedText(t *testing.T) {
	f := newFixture(t, transcriber.NewFake(true, []string{"hello"}, nil), nil)

	f.ctl.Start()
	waitFor(t, "recording", func() bool { return f.ctl.State() == Recording })
	sess := f.trans.LastSession()

	sess.EmitNext() // commits "hello"
	waitFor(t, "first increment", func() bool { return f.inj.Typed() == "hello" })

	// A bare interim fragment must be shown appended to the committed
	// text, never replacing it
	sess.EmitInterim("there")
	waitFor(t, "composed interim", func() bool {
		for _, txt := range f.obs.transcriptSeq() {
			if txt == "hello there" {
				return true
			}
		}
		return false
	})
}
