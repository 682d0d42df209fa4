package inject

import (
	"sync"
	"sync/atomic"
	"time"
)

// FakeInjector records every Type call and detects overlapping calls.
type FakeInjector struct {
	mu    sync.Mutex
	texts []string
	err   error

	delay    time.Duration
	inFlight int32
	overlap  atomic.Bool
}

func NewFakeInjector() *FakeInjector { return &FakeInjector{} }

// SetDelay makes each Type call take d, to widen race windows in tests.
func (f *FakeInjector) SetDelay(d time.Duration) { f.delay = d }

// SetErr makes subsequent Type calls fail with err.
func (f *FakeInjector) SetErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeInjector) Type(text string) error {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		f.overlap.Store(true)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	err := f.err
	if err == nil {
		f.texts = append(f.texts, text)
	}
	f.mu.Unlock()
	atomic.AddInt32(&f.inFlight, -1)
	return err
}

// Texts returns all successfully typed strings in call order.
func (f *FakeInjector) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

// Typed returns the concatenation of everything typed so far.
func (f *FakeInjector) Typed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s string
	for _, t := range f.texts {
		s += t
	}
	return s
}

// Overlapped reports whether two Type calls were ever active at once.
func (f *FakeInjector) Overlapped() bool { return f.overlap.Load() }
