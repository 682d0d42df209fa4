// Package inject delivers transcribed text into the focused application as
// synthetic keystrokes. All delivery goes through a Guard so that two
// injections never interleave, even when increments arrive from different
// goroutines.
package inject

import (
	"fmt"
	"sync"
)

// Injector types text into whatever window currently has focus.
type Injector interface {
	Type(text string) error
}

// Guard serializes calls to an underlying Injector. Characters from one
// call are fully delivered before the next call starts.
type Guard struct {
	mu    sync.Mutex
	inner Injector
}

func NewGuard(inner Injector) *Guard {
	return &Guard{inner: inner}
}

func (g *Guard) Type(text string) error {
	if text == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Type(text)
}

// Init opens the platform injection device ahead of first use, so
// permission problems surface at startup instead of mid-dictation.
func Init() error {
	return initDevice()
}

// New builds the injector for the given method: "keystroke" sends each
// character as a key event, "paste" goes through the system clipboard and a
// paste chord, restoring the previous clipboard contents afterwards. The
// result is already wrapped in a Guard.
func New(method string) (Injector, error) {
	switch method {
	case "", "keystroke":
		return NewGuard(newKeystrokeInjector()), nil
	case "paste":
		return NewGuard(&pasteInjector{}), nil
	default:
		return nil, fmt.Errorf("unknown injection method %q", method)
	}
}
