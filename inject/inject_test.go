package inject

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGuardSerializes(t *testing.T) {
	fk := NewFakeInjector()
	fk.SetDelay(5 * time.Millisecond)
	g := NewGuard(fk)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Type("x"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if fk.Overlapped() {
		t.Error("concurrent Type calls overlapped through the guard")
	}
	if len(fk.Texts()) != 8 {
		t.Errorf("expected 8 deliveries, got %d", len(fk.Texts()))
	}
}

func TestGuardPreservesOrder(t *testing.T) {
	fk := NewFakeInjector()
	g := NewGuard(fk)
	for _, s := range []string{"hello", " world", ", again"} {
		if err := g.Type(s); err != nil {
			t.Fatal(err)
		}
	}
	if got := fk.Typed(); got != "hello world, again" {
		t.Errorf("typed %q", got)
	}
}

func TestGuardSkipsEmpty(t *testing.T) {
	fk := NewFakeInjector()
	g := NewGuard(fk)
	if err := g.Type(""); err != nil {
		t.Fatal(err)
	}
	if n := len(fk.Texts()); n != 0 {
		t.Errorf("empty text reached the injector, %d calls", n)
	}
}

func TestGuardPropagatesError(t *testing.T) {
	fk := NewFakeInjector()
	want := errors.New("focus lost")
	fk.SetErr(want)
	g := NewGuard(fk)
	if err := g.Type("abc"); !errors.Is(err, want) {
		t.Errorf("err = %v", err)
	}
}

func TestNewUnknownMethod(t *testing.T) {
	if _, err := New("telepathy"); err == nil {
		t.Error("expected error for unknown method")
	}
}
