package controller

import (
	"testing"
	"time"
)

func pttMonitor() *idleMonitor {
	return newIdleMonitor(8*time.Second, 30*time.Second, func() bool { return false })
}

func toggleMonitor() *idleMonitor {
	return newIdleMonitor(8*time.Second, 30*time.Second, func() bool { return true })
}

func feedN(m *idleMonitor, speech bool, n int) idleEvent {
	var last idleEvent
	for i := 0; i < n; i++ {
		last = m.Tick(speech)
	}
	return last
}

func TestIdleWarnAfterWarnWindow(t *testing.T) {
	m := pttMonitor()
	// 79 ticks of silence, no warning yet
	for i := 0; i < 79; i++ {
		if ev := m.Tick(false); ev != idleNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	// 80th tick (8s) triggers the warning
	if ev := m.Tick(false); ev != idleWarn {
		t.Fatalf("expected idleWarn at tick 80, got %d", ev)
	}
}

func TestIdleWarnClearsOnSpeech(t *testing.T) {
	m := pttMonitor()
	feedN(m, false, 80) // triggers warn

	// Sustained speech clears the warning (needs 25% of the warn window)
	for i := 0; i < 80; i++ {
		if ev := m.Tick(true); ev == idleWarnClear {
			return
		}
	}
	t.Fatal("expected idleWarnClear after speech")
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := pttMonitor()
	for i := 0; i < 200; i++ {
		if ev := m.Tick(true); ev == idleWarn {
			t.Fatalf("unexpected warn during speech at tick %d", i)
		}
	}
}

func TestToggleRepeatWarning(t *testing.T) {
	m := toggleMonitor()
	feedN(m, false, 80)
	var gotRepeat bool
	for i := 0; i < 100; i++ {
		if ev := m.Tick(false); ev == idleRepeat {
			gotRepeat = true
			break
		}
	}
	if !gotRepeat {
		t.Fatal("expected idleRepeat in toggle mode")
	}
}

func TestToggleAutoClose(t *testing.T) {
	m := toggleMonitor()
	for i := 0; i < 400; i++ {
		if ev := m.Tick(false); ev == idleAutoClose {
			return
		}
	}
	t.Fatal("expected idleAutoClose within 400 ticks")
}

func TestAutoClosePriorityOverRepeat(t *testing.T) {
	m := toggleMonitor()
	for i := 0; i < 400; i++ {
		ev := m.Tick(false)
		if ev == idleAutoClose {
			return
		}
		if i >= 300 && ev == idleRepeat {
			t.Fatalf("idleRepeat fired at tick %d instead of idleAutoClose", i)
		}
	}
	t.Fatal("expected idleAutoClose within 400 ticks")
}

func TestNoAutoCloseInPTT(t *testing.T) {
	m := pttMonitor()
	for i := 0; i < 400; i++ {
		if ev := m.Tick(false); ev == idleAutoClose {
			t.Fatalf("unexpected auto-close in PTT mode at tick %d", i)
		}
	}
}

func TestAutoClosePreventedBySpeech(t *testing.T) {
	m := toggleMonitor()
	for i := 0; i < 500; i++ {
		speech := i%10 < 7
		if ev := m.Tick(speech); ev == idleAutoClose {
			t.Fatalf("unexpected auto-close with speech at tick %d", i)
		}
	}
}

func TestWarnOnlyOnce(t *testing.T) {
	m := pttMonitor()
	warns := 0
	for i := 0; i < 300; i++ {
		if ev := m.Tick(false); ev == idleWarn {
			warns++
		}
	}
	if warns != 1 {
		t.Fatalf("expected exactly 1 idleWarn in PTT mode, got %d", warns)
	}
}

func TestWarnStaysDuringNoise(t *testing.T) {
	m := pttMonitor()
	feedN(m, false, 80)

	// Occasional VAD false positives (< 25% speech) must not clear
	for i := 0; i < 80; i++ {
		speech := i%10 == 0
		if ev := m.Tick(speech); ev == idleWarnClear {
			t.Fatalf("warning cleared with 10%% speech at tick %d", i)
		}
	}
}
