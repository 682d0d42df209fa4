package controller

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type idleEvent int

const (
	idleNone      idleEvent = iota
	idleWarn                // no voice detected
	idleWarnClear           // speech resumed after warning
	idleRepeat              // repeat warning
	idleAutoClose           // toggle-mode auto stop
)

// idleMonitor watches per-tick speech detection over a sliding window. After
// warnEvery without speech it warns (repeating at the same interval); after
// autoCloseDur it requests an automatic stop, but only for toggle-mode
// recordings where no release edge will ever arrive.
type idleMonitor struct {
	warnAt   int
	windowSz int

	isToggle func() bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	lastWarn    int
}

func newIdleMonitor(warnEvery, autoCloseDur time.Duration, isToggle func() bool) *idleMonitor {
	warnAt := int(warnEvery / tickInterval)
	windowSz := int(autoCloseDur / tickInterval)
	if warnAt < 1 {
		warnAt = 1
	}
	if windowSz < warnAt {
		windowSz = warnAt
	}
	return &idleMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		isToggle: isToggle,
		window:   make([]bool, windowSz),
	}
}

func (m *idleMonitor) ratio(n int) float64 {
	if m.ticks < n {
		n = m.ticks
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *idleMonitor) Tick(hasSpeech bool) idleEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.ratio(m.warnAt)

	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastWarn = m.ticks
		return idleWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return idleWarnClear
	}

	if !m.isToggle() {
		return idleNone
	}

	// Auto-close window check runs before the repeat warning
	if m.ticks >= m.windowSz && float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return idleAutoClose
	}

	if m.warned && m.ticks-m.lastWarn >= m.warnAt {
		m.lastWarn = m.ticks
		return idleRepeat
	}

	return idleNone
}
