package hotkey

import (
	"sync"
	"time"
)

type Mode string

const (
	ModePTT    Mode = "ptt"
	ModeToggle Mode = "toggle"
)

// StartEvent indicates a new recording should start. Mode is provisional:
// a press is reported as toggle until it crosses the long-press threshold,
// after which IsToggle flips. Consumers that care about the final mode should
// poll IsToggle rather than cache the event's Mode.
type StartEvent struct {
	Mode Mode
}

// Hybrid wraps a Hotkey so one combination serves both behaviors: held past
// the long-press threshold it acts as push-to-talk (stop on release), tapped
// it toggles (stop on next tap). It emits Start events and a unified stop
// signal for both modes.
type Hybrid struct {
	startCh chan StartEvent
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once

	mu   sync.Mutex
	mode Mode
}

// NewHybrid builds a Hybrid controller on top of an existing Hotkey.
// longPress is the hold duration that distinguishes PTT from a tap.
func NewHybrid(hk Hotkey, longPress time.Duration) *Hybrid {
	h := &Hybrid{
		startCh: make(chan StartEvent, 1),
		stopCh:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		mode:    ModeToggle,
	}
	go h.run(hk, longPress)
	return h
}

func (h *Hybrid) Start() <-chan StartEvent { return h.startCh }

// StopChan signals when the active recording should end, for both modes.
func (h *Hybrid) StopChan() <-chan struct{} { return h.stopCh }

// Close ends the run loop. The underlying Hotkey is not touched.
func (h *Hybrid) Close() {
	h.once.Do(func() { close(h.done) })
}

// IsToggle reports whether the current recording was started by a tap.
func (h *Hybrid) IsToggle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode == ModeToggle
}

func (h *Hybrid) setMode(m Mode) {
	h.mu.Lock()
	h.mode = m
	h.mu.Unlock()
}

type hybridState int

const (
	stIdle hybridState = iota
	stToggleRecording
)

func (h *Hybrid) run(hk Hotkey, longPress time.Duration) {
	state := stIdle
	for {
		switch state {
		case stIdle:
			// Any press starts immediately; mode is decided by hold duration.
			select {
			case <-hk.Keydown():
			case <-h.done:
				return
			}
			h.setMode(ModeToggle)
			h.startCh <- StartEvent{Mode: ModeToggle}
			timer := time.NewTimer(longPress)
			select {
			case <-timer.C:
				// Held past threshold: PTT, stop on release
				h.setMode(ModePTT)
				select {
				case <-hk.Keyup():
				case <-h.done:
					return
				}
				h.emitStop()
				state = stIdle
			case <-hk.Keyup():
				// Short tap: toggled on; next press stops
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				state = stToggleRecording
			case <-h.done:
				return
			}
		case stToggleRecording:
			select {
			case <-hk.Keydown():
			case <-h.done:
				return
			}
			select {
			case <-hk.Keyup():
			case <-h.done:
				return
			}
			h.emitStop()
			state = stIdle
		default:
			state = stIdle
		}
	}
}

func (h *Hybrid) emitStop() {
	select {
	case h.stopCh <- struct{}{}:
	default:
	}
}
