package hotkey

import (
	"fmt"
	"sync"
	"time"

	"quill/log"
)

// Command is the recording intent derived from a hotkey edge.
type Command int

const (
	CmdStart Command = iota
	CmdStop
)

func (c Command) String() string {
	if c == CmdStart {
		return "start"
	}
	return "stop"
}

// Edge is one translated hotkey transition, routed to exactly one surface.
type Edge struct {
	Cmd     Command
	Mode    Mode
	Surface string
}

// MainSurface receives edges when no other surface is visible.
const MainSurface = "main"

// Factory builds a platform Hotkey for a binding.
type Factory func(Binding) (Hotkey, error)

type surface struct {
	name    string
	visible func() bool
	deliver func(Edge)
}

// Bridge owns the hotkey registration lifecycle and translates raw
// press/release edges into Start/Stop commands according to the configured
// mode. Each edge is delivered to exactly one surface: the first registered
// surface reporting visible, otherwise MainSurface.
//
// Register and Unregister are idempotent. Rebind swaps the binding so that
// at most one combination is ever registered with the OS.
type Bridge struct {
	factory   Factory
	mode      Mode // ModePTT or ModeToggle; empty means hybrid
	hybrid    bool
	longPress time.Duration
	events    chan Edge

	mu       sync.Mutex
	hk       Hotkey
	hy       *Hybrid
	binding  Binding
	stop     chan struct{}
	surfaces []surface
	toggled  bool
}

// NewBridge builds a bridge for mode "ptt", "toggle" or "hybrid".
func NewBridge(factory Factory, mode string, longPress time.Duration) (*Bridge, error) {
	b := &Bridge{
		factory:   factory,
		longPress: longPress,
		events:    make(chan Edge, 8),
	}
	switch mode {
	case "ptt":
		b.mode = ModePTT
	case "toggle":
		b.mode = ModeToggle
	case "hybrid", "":
		b.hybrid = true
	default:
		return nil, fmt.Errorf("unknown hotkey mode %q", mode)
	}
	return b, nil
}

// Events is the MainSurface sink: edges land here when no registered
// surface is visible. The channel is never closed.
func (b *Bridge) Events() <-chan Edge { return b.events }

// AddSurface registers a routing target with its own delivery function.
// Surfaces are consulted in registration order; the first one whose
// visible func returns true gets the edge delivered, and nobody else
// sees it.
func (b *Bridge) AddSurface(name string, visible func() bool, deliver func(Edge)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surfaces = append(b.surfaces, surface{name: name, visible: visible, deliver: deliver})
}

func (b *Bridge) routeTo() (string, func(Edge)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.surfaces {
		if s.visible() {
			return s.name, s.deliver
		}
	}
	return MainSurface, nil
}

// Register claims the binding with the OS and starts edge translation.
// Calling it again with the same active binding is a no-op.
func (b *Bridge) Register(binding Binding) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hk != nil && b.binding == binding {
		return nil
	}
	if b.hk != nil {
		b.unregisterLocked()
	}
	return b.registerLocked(binding)
}

// Unregister releases the binding. Safe to call when nothing is registered.
func (b *Bridge) Unregister() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unregisterLocked()
}

// Rebind atomically swaps the active binding. The old binding is released
// first; if the new one cannot be registered the old binding is restored,
// so exactly one combination stays active on failure.
func (b *Bridge) Rebind(binding Binding) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hk == nil {
		return b.registerLocked(binding)
	}
	if b.binding == binding {
		return nil
	}
	old := b.binding
	b.unregisterLocked()
	if err := b.registerLocked(binding); err != nil {
		if restoreErr := b.registerLocked(old); restoreErr != nil {
			log.Errorf("restoring hotkey %s after failed rebind: %v", old, restoreErr)
		}
		return err
	}
	log.Info(fmt.Sprintf("hotkey rebound: %s -> %s", old, binding))
	return nil
}

// Binding returns the currently registered binding and whether one is active.
func (b *Bridge) Binding() (Binding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.binding, b.hk != nil
}

func (b *Bridge) registerLocked(binding Binding) error {
	hk, err := b.factory(binding)
	if err != nil {
		return err
	}
	if err := hk.Register(); err != nil {
		return err
	}
	b.hk = hk
	b.binding = binding
	b.stop = make(chan struct{})
	b.toggled = false
	if b.hybrid {
		b.hy = NewHybrid(hk, b.longPress)
		go b.runHybrid(b.hy, b.stop)
	} else {
		go b.run(hk, b.mode, b.stop)
	}
	return nil
}

func (b *Bridge) unregisterLocked() {
	if b.hk == nil {
		return
	}
	close(b.stop)
	if b.hy != nil {
		b.hy.Close()
		b.hy = nil
	}
	b.hk.Unregister()
	b.hk = nil
}

func (b *Bridge) emit(e Edge) {
	name, deliver := b.routeTo()
	e.Surface = name
	if deliver != nil {
		deliver(e)
		return
	}
	select {
	case b.events <- e:
	default:
		log.Warn(fmt.Sprintf("dropping hotkey %s edge, consumer not keeping up", e.Cmd))
	}
}

func (b *Bridge) run(hk Hotkey, mode Mode, stop chan struct{}) {
	for {
		select {
		case <-hk.Keydown():
			switch mode {
			case ModePTT:
				b.emit(Edge{Cmd: CmdStart, Mode: ModePTT})
			case ModeToggle:
				b.mu.Lock()
				b.toggled = !b.toggled
				starting := b.toggled
				b.mu.Unlock()
				if starting {
					b.emit(Edge{Cmd: CmdStart, Mode: ModeToggle})
				} else {
					b.emit(Edge{Cmd: CmdStop, Mode: ModeToggle})
				}
			}
		case <-hk.Keyup():
			if mode == ModePTT {
				b.emit(Edge{Cmd: CmdStop, Mode: ModePTT})
			}
		case <-stop:
			return
		}
	}
}

func (b *Bridge) runHybrid(hy *Hybrid, stop chan struct{}) {
	for {
		select {
		case ev := <-hy.Start():
			b.emit(Edge{Cmd: CmdStart, Mode: ev.Mode})
		case <-hy.StopChan():
			mode := ModePTT
			if hy.IsToggle() {
				mode = ModeToggle
			}
			b.emit(Edge{Cmd: CmdStop, Mode: mode})
		case <-stop:
			return
		}
	}
}

// IsToggle reports whether the current recording, if any, runs in toggle
// mode and therefore ends on a second tap rather than a release.
func (b *Bridge) IsToggle() bool {
	b.mu.Lock()
	hy := b.hy
	mode := b.mode
	b.mu.Unlock()
	if hy != nil {
		return hy.IsToggle()
	}
	return mode == ModeToggle
}
