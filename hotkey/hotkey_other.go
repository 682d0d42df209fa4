//go:build !linux

package hotkey

import (
	"fmt"
	"sync"

	xhotkey "golang.design/x/hotkey"
)

var xKeys = map[string]xhotkey.Key{
	"a": xhotkey.KeyA, "b": xhotkey.KeyB, "c": xhotkey.KeyC,
	"d": xhotkey.KeyD, "e": xhotkey.KeyE, "f": xhotkey.KeyF,
	"g": xhotkey.KeyG, "h": xhotkey.KeyH, "i": xhotkey.KeyI,
	"j": xhotkey.KeyJ, "k": xhotkey.KeyK, "l": xhotkey.KeyL,
	"m": xhotkey.KeyM, "n": xhotkey.KeyN, "o": xhotkey.KeyO,
	"p": xhotkey.KeyP, "q": xhotkey.KeyQ, "r": xhotkey.KeyR,
	"s": xhotkey.KeyS, "t": xhotkey.KeyT, "u": xhotkey.KeyU,
	"v": xhotkey.KeyV, "w": xhotkey.KeyW, "x": xhotkey.KeyX,
	"y": xhotkey.KeyY, "z": xhotkey.KeyZ,
	"0": xhotkey.Key0, "1": xhotkey.Key1, "2": xhotkey.Key2,
	"3": xhotkey.Key3, "4": xhotkey.Key4, "5": xhotkey.Key5,
	"6": xhotkey.Key6, "7": xhotkey.Key7, "8": xhotkey.Key8,
	"9":     xhotkey.Key9,
	"space": xhotkey.KeySpace,
	"f1":    xhotkey.KeyF1, "f2": xhotkey.KeyF2, "f3": xhotkey.KeyF3,
	"f4": xhotkey.KeyF4, "f5": xhotkey.KeyF5, "f6": xhotkey.KeyF6,
	"f7": xhotkey.KeyF7, "f8": xhotkey.KeyF8, "f9": xhotkey.KeyF9,
	"f10": xhotkey.KeyF10, "f11": xhotkey.KeyF11, "f12": xhotkey.KeyF12,
}

type xHotkey struct {
	binding Binding
	hk      *xhotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	stop    chan struct{}
	once    sync.Once
}

// New creates a hotkey using golang.design/x/hotkey (Cocoa/Win32).
func New(binding Binding) Hotkey {
	return &xHotkey{
		binding: binding,
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

func (h *xHotkey) Register() error {
	key, ok := xKeys[h.binding.Key]
	if !ok {
		return fmt.Errorf("unsupported key %q", h.binding.Key)
	}
	if h.binding.Alt || h.binding.Super {
		return fmt.Errorf("alt/super modifiers not supported by this backend")
	}
	var mods []xhotkey.Modifier
	if h.binding.Ctrl {
		mods = append(mods, xhotkey.ModCtrl)
	}
	if h.binding.Shift {
		mods = append(mods, xhotkey.ModShift)
	}
	h.hk = xhotkey.New(mods, key)
	if err := h.hk.Register(); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-h.hk.Keydown():
				select {
				case h.keydown <- struct{}{}:
				default:
				}
			case <-h.stop:
				return
			}
		}
	}()
	go func() {
		for {
			select {
			case <-h.hk.Keyup():
				select {
				case h.keyup <- struct{}{}:
				default:
				}
			case <-h.stop:
				return
			}
		}
	}()
	return nil
}

func (h *xHotkey) Unregister() {
	h.once.Do(func() {
		close(h.stop)
		if h.hk != nil {
			h.hk.Unregister()
		}
	})
}

func (h *xHotkey) Keydown() <-chan struct{} {
	return h.keydown
}

func (h *xHotkey) Keyup() <-chan struct{} {
	return h.keyup
}

func Diagnose() (string, error) {
	return "hotkey support available", nil
}
