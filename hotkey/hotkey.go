package hotkey

import (
	"fmt"
	"strings"
)

// Hotkey provides global shortcut registration with press/release edge
// events. Keydown fires once per recognized press, never repeating while
// held; Keyup fires once per release. Unregister is idempotent.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Binding is a parsed key combination like "Ctrl+Shift+F9": one or more
// modifiers plus exactly one key.
type Binding struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Super bool
	Key   string // lowercase key name: "a".."z", "0".."9", "f1".."f12", "space"
}

// DefaultBinding matches the combination the app ships with.
var DefaultBinding = Binding{Ctrl: true, Shift: true, Key: "f9"}

func (b Binding) String() string {
	var parts []string
	if b.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if b.Shift {
		parts = append(parts, "Shift")
	}
	if b.Alt {
		parts = append(parts, "Alt")
	}
	if b.Super {
		parts = append(parts, "Super")
	}
	key := b.Key
	if len(key) > 0 {
		key = strings.ToUpper(key[:1]) + key[1:]
	}
	parts = append(parts, key)
	return strings.Join(parts, "+")
}

func validKey(key string) bool {
	switch {
	case len(key) == 1 && (key[0] >= 'a' && key[0] <= 'z' || key[0] >= '0' && key[0] <= '9'):
		return true
	case key == "space":
		return true
	case strings.HasPrefix(key, "f"):
		switch key {
		case "f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9", "f10", "f11", "f12":
			return true
		}
	}
	return false
}

// ParseBinding parses a combination string. Modifier aliases: "cmd", "meta"
// and "win" map to Super. The last component must be a non-modifier key.
func ParseBinding(s string) (Binding, error) {
	var b Binding
	parts := strings.Split(s, "+")
	for i, raw := range parts {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			return Binding{}, fmt.Errorf("invalid binding %q: empty component", s)
		}
		switch p {
		case "ctrl", "control":
			if b.Ctrl {
				return Binding{}, fmt.Errorf("invalid binding %q: duplicate ctrl", s)
			}
			b.Ctrl = true
		case "shift":
			if b.Shift {
				return Binding{}, fmt.Errorf("invalid binding %q: duplicate shift", s)
			}
			b.Shift = true
		case "alt", "option":
			if b.Alt {
				return Binding{}, fmt.Errorf("invalid binding %q: duplicate alt", s)
			}
			b.Alt = true
		case "super", "cmd", "meta", "win":
			if b.Super {
				return Binding{}, fmt.Errorf("invalid binding %q: duplicate super", s)
			}
			b.Super = true
		default:
			if i != len(parts)-1 {
				return Binding{}, fmt.Errorf("invalid binding %q: key %q must come last", s, raw)
			}
			if !validKey(p) {
				return Binding{}, fmt.Errorf("invalid binding %q: unknown key %q", s, raw)
			}
			b.Key = p
		}
	}
	if b.Key == "" {
		return Binding{}, fmt.Errorf("invalid binding %q: no key", s)
	}
	if !b.Ctrl && !b.Shift && !b.Alt && !b.Super {
		return Binding{}, fmt.Errorf("invalid binding %q: at least one modifier required", s)
	}
	return b, nil
}
