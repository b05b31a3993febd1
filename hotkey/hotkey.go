// Package hotkey provides the global push-to-talk key.
package hotkey

import (
	"fmt"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo is a key with optional Ctrl and Shift modifiers.
type Combo struct {
	Ctrl  bool
	Shift bool
	Key   string // "space" or "f1".."f12"
}

var DefaultCombo = Combo{Ctrl: true, Shift: true, Key: "space"}

func (c Combo) String() string {
	if c.Key == "" {
		return ""
	}
	var parts []string
	if c.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if c.Shift {
		parts = append(parts, "Shift")
	}
	parts = append(parts, strings.ToUpper(c.Key[:1])+c.Key[1:])
	return strings.Join(parts, "+")
}

// ParseCombo parses forms like "ctrl+shift+space" or "f9".
func ParseCombo(s string) (Combo, error) {
	var c Combo
	fields := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	for i, f := range fields {
		f = strings.TrimSpace(f)
		last := i == len(fields)-1
		switch {
		case f == "ctrl" && !last:
			c.Ctrl = true
		case f == "shift" && !last:
			c.Shift = true
		case last && validKey(f):
			c.Key = f
		default:
			return Combo{}, fmt.Errorf("invalid hotkey %q", s)
		}
	}
	return c, nil
}

func validKey(k string) bool {
	if k == "space" {
		return true
	}
	_, ok := functionKey(k)
	return ok
}

// functionKey returns n for "fN", 1 <= n <= 12.
func functionKey(k string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(k, "f%d", &n); err != nil || fmt.Sprintf("f%d", n) != k {
		return 0, false
	}
	return n, n >= 1 && n <= 12
}
