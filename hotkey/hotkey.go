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

const DefaultCombo = "ctrl+shift+space"

// Combo is a parsed key chord such as "ctrl+shift+space".
type Combo struct {
	Ctrl, Shift, Alt, Super bool
	Key                     string
}

func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	if c.Super {
		parts = append(parts, "super")
	}
	return strings.Join(append(parts, c.Key), "+")
}

func ParseCombo(s string) (Combo, error) {
	var c Combo
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = DefaultCombo
	}
	parts := strings.Split(s, "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if i == len(parts)-1 {
			if !validKey(p) {
				return Combo{}, fmt.Errorf("unsupported hotkey key %q", p)
			}
			c.Key = p
			break
		}
		switch p {
		case "ctrl", "control":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		case "alt", "option":
			c.Alt = true
		case "super", "cmd", "win":
			c.Super = true
		default:
			return Combo{}, fmt.Errorf("unsupported hotkey modifier %q", p)
		}
	}
	if !c.Ctrl && !c.Shift && !c.Alt && !c.Super && !strings.HasPrefix(c.Key, "f") {
		return Combo{}, fmt.Errorf("hotkey %q needs a modifier", s)
	}
	return c, nil
}

func validKey(k string) bool {
	if k == "space" {
		return true
	}
	if len(k) == 1 && k[0] >= 'a' && k[0] <= 'z' {
		return true
	}
	return functionKey(k) > 0
}

// functionKey returns n for "fN" (1..12), 0 otherwise.
func functionKey(k string) int {
	if len(k) < 2 || k[0] != 'f' {
		return 0
	}
	n := 0
	for _, ch := range k[1:] {
		if ch < '0' || ch > '9' {
			return 0
		}
		n = n*10 + int(ch-'0')
	}
	if n < 1 || n > 12 {
		return 0
	}
	return n
}
