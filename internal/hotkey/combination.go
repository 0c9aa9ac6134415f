package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

// Combination is a set of modifier roles plus one primary key.
type Combination struct {
	Modifiers []string
	Key       string
}

// modifierRoles maps every physical modifier name onto its role, so left and
// right variants are interchangeable.
var modifierRoles = map[string]string{
	"ctrl": "ctrl", "lctrl": "ctrl", "rctrl": "ctrl", "ctrl_l": "ctrl", "ctrl_r": "ctrl", "control": "ctrl",
	"shift": "shift", "lshift": "shift", "rshift": "shift", "shift_l": "shift", "shift_r": "shift",
	"alt": "alt", "lalt": "alt", "ralt": "alt", "alt_l": "alt", "alt_r": "alt",
	"cmd": "cmd", "lcmd": "cmd", "rcmd": "cmd", "command": "cmd", "super": "cmd", "win": "cmd", "meta": "cmd",
}

// CanonicalKey lowercases a key name and folds modifier variants to roles.
func CanonicalKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if role, ok := modifierRoles[name]; ok {
		return role
	}
	return name
}

// IsModifier reports whether the canonical name is a modifier role.
func IsModifier(name string) bool {
	_, ok := modifierRoles[name]
	return ok
}

// ParseCombination parses "ctrl+shift+space" style strings. The last
// non-modifier part is the primary key; exactly one is required.
func ParseCombination(s string) (Combination, error) {
	parts := strings.Split(s, "+")
	var combo Combination
	seen := make(map[string]bool)

	for _, part := range parts {
		name := CanonicalKey(part)
		if name == "" {
			return Combination{}, fmt.Errorf("empty key in combination %q", s)
		}
		if IsModifier(name) {
			if !seen[name] {
				seen[name] = true
				combo.Modifiers = append(combo.Modifiers, name)
			}
			continue
		}
		if combo.Key != "" {
			return Combination{}, fmt.Errorf("combination %q has more than one primary key", s)
		}
		combo.Key = name
	}

	if combo.Key == "" {
		return Combination{}, errors.New("combination needs one non-modifier primary key")
	}
	return combo, nil
}

// String renders the combination in config syntax.
func (c Combination) String() string {
	parts := append([]string{}, c.Modifiers...)
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}
