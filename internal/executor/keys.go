// File: internal/executor/keys.go
package executor

import (
	"fmt"
	"strings"
)

// keyAliases maps common model-emitted key names onto the names the OS input
// layer understands.
var keyAliases = map[string]string{
	"enter":     "enter",
	"return":    "enter",
	"escape":    "esc",
	"esc":       "esc",
	"control":   "ctrl",
	"ctrl":      "ctrl",
	"alt":       "alt",
	"option":    "alt",
	"shift":     "shift",
	"cmd":       "cmd",
	"command":   "cmd",
	"super":     "cmd",
	"meta":      "cmd",
	"win":       "cmd",
	"tab":       "tab",
	"space":     "space",
	"backspace": "backspace",
	"delete":    "delete",
	"del":       "delete",
	"up":        "up",
	"down":      "down",
	"left":      "left",
	"right":     "right",
	"home":      "home",
	"end":       "end",
	"pageup":    "pageup",
	"pagedown":  "pagedown",
}

var modifierKeys = map[string]bool{
	"ctrl":  true,
	"alt":   true,
	"shift": true,
	"cmd":   true,
}

// NormalizeCombo turns a key combination, as models emit it, into the tap key
// plus held modifiers. Accepts both the list form ["CTRL","L"] and the joined
// form ["ctrl+shift+p"]; names are case-folded and aliased. Modifiers may
// appear in any position; the single non-modifier key is tapped. A combo of
// only modifiers taps the last one.
func NormalizeCombo(keys []string) (tap string, modifiers []string, err error) {
	var flat []string
	for _, k := range keys {
		for _, part := range strings.Split(k, "+") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if alias, ok := keyAliases[part]; ok {
				part = alias
			}
			flat = append(flat, part)
		}
	}
	if len(flat) == 0 {
		return "", nil, fmt.Errorf("empty key combination")
	}

	for _, k := range flat {
		if modifierKeys[k] {
			modifiers = append(modifiers, k)
		} else {
			if tap != "" {
				return "", nil, fmt.Errorf("key combination %v has more than one non-modifier key", keys)
			}
			tap = k
		}
	}
	if tap == "" {
		// All modifiers, e.g. a bare "ctrl" tap.
		tap = modifiers[len(modifiers)-1]
		modifiers = modifiers[:len(modifiers)-1]
	}
	return tap, modifiers, nil
}
