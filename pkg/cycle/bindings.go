package cycle

import (
	"fmt"
	"slices"
	"strings"
)

// Modifier is a bit set of held modifier keys.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModShift
	ModAlt
	ModSuper
)

var modifierNames = []struct {
	mod  Modifier
	name string
}{
	{ModCtrl, "Ctrl"},
	{ModShift, "Shift"},
	{ModAlt, "Alt"},
	{ModSuper, "Super"},
}

// Binding is a global hotkey: a modifier set plus one key.
type Binding struct {
	Mods Modifier
	Key  string
}

// ParseBinding parses "alt+w", "Ctrl+Shift+V" and similar. Keys are single
// letters or digits.
func ParseBinding(s string) (Binding, error) {
	var b Binding
	parts := strings.Split(s, "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if i == len(parts)-1 {
			key := strings.ToUpper(p)
			if !validKey(key) {
				return Binding{}, fmt.Errorf("invalid hotkey %q: key must be a letter or digit", s)
			}
			b.Key = key
			break
		}
		switch strings.ToLower(p) {
		case "ctrl", "control":
			b.Mods |= ModCtrl
		case "shift":
			b.Mods |= ModShift
		case "alt", "option":
			b.Mods |= ModAlt
		case "super", "win", "cmd", "meta":
			b.Mods |= ModSuper
		default:
			return Binding{}, fmt.Errorf("invalid hotkey %q: unknown modifier %q", s, p)
		}
	}
	return b, nil
}

func validKey(k string) bool {
	if len(k) != 1 {
		return false
	}
	c := k[0]
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (b Binding) String() string {
	var parts []string
	for _, m := range modifierNames {
		if b.Mods&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(append(parts, b.Key), "+")
}

// Registrar installs global hotkeys with the platform.
type Registrar interface {
	Register(dir Direction, b Binding) error
	UnregisterAll()
}

// WarningCode classifies a binding that was not registered.
type WarningCode int

const (
	WarnNoModifiers WarningCode = iota + 1
	WarnInvalidKey
	WarnConflict
	WarnRegisterFailed
)

func (c WarningCode) String() string {
	switch c {
	case WarnNoModifiers:
		return "no modifiers"
	case WarnInvalidKey:
		return "invalid key"
	case WarnConflict:
		return "conflict"
	case WarnRegisterFailed:
		return "register failed"
	}
	return "unknown"
}

// Warning reports a binding left unregistered.
type Warning struct {
	Direction Direction
	Binding   Binding
	Code      WarningCode
	Err       error
}

func (w Warning) String() string {
	msg := fmt.Sprintf("%s hotkey %s not registered: %s", w.Direction, w.Binding, w.Code)
	if w.Err != nil {
		msg += ": " + w.Err.Error()
	}
	return msg
}

// ApplyBindings replaces the registered hotkeys with next and prev. Bindings
// without modifiers, with an invalid key, or identical to the other
// direction's are skipped and reported; the remaining ones still register.
func ApplyBindings(r Registrar, next, prev Binding) []Warning {
	r.UnregisterAll()

	var (
		warnings   []Warning
		registered []Binding
	)
	for _, item := range []struct {
		dir Direction
		b   Binding
	}{{Next, next}, {Prev, prev}} {
		w := Warning{Direction: item.dir, Binding: item.b}
		switch {
		case item.b.Mods == 0:
			w.Code = WarnNoModifiers
		case !validKey(item.b.Key):
			w.Code = WarnInvalidKey
		case slices.Contains(registered, item.b):
			w.Code = WarnConflict
		default:
			if err := r.Register(item.dir, item.b); err != nil {
				w.Code = WarnRegisterFailed
				w.Err = err
			} else {
				registered = append(registered, item.b)
				continue
			}
		}
		warnings = append(warnings, w)
	}
	return warnings
}
