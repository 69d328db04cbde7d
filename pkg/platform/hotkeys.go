//go:build ((linux || darwin) && cgo) || windows

package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/hotkey"

	"github.com/spideyz0r/clipring/pkg/cycle"
)

// Hotkeys registers global cycling hotkeys and feeds presses to a handler.
type Hotkeys struct {
	handle   func(cycle.Direction)
	activity *Activity
	log      *slog.Logger

	mu   sync.Mutex
	keys []*registered
}

type registered struct {
	hk   *hotkey.Hotkey
	done chan struct{}
}

// NewHotkeys returns a registrar that calls handle for every press and
// records key activity on a.
func NewHotkeys(handle func(cycle.Direction), a *Activity, log *slog.Logger) *Hotkeys {
	if log == nil {
		log = slog.Default()
	}
	return &Hotkeys{handle: handle, activity: a, log: log.With("component", "hotkeys")}
}

// Register implements cycle.Registrar.
func (h *Hotkeys) Register(dir cycle.Direction, b cycle.Binding) error {
	key, ok := keyCodes[b.Key]
	if !ok {
		return fmt.Errorf("unsupported key %q", b.Key)
	}

	hk := hotkey.New(modifiers(b.Mods), key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register %s: %w", b, err)
	}

	r := &registered{hk: hk, done: make(chan struct{})}
	h.mu.Lock()
	h.keys = append(h.keys, r)
	h.mu.Unlock()

	go h.listen(dir, r)
	h.log.Info("hotkey registered", "direction", dir.String(), "binding", b.String())
	return nil
}

func (h *Hotkeys) listen(dir cycle.Direction, r *registered) {
	for {
		select {
		case <-r.done:
			return
		case _, ok := <-r.hk.Keydown():
			if !ok {
				return
			}
			if h.activity != nil {
				h.activity.Press()
			}
			h.handle(dir)
		case _, ok := <-r.hk.Keyup():
			if !ok {
				return
			}
			if h.activity != nil {
				h.activity.Lift()
			}
		}
	}
}

// UnregisterAll implements cycle.Registrar.
func (h *Hotkeys) UnregisterAll() {
	h.mu.Lock()
	keys := h.keys
	h.keys = nil
	h.mu.Unlock()

	for _, r := range keys {
		close(r.done)
		if err := r.hk.Unregister(); err != nil {
			h.log.Debug("failed to unregister hotkey", "err", err)
		}
	}
}

func modifiers(m cycle.Modifier) []hotkey.Modifier {
	var out []hotkey.Modifier
	for _, pair := range modifierCodes {
		if m&pair.mod != 0 {
			out = append(out, pair.code)
		}
	}
	return out
}

var keyCodes = map[string]hotkey.Key{
	"A": hotkey.KeyA, "B": hotkey.KeyB, "C": hotkey.KeyC, "D": hotkey.KeyD,
	"E": hotkey.KeyE, "F": hotkey.KeyF, "G": hotkey.KeyG, "H": hotkey.KeyH,
	"I": hotkey.KeyI, "J": hotkey.KeyJ, "K": hotkey.KeyK, "L": hotkey.KeyL,
	"M": hotkey.KeyM, "N": hotkey.KeyN, "O": hotkey.KeyO, "P": hotkey.KeyP,
	"Q": hotkey.KeyQ, "R": hotkey.KeyR, "S": hotkey.KeyS, "T": hotkey.KeyT,
	"U": hotkey.KeyU, "V": hotkey.KeyV, "W": hotkey.KeyW, "X": hotkey.KeyX,
	"Y": hotkey.KeyY, "Z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
}
