//go:build !(((linux || darwin) && cgo) || windows)

package platform

import (
	"log/slog"

	"github.com/spideyz0r/clipring/pkg/cycle"
)

// Hotkeys is unavailable in this build; every registration fails.
type Hotkeys struct{}

func NewHotkeys(func(cycle.Direction), *Activity, *slog.Logger) *Hotkeys {
	return &Hotkeys{}
}

func (h *Hotkeys) Register(cycle.Direction, cycle.Binding) error { return ErrUnsupported }
func (h *Hotkeys) UnregisterAll()                                {}
