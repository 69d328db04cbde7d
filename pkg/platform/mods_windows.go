//go:build windows

package platform

import (
	"golang.design/x/hotkey"

	"github.com/spideyz0r/clipring/pkg/cycle"
)

var modifierCodes = []struct {
	mod  cycle.Modifier
	code hotkey.Modifier
}{
	{cycle.ModCtrl, hotkey.ModCtrl},
	{cycle.ModShift, hotkey.ModShift},
	{cycle.ModAlt, hotkey.ModAlt},
	{cycle.ModSuper, hotkey.ModWin},
}
