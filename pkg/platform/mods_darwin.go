//go:build darwin && cgo

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
	{cycle.ModAlt, hotkey.ModOption},
	{cycle.ModSuper, hotkey.ModCmd},
}
