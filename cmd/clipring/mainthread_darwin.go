//go:build darwin && cgo

package main

import "golang.design/x/hotkey/mainthread"

// runMain runs f off the main thread; macOS delivers hotkey events only
// to a loop on the main thread.
func runMain(f func()) {
	mainthread.Init(f)
}
