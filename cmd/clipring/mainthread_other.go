//go:build !darwin || !cgo

package main

func runMain(f func()) {
	f()
}
