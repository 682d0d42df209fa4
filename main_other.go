//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// golang.design/x/hotkey needs the main OS thread on macOS and Windows
	mainthread.Init(run)
}
