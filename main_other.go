//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// The hotkey library needs the OS main thread for its event loop, so run
// the program body on a secondary goroutine.
func main() {
	code := 0
	mainthread.Init(func() { code = run() })
	os.Exit(code)
}
