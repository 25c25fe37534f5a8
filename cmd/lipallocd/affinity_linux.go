//go:build linux

package main

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// pinCurrentGoroutine locks the calling goroutine to its current OS thread
// and pins that thread to core, so one worker goroutine maps to one CPU the
// way the dataplane's one-thread-per-core model expects (SPEC_FULL.md §5).
// Call from inside the worker goroutine itself; it calls runtime.LockOSThread.
func pinCurrentGoroutine(core int) error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("pin to core %d: %w", core, err)
	}
	return nil
}
