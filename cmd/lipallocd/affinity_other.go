//go:build !linux

package main

import "fmt"

func pinCurrentGoroutine(core int) error {
	return fmt.Errorf("pin to core %d: core pinning is only supported on linux", core)
}
