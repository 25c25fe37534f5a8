// Package sapool implements the socket-address pool (SA-pool) facade the
// lipalloc allocator consumes: the component that owns the ephemeral port
// space per (interface, local IP, core) and would, on real hardware, program
// FDIR filters so replies land back on the originating core.
//
// The real thing is DPDK/FDIR-specific and out of scope (SPEC_FULL.md §1).
// This package provides the consumer-facing interface plus a software-only
// reference implementation good enough to run the allocator end-to-end
// without special hardware.
package sapool

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrExhausted is returned (wrapped) by Fetch when no free port is available
// under the requested address for the requested destination.
var ErrExhausted = errors.New("sapool: exhausted")

// ErrNotFound is returned (wrapped) by Release when the tuple being released
// was never fetched.
var ErrNotFound = errors.New("sapool: not found")

// Endpoint is a (address, port) pair.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) String() string {
	return netip.AddrPortFrom(e.Addr, e.Port).String()
}

// Pool is the interface the allocator's fast path consumes. dst is the
// remote (real-server) endpoint; src carries the chosen local address with
// Port left zero on entry to Fetch — the pool fills it in.
type Pool interface {
	// Fetch reserves a source port for (iface, dst, src.Addr), writing the
	// chosen port into the returned Endpoint. It returns an error wrapping
	// ErrExhausted if no port is available.
	Fetch(iface string, core int, dst, src Endpoint) (Endpoint, error)

	// Release returns a previously-fetched (iface, dst, src) tuple to the
	// pool. src must be exactly the Endpoint returned by the matching
	// Fetch (including the chosen port).
	Release(iface string, core int, dst, src Endpoint) error
}

// fetchErr/releaseErr add operation context the way the teacher wraps
// errors with fmt.Errorf("...: %w", err) throughout pkg/atlas.
func fetchErr(iface string, dst, src Endpoint, err error) error {
	return fmt.Errorf("sapool: fetch iface=%s dst=%s src=%s: %w", iface, dst, src, err)
}

func releaseErr(iface string, dst, src Endpoint, err error) error {
	return fmt.Errorf("sapool: release iface=%s dst=%s src=%s: %w", iface, dst, src, err)
}
