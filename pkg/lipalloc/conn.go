package lipalloc

import (
	"net/netip"

	"github.com/OneOfOne/xxhash"

	"github.com/fnatlb/lipalloc/pkg/sapool"
)

// Conn is the subset of a dataplane connection's fields the allocator reads
// and writes. The real connection table (tuple hashing, state tracking,
// timers) lives entirely outside this module; Conn is the narrow interface
// the packet pipeline is expected to populate before calling Bind, and to
// read back after.
type Conn struct {
	Proto      Proto
	IsTemplate bool

	DAddr netip.Addr
	DPort uint16

	// Written by Bind, cleared by Unbind.
	LAddr     netip.Addr
	LPort     uint16
	Local     *LocalAddress
	TupleHash uint64

	// iface/fetched src/dst are cached between Bind and Unbind so that
	// Unbind can hand the SA-pool back exactly what was fetched.
	iface Iface
	fSrc  sapool.Endpoint
	fDst  sapool.Endpoint
}

// allocEligible reports whether conn's protocol is one the allocator handles.
func (c *Conn) allocEligible() bool {
	return c.Proto == ProtoTCP || c.Proto == ProtoUDP
}

// tupleHash derives the observability-only four-tuple digest described in
// SPEC_FULL.md §3. It is never consulted for correctness.
func tupleHash(proto Proto, daddr netip.Addr, dport uint16, laddr netip.Addr, lport uint16) uint64 {
	h := xxhash.New64()
	var buf [1 + 16 + 2 + 16 + 2]byte
	buf[0] = byte(proto)
	n := 1
	n += copy(buf[n:], daddr.AsSlice())
	buf[n], buf[n+1] = byte(dport>>8), byte(dport)
	n += 2
	n += copy(buf[n:], laddr.AsSlice())
	buf[n], buf[n+1] = byte(lport>>8), byte(lport)
	n += 2
	h.Write(buf[:n])
	return h.Sum64()
}
