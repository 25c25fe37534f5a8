package lipalloc

import (
	"net/netip"
	"sync/atomic"
)

// Family is an address family.
type Family uint8

const (
	FamilyV4 Family = 4
	FamilyV6 Family = 6
)

func FamilyOf(a netip.Addr) Family {
	if a.Is4() || a.Is4In6() {
		return FamilyV4
	}
	return FamilyV6
}

// Proto is a transport protocol. Only TCP and UDP are allocation-eligible.
type Proto uint8

const (
	ProtoTCP Proto = 6
	ProtoUDP Proto = 17
)

// Iface identifies a bound network interface by name and index. It is a
// lightweight handle; names are resolved through IfaceTable, and per-core
// SA sub-pool assignment is looked up in pkg/sapool's Registry.
type Iface struct {
	Name  string
	Index int
}

// LocalAddress is a single local IP entry in a service's address pool.
//
// refcnt and connCount are mutated without holding the owning pool's lock;
// every other field is only ever mutated under that lock.
type LocalAddress struct {
	Family Family
	Addr   netip.Addr
	Iface  Iface

	refcnt    atomic.Int64
	connCount atomic.Int64

	// next/prev index the intrusive position within the owning pool's list.
	// They are only meaningful while the entry is linked, and are only
	// touched under the pool's write lock.
	next, prev *LocalAddress
}

// RefCount returns the current reference count.
func (la *LocalAddress) RefCount() int64 { return la.refcnt.Load() }

// ConnCount returns the current number of live connections bound to la.
func (la *LocalAddress) ConnCount() int64 { return la.connCount.Load() }

func (la *LocalAddress) hold() int64    { return la.refcnt.Add(1) }
func (la *LocalAddress) release() int64 { return la.refcnt.Add(-1) }

// matches reports whether la is the entry for (family, addr).
func (la *LocalAddress) matches(family Family, addr netip.Addr) bool {
	return la.Family == family && la.Addr == addr
}
