package sapool

import (
	"net/netip"
	"sort"
	"sync"
)

// IfaceAddrRecord describes which cores have an allocated SA sub-pool under
// a given (family, iface, addr) triple — the inet_addr_ifa_get lookup the
// allocator's addr-mode bind/add paths consult (SPEC_FULL.md §4.2, §4.4, §6).
type IfaceAddrRecord struct {
	Iface string
	Addr  netip.Addr

	mu      sync.RWMutex
	saPools map[int]bool
}

// HasCore reports whether core has an allocated sub-pool under this address.
func (r *IfaceAddrRecord) HasCore(core int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saPools[core]
}

// Cores returns the set of cores with an allocated sub-pool, in ascending
// order.
func (r *IfaceAddrRecord) Cores() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.saPools))
	for c, ok := range r.saPools {
		if ok {
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

// Registry is the interface-address table: for each (iface, addr) it tracks
// which cores currently have an SA-pool sub-pool allocated. It is the
// consumed side of "inet_addr_ifa_get" in SPEC_FULL.md §6.
type Registry struct {
	mu      sync.RWMutex
	records map[regKey]*IfaceAddrRecord
}

type regKey struct {
	iface string
	addr  netip.Addr
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[regKey]*IfaceAddrRecord)}
}

// Lookup returns the record for (iface, addr), or (nil, false) if none has
// been configured (e.g. no sub-pool has ever been allocated there).
func (r *Registry) Lookup(iface string, addr netip.Addr) (*IfaceAddrRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[regKey{iface, addr}]
	return rec, ok
}

// SetCore marks core as having (or not having) an allocated sub-pool under
// (iface, addr). Used by tests and by the control plane when wiring up
// addr-mode deployments.
func (r *Registry) SetCore(iface string, addr netip.Addr, core int, enabled bool) {
	r.mu.Lock()
	rec, ok := r.records[regKey{iface, addr}]
	if !ok {
		rec = &IfaceAddrRecord{Iface: iface, Addr: addr, saPools: make(map[int]bool)}
		r.records[regKey{iface, addr}] = rec
	}
	r.mu.Unlock()

	rec.mu.Lock()
	rec.saPools[core] = enabled
	rec.mu.Unlock()
}
