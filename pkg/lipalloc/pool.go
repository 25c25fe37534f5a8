package lipalloc

import (
	"math/rand"
	"net/netip"
	"sync"
)

// SchedulerKind records which real-server scheduler a service uses, which in
// turn controls pickLaddr's cursor step size (SPEC_FULL.md §4.1).
type SchedulerKind uint8

const (
	SchedulerOther SchedulerKind = iota
	SchedulerRR
	SchedulerWRR
)

// list is a doubly-linked intrusive list of LocalAddress entries plus a
// round-robin cursor, matching the teacher's RWMutex-guarded, lock-on-every-
// mutation style (pkg/api/api0/serverlist.go). All structural operations and
// all selections take the write lock, since selection advances the cursor
// (SPEC_FULL.md §4.1/§5).
type list struct {
	mu     sync.RWMutex
	head   *LocalAddress
	tail   *LocalAddress
	cursor *LocalAddress
	num    int
}

func (l *list) append(la *LocalAddress) {
	la.prev, la.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = la
	} else {
		l.head = la
	}
	l.tail = la
	l.num++
}

// unlink removes la from the list. The caller must fix up the cursor via
// fixupCursor *before* calling unlink, per SPEC_FULL.md §4.5/§9 (cursor
// fixup on delete is essential: pointer-based representations use-after-free
// otherwise).
func (l *list) unlink(la *LocalAddress) {
	if la.prev != nil {
		la.prev.next = la.next
	} else {
		l.head = la.next
	}
	if la.next != nil {
		la.next.prev = la.prev
	} else {
		l.tail = la.prev
	}
	la.next, la.prev = nil, nil
	l.num--
}

// fixupCursor advances the cursor off la if it currently points at it.
func (l *list) fixupCursor(la *LocalAddress) {
	if l.cursor == la {
		l.cursor = la.next
	}
}

func (l *list) find(family Family, addr netip.Addr) *LocalAddress {
	for la := l.head; la != nil; la = la.next {
		if la.matches(family, addr) {
			return la
		}
	}
	return nil
}

// advance moves the cursor forward by step entries, wrapping at the end of
// the list, and returns the resulting entry (nil if the list is empty).
func (l *list) advance(step int) *LocalAddress {
	if l.head == nil {
		l.cursor = nil
		return nil
	}
	cur := l.cursor
	for i := 0; i < step; i++ {
		if cur == nil {
			cur = l.head
		} else {
			cur = cur.next
			if cur == nil {
				cur = l.head
			}
		}
	}
	l.cursor = cur
	return cur
}

func (l *list) snapshot() []*LocalAddress {
	out := make([]*LocalAddress, 0, l.num)
	for la := l.head; la != nil; la = la.next {
		out = append(out, la)
	}
	return out
}

// ServiceLocalPool is the per-virtual-service container of LocalAddress
// entries, shaped according to the process-global PoolMode: a single shared
// list in port-mode, or one list per worker core in addr-mode
// (SPEC_FULL.md §3).
type ServiceLocalPool struct {
	mode      PoolMode
	scheduler SchedulerKind

	// port-mode
	shared *list

	// addr-mode: indexed by core; only entries for cores enabled in
	// globalConfig().EnabledCoreMask are ever populated.
	perCore [MaxCores]*list
}

// NewServiceLocalPool creates an empty pool for a virtual service using the
// process-global pool mode. scheduler controls pickLaddr's jitter behavior.
func NewServiceLocalPool(scheduler SchedulerKind) *ServiceLocalPool {
	cfg := globalConfig()
	p := &ServiceLocalPool{mode: cfg.Mode, scheduler: scheduler}
	switch cfg.Mode {
	case PortLcoreMapping:
		p.shared = &list{}
	case AddrLcoreMapping:
		for c := 0; c < MaxCores; c++ {
			if cfg.CoreEnabled(c) {
				p.perCore[c] = &list{}
			}
		}
	}
	return p
}

// listFor returns the list a given core allocates from. In port-mode this is
// the single shared list regardless of core; in addr-mode it is that core's
// own list, or nil if the core has no list (not enabled).
func (p *ServiceLocalPool) listFor(core int) *list {
	if p.mode == PortLcoreMapping {
		return p.shared
	}
	if core < 0 || core >= MaxCores {
		return nil
	}
	return p.perCore[core]
}

// stepSize picks the cursor advance distance for one pickLaddr call.
// Port-mode with an RR/WRR scheduler jitters by advancing 2 with 5%
// probability, to break resonance with the real-server scheduler's own
// cursor (SPEC_FULL.md §4.1). Addr-mode is always a 1-step advance, since
// each address is pinned to a single core and no resonance can arise.
func (p *ServiceLocalPool) stepSize() int {
	if p.mode == AddrLcoreMapping {
		return 1
	}
	if p.scheduler == SchedulerRR || p.scheduler == SchedulerWRR {
		if rand.Float64() < 0.05 {
			return 2
		}
	}
	return 1
}

// pickLaddr selects one LocalAddress from the pool for the given core,
// pre-incrementing its refcnt, or returns (nil, Resource) if the relevant
// list is empty. Must be called with the relevant list's write lock held by
// the caller (Bind takes it and holds it across the whole trial loop).
func (p *ServiceLocalPool) pickLaddr(l *list) (*LocalAddress, Status) {
	la := l.advance(p.stepSize())
	if la == nil {
		return nil, Resource
	}
	la.hold()
	return la, Ok
}

// numLaddrs returns the current address count relevant to core: the global
// count in port-mode, or this core's own count in addr-mode.
func (p *ServiceLocalPool) numLaddrs(core int) int {
	l := p.listFor(core)
	if l == nil {
		return 0
	}
	return l.num
}
