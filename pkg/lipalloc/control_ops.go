package lipalloc

import "net/netip"

// LaddrEntry is one row of a LaddrGetAll reply (SPEC_FULL.md §4.7/§6).
// NportConflict is always zero; it is carried only because the wire format
// reserves the field.
type LaddrEntry struct {
	Family        Family
	Addr          netip.Addr
	NportConflict uint32
	NConns        int64
}

// LaddrAdd creates a new LocalAddress on svc, resolving ifname through
// ifaces. In port-mode the entry is appended to the single shared list; in
// addr-mode it is inserted once per enabled core whose SA sub-pool is
// configured for (ifname, addr), per SPEC_FULL.md §4.4.
func LaddrAdd(svc *Service, family Family, addr netip.Addr, ifname string) Status {
	if svc == nil || !addr.IsValid() || ifname == "" {
		return Invalid
	}
	if _, ok := svc.Ifaces.Lookup(ifname); !ok {
		return NotExist
	}

	p := svc.Pool
	switch p.mode {
	case PortLcoreMapping:
		l := p.shared
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.find(family, addr) != nil {
			return Exists
		}
		l.append(&LocalAddress{Family: family, Addr: addr, Iface: Iface{Name: ifname}})
		return Ok

	case AddrLcoreMapping:
		cfg := globalConfig()
		for c := 0; c < MaxCores; c++ {
			if !cfg.CoreEnabled(c) || p.perCore[c] == nil {
				continue
			}
			p.perCore[c].mu.RLock()
			dup := p.perCore[c].find(family, addr) != nil
			p.perCore[c].mu.RUnlock()
			if dup {
				return Exists
			}
		}

		var rec *addrRecordLookup
		if svc.AddrReg != nil {
			rec = &addrRecordLookup{svc: svc, ifname: ifname, addr: addr}
		}

		for c := 0; c < MaxCores; c++ {
			if !cfg.CoreEnabled(c) || p.perCore[c] == nil {
				continue
			}
			if rec != nil && !rec.hasCore(c) {
				continue
			}
			l := p.perCore[c]
			l.mu.Lock()
			l.append(&LocalAddress{Family: family, Addr: addr, Iface: Iface{Name: ifname}})
			l.mu.Unlock()
		}
		return Ok

	default:
		return Invalid
	}
}

type addrRecordLookup struct {
	svc    *Service
	ifname string
	addr   netip.Addr
}

func (r *addrRecordLookup) hasCore(core int) bool {
	rec, ok := r.svc.AddrReg.Lookup(r.ifname, r.addr)
	return ok && rec.HasCore(core)
}

// LaddrDel removes the LocalAddress matching (family, addr) from every list
// of svc on which its refcnt is zero (SPEC_FULL.md §4.5). Lists are handled
// independently: an entry still referenced on one core's list stays there
// while free entries on other lists are removed, and the result is Busy. The
// cursor is fixed up before unlinking so it never points at a freed entry.
func LaddrDel(svc *Service, family Family, addr netip.Addr) Status {
	if svc == nil || !addr.IsValid() {
		return Invalid
	}

	p := svc.Pool
	found := false
	busy := false

	for _, l := range p.coreLists() {
		l.mu.Lock()
		la := l.find(family, addr)
		if la != nil {
			found = true
			if la.RefCount() != 0 {
				busy = true
			} else {
				l.fixupCursor(la)
				l.unlink(la)
			}
		}
		l.mu.Unlock()
	}

	if !found {
		return NotExist
	}
	if busy {
		return Busy
	}
	return Ok
}

// LaddrFlush removes every LocalAddress in svc with refcnt == 0
// (SPEC_FULL.md §4.6). Entries still referenced are left in place and the
// call returns Busy to summarize that not everything was removed.
func LaddrFlush(svc *Service) Status {
	if svc == nil {
		return Invalid
	}

	busy := false
	for _, l := range svc.Pool.coreLists() {
		l.mu.Lock()
		for la := l.head; la != nil; {
			next := la.next
			if la.RefCount() == 0 {
				l.fixupCursor(la)
				l.unlink(la)
			} else {
				busy = true
			}
			la = next
		}
		l.mu.Unlock()
	}

	if busy {
		return Busy
	}
	return Ok
}

// LaddrGetAll returns a snapshot of every LocalAddress in svc, in core-id
// order for addr-mode pools (SPEC_FULL.md §4.7).
func LaddrGetAll(svc *Service) []LaddrEntry {
	if svc == nil {
		return nil
	}

	var out []LaddrEntry
	for _, l := range svc.Pool.coreLists() {
		l.mu.Lock()
		for _, la := range l.snapshot() {
			out = append(out, LaddrEntry{
				Family: la.Family,
				Addr:   la.Addr,
				NConns: la.ConnCount(),
			})
		}
		l.mu.Unlock()
	}
	return out
}

// coreLists returns every list backing p, in a stable order: the single
// shared list in port-mode, or each enabled core's list in ascending core-id
// order in addr-mode. Used by the control operations, which must touch every
// list a service owns regardless of pool mode.
func (p *ServiceLocalPool) coreLists() []*list {
	if p.mode == PortLcoreMapping {
		if p.shared == nil {
			return nil
		}
		return []*list{p.shared}
	}
	out := make([]*list, 0, MaxCores)
	for c := 0; c < MaxCores; c++ {
		if p.perCore[c] != nil {
			out = append(out, p.perCore[c])
		}
	}
	return out
}
