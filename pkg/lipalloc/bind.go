package lipalloc

import (
	"net/netip"

	"github.com/fnatlb/lipalloc/pkg/sapool"
)

// Bind selects a local address/port for conn's destination and writes the
// result into conn, matching SPEC_FULL.md §4.2. core identifies the worker
// core running the packet pipeline that is calling Bind; in addr-mode it
// selects which per-core address list is consulted.
func Bind(core int, conn *Conn, svc *Service) Status {
	if conn == nil || svc == nil || !conn.DAddr.IsValid() {
		return Invalid
	}
	if !conn.allocEligible() {
		return NotSupported
	}
	if conn.IsTemplate {
		return Ok
	}

	l := svc.Pool.listFor(core)
	if l == nil {
		return Resource
	}

	l.mu.Lock()
	status, la, ep, ifaceName := bindLocked(conn, svc, l, core)
	l.mu.Unlock()

	if status != Ok {
		metricsBindFail(svc.Key, status)
		return status
	}

	la.connCount.Add(1)
	conn.LAddr = ep.Addr
	conn.LPort = ep.Port
	conn.Local = la
	conn.iface = Iface{Name: ifaceName}
	conn.fDst = sapool.Endpoint{Addr: conn.DAddr, Port: conn.DPort}
	conn.fSrc = ep
	conn.TupleHash = tupleHash(conn.Proto, conn.DAddr, conn.DPort, conn.LAddr, conn.LPort)

	metricsBindOk(svc.Key)
	return Ok
}

// bindLocked runs the trial loop of §4.2 with l's write lock already held.
func bindLocked(conn *Conn, svc *Service, l *list, core int) (Status, *LocalAddress, sapool.Endpoint, string) {
	n := svc.Pool.numLaddrs(core)
	trials := MaxTrials
	if n < trials {
		trials = n
	}
	if trials == 0 {
		return Resource, nil, sapool.Endpoint{}, ""
	}

	for i := 0; i < trials; i++ {
		la, st := svc.Pool.pickLaddr(l)
		if st != Ok {
			return Resource, nil, sapool.Endpoint{}, ""
		}

		if svc.Pool.mode == AddrLcoreMapping && svc.AddrReg != nil {
			rec, ok := svc.AddrReg.Lookup(la.Iface.Name, la.Addr)
			if !ok || !rec.HasCore(core) {
				la.release()
				continue
			}
		}

		dst := sapool.Endpoint{Addr: conn.DAddr, Port: conn.DPort}
		src := sapool.Endpoint{Addr: la.Addr}

		ep, err := svc.SA.Fetch(la.Iface.Name, core, dst, src)
		if err != nil {
			la.release()
			continue
		}
		return Ok, la, ep, la.Iface.Name
	}
	return Resource, nil, sapool.Endpoint{}, ""
}

// Unbind releases conn's bound local address/port, matching SPEC_FULL.md
// §4.3. It always returns Ok.
func Unbind(core int, conn *Conn, svc *Service) Status {
	if conn == nil || conn.IsTemplate || conn.Local == nil {
		return Ok
	}

	la := conn.Local

	_ = svc.SA.Release(conn.iface.Name, core, conn.fDst, conn.fSrc)

	la.connCount.Add(-1)
	la.release()

	conn.Local = nil
	conn.TupleHash = 0
	conn.LAddr, conn.LPort = netip.Addr{}, 0

	metricsUnbind(svc.Key)
	return Ok
}
