package lipalloc

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/fnatlb/lipalloc/pkg/sapool"
)

func resetGlobalConfig(t *testing.T, c Config) {
	t.Helper()
	globalOnce = sync.Once{}
	globalSet = false
	Init(c)
}

func newTestService(t *testing.T, scheduler SchedulerKind, sa sapool.Pool) (*Service, *IfaceTable) {
	t.Helper()
	ifaces := NewIfaceTable()
	ifaces.Register("eth0")
	svc := NewService(ServiceKey{Proto: ProtoTCP, VPort: 80}, scheduler, sa, ifaces, nil)
	return svc, ifaces
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("parse addr %q: %v", s, err)
	}
	return a
}

// fixedSAPool always hands out the same port, or always fails if exhausted
// is set. Grounds S1/S4 on a deterministic SA-pool double.
type fixedSAPool struct {
	port      uint16
	exhausted bool
}

func (p *fixedSAPool) Fetch(iface string, core int, dst, src sapool.Endpoint) (sapool.Endpoint, error) {
	if p.exhausted {
		return sapool.Endpoint{}, sapool.ErrExhausted
	}
	return sapool.Endpoint{Addr: src.Addr, Port: p.port}, nil
}

func (p *fixedSAPool) Release(iface string, core int, dst, src sapool.Endpoint) error {
	return nil
}

// S1 — single address, TCP, port-mode.
func TestBindUnbindSingleAddress(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	sa := &fixedSAPool{port: 1025}
	svc, _ := newTestService(t, SchedulerOther, sa)
	if st := LaddrAdd(svc, FamilyV4, mustAddr(t, "10.0.0.1"), "eth0"); st != Ok {
		t.Fatalf("LaddrAdd: %v", st)
	}

	conn := &Conn{Proto: ProtoTCP, DAddr: mustAddr(t, "192.0.2.7"), DPort: 80}
	if st := Bind(0, conn, svc); st != Ok {
		t.Fatalf("Bind: %v", st)
	}
	if conn.LAddr != mustAddr(t, "10.0.0.1") || conn.LPort != 1025 {
		t.Fatalf("unexpected bound endpoint %s:%d", conn.LAddr, conn.LPort)
	}
	if conn.Local.RefCount() != 1 {
		t.Fatalf("refcnt = %d, want 1", conn.Local.RefCount())
	}
	if conn.Local.ConnCount() != 1 {
		t.Fatalf("connCount = %d, want 1", conn.Local.ConnCount())
	}

	la := conn.Local
	if st := Unbind(0, conn, svc); st != Ok {
		t.Fatalf("Unbind: %v", st)
	}
	if la.RefCount() != 0 || la.ConnCount() != 0 {
		t.Fatalf("refcnt/connCount not cleared: %d/%d", la.RefCount(), la.ConnCount())
	}
	if conn.Local != nil {
		t.Fatalf("conn.Local not cleared")
	}
}

// S4 — exhaustion: SA-pool always fails, Bind must return Resource and leak
// no refcnt.
func TestBindExhaustion(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	sa := &fixedSAPool{exhausted: true}
	svc, _ := newTestService(t, SchedulerOther, sa)
	if st := LaddrAdd(svc, FamilyV4, mustAddr(t, "10.0.0.1"), "eth0"); st != Ok {
		t.Fatalf("LaddrAdd: %v", st)
	}

	conn := &Conn{Proto: ProtoTCP, DAddr: mustAddr(t, "192.0.2.7"), DPort: 80}
	if st := Bind(0, conn, svc); st != Resource {
		t.Fatalf("Bind = %v, want Resource", st)
	}

	for _, l := range svc.Pool.coreLists() {
		for _, la := range l.snapshot() {
			if la.RefCount() != 0 {
				t.Fatalf("leaked refcnt %d on %s", la.RefCount(), la.Addr)
			}
		}
	}
}

// Template connections skip allocation entirely.
func TestBindTemplateSkipsAllocation(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	svc, _ := newTestService(t, SchedulerOther, &fixedSAPool{exhausted: true})
	conn := &Conn{Proto: ProtoTCP, IsTemplate: true, DAddr: mustAddr(t, "192.0.2.7"), DPort: 80}
	if st := Bind(0, conn, svc); st != Ok {
		t.Fatalf("Bind template: %v", st)
	}
	if conn.Local != nil {
		t.Fatalf("template connection should not be bound")
	}
}

func TestBindRejectsNonTCPUDPProtocol(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	svc, _ := newTestService(t, SchedulerOther, &fixedSAPool{port: 1})
	conn := &Conn{Proto: 1, DAddr: mustAddr(t, "192.0.2.7"), DPort: 80}
	if st := Bind(0, conn, svc); st != NotSupported {
		t.Fatalf("Bind unsupported proto = %v, want NotSupported", st)
	}
}
