package lipalloc

import (
	"net/netip"
	"testing"

	"github.com/fnatlb/lipalloc/pkg/sapool"
)

// S2 — round-robin with 5% jitter in port-mode: over many binds each address
// should be picked roughly 1/3 of the time, tolerating the jitter's effect.
func TestPickLaddrRoundRobinDistribution(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	sa := &fixedSAPool{port: 1025}
	svc, _ := newTestService(t, SchedulerRR, sa)
	addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for _, a := range addrs {
		if st := LaddrAdd(svc, FamilyV4, mustAddr(t, a), "eth0"); st != Ok {
			t.Fatalf("LaddrAdd %s: %v", a, st)
		}
	}

	counts := map[netip.Addr]int{}
	const n = 1000
	for i := 0; i < n; i++ {
		conn := &Conn{Proto: ProtoTCP, DAddr: mustAddr(t, "192.0.2.7"), DPort: 80}
		if st := Bind(0, conn, svc); st != Ok {
			t.Fatalf("Bind #%d: %v", i, st)
		}
		counts[conn.LAddr]++
		if st := Unbind(0, conn, svc); st != Ok {
			t.Fatalf("Unbind #%d: %v", i, st)
		}
	}

	for _, a := range addrs {
		c := counts[mustAddr(t, a)]
		if c < 320 || c > 347 {
			t.Errorf("address %s selected %d/%d times, want within [320,347]", a, c, n)
		}
	}
}

// Uniform 1-step advance (no jitter) must cycle deterministically.
func TestListAdvanceWraps(t *testing.T) {
	l := &list{}
	a := &LocalAddress{Addr: mustAddr(t, "10.0.0.1")}
	b := &LocalAddress{Addr: mustAddr(t, "10.0.0.2")}
	c := &LocalAddress{Addr: mustAddr(t, "10.0.0.3")}
	l.append(a)
	l.append(b)
	l.append(c)

	want := []*LocalAddress{a, b, c, a, b, c}
	for i, w := range want {
		got := l.advance(1)
		if got != w {
			t.Fatalf("advance #%d = %s, want %s", i, got.Addr, w.Addr)
		}
	}
}

// S5 — addr-mode per-core skipping: each core only draws from its own list.
func TestAddrModePerCoreSkipping(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: AddrLcoreMapping, EnabledCoreMask: 0x6}) // cores 1,2

	reg := sapool.NewRegistry()
	addrA := mustAddr(t, "10.0.0.1")
	addrB := mustAddr(t, "10.0.0.2")
	reg.SetCore("eth0", addrA, 1, true)
	reg.SetCore("eth0", addrB, 2, true)

	ifaces := NewIfaceTable()
	ifaces.Register("eth0")
	svc := NewService(ServiceKey{Proto: ProtoTCP, VPort: 80}, SchedulerOther, &fixedSAPool{port: 2000}, ifaces, reg)

	if st := LaddrAdd(svc, FamilyV4, addrA, "eth0"); st != Ok {
		t.Fatalf("LaddrAdd A: %v", st)
	}
	if st := LaddrAdd(svc, FamilyV4, addrB, "eth0"); st != Ok {
		t.Fatalf("LaddrAdd B: %v", st)
	}

	conn1 := &Conn{Proto: ProtoTCP, DAddr: mustAddr(t, "192.0.2.7"), DPort: 80}
	if st := Bind(1, conn1, svc); st != Ok {
		t.Fatalf("Bind core1: %v", st)
	}
	if conn1.LAddr != addrA {
		t.Fatalf("core1 bound %s, want %s", conn1.LAddr, addrA)
	}

	conn2 := &Conn{Proto: ProtoTCP, DAddr: mustAddr(t, "192.0.2.7"), DPort: 80}
	if st := Bind(2, conn2, svc); st != Ok {
		t.Fatalf("Bind core2: %v", st)
	}
	if conn2.LAddr != addrB {
		t.Fatalf("core2 bound %s, want %s", conn2.LAddr, addrB)
	}
}
