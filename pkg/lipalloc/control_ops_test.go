package lipalloc

import (
	"net/netip"
	"testing"
)

// S3 — delete of a busy address, then success after unbind.
func TestLaddrDelBusy(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	sa := &fixedSAPool{port: 1025}
	svc, _ := newTestService(t, SchedulerOther, sa)
	addr := mustAddr(t, "10.0.0.1")
	if st := LaddrAdd(svc, FamilyV4, addr, "eth0"); st != Ok {
		t.Fatalf("LaddrAdd: %v", st)
	}

	conn := &Conn{Proto: ProtoTCP, DAddr: mustAddr(t, "192.0.2.7"), DPort: 80}
	if st := Bind(0, conn, svc); st != Ok {
		t.Fatalf("Bind: %v", st)
	}

	if st := LaddrDel(svc, FamilyV4, addr); st != Busy {
		t.Fatalf("LaddrDel while bound = %v, want Busy", st)
	}

	if st := Unbind(0, conn, svc); st != Ok {
		t.Fatalf("Unbind: %v", st)
	}

	if st := LaddrDel(svc, FamilyV4, addr); st != Ok {
		t.Fatalf("LaddrDel after unbind = %v, want Ok", st)
	}

	if n := len(LaddrGetAll(svc)); n != 0 {
		t.Fatalf("pool not empty after delete: %d entries", n)
	}
}

func TestLaddrAddDuplicate(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	svc, _ := newTestService(t, SchedulerOther, &fixedSAPool{port: 1})
	addr := mustAddr(t, "10.0.0.1")
	if st := LaddrAdd(svc, FamilyV4, addr, "eth0"); st != Ok {
		t.Fatalf("first LaddrAdd: %v", st)
	}
	if st := LaddrAdd(svc, FamilyV4, addr, "eth0"); st != Exists {
		t.Fatalf("duplicate LaddrAdd = %v, want Exists", st)
	}
}

func TestLaddrAddUnknownInterface(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	svc, _ := newTestService(t, SchedulerOther, &fixedSAPool{port: 1})
	if st := LaddrAdd(svc, FamilyV4, mustAddr(t, "10.0.0.1"), "nope0"); st != NotExist {
		t.Fatalf("LaddrAdd unknown iface = %v, want NotExist", st)
	}
}

// Idempotence of flush: a second flush with no intervening adds is a no-op.
func TestLaddrFlushIdempotent(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	svc, _ := newTestService(t, SchedulerOther, &fixedSAPool{port: 1})
	LaddrAdd(svc, FamilyV4, mustAddr(t, "10.0.0.1"), "eth0")
	LaddrAdd(svc, FamilyV4, mustAddr(t, "10.0.0.2"), "eth0")

	if st := LaddrFlush(svc); st != Ok {
		t.Fatalf("first flush: %v", st)
	}
	if n := len(LaddrGetAll(svc)); n != 0 {
		t.Fatalf("pool not empty after flush: %d", n)
	}
	if st := LaddrFlush(svc); st != Ok {
		t.Fatalf("second flush: %v", st)
	}
}

func TestLaddrFlushLeavesBusyEntries(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	svc, _ := newTestService(t, SchedulerOther, &fixedSAPool{port: 1025})
	LaddrAdd(svc, FamilyV4, mustAddr(t, "10.0.0.1"), "eth0")

	conn := &Conn{Proto: ProtoTCP, DAddr: mustAddr(t, "192.0.2.7"), DPort: 80}
	if st := Bind(0, conn, svc); st != Ok {
		t.Fatalf("Bind: %v", st)
	}

	if st := LaddrFlush(svc); st != Busy {
		t.Fatalf("LaddrFlush with bound entry = %v, want Busy", st)
	}
	if n := len(LaddrGetAll(svc)); n != 1 {
		t.Fatalf("busy entry was removed by flush, got %d entries", n)
	}
}

// S6 — reload diff.
func TestReconcileRanges(t *testing.T) {
	resetGlobalConfig(t, Config{Mode: PortLcoreMapping, EnabledCoreMask: 0x1})

	svc, _ := newTestService(t, SchedulerOther, &fixedSAPool{port: 1})
	a, b, c := mustAddr(t, "10.0.0.1"), mustAddr(t, "10.0.0.2"), mustAddr(t, "10.0.0.3")
	d := mustAddr(t, "10.0.0.4")
	for _, addr := range []netip.Addr{a, b, c} {
		if st := LaddrAdd(svc, FamilyV4, addr, "eth0"); st != Ok {
			t.Fatalf("seed LaddrAdd %s: %v", addr, st)
		}
	}

	old := []RangeEntry{
		{Family: FamilyV4, Addr: a, Ifname: "eth0", Weight: 5},
		{Family: FamilyV4, Addr: b, Ifname: "eth0", Weight: 7},
		{Family: FamilyV4, Addr: c, Ifname: "eth0", Weight: 9},
	}
	newEntries := []RangeEntry{
		{Family: FamilyV4, Addr: b, Ifname: "eth0"},
		{Family: FamilyV4, Addr: c, Ifname: "eth0"},
		{Family: FamilyV4, Addr: d, Ifname: "eth0"},
	}

	out, summary := ReconcileRanges(svc, old, newEntries)
	if summary.Deleted != 1 || summary.Added != 0 || summary.Pending != 1 || summary.Preserved != 2 {
		t.Fatalf("summary = %+v, want {Deleted:1 Added:0 Pending:1 Preserved:2}", summary)
	}

	// D is reported Pending, not Added: the reconciler issues zero adds for
	// entries present only in the new side (SPEC_FULL.md §10 S6).
	if st := LaddrAdd(svc, FamilyV4, d, "eth0"); st != Ok {
		t.Fatalf("D should still need an explicit LaddrAdd: %v", st)
	}

	if st := LaddrDel(svc, FamilyV4, a); st != NotExist {
		t.Fatalf("A should already be deleted by reconcile, LaddrDel = %v", st)
	}

	byAddr := map[netip.Addr]RangeEntry{}
	for _, e := range out {
		byAddr[e.Addr] = e
	}
	if e := byAddr[b]; !e.Reloaded || e.Weight != 7 {
		t.Fatalf("B not preserved correctly: %+v", e)
	}
	if e := byAddr[c]; !e.Reloaded || e.Weight != 9 {
		t.Fatalf("C not preserved correctly: %+v", e)
	}
	if e := byAddr[d]; e.Reloaded {
		t.Fatalf("D should not be marked Reloaded: %+v", e)
	}
}
