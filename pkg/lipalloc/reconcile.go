package lipalloc

import "net/netip"

// RangeEntry is one local-address entry as carried by a reload message,
// analogous to dpvs's vs->local_rules range entries (SPEC_FULL.md §4.8).
// Addr/Range/Ifname identify the entry; Alive/Set/Weight/Pweight are runtime
// status fields the reconciler preserves across reload; Reloaded marks
// entries the reconciler matched against an old entry.
type RangeEntry struct {
	Family Family
	Addr   netip.Addr
	Range  string
	Ifname string

	Alive    bool
	Set      bool
	Weight   int
	Pweight  int
	Reloaded bool
}

func (e RangeEntry) key() rangeKey {
	return rangeKey{addr: e.Addr, rng: e.Range, ifname: e.Ifname}
}

type rangeKey struct {
	addr   netip.Addr
	rng    string
	ifname string
}

// BlacklistEntry is the analogous reload-diffed entry for a service's
// blacklisted real servers. Equality is (Addr, Range) only — no Ifname
// (SPEC_FULL.md §4.8).
type BlacklistEntry struct {
	Addr  netip.Addr
	Range string
}

func (e BlacklistEntry) key() blacklistKey {
	return blacklistKey{addr: e.Addr, rng: e.Range}
}

type blacklistKey struct {
	addr netip.Addr
	rng  string
}

// ReconcileSummary counts the operations a reload performed, returned to the
// control plane as the reply body for POST /v1/reload (SPEC_FULL.md §6).
// Pending counts entries present only in the new side: the reconciler issues
// no LaddrAdd for these (SPEC_FULL.md §4.8/§10 S6), so they are not reflected
// in Added — they are added lazily by the normal LaddrAdd path on first use.
type ReconcileSummary struct {
	Added     int
	Pending   int
	Deleted   int
	Preserved int
}

// ReconcileRanges diffs oldRanges against newRanges for the same virtual
// service and applies the result to svc: entries present in old but absent
// from new (by (addr, range, ifname) identity) are deleted via LaddrDel;
// entries present in both have their runtime status copied from old to new
// and are marked Reloaded; entries present only in new are left for the
// normal LaddrAdd path to pick up lazily on first use (SPEC_FULL.md §4.8) and
// counted under Pending, not Added, since no LaddrAdd is actually issued for
// them during reconciliation.
//
// It returns the updated new-side slice (with Reloaded/status fields filled
// in) and a summary of what happened.
func ReconcileRanges(svc *Service, oldRanges, newRanges []RangeEntry) ([]RangeEntry, ReconcileSummary) {
	oldByKey := make(map[rangeKey]RangeEntry, len(oldRanges))
	for _, e := range oldRanges {
		oldByKey[e.key()] = e
	}
	newByKey := make(map[rangeKey]bool, len(newRanges))
	for _, e := range newRanges {
		newByKey[e.key()] = true
	}

	var summary ReconcileSummary

	for _, e := range oldRanges {
		if !newByKey[e.key()] {
			if LaddrDel(svc, e.Family, e.Addr) == Ok {
				summary.Deleted++
			}
		}
	}

	out := make([]RangeEntry, len(newRanges))
	for i, e := range newRanges {
		if old, ok := oldByKey[e.key()]; ok {
			e.Alive = old.Alive
			e.Set = old.Set
			e.Weight = old.Weight
			e.Pweight = old.Pweight
			e.Reloaded = true
			summary.Preserved++
		} else {
			summary.Pending++
		}
		out[i] = e
	}

	return out, summary
}

// ReconcileBlacklist diffs a service's blacklist entries by (Addr, Range)
// identity and only counts the result; it changes no pool. Unlike
// ReconcileRanges, entries present only in new are counted under Added (not
// Pending), and old-only entries are counted under Deleted.
func ReconcileBlacklist(oldEntries, newEntries []BlacklistEntry) ReconcileSummary {
	oldByKey := make(map[blacklistKey]bool, len(oldEntries))
	for _, e := range oldEntries {
		oldByKey[e.key()] = true
	}
	newByKey := make(map[blacklistKey]bool, len(newEntries))
	for _, e := range newEntries {
		newByKey[e.key()] = true
	}

	var summary ReconcileSummary
	for _, e := range oldEntries {
		if !newByKey[e.key()] {
			summary.Deleted++
		}
	}
	for _, e := range newEntries {
		if oldByKey[e.key()] {
			summary.Preserved++
		} else {
			summary.Added++
		}
	}
	return summary
}
