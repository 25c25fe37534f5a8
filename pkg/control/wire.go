package control

import (
	"net/netip"

	"github.com/fnatlb/lipalloc/pkg/lipalloc"
)

// serviceKeyWire is the JSON shape of a lipalloc.ServiceKey, shared by every
// request in this package (SPEC_FULL.md §6).
type serviceKeyWire struct {
	Family uint8      `json:"family"`
	Proto  uint8      `json:"proto"`
	VAddr  netip.Addr `json:"vaddr"`
	VPort  uint16     `json:"vport"`
	FWMark uint32     `json:"fwmark"`
	Match  string     `json:"match"`
}

func (w serviceKeyWire) key() lipalloc.ServiceKey {
	return lipalloc.ServiceKey{
		Family: lipalloc.Family(w.Family),
		Proto:  lipalloc.Proto(w.Proto),
		VAddr:  w.VAddr,
		VPort:  w.VPort,
		FWMark: w.FWMark,
		Match:  w.Match,
	}
}

// statusReply is the minimal {"status": "..."} body every mutating
// operation replies with.
type statusReply struct {
	Status lipalloc.Status `json:"status"`
}

type laddrAddRequest struct {
	Service serviceKeyWire `json:"service"`
	Family  uint8          `json:"family"`
	Addr    netip.Addr     `json:"addr"`
	Ifname  string         `json:"ifname"`
}

type laddrDelRequest struct {
	Service serviceKeyWire `json:"service"`
	Family  uint8          `json:"family"`
	Addr    netip.Addr     `json:"addr"`
}

type laddrFlushRequest struct {
	Service serviceKeyWire `json:"service"`
}

type laddrGetAllRequest struct {
	Service serviceKeyWire `json:"service"`
}

type laddrEntryWire struct {
	Family        uint8      `json:"family"`
	Addr          netip.Addr `json:"addr"`
	NportConflict uint32     `json:"nport_conflict"`
	NConns        int64      `json:"nconns"`
}

type laddrGetAllReply struct {
	Service serviceKeyWire   `json:"service"`
	Status  lipalloc.Status  `json:"status"`
	Entries []laddrEntryWire `json:"entries"`
}

type rangeEntryWire struct {
	Family  uint8      `json:"family"`
	Addr    netip.Addr `json:"addr"`
	Range   string     `json:"range"`
	Ifname  string     `json:"ifname"`
	Alive   bool       `json:"alive"`
	Set     bool       `json:"set"`
	Weight  int        `json:"weight"`
	Pweight int        `json:"pweight"`
}

func (w rangeEntryWire) entry() lipalloc.RangeEntry {
	return lipalloc.RangeEntry{
		Family:  lipalloc.Family(w.Family),
		Addr:    w.Addr,
		Range:   w.Range,
		Ifname:  w.Ifname,
		Alive:   w.Alive,
		Set:     w.Set,
		Weight:  w.Weight,
		Pweight: w.Pweight,
	}
}

type reloadRequest struct {
	Service         serviceKeyWire   `json:"service"`
	ProtocolVersion string           `json:"protocol_version"`
	OldRanges       []rangeEntryWire `json:"old_ranges"`
	NewRanges       []rangeEntryWire `json:"new_ranges"`
}

type reloadReply struct {
	Status    lipalloc.Status `json:"status"`
	Added     int             `json:"added"`
	Pending   int             `json:"pending"`
	Deleted   int             `json:"deleted"`
	Preserved int             `json:"preserved"`
}
