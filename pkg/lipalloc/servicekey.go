package lipalloc

import "net/netip"

// ServiceKey identifies a virtual service the way the control plane's
// service-key resolution does (SPEC_FULL.md §6): address family, protocol,
// virtual address/port, firewall mark, and an opaque match-filter string.
type ServiceKey struct {
	Family Family
	Proto  Proto
	VAddr  netip.Addr
	VPort  uint16
	FWMark uint32
	Match  string
}
