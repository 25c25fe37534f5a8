package lipalloc

import (
	"github.com/fnatlb/lipalloc/pkg/sapool"
)

// Service bundles everything Bind/Unbind and the control operations need for
// one virtual service: its address pool, the SA-pool it draws from, the
// shared interface table, and (addr-mode only) the interface-address
// registry used to check per-core sub-pool assignment.
type Service struct {
	Key ServiceKey

	Pool   *ServiceLocalPool
	SA     sapool.Pool
	Ifaces *IfaceTable

	// AddrReg is consulted only in addr-mode, to skip addresses whose
	// SA sub-pool isn't configured for the calling core
	// (SPEC_FULL.md §4.2 step b).
	AddrReg *sapool.Registry
}

// NewService creates a service pool using the process-global pool mode.
func NewService(key ServiceKey, scheduler SchedulerKind, sa sapool.Pool, ifaces *IfaceTable, addrReg *sapool.Registry) *Service {
	return &Service{
		Key:     key,
		Pool:    NewServiceLocalPool(scheduler),
		SA:      sa,
		Ifaces:  ifaces,
		AddrReg: addrReg,
	}
}
