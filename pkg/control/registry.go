package control

import (
	"sync"

	"github.com/fnatlb/lipalloc/pkg/lipalloc"
)

// ServiceRegistry resolves a service key to the *lipalloc.Service that owns
// it, standing in for dpvs's virtual-service table lookup (SPEC_FULL.md §6:
// "look up the virtual service by (af, proto, vaddr, vport, fwmark, match);
// on miss return NoService").
type ServiceRegistry struct {
	mu  sync.RWMutex
	svc map[lipalloc.ServiceKey]*lipalloc.Service
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{svc: make(map[lipalloc.ServiceKey]*lipalloc.Service)}
}

// Register adds or replaces the service for key.
func (r *ServiceRegistry) Register(key lipalloc.ServiceKey, svc *lipalloc.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.svc[key] = svc
}

// Lookup resolves key, returning (nil, false) on a miss.
func (r *ServiceRegistry) Lookup(key lipalloc.ServiceKey) (*lipalloc.Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.svc[key]
	return svc, ok
}
