// Package proxy resolves the marketplace trading proxy registered for
// an owner. The ledger's approval query treats an owner's registered
// proxy as a standing operator authorization.
package proxy

import (
	"sync"

	"github.com/bridgemint/bridgemint-go/types"
)

// Registry maps an owner to its registered trading proxy.
type Registry interface {
	ProxyFor(owner types.Principal) (types.Principal, bool)
}

// Static is a fixed in-memory registry, registered out of band.
type Static struct {
	mu      sync.RWMutex
	proxies map[types.Principal]types.Principal
}

func NewStatic() *Static {
	return &Static{proxies: map[types.Principal]types.Principal{}}
}

func (s *Static) Register(owner, proxy types.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxies[owner] = proxy
}

func (s *Static) Unregister(owner types.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.proxies, owner)
}

func (s *Static) ProxyFor(owner types.Principal) (types.Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proxy, ok := s.proxies[owner]
	return proxy, ok
}
