package net

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ManagerFactory creates the connection manager for one protocol. listen
// selects between binding cfg.Address for incoming peers and opening a
// socket to dial it.
type ManagerFactory func(ctx context.Context, network *Network, cfg ConnectionConfiguration, listen bool) (*ConnectionManager, error)

// Registry maps protocols to the factories that implement them. A Network
// is given a Registry explicitly; there is no process-wide default.
type Registry struct {
	mu        sync.RWMutex
	factories map[Protocol]ManagerFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Protocol]ManagerFactory)}
}

// Register installs f for p, replacing any earlier factory.
func (r *Registry) Register(p Protocol, f ManagerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[p] = f
}

// Lookup returns the factory for p, or ErrUnsupportedProtocol.
func (r *Registry) Lookup(p Protocol) (ManagerFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[p]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedProtocol, "%s", p)
	}
	return f, nil
}
