package circuitbreaker

import (
	"sync"

	"github.com/codescope/relay/internal/provider"
)

// Registry lazily creates one breaker per provider, all sharing the same
// configuration.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[provider.ID]*CircuitBreaker
	cfg      Config
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[provider.ID]*CircuitBreaker),
		cfg:      cfg,
	}
}

func (r *Registry) GetBreaker(id provider.ID) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[id]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[id]; exists {
		return cb
	}

	cb = NewCircuitBreaker(r.cfg)
	r.breakers[id] = cb
	return cb
}

func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[provider.ID]*CircuitBreaker)
}

// Stats returns the current state of every known breaker.
func (r *Registry) Stats() map[provider.ID]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[provider.ID]State, len(r.breakers))
	for id, cb := range r.breakers {
		stats[id] = cb.State()
	}
	return stats
}
