package provider

import (
	"fmt"
	"sync"
)

type registration struct {
	descriptor Descriptor
	client     Client
}

// Registry is the declarative catalog of backend instances per capability.
// Registration happens at startup; lookups are concurrent and read-mostly.
type Registry struct {
	mutex   sync.RWMutex
	entries map[Capability]map[string]*registration
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Capability]map[string]*registration),
	}
}

// Register adds a provider and its client to the catalog.
// Fails with ErrDuplicateProvider if the (capability, name) pair exists.
func (r *Registry) Register(desc Descriptor, client Client) error {
	if desc.Name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if desc.Weight <= 0 {
		return fmt.Errorf("provider %s: weight must be positive", desc.ID())
	}
	if desc.Quality < 0 || desc.Quality > 1 {
		return fmt.Errorf("provider %s: quality must be in [0,1]", desc.ID())
	}
	if client == nil {
		return fmt.Errorf("provider %s: client cannot be nil", desc.ID())
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	byName, ok := r.entries[desc.Capability]
	if !ok {
		byName = make(map[string]*registration)
		r.entries[desc.Capability] = byName
	}

	if _, exists := byName[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, desc.ID())
	}

	byName[desc.Name] = &registration{descriptor: desc, client: client}
	return nil
}

// List returns all descriptors for a capability in unspecified order.
// Returns ErrUnknownCapability if none are registered.
func (r *Registry) List(capability Capability) ([]Descriptor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	byName, ok := r.entries[capability]
	if !ok || len(byName) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, capability)
	}

	descriptors := make([]Descriptor, 0, len(byName))
	for _, reg := range byName {
		descriptors = append(descriptors, reg.descriptor)
	}

	return descriptors, nil
}

// Client returns the registered client for a provider, or false when the
// provider is unknown.
func (r *Registry) Client(id ID) (Client, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, byName := range r.entries {
		for _, reg := range byName {
			if reg.descriptor.ID() == id {
				return reg.client, true
			}
		}
	}

	return nil, false
}

// Descriptor returns the descriptor for a provider, or false when unknown.
func (r *Registry) Descriptor(id ID) (Descriptor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, byName := range r.entries {
		for _, reg := range byName {
			if reg.descriptor.ID() == id {
				return reg.descriptor, true
			}
		}
	}

	return Descriptor{}, false
}

// All returns every registered descriptor across capabilities.
func (r *Registry) All() []Descriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var descriptors []Descriptor
	for _, byName := range r.entries {
		for _, reg := range byName {
			descriptors = append(descriptors, reg.descriptor)
		}
	}

	return descriptors
}
