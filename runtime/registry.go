package runtime

import (
	"fmt"
	"sync"
)

// Registry is the process-local service directory. Components that need each
// other at runtime but must not import each other (the account region and
// the transfer coordinator are mutually recursive) resolve through it.
type Registry struct {
	mu       sync.RWMutex
	services map[string]any
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]any)}
}

func (r *Registry) Put(name string, svc any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = svc
}

// Lookup resolves a service by name and asserts its type.
func Lookup[T any](r *Registry, name string) (T, error) {
	var zero T
	r.mu.RLock()
	svc, ok := r.services[name]
	r.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("registry: service %q not registered", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("registry: service %q is %T, not %T", name, svc, zero)
	}
	return typed, nil
}
