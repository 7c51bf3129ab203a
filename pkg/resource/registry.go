package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provisioner turns a rendered configuration into backend connection data.
//
// The returned payload is opaque to the host: only the service that
// requested the resource interprets it. Implementations must be safe for
// concurrent use; a service may provision several resources in parallel.
type Provisioner interface {
	Provision(ctx context.Context, config map[string]string) ([]byte, error)
}

// ProvisionerFunc adapts a function to the Provisioner interface.
type ProvisionerFunc func(ctx context.Context, config map[string]string) ([]byte, error)

func (f ProvisionerFunc) Provision(ctx context.Context, config map[string]string) ([]byte, error) {
	return f(ctx, config)
}

// Registry maps resource kinds to provisioners.
//
// Kinds are an open, string-identified enumeration: new backends register
// themselves without the factory's dispatch logic changing. Registration
// happens during startup; lookups may run concurrently afterwards.
type Registry struct {
	mu           sync.RWMutex
	provisioners map[string]Provisioner
}

// NewRegistry creates an empty provisioner registry.
func NewRegistry() *Registry {
	return &Registry{provisioners: make(map[string]Provisioner)}
}

// Register adds a provisioner for the given kind.
// Registering the same kind twice or a nil provisioner is an error.
func (r *Registry) Register(kind string, p Provisioner) error {
	if kind == "" {
		return fmt.Errorf("resource kind cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("provisioner for kind %q cannot be nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.provisioners[kind]; exists {
		return fmt.Errorf("resource kind %q already registered", kind)
	}
	r.provisioners[kind] = p
	return nil
}

// Get returns the provisioner for kind, if registered.
func (r *Registry) Get(kind string) (Provisioner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.provisioners[kind]
	return p, ok
}

// Kinds returns all registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.provisioners))
	for k := range r.provisioners {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
