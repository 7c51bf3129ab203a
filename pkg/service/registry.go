package service

import (
	"fmt"
	"sort"
	"sync"
)

// The in-process registry holds units compiled directly into the host
// binary. It backs tests and embedded deployments where dynamic loading is
// unnecessary; registered units run through the exact same handle state
// machine as dynamically loaded ones.
var (
	mu       sync.RWMutex
	registry = make(map[string]Entrypoint)
)

// Register adds an in-process unit under name. It is intended to be called
// from init functions and panics on duplicate registration or on an
// entrypoint with the wrong version.
func Register(name string, ep Entrypoint) {
	if ep.Version != EntrypointVersion {
		panic(fmt.Sprintf("service: unit %q entrypoint version %d, host expects %d",
			name, ep.Version, EntrypointVersion))
	}
	if ep.Build == nil {
		panic(fmt.Sprintf("service: unit %q has nil Build", name))
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("service: unit %q already registered", name))
	}
	registry[name] = ep
}

// Lookup returns the entrypoint registered under name.
func Lookup(name string) (Entrypoint, bool) {
	mu.RLock()
	defer mu.RUnlock()
	ep, ok := registry[name]
	return ep, ok
}

// Names returns all registered unit names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
