// Package loader resolves compiled service units and supervises their
// construct-then-serve lifecycle.
//
// A unit artifact is a Go plugin exporting a versioned Entrypoint value.
// Load validates the exported shape and contract version before invoking
// anything from the artifact; a mismatch is a LoadError, never a crash.
// Starting a loaded unit yields a Handle whose state machine is
// Constructing → Serving → {Stopped | Crashed} with exactly one terminal
// event.
package loader

import (
	"fmt"
	"os"
	"plugin"

	"github.com/d4ckard/shuttle/pkg/service"
)

// Unit is a loaded, startable service unit.
type Unit struct {
	name       string
	entrypoint service.Entrypoint
}

// Load opens the compiled artifact at path and resolves its entrypoint.
//
// It fails with a *LoadError if the artifact is missing or malformed, does
// not export the expected symbol, exports a value of the wrong shape, or
// was built against a different contract version. All checks run before any
// unit code executes.
func Load(name, path string) (*Unit, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Unit: name, Path: path, Err: err}
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, &LoadError{Unit: name, Path: path, Err: err}
	}

	sym, err := p.Lookup(service.EntrypointSymbol)
	if err != nil {
		return nil, &LoadError{Unit: name, Path: path,
			Err: fmt.Errorf("%w: missing symbol %q", ErrBadEntrypoint, service.EntrypointSymbol)}
	}

	ep, ok := sym.(*service.Entrypoint)
	if !ok {
		return nil, &LoadError{Unit: name, Path: path,
			Err: fmt.Errorf("%w: symbol %q has type %T", ErrBadEntrypoint, service.EntrypointSymbol, sym)}
	}

	return unitFromEntrypoint(name, *ep, path)
}

// FromEntrypoint wraps an in-process entrypoint as a loadable unit. It runs
// the same shape and version validation as Load, so registry-backed units
// cannot bypass the contract.
func FromEntrypoint(name string, ep service.Entrypoint) (*Unit, error) {
	return unitFromEntrypoint(name, ep, "<in-process>")
}

// FromRegistry looks the unit up in the in-process service registry.
func FromRegistry(name string) (*Unit, error) {
	ep, ok := service.Lookup(name)
	if !ok {
		return nil, &LoadError{Unit: name, Path: "<registry>",
			Err: fmt.Errorf("%w: unit not registered (available: %v)", ErrBadEntrypoint, service.Names())}
	}
	return unitFromEntrypoint(name, ep, "<registry>")
}

func unitFromEntrypoint(name string, ep service.Entrypoint, path string) (*Unit, error) {
	if ep.Version != service.EntrypointVersion {
		return nil, &LoadError{Unit: name, Path: path,
			Err: fmt.Errorf("%w: artifact has version %d, host expects %d",
				ErrVersionMismatch, ep.Version, service.EntrypointVersion)}
	}
	if ep.Build == nil {
		return nil, &LoadError{Unit: name, Path: path,
			Err: fmt.Errorf("%w: nil Build function", ErrBadEntrypoint)}
	}
	return &Unit{name: name, entrypoint: ep}, nil
}

// Name returns the unit's name.
func (u *Unit) Name() string { return u.name }
