// Package service defines the lifecycle contract every deployable unit
// implements.
//
// A unit is compiled independently of the host. The only thing the two
// sides share is this package: the Service interface, the versioned
// Entrypoint shape the loader resolves from a compiled artifact, and the
// in-process registry used by units that are compiled into the host binary.
package service

import (
	"context"

	"github.com/d4ckard/shuttle/pkg/resource"
)

// EntrypointVersion is the contract version of the Entrypoint shape.
// The loader refuses artifacts built against a different version before
// invoking anything from them.
const EntrypointVersion = 1

// EntrypointSymbol is the exported symbol name the loader resolves from a
// compiled plugin artifact.
const EntrypointSymbol = "Entrypoint"

// Service is a long-running network service authored by a user.
//
// These services never "finish": Bind occupies the address until the
// context is cancelled (graceful shutdown) or the service fails. A Bind
// that returns nil without cancellation is treated by the host as an
// unexpected termination, not a success.
type Service interface {
	// Bind binds the service to addr and serves until ctx is cancelled or
	// an unrecoverable error occurs. On cancellation it must shut down
	// gracefully within the host-enforced grace period and may return nil
	// or ctx.Err().
	Bind(ctx context.Context, addr string) error
}

// Func adapts a plain function to the Service interface.
type Func func(ctx context.Context, addr string) error

func (f Func) Bind(ctx context.Context, addr string) error { return f(ctx, addr) }

// Entrypoint is the fixed construct-and-run factory shape a compiled unit
// exports under EntrypointSymbol.
//
// Build may issue any number of resource requests against the factory
// before returning the constructed service. The host calls Build at most
// once per service instance.
type Entrypoint struct {
	// Version must be set to EntrypointVersion at build time.
	Version int

	// Build constructs the service from provisioned resources.
	Build func(ctx context.Context, factory resource.Factory) (Service, error)
}
