// Package resource implements the host-side resource provisioning protocol.
//
// During construction a service issues resource requests against a Factory:
// "provision a resource of kind K with configuration C". The factory
// resolves the kind through an open registry of provisioners, renders
// templated configuration fields from deployment-scoped variables, and
// returns backend-specific connection data that only the requesting service
// interprets.
package resource

import (
	"context"

	"github.com/d4ckard/shuttle/internal/logger"
)

// Factory is the provisioning interface handed to a service during
// construction. Implementations must be safe for concurrent use: a service
// may request several resources in any order or in parallel.
type Factory interface {
	// Provision resolves kind to a backend, renders templated config fields
	// and returns an opaque connection payload. It fails with a typed error:
	// *UnknownKindError, *TemplateError or *BackendError, all matching
	// ErrProvisioning.
	Provision(ctx context.Context, kind string, config map[string]string) ([]byte, error)
}

// LocalFactory provisions resources through an in-process registry.
//
// The factory is read-shared across all provisioning calls of one
// construction: the registry and variables are fixed at creation and no
// call mutates factory state observable to other calls. One factory serves
// exactly one service construction; resources never leak across units.
type LocalFactory struct {
	registry *Registry
	vars     Vars
}

// NewFactory creates a factory over the given registry and deployment vars.
func NewFactory(registry *Registry, vars Vars) *LocalFactory {
	return &LocalFactory{registry: registry, vars: vars}
}

// Provision implements Factory.
func (f *LocalFactory) Provision(ctx context.Context, kind string, config map[string]string) ([]byte, error) {
	provisioner, ok := f.registry.Get(kind)
	if !ok {
		return nil, &UnknownKindError{Kind: kind, Registered: f.registry.Kinds()}
	}

	rendered, err := RenderConfig(config, f.vars)
	if err != nil {
		return nil, err
	}

	payload, err := provisioner.Provision(ctx, rendered)
	if err != nil {
		return nil, &BackendError{Kind: kind, Err: err}
	}

	logger.Debug("Resource provisioned", "kind", kind, "project", f.vars.Project)
	return payload, nil
}
