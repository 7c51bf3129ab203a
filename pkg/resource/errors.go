package resource

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProvisioning is the root of the provisioning error taxonomy. Every
// error returned by Factory.Provision matches it via errors.Is, while the
// concrete cause stays distinguishable through errors.As.
var ErrProvisioning = errors.New("resource provisioning failed")

// UnknownKindError is returned when no provisioner is registered for the
// requested resource kind.
type UnknownKindError struct {
	Kind       string
	Registered []string
}

func (e *UnknownKindError) Error() string {
	if len(e.Registered) == 0 {
		return fmt.Sprintf("unknown resource kind %q (no provisioners registered)", e.Kind)
	}
	return fmt.Sprintf("unknown resource kind %q (registered: %s)",
		e.Kind, strings.Join(e.Registered, ", "))
}

func (e *UnknownKindError) Unwrap() error { return ErrProvisioning }

// TemplateError is returned when a templated configuration value references
// a placeholder that cannot be resolved from the deployment variables.
type TemplateError struct {
	Field       string // configuration key holding the bad template
	Placeholder string // the unresolvable placeholder, without braces
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("cannot resolve placeholder {%s} in config field %q", e.Placeholder, e.Field)
}

func (e *TemplateError) Unwrap() error { return ErrProvisioning }

// BackendError wraps a failure reported by the provisioner backend itself.
type BackendError struct {
	Kind string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("provisioning %q resource: %v", e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrProvisioning }
