package loader

import (
	"errors"
	"fmt"
)

// Load failure causes. A *LoadError wraps exactly one of these (or the
// underlying plugin error for missing/malformed artifacts) so callers can
// tell them apart with errors.Is.
var (
	// ErrBadEntrypoint marks an artifact whose exported entrypoint symbol is
	// missing or has the wrong shape.
	ErrBadEntrypoint = errors.New("artifact does not export a valid entrypoint")

	// ErrVersionMismatch marks an artifact built against a different
	// entrypoint contract version than this host expects.
	ErrVersionMismatch = errors.New("entrypoint contract version mismatch")
)

// Termination causes surfaced through a crashed handle.
var (
	// ErrUnexpectedExit marks a service whose Bind returned without error
	// and without being asked to stop. Long-running services never finish
	// on their own, so a clean return is a termination, not a success.
	ErrUnexpectedExit = errors.New("service exited unexpectedly")

	// ErrForcedStop is returned by Stop when the service did not shut down
	// within the grace period and the host abandoned it. The handle still
	// reports Stopped, not Crashed.
	ErrForcedStop = errors.New("service abandoned after grace period expired")
)

// LoadError reports a failure to load a compiled unit. The previous
// generation of the unit, if any, is unaffected by it.
type LoadError struct {
	Unit string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load unit %q from %s: %v", e.Unit, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConstructError reports a failure during the construction phase, before
// the service ever had an address. It typically wraps a provisioning error.
type ConstructError struct {
	Unit string
	Err  error
}

func (e *ConstructError) Error() string {
	return fmt.Sprintf("unit %q failed during construction: %v", e.Unit, e.Err)
}

func (e *ConstructError) Unwrap() error { return e.Err }

// ServeError reports a failure during the serving phase.
type ServeError struct {
	Unit string
	Addr string
	Err  error
}

func (e *ServeError) Error() string {
	return fmt.Sprintf("unit %q failed while serving on %s: %v", e.Unit, e.Addr, e.Err)
}

func (e *ServeError) Unwrap() error { return e.Err }
