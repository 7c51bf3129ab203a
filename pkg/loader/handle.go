package loader

import (
	"context"
	"errors"
	"sync"

	"github.com/d4ckard/shuttle/internal/logger"
	"github.com/d4ckard/shuttle/pkg/resource"
	"github.com/d4ckard/shuttle/pkg/service"
)

// State is the lifecycle state of a started unit.
type State int

const (
	// StateConstructing means the unit's Build is running.
	StateConstructing State = iota
	// StateServing means the service holds its address.
	StateServing
	// StateStopped is terminal: the service stopped because it was asked to.
	StateStopped
	// StateCrashed is terminal: construction or serving failed, or the
	// service terminated without being asked to.
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateServing:
		return "serving"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool { return s == StateStopped || s == StateCrashed }

// Handle is one live service instance.
//
// A handle owns a single cooperative cancellation signal and produces
// exactly one terminal event: Stopped, or Crashed with a captured error.
// No transition is possible after a terminal state is reached.
type Handle struct {
	unit string
	addr string

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	state  State
	err    error
	forced bool
}

// Start runs construct-then-serve as one logical operation and returns the
// live handle immediately. The factory is used only during construction;
// addr is the address the service must occupy while serving.
//
// Sequencing guarantees:
//   - Build always completes (either way) before Bind is invoked.
//   - A cancellation delivered during construction is honored before any
//     network binding occurs: the handle transitions to Stopped instead of
//     entering Serving.
//   - Bind is invoked at most once.
func (u *Unit) Start(ctx context.Context, factory resource.Factory, addr string) *Handle {
	runCtx, cancel := context.WithCancel(ctx)

	h := &Handle{
		unit:   u.name,
		addr:   addr,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateConstructing,
	}

	go h.run(runCtx, u.entrypoint, factory)
	return h
}

func (h *Handle) run(ctx context.Context, ep service.Entrypoint, factory resource.Factory) {
	logger.Debug("Constructing service", "unit", h.unit)

	svc, err := ep.Build(ctx, factory)
	if err != nil {
		if ctx.Err() != nil {
			// Construction was interrupted by cancellation, not by a real
			// provisioning failure.
			h.terminate(StateStopped, nil)
			return
		}
		h.terminate(StateCrashed, &ConstructError{Unit: h.unit, Err: err})
		return
	}

	// A stop requested while constructing must win over serving.
	if ctx.Err() != nil {
		h.terminate(StateStopped, nil)
		return
	}

	h.mu.Lock()
	if h.state.Terminal() {
		// Forced stop already abandoned this handle.
		h.mu.Unlock()
		return
	}
	h.state = StateServing
	h.mu.Unlock()

	logger.Info("Service serving", "unit", h.unit, "addr", h.addr)

	err = svc.Bind(ctx, h.addr)
	switch {
	case ctx.Err() != nil:
		// Asked to stop. The service's own return value does not turn a
		// requested shutdown into a crash.
		h.terminate(StateStopped, nil)
	case err != nil:
		h.terminate(StateCrashed, &ServeError{Unit: h.unit, Addr: h.addr, Err: err})
	default:
		h.terminate(StateCrashed, &ServeError{Unit: h.unit, Addr: h.addr, Err: ErrUnexpectedExit})
	}
}

// terminate performs the single terminal transition. Later calls are no-ops,
// so a forced stop and a late goroutine exit cannot both fire.
func (h *Handle) terminate(state State, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return
	}
	h.state = state
	h.err = err
	close(h.done)

	switch state {
	case StateStopped:
		logger.Info("Service stopped", "unit", h.unit)
	case StateCrashed:
		logger.Error("Service crashed", "unit", h.unit, "error", err)
	}
}

// Stop requests a graceful shutdown and waits for the terminal event.
//
// If the handle is already terminal, Stop is a no-op returning the existing
// terminal state. If the service does not terminate before ctx expires, the
// handle is abandoned: it transitions to Stopped and Stop returns
// ErrForcedStop so the caller can log the forced stop distinctly.
func (h *Handle) Stop(ctx context.Context) (State, error) {
	h.mu.Lock()
	if h.state.Terminal() {
		state := h.state
		h.mu.Unlock()
		return state, nil
	}
	h.mu.Unlock()

	h.cancel()

	select {
	case <-h.done:
		return h.State(), nil
	case <-ctx.Done():
		h.mu.Lock()
		if !h.state.Terminal() {
			h.forced = true
			h.state = StateStopped
			h.err = ErrForcedStop
			close(h.done)
			logger.Warn("Service did not stop in time, abandoning", "unit", h.unit)
		}
		state := h.state
		h.mu.Unlock()
		return state, ErrForcedStop
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the captured terminal error: the crash cause, or
// ErrForcedStop when the handle was abandoned after the grace period.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Forced reports whether the handle was abandoned after the grace period.
func (h *Handle) Forced() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.forced
}

// Addr returns the address assigned to this instance.
func (h *Handle) Addr() string { return h.addr }

// Unit returns the unit name this handle belongs to.
func (h *Handle) Unit() string { return h.unit }

// Done returns a channel closed on the terminal event.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the terminal event or ctx expiry.
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.State(), h.Err()
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

// Crashed reports whether err, or the handle's terminal error, represents a
// construction or serving failure (as opposed to a requested stop).
func Crashed(err error) bool {
	var ce *ConstructError
	var se *ServeError
	return errors.As(err, &ce) || errors.As(err, &se)
}
