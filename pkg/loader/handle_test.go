package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/d4ckard/shuttle/pkg/resource"
	"github.com/d4ckard/shuttle/pkg/service"
)

const testTimeout = 5 * time.Second

// stagingFactory provisions through the built-in registry with env=staging.
func stagingFactory(t *testing.T) resource.Factory {
	t.Helper()
	vars := resource.Vars{Project: "hello-api", Environment: "staging"}
	return resource.NewFactory(resource.DefaultRegistry(vars, t.TempDir()), vars)
}

func mustUnit(t *testing.T, ep service.Entrypoint) *Unit {
	t.Helper()
	u, err := FromEntrypoint("hello-api", ep)
	if err != nil {
		t.Fatalf("FromEntrypoint: %v", err)
	}
	return u
}

func waitTerminal(t *testing.T, h *Handle) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	state, _ := h.Wait(ctx)
	if !state.Terminal() {
		t.Fatalf("handle did not reach a terminal state, still %v", state)
	}
	return state
}

func TestConstructThenServeThenStop(t *testing.T) {
	var bound atomic.Value // string

	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(ctx context.Context, factory resource.Factory) (service.Service, error) {
			payload, err := factory.Provision(ctx, "database", map[string]string{"url": "{env}-db"})
			if err != nil {
				return nil, err
			}
			if string(payload) != "staging-db" {
				return nil, errors.New("unexpected connection payload " + string(payload))
			}
			return service.Func(func(ctx context.Context, addr string) error {
				bound.Store(addr)
				<-ctx.Done()
				return nil
			}), nil
		},
	}

	h := mustUnit(t, ep).Start(context.Background(), stagingFactory(t), "127.0.0.1:8080")

	// Wait until the service actually occupies the address.
	deadline := time.After(testTimeout)
	for bound.Load() == nil {
		select {
		case <-deadline:
			t.Fatal("service never bound")
		case <-time.After(time.Millisecond):
		}
	}
	if h.State() != StateServing {
		t.Fatalf("expected serving state, got %v", h.State())
	}
	if got := bound.Load().(string); got != "127.0.0.1:8080" {
		t.Errorf("bound to wrong address: %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	state, err := h.Stop(ctx)
	if err != nil {
		t.Fatalf("stop returned error: %v", err)
	}
	if state != StateStopped {
		t.Errorf("expected stopped, got %v", state)
	}
	if h.Forced() {
		t.Error("graceful stop must not be marked forced")
	}
}

func TestConstructFailureCrashes(t *testing.T) {
	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(ctx context.Context, factory resource.Factory) (service.Service, error) {
			return nil, errors.New("no database for you")
		},
	}

	h := mustUnit(t, ep).Start(context.Background(), stagingFactory(t), "127.0.0.1:0")

	if state := waitTerminal(t, h); state != StateCrashed {
		t.Fatalf("expected crashed, got %v", state)
	}

	var ce *ConstructError
	if !errors.As(h.Err(), &ce) {
		t.Fatalf("expected *ConstructError, got %v", h.Err())
	}
	if ce.Unit != "hello-api" {
		t.Errorf("error lacks unit context: %v", ce)
	}
}

func TestProvisioningErrorSurfaces(t *testing.T) {
	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(ctx context.Context, factory resource.Factory) (service.Service, error) {
			return nil, wrapProvision(factory.Provision(ctx, "unknown-kind", nil))
		},
	}

	h := mustUnit(t, ep).Start(context.Background(), stagingFactory(t), "127.0.0.1:0")
	waitTerminal(t, h)

	if !errors.Is(h.Err(), resource.ErrProvisioning) {
		t.Fatalf("expected provisioning error in crash cause, got %v", h.Err())
	}
	var unknown *resource.UnknownKindError
	if !errors.As(h.Err(), &unknown) || unknown.Kind != "unknown-kind" {
		t.Fatalf("crash cause should identify the unknown kind: %v", h.Err())
	}
}

func wrapProvision(_ []byte, err error) error { return err }

func TestCancelDuringConstructionNeverBinds(t *testing.T) {
	constructing := make(chan struct{})
	release := make(chan struct{})
	var bound atomic.Bool

	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(ctx context.Context, factory resource.Factory) (service.Service, error) {
			close(constructing)
			<-release
			return service.Func(func(ctx context.Context, addr string) error {
				bound.Store(true)
				<-ctx.Done()
				return nil
			}), nil
		},
	}

	h := mustUnit(t, ep).Start(context.Background(), stagingFactory(t), "127.0.0.1:8080")
	<-constructing

	// Request the stop while construction is still in flight, then let
	// construction finish.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_, _ = h.Stop(ctx)
	}()

	// Give the cancellation time to land before construction completes.
	time.Sleep(10 * time.Millisecond)
	close(release)

	if state := waitTerminal(t, h); state != StateStopped {
		t.Fatalf("expected stopped, got %v (err=%v)", state, h.Err())
	}
	if bound.Load() {
		t.Fatal("service bound an address despite cancellation before serving")
	}
	if h.Err() != nil {
		t.Errorf("requested stop must not record an error, got %v", h.Err())
	}
}

func TestServeFailureCrashes(t *testing.T) {
	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(context.Context, resource.Factory) (service.Service, error) {
			return service.Func(func(context.Context, string) error {
				return errors.New("address already in use")
			}), nil
		},
	}

	h := mustUnit(t, ep).Start(context.Background(), stagingFactory(t), "127.0.0.1:8080")

	if state := waitTerminal(t, h); state != StateCrashed {
		t.Fatalf("expected crashed, got %v", state)
	}
	var se *ServeError
	if !errors.As(h.Err(), &se) {
		t.Fatalf("expected *ServeError, got %v", h.Err())
	}
	if se.Addr != "127.0.0.1:8080" {
		t.Errorf("serve error lacks address context: %v", se)
	}
}

func TestCleanReturnIsACrash(t *testing.T) {
	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(context.Context, resource.Factory) (service.Service, error) {
			// Returns immediately without error and without being asked to.
			return service.Func(func(context.Context, string) error { return nil }), nil
		},
	}

	h := mustUnit(t, ep).Start(context.Background(), stagingFactory(t), "127.0.0.1:0")

	if state := waitTerminal(t, h); state != StateCrashed {
		t.Fatalf("expected crashed, got %v", state)
	}
	if !errors.Is(h.Err(), ErrUnexpectedExit) {
		t.Fatalf("expected ErrUnexpectedExit, got %v", h.Err())
	}
}

func TestStopIdempotent(t *testing.T) {
	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(context.Context, resource.Factory) (service.Service, error) {
			return service.Func(func(ctx context.Context, _ string) error {
				<-ctx.Done()
				return nil
			}), nil
		},
	}

	h := mustUnit(t, ep).Start(context.Background(), stagingFactory(t), "127.0.0.1:0")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	first, err := h.Stop(ctx)
	if err != nil {
		t.Fatalf("first stop: %v", err)
	}
	second, err := h.Stop(ctx)
	if err != nil {
		t.Fatalf("second stop errored: %v", err)
	}
	if first != second || second != StateStopped {
		t.Errorf("stop must be idempotent: first=%v second=%v", first, second)
	}
}

func TestForcedStopAfterGracePeriod(t *testing.T) {
	stubborn := make(chan struct{})
	defer close(stubborn)

	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(context.Context, resource.Factory) (service.Service, error) {
			return service.Func(func(ctx context.Context, _ string) error {
				// Ignores cancellation entirely.
				<-stubborn
				return nil
			}), nil
		},
	}

	h := mustUnit(t, ep).Start(context.Background(), stagingFactory(t), "127.0.0.1:0")

	// Let it reach serving before stopping.
	deadline := time.After(testTimeout)
	for h.State() != StateServing {
		select {
		case <-deadline:
			t.Fatal("never reached serving")
		case <-time.After(time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	state, err := h.Stop(ctx)

	if !errors.Is(err, ErrForcedStop) {
		t.Fatalf("expected ErrForcedStop, got %v", err)
	}
	if state != StateStopped {
		t.Errorf("forced stop must still report stopped, got %v", state)
	}
	if !h.Forced() {
		t.Error("handle should be marked forced")
	}
}

func TestCrashedHelper(t *testing.T) {
	if !Crashed(&ConstructError{Unit: "u", Err: errors.New("x")}) {
		t.Error("ConstructError should count as crashed")
	}
	if !Crashed(&ServeError{Unit: "u", Err: errors.New("x")}) {
		t.Error("ServeError should count as crashed")
	}
	if Crashed(context.Canceled) {
		t.Error("cancellation is not a crash")
	}
}
