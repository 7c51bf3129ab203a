package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/d4ckard/shuttle/pkg/builder"
	"github.com/d4ckard/shuttle/pkg/loader"
	"github.com/d4ckard/shuttle/pkg/resource"
	"github.com/d4ckard/shuttle/pkg/service"
)

const testTimeout = 5 * time.Second

// stubBuilder hands out fake artifacts without touching the toolchain.
type stubBuilder struct {
	mu          sync.Mutex
	builds      int
	invalidated []string
	fail        error
}

func (b *stubBuilder) Build(context.Context, string) (*builder.Artifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	b.builds++
	gen := fmt.Sprintf("gen-%d", b.builds)
	return &builder.Artifact{
		UnitName:   "hello-api",
		Path:       "/artifacts/hello-api-" + gen + ".so",
		Generation: gen,
		BuiltAt:    time.Now(),
	}, nil
}

func (b *stubBuilder) Invalidate(artifact *builder.Artifact) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidated = append(b.invalidated, artifact.Generation)
	return nil
}

func (b *stubBuilder) setFail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

// wellBehaved is a service that serves until cancelled and counts how many
// instances hold the address at once.
type wellBehaved struct {
	serving atomic.Int32
	overlap atomic.Bool
}

func (s *wellBehaved) entrypoint() service.Entrypoint {
	return service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(context.Context, resource.Factory) (service.Service, error) {
			return service.Func(func(ctx context.Context, _ string) error {
				if s.serving.Add(1) > 1 {
					s.overlap.Store(true)
				}
				defer s.serving.Add(-1)
				<-ctx.Done()
				return nil
			}), nil
		},
	}
}

func loadFrom(ep service.Entrypoint) LoadFunc {
	return func(a *builder.Artifact) (*loader.Unit, error) {
		return loader.FromEntrypoint(a.UnitName, ep)
	}
}

func newTestRunner(t *testing.T, b UnitBuilder, ep service.Entrypoint) *Runner {
	t.Helper()
	r := New(Config{
		Project:     "hello-api",
		SourceRoot:  t.TempDir(),
		Address:     "127.0.0.1:8080",
		Environment: "staging",
		WorkDir:     t.TempDir(),
		GracePeriod: time.Second,
	}, b)
	r.SetLoadFunc(loadFrom(ep))
	return r
}

func waitForState(t *testing.T, r *Runner, want State) Status {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		st := r.Status()
		if st.State == want {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("unit never reached state %q, stuck in %q (err=%q)", want, st.State, st.Error)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestStartStopLifecycle(t *testing.T) {
	svc := &wellBehaved{}
	r := newTestRunner(t, &stubBuilder{}, svc.entrypoint())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	st := r.Status()
	if st.State != StateRunning {
		t.Fatalf("expected running, got %q", st.State)
	}
	if st.Generation != "gen-1" {
		t.Errorf("unexpected generation: %q", st.Generation)
	}
	if st.Address != "127.0.0.1:8080" {
		t.Errorf("unexpected address: %q", st.Address)
	}

	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	waitForState(t, r, StateStopped)

	t.Run("stop is idempotent", func(t *testing.T) {
		if err := r.Stop(context.Background()); err != nil {
			t.Errorf("second stop errored: %v", err)
		}
		if st := r.Status(); st.State != StateStopped {
			t.Errorf("state changed on repeated stop: %q", st.State)
		}
	})
}

func TestStartTwiceFails(t *testing.T) {
	svc := &wellBehaved{}
	r := newTestRunner(t, &stubBuilder{}, svc.entrypoint())

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Stop(context.Background()) }()

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error starting a running unit")
	}
}

func TestStartBuildFailure(t *testing.T) {
	b := &stubBuilder{}
	b.setFail(&builder.Error{Stage: builder.StageCompile, Err: errors.New("syntax error")})
	svc := &wellBehaved{}
	r := newTestRunner(t, b, svc.entrypoint())

	err := r.Start(context.Background())
	var buildErr *builder.Error
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected *builder.Error, got %v", err)
	}
	if st := r.Status(); st.State != StateIdle {
		t.Errorf("failed start should leave the unit idle, got %q", st.State)
	}
}

func TestStartLoadFailure(t *testing.T) {
	svc := &wellBehaved{}
	r := newTestRunner(t, &stubBuilder{}, svc.entrypoint())
	r.SetLoadFunc(func(a *builder.Artifact) (*loader.Unit, error) {
		return nil, &loader.LoadError{Unit: a.UnitName, Path: a.Path, Err: loader.ErrVersionMismatch}
	})

	err := r.Start(context.Background())
	if !errors.Is(err, loader.ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
	if st := r.Status(); st.State != StateIdle {
		t.Errorf("failed load should leave the unit idle, got %q", st.State)
	}
}

func TestReloadSwapsGenerations(t *testing.T) {
	b := &stubBuilder{}
	svc := &wellBehaved{}
	r := newTestRunner(t, b, svc.entrypoint())

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Stop(context.Background()) }()

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	st := r.Status()
	if st.State != StateRunning {
		t.Fatalf("expected running after reload, got %q", st.State)
	}
	if st.Generation != "gen-2" {
		t.Errorf("expected generation gen-2, got %q", st.Generation)
	}
	if svc.overlap.Load() {
		t.Error("two generations were serving the address at once")
	}

	b.mu.Lock()
	invalidated := append([]string(nil), b.invalidated...)
	b.mu.Unlock()
	if len(invalidated) != 1 || invalidated[0] != "gen-1" {
		t.Errorf("superseded artifact was not invalidated: %v", invalidated)
	}
}

func TestReloadBuildFailureKeepsOldGeneration(t *testing.T) {
	b := &stubBuilder{}
	svc := &wellBehaved{}
	r := newTestRunner(t, b, svc.entrypoint())

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Stop(context.Background()) }()

	// Wait until the first generation is actually serving.
	deadline := time.After(testTimeout)
	for svc.serving.Load() != 1 {
		select {
		case <-deadline:
			t.Fatal("first generation never started serving")
		case <-time.After(time.Millisecond):
		}
	}

	before := r.Status()
	b.setFail(&builder.Error{Stage: builder.StageCompile, Err: errors.New("broken")})

	if err := r.Reload(context.Background()); err == nil {
		t.Fatal("expected reload to fail")
	}

	after := r.Status()
	if after != before {
		t.Errorf("failed reload changed unit status: before=%+v after=%+v", before, after)
	}
	if svc.serving.Load() != 1 {
		t.Errorf("previous generation is no longer serving (count=%d)", svc.serving.Load())
	}
}

func TestReloadRequiresRunningOrCrashed(t *testing.T) {
	svc := &wellBehaved{}
	r := newTestRunner(t, &stubBuilder{}, svc.entrypoint())

	if err := r.Reload(context.Background()); err == nil {
		t.Fatal("expected reload of idle unit to fail")
	}
}

func TestCrashIsObserved(t *testing.T) {
	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(context.Context, resource.Factory) (service.Service, error) {
			return service.Func(func(context.Context, string) error {
				return errors.New("listen tcp: address already in use")
			}), nil
		},
	}
	r := newTestRunner(t, &stubBuilder{}, ep)

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := waitForState(t, r, StateCrashed)
	if st.Error == "" {
		t.Error("crashed status should carry the captured error")
	}

	t.Run("reload restarts a crashed unit", func(t *testing.T) {
		healthy := &wellBehaved{}
		r.SetLoadFunc(loadFrom(healthy.entrypoint()))
		if err := r.Reload(context.Background()); err != nil {
			t.Fatalf("reload after crash failed: %v", err)
		}
		if st := r.Status(); st.State != StateRunning {
			t.Errorf("expected running after restart, got %q", st.State)
		}
		_ = r.Stop(context.Background())
	})
}

func TestConstructCrashNeverHangs(t *testing.T) {
	ep := service.Entrypoint{
		Version: service.EntrypointVersion,
		Build: func(ctx context.Context, factory resource.Factory) (service.Service, error) {
			_, err := factory.Provision(ctx, "unknown-kind", nil)
			return nil, err
		},
	}
	r := newTestRunner(t, &stubBuilder{}, ep)

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := waitForState(t, r, StateCrashed)
	if st.Error == "" {
		t.Error("provisioning failure should surface in status")
	}
}
