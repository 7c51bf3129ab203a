// Package runner supervises the end-to-end lifecycle of one service unit:
// build, load, serve, and the reload cycle across generations.
//
// Each Runner owns exactly one unit and holds exclusive mutation rights
// over its state machine; there is no process-global supervisor state.
// Reload is all-or-nothing: a failed build or load leaves the running
// generation untouched.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d4ckard/shuttle/internal/logger"
	"github.com/d4ckard/shuttle/pkg/builder"
	"github.com/d4ckard/shuttle/pkg/loader"
	"github.com/d4ckard/shuttle/pkg/resource"
)

// DefaultGracePeriod bounds how long a service gets to shut down
// cooperatively before the runner abandons it.
const DefaultGracePeriod = 10 * time.Second

// State is the supervisor-level lifecycle state of a unit.
type State string

const (
	// StateIdle means the unit has never been started.
	StateIdle State = "idle"
	// StateBuilding means the toolchain is producing a new artifact.
	StateBuilding State = "building"
	// StateLoaded means an artifact is loaded but not yet serving.
	StateLoaded State = "loaded"
	// StateRunning means the current generation is serving.
	StateRunning State = "running"
	// StateReloading means a new generation is being prepared while the
	// current one keeps serving.
	StateReloading State = "reloading"
	// StateStopped means the unit was stopped on request.
	StateStopped State = "stopped"
	// StateCrashed means the current generation terminated on its own.
	StateCrashed State = "crashed"
)

// Status is a point-in-time snapshot of a supervised unit.
type Status struct {
	Project    string `json:"project"`
	State      State  `json:"state"`
	Generation string `json:"generation,omitempty"`
	Address    string `json:"address"`
	Error      string `json:"error,omitempty"`
}

// UnitBuilder produces build artifacts from a source tree and disposes of
// superseded ones.
type UnitBuilder interface {
	Build(ctx context.Context, sourceRoot string) (*builder.Artifact, error)
	Invalidate(artifact *builder.Artifact) error
}

// LoadFunc resolves a built artifact into a startable unit.
type LoadFunc func(artifact *builder.Artifact) (*loader.Unit, error)

// Config configures a Runner.
type Config struct {
	// Project is the validated project name.
	Project string

	// SourceRoot is the unit's source directory.
	SourceRoot string

	// Address is the network address assigned to the unit. Exactly one
	// generation occupies it at a time.
	Address string

	// Environment names the deployment environment ("staging", ...).
	Environment string

	// Secrets are the user-declared deployment secrets.
	Secrets map[string]string

	// WorkDir is the per-project directory for filesystem-backed resources.
	WorkDir string

	// GracePeriod bounds graceful shutdown. Zero means DefaultGracePeriod.
	GracePeriod time.Duration
}

// Runner supervises one unit across its generations.
type Runner struct {
	cfg     Config
	builder UnitBuilder
	load    LoadFunc
	vars    resource.Vars
	metrics *Metrics

	// opMu serializes Start, Stop and Reload. State reads go through mu so
	// Status never blocks behind a build.
	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	handle   *loader.Handle
	artifact *builder.Artifact
	lastErr  error
}

// New creates a runner for one unit. By default artifacts are loaded as Go
// plugins; tests and embedded deployments override this with SetLoadFunc.
func New(cfg Config, b UnitBuilder) *Runner {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}

	// Deployment-scoped variables are fixed for the runner's lifetime, so
	// provisioned credentials survive reloads.
	vars := resource.Vars{
		Project:     cfg.Project,
		Environment: cfg.Environment,
		Password:    uuid.NewString(),
		Secrets:     cfg.Secrets,
	}

	return &Runner{
		cfg:     cfg,
		builder: b,
		vars:    vars,
		state:   StateIdle,
		load: func(a *builder.Artifact) (*loader.Unit, error) {
			return loader.Load(a.UnitName, a.Path)
		},
	}
}

// SetLoadFunc replaces the artifact loading strategy.
// Must be called before Start.
func (r *Runner) SetLoadFunc(load LoadFunc) { r.load = load }

// SetMetrics attaches prometheus instrumentation.
// Must be called before Start.
func (r *Runner) SetMetrics(m *Metrics) { r.metrics = m }

// Start builds, loads and serves the unit's first generation.
//
// A build or load failure is returned to the caller and leaves the runner
// in its previous state; nothing is torn down.
func (r *Runner) Start(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	if r.state == StateRunning || r.state == StateReloading {
		r.mu.Unlock()
		return fmt.Errorf("unit %q is already running", r.cfg.Project)
	}
	previous := r.state
	r.setStateLocked(StateBuilding)
	r.mu.Unlock()

	artifact, unit, err := r.buildAndLoad(ctx)
	if err != nil {
		r.mu.Lock()
		r.setStateLocked(previous)
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.setStateLocked(StateLoaded)
	r.startLocked(artifact, unit)
	r.mu.Unlock()
	return nil
}

// Stop gracefully stops the current generation. Stopping an already
// stopped unit is a no-op.
func (r *Runner) Stop(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	handle := r.handle
	r.mu.Unlock()

	if handle == nil {
		return nil
	}

	r.stopHandle(ctx, handle)

	r.mu.Lock()
	// A handle that crashed before the stop request keeps its crash state.
	if r.handle == handle && handle.State() == loader.StateStopped {
		r.setStateLocked(StateStopped)
	}
	r.mu.Unlock()
	return nil
}

// Reload builds and loads a new generation, then swaps it in.
//
// The currently serving generation keeps running until the new one is
// built and loaded; if either step fails the old generation is untouched
// and the error is returned. On success the old handle is stopped within
// the grace period, its artifact invalidated, and the new generation
// started. The unit's address is never occupied by two generations at
// once.
func (r *Runner) Reload(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	if r.state != StateRunning && r.state != StateCrashed {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("cannot reload unit in state %q", state)
	}
	previous := r.state
	oldHandle := r.handle
	oldArtifact := r.artifact
	r.setStateLocked(StateReloading)
	r.mu.Unlock()

	artifact, unit, err := r.buildAndLoad(ctx)
	if err != nil {
		// All-or-nothing: the old generation keeps serving.
		r.mu.Lock()
		r.setStateLocked(previous)
		r.mu.Unlock()
		r.observeReload("failure")
		return err
	}

	if oldHandle != nil {
		r.stopHandle(ctx, oldHandle)
	}
	if oldArtifact != nil {
		if err := r.builder.Invalidate(oldArtifact); err != nil {
			logger.Warn("Failed to invalidate superseded artifact", "error", err)
		}
	}

	r.mu.Lock()
	r.startLocked(artifact, unit)
	r.mu.Unlock()

	r.observeReload("success")
	logger.Info("Reloaded unit", "project", r.cfg.Project, "generation", artifact.Generation)
	return nil
}

// Status returns a snapshot of the unit's lifecycle state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		Project: r.cfg.Project,
		State:   r.state,
		Address: r.cfg.Address,
	}
	if r.artifact != nil {
		s.Generation = r.artifact.Generation
	}
	if r.lastErr != nil {
		s.Error = r.lastErr.Error()
	}
	return s
}

// buildAndLoad produces and loads a fresh generation without touching the
// runner's active handle.
func (r *Runner) buildAndLoad(ctx context.Context) (*builder.Artifact, *loader.Unit, error) {
	start := time.Now()
	artifact, err := r.builder.Build(ctx, r.cfg.SourceRoot)
	if err != nil {
		r.observeBuild("failure", time.Since(start))
		return nil, nil, err
	}
	r.observeBuild("success", time.Since(start))

	unit, err := r.load(artifact)
	if err != nil {
		return nil, nil, err
	}
	return artifact, unit, nil
}

// startLocked starts the unit and begins observing its handle.
// Caller must hold mu.
func (r *Runner) startLocked(artifact *builder.Artifact, unit *loader.Unit) {
	factory := resource.NewFactory(resource.DefaultRegistry(r.vars, r.cfg.WorkDir), r.vars)
	handle := unit.Start(context.Background(), factory, r.cfg.Address)

	r.handle = handle
	r.artifact = artifact
	r.lastErr = nil
	r.setStateLocked(StateRunning)

	go r.observe(handle)
}

// observe waits for the handle's terminal event and records crashes. The
// terminal event of a superseded handle (stopped during reload) is ignored.
func (r *Runner) observe(handle *loader.Handle) {
	<-handle.Done()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != handle || (r.state != StateRunning && r.state != StateLoaded) {
		return
	}
	if handle.State() == loader.StateCrashed {
		r.lastErr = handle.Err()
		r.setStateLocked(StateCrashed)
	} else {
		r.setStateLocked(StateStopped)
	}
}

// stopHandle cancels the handle and waits at most the grace period.
func (r *Runner) stopHandle(ctx context.Context, handle *loader.Handle) {
	stopCtx, cancel := context.WithTimeout(ctx, r.cfg.GracePeriod)
	defer cancel()

	if _, err := handle.Stop(stopCtx); err != nil {
		logger.Warn("Forced stop", "project", r.cfg.Project, "error", err)
	}
}

// setStateLocked transitions the state machine. Caller must hold mu.
func (r *Runner) setStateLocked(state State) {
	if r.state == state {
		return
	}
	logger.Debug("Unit state transition", "project", r.cfg.Project,
		"from", string(r.state), "to", string(state))
	r.state = state
	if r.metrics != nil {
		r.metrics.SetState(state)
	}
}

func (r *Runner) observeBuild(result string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveBuild(result, d)
	}
}

func (r *Runner) observeReload(result string) {
	if r.metrics != nil {
		r.metrics.ObserveReload(result)
	}
}
