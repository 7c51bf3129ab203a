// Package builder drives compilation of user source into loadable unit
// artifacts.
//
// The builder shells out to the Go toolchain: `go list -json` for package
// metadata (unit name, required toolchain version) and `go build
// -buildmode=plugin` for the artifact itself. Each successful build yields a
// fresh generation with a unique artifact path, published atomically so the
// loader can never observe a half-written artifact.
package builder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d4ckard/shuttle/internal/logger"
)

// Artifact describes one successful build of a unit. A new artifact
// logically supersedes the previous generation of the same unit.
type Artifact struct {
	// UnitName is derived from the unit's module path.
	UnitName string

	// Path is the location of the compiled plugin artifact.
	Path string

	// Generation uniquely identifies this build.
	Generation string

	// BuiltAt is the completion time of the build.
	BuiltAt time.Time
}

// Config configures a Builder.
type Config struct {
	// GoBinary is the toolchain binary to invoke. Defaults to "go".
	GoBinary string

	// ArtifactDir is where compiled artifacts are published.
	ArtifactDir string

	// GoVersion overrides the detected toolchain version used for the
	// module compatibility check. Empty means the running toolchain.
	GoVersion string
}

// Builder compiles one unit's source tree into loadable artifacts.
//
// Builds are serialized per Builder: no two builds for the same unit run
// concurrently. Different units use different Builder instances and may
// build in parallel.
type Builder struct {
	goBinary    string
	artifactDir string
	goVersion   string

	mu sync.Mutex
}

// New creates a builder publishing artifacts into cfg.ArtifactDir.
func New(cfg Config) *Builder {
	goBinary := cfg.GoBinary
	if goBinary == "" {
		goBinary = "go"
	}
	goVersion := cfg.GoVersion
	if goVersion == "" {
		goVersion = strings.TrimPrefix(runtime.Version(), "go")
	}
	return &Builder{
		goBinary:    goBinary,
		artifactDir: cfg.ArtifactDir,
		goVersion:   goVersion,
	}
}

// Build compiles the unit rooted at sourceRoot and returns a fresh
// Artifact. Any failure is reported as a *Error with the toolchain's
// diagnostics passed through verbatim; a failed build publishes nothing.
func (b *Builder) Build(ctx context.Context, sourceRoot string) (*Artifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()

	meta, err := b.packageMetadata(ctx, sourceRoot)
	if err != nil {
		return nil, err
	}
	unitName := path.Base(meta.Module.Path)

	if err := os.MkdirAll(b.artifactDir, 0o755); err != nil {
		return nil, &Error{SourceRoot: sourceRoot, Stage: StagePublish,
			Err: fmt.Errorf("failed to create artifact directory: %w", err)}
	}

	generation := uuid.NewString()
	final := filepath.Join(b.artifactDir, fmt.Sprintf("%s-%s.so", unitName, generation))
	tmp := final + ".tmp"

	logger.Info("Building unit", "unit", unitName, "source", sourceRoot, "generation", generation)

	cmd := exec.CommandContext(ctx, b.goBinary, "build", "-buildmode=plugin", "-o", tmp, ".")
	cmd.Dir = sourceRoot

	out, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(tmp)
		return nil, &Error{SourceRoot: sourceRoot, Stage: StageCompile,
			Output: string(out), Err: fmt.Errorf("toolchain exited with error: %w", err)}
	}

	// Atomic publish: the artifact only appears under its final name once
	// it is complete.
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return nil, &Error{SourceRoot: sourceRoot, Stage: StagePublish,
			Err: fmt.Errorf("failed to publish artifact: %w", err)}
	}

	logger.Info("Build succeeded", "unit", unitName, "artifact", final,
		"duration_ms", time.Since(start).Milliseconds())

	return &Artifact{
		UnitName:   unitName,
		Path:       final,
		Generation: generation,
		BuiltAt:    time.Now(),
	}, nil
}

// Invalidate removes a superseded artifact from disk. Missing files are not
// an error; the artifact may never have been published.
func (b *Builder) Invalidate(artifact *Artifact) error {
	if artifact == nil {
		return nil
	}
	if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to invalidate artifact %s: %w", artifact.Path, err)
	}
	return nil
}
