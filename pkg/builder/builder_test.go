package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeToolchain writes a shell script standing in for the go binary. The
// list subcommand prints metadata, the build subcommand writes the file
// named by -o. Extra shell appended via behavior runs first.
func fakeToolchain(t *testing.T, metadata, behavior string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-go")

	content := fmt.Sprintf(`#!/bin/sh
cmd="$1"; shift
%s
case "$cmd" in
list)
cat <<'METADATA'
%s
METADATA
;;
build)
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
printf 'fake shared object' > "$out"
;;
esac
`, behavior, metadata)

	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

const validMetadata = `{
	"Name": "main",
	"ImportPath": "example.com/hello-api",
	"Module": {"Path": "example.com/hello-api", "GoVersion": "1.21"}
}`

func newTestBuilder(t *testing.T, metadata, behavior string) *Builder {
	t.Helper()
	return New(Config{
		GoBinary:    fakeToolchain(t, metadata, behavior),
		ArtifactDir: t.TempDir(),
		GoVersion:   "1.25.0",
	})
}

func TestBuildSuccess(t *testing.T) {
	b := newTestBuilder(t, validMetadata, "")

	artifact, err := b.Build(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if artifact.UnitName != "hello-api" {
		t.Errorf("unit name should derive from module path, got %q", artifact.UnitName)
	}
	if artifact.Generation == "" {
		t.Error("artifact is missing a generation")
	}
	if artifact.BuiltAt.IsZero() {
		t.Error("artifact is missing a build timestamp")
	}

	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		t.Fatalf("published artifact unreadable: %v", err)
	}
	if string(data) != "fake shared object" {
		t.Errorf("unexpected artifact contents: %q", data)
	}
	if strings.HasSuffix(artifact.Path, ".tmp") {
		t.Errorf("artifact path still points at the temporary file: %s", artifact.Path)
	}
}

func TestBuildFreshGenerations(t *testing.T) {
	b := newTestBuilder(t, validMetadata, "")
	src := t.TempDir()

	first, err := b.Build(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}

	if first.Generation == second.Generation {
		t.Error("each build must produce a fresh generation")
	}
	if first.Path == second.Path {
		t.Error("each build must publish to a unique artifact path")
	}
}

func TestBuildCompileFailure(t *testing.T) {
	behavior := `if [ "$cmd" = "build" ]; then
echo 'hello.go:7:2: undefined: fmt.Printfln' >&2
exit 2
fi`
	b := newTestBuilder(t, validMetadata, behavior)

	_, err := b.Build(context.Background(), t.TempDir())
	var buildErr *Error
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if buildErr.Stage != StageCompile {
		t.Errorf("expected compile stage, got %q", buildErr.Stage)
	}
	// Toolchain diagnostics must come through verbatim.
	if !strings.Contains(buildErr.Output, "undefined: fmt.Printfln") {
		t.Errorf("compiler diagnostics missing from error output: %q", buildErr.Output)
	}
	if !strings.Contains(buildErr.Error(), "undefined: fmt.Printfln") {
		t.Errorf("diagnostics missing from rendered error: %q", buildErr.Error())
	}
}

func TestBuildFailurePublishesNothing(t *testing.T) {
	behavior := `if [ "$cmd" = "build" ]; then exit 1; fi`
	artifactDir := t.TempDir()
	b := New(Config{
		GoBinary:    fakeToolchain(t, validMetadata, behavior),
		ArtifactDir: artifactDir,
		GoVersion:   "1.25.0",
	})

	if _, err := b.Build(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected build failure")
	}

	entries, err := os.ReadDir(artifactDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed build left artifacts behind: %v", entries)
	}
}

func TestBuildMetadataFailure(t *testing.T) {
	behavior := `if [ "$cmd" = "list" ]; then
echo 'go: cannot find main module' >&2
exit 1
fi`
	b := newTestBuilder(t, "", behavior)

	_, err := b.Build(context.Background(), t.TempDir())
	var buildErr *Error
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if buildErr.Stage != StageMetadata {
		t.Errorf("expected metadata stage, got %q", buildErr.Stage)
	}
	if !strings.Contains(buildErr.Output, "cannot find main module") {
		t.Errorf("toolchain stderr missing: %q", buildErr.Output)
	}
}

func TestBuildMalformedMetadata(t *testing.T) {
	b := newTestBuilder(t, "this is not json", "")

	_, err := b.Build(context.Background(), t.TempDir())
	var buildErr *Error
	if !errors.As(err, &buildErr) || buildErr.Stage != StageMetadata {
		t.Fatalf("expected metadata-stage *Error, got %v", err)
	}
}

func TestBuildRejectsNonMainPackage(t *testing.T) {
	meta := `{"Name": "library", "Module": {"Path": "example.com/lib"}}`
	b := newTestBuilder(t, meta, "")

	_, err := b.Build(context.Background(), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "package main") {
		t.Fatalf("expected package-main error, got %v", err)
	}
}

func TestBuildRejectsMissingModule(t *testing.T) {
	meta := `{"Name": "main"}`
	b := newTestBuilder(t, meta, "")

	_, err := b.Build(context.Background(), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "module") {
		t.Fatalf("expected module error, got %v", err)
	}
}

func TestBuildRejectsNewerToolchainRequirement(t *testing.T) {
	meta := `{"Name": "main", "Module": {"Path": "example.com/hello-api", "GoVersion": "99.0"}}`
	b := newTestBuilder(t, meta, "")

	_, err := b.Build(context.Background(), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "requires go 99.0") {
		t.Fatalf("expected toolchain version error, got %v", err)
	}
}

func TestCompareGoVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.21", "1.25.0", -1},
		{"1.25.0", "1.25.0", 0},
		{"1.25", "1.25.0", 0},
		{"1.26", "1.25.3", 1},
		{"2.0", "1.99", 1},
	}
	for _, tt := range tests {
		if got := compareGoVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareGoVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestInvalidate(t *testing.T) {
	b := newTestBuilder(t, validMetadata, "")

	artifact, err := b.Build(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Invalidate(artifact); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, err := os.Stat(artifact.Path); !os.IsNotExist(err) {
		t.Error("artifact still present after invalidation")
	}

	t.Run("idempotent", func(t *testing.T) {
		if err := b.Invalidate(artifact); err != nil {
			t.Errorf("second invalidate errored: %v", err)
		}
	})
	t.Run("nil artifact", func(t *testing.T) {
		if err := b.Invalidate(nil); err != nil {
			t.Errorf("nil artifact errored: %v", err)
		}
	})
}
