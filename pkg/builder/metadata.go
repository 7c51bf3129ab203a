package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// packageMeta is the subset of `go list -json` output the builder needs.
type packageMeta struct {
	Name       string      `json:"Name"`
	ImportPath string      `json:"ImportPath"`
	Module     *moduleMeta `json:"Module"`
}

type moduleMeta struct {
	Path      string `json:"Path"`
	GoVersion string `json:"GoVersion"`
}

// packageMetadata queries the toolchain for the unit's package metadata.
// The builder never parses manifest files itself; `go list` owns that.
func (b *Builder) packageMetadata(ctx context.Context, sourceRoot string) (*packageMeta, error) {
	cmd := exec.CommandContext(ctx, b.goBinary, "list", "-json", ".")
	cmd.Dir = sourceRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &Error{SourceRoot: sourceRoot, Stage: StageMetadata,
			Output: stderr.String(), Err: fmt.Errorf("toolchain metadata query failed: %w", err)}
	}

	var meta packageMeta
	if err := json.NewDecoder(&stdout).Decode(&meta); err != nil {
		return nil, &Error{SourceRoot: sourceRoot, Stage: StageMetadata,
			Err: fmt.Errorf("malformed package metadata: %w", err)}
	}

	if meta.Name != "main" {
		return nil, &Error{SourceRoot: sourceRoot, Stage: StageMetadata,
			Err: fmt.Errorf("unit root package is %q, loadable units must be package main", meta.Name)}
	}
	if meta.Module == nil || meta.Module.Path == "" {
		return nil, &Error{SourceRoot: sourceRoot, Stage: StageMetadata,
			Err: errors.New("source root is not inside a Go module")}
	}

	if meta.Module.GoVersion != "" && compareGoVersions(meta.Module.GoVersion, b.goVersion) > 0 {
		return nil, &Error{SourceRoot: sourceRoot, Stage: StageMetadata,
			Err: fmt.Errorf("unit requires go %s but the toolchain provides go %s",
				meta.Module.GoVersion, b.goVersion)}
	}

	return &meta, nil
}

// compareGoVersions compares two dotted Go versions ("1.25", "1.25.3").
// Returns -1, 0 or 1. Non-numeric segments compare as zero.
func compareGoVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
