package builder

import (
	"fmt"
	"strings"
)

// Build stages, recorded on Error so callers can tell a toolchain failure
// from bad metadata without parsing messages.
const (
	StageMetadata = "metadata"
	StageCompile  = "compile"
	StagePublish  = "publish"
)

// Error reports a failed build. Output carries the toolchain's own
// diagnostics verbatim; the compiler's error text is what the user needs to
// see, not a paraphrase of it.
type Error struct {
	SourceRoot string
	Stage      string
	Output     string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("build failed (%s stage) for %s: %v", e.Stage, e.SourceRoot, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
