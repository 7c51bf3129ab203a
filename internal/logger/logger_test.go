package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text")

	Info("service started", "unit", "hello-api", "port", 8080)

	out := buf.String()
	if !strings.Contains(out, "service started") {
		t.Errorf("missing message in output: %q", out)
	}
	if !strings.Contains(out, "unit=hello-api") {
		t.Errorf("missing attribute in output: %q", out)
	}
	if !strings.Contains(out, "port=8080") {
		t.Errorf("missing attribute in output: %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Warn("build slow", "duration_ms", 1500)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "build slow" {
		t.Errorf("unexpected msg field: %v", record["msg"])
	}
	if record["duration_ms"] != float64(1500) {
		t.Errorf("unexpected duration_ms field: %v", record["duration_ms"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("invisible")
	Info("also invisible")
	Error("visible")

	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Errorf("low-level records leaked through filter: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("error record was filtered out: %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "ERROR", "text")

	Info("before")
	SetLevel("DEBUG")
	Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Errorf("info record logged at ERROR level: %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Errorf("debug record missing after SetLevel: %q", out)
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	l := With("unit", "hello-api")
	l.Info("reloaded")

	if !strings.Contains(buf.String(), "unit=hello-api") {
		t.Errorf("pre-bound attribute missing: %q", buf.String())
	}
}
