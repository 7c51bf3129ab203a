package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiGray   = "\033[90m"
)

// textHandler is a compact slog.Handler for human-readable console output.
// Records render as "HH:MM:SS.mmm LEVEL message key=value ...".
type textHandler struct {
	opts  *slog.HandlerOptions
	w     io.Writer
	mu    *sync.Mutex
	attrs []slog.Attr
	color bool
}

func newTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *textHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textHandler{opts: opts, w: w, mu: &sync.Mutex{}, color: color}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = r.Time.AppendFormat(buf, "15:04:05.000")
	buf = append(buf, ' ')
	buf = append(buf, h.level(r.Level)...)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	for _, a := range h.attrs {
		buf = h.appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *textHandler) appendAttr(buf []byte, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if h.color {
		buf = fmt.Appendf(buf, " %s%s=%v%s", ansiGray, a.Key, a.Value.Resolve(), ansiReset)
	} else {
		buf = fmt.Appendf(buf, " %s=%v", a.Key, a.Value.Resolve())
	}
	return buf
}

func (h *textHandler) level(l slog.Level) string {
	var name, color string
	switch {
	case l < slog.LevelInfo:
		name, color = "DEBUG", ansiGray
	case l < slog.LevelWarn:
		name, color = "INFO ", ansiGreen
	case l < slog.LevelError:
		name, color = "WARN ", ansiYellow
	default:
		name, color = "ERROR", ansiRed
	}
	if !h.color {
		return name
	}
	return color + name + ansiReset
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

func (h *textHandler) WithGroup(string) slog.Handler {
	// Groups are flattened; the console format has no nesting.
	return h
}
