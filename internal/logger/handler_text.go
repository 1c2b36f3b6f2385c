package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ANSI escape sequences used by the text handler.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// TextHandler is a slog.Handler producing single-line key=value records,
// colored when the output is an interactive terminal.
type TextHandler struct {
	opts  *slog.HandlerOptions
	w     io.Writer
	mu    *sync.Mutex
	attrs []slog.Attr
	group string
	color bool
}

// NewTextHandler creates a text handler writing to w.
func NewTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *TextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &TextHandler{opts: opts, w: w, mu: &sync.Mutex{}, color: color}
}

func (h *TextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle renders the record into a local buffer; the mutex only covers the
// final write.
func (h *TextHandler) Handle(_ context.Context, r slog.Record) error {
	var buf []byte
	stamp := r.Time.Format("2006-01-02 15:04:05.000")
	if h.color {
		buf = fmt.Appendf(buf, "%s%s%s %s %s", ansiGray, stamp, ansiReset, h.levelTag(r.Level), r.Message)
	} else {
		buf = fmt.Appendf(buf, "%s %s %s", stamp, h.levelTag(r.Level), r.Message)
	}

	for _, attr := range h.attrs {
		buf = h.appendAttr(buf, attr)
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

// levelTag returns the fixed-width level marker so messages line up.
func (h *TextHandler) levelTag(level slog.Level) string {
	var tag, color string
	switch {
	case level < slog.LevelInfo:
		tag, color = "DEBUG", ansiGray
	case level < slog.LevelWarn:
		tag, color = "INFO ", ansiGreen
	case level < slog.LevelError:
		tag, color = "WARN ", ansiYellow
	default:
		tag, color = "ERROR", ansiRed
	}
	if !h.color {
		return tag
	}
	return color + tag + ansiReset
}

func (h *TextHandler) appendAttr(buf []byte, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	a.Value = a.Value.Resolve()

	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	val := renderValue(a.Value)
	if h.color {
		return fmt.Appendf(buf, " %s%s%s=%s", ansiCyan, key, ansiReset, val)
	}
	return fmt.Appendf(buf, " %s=%s", key, val)
}

// renderValue formats a value for the single-line record, quoting strings
// that would break the key=value layout.
func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.String()
	}
}

// WithAttrs returns a handler that prepends attrs to every record.
func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup returns a handler that prefixes attr keys with the group name.
func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}
