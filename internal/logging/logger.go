// Package logging provides structured logging helpers for gh-cc-members.
//
// It wraps the standard library's log/slog with a console handler (stderr)
// and an optional file handler. The console handler is colored when stderr
// is a terminal and JSON otherwise, unless a format is forced. Attributes
// that look like credentials are redacted before they reach any handler.
// SIGPIPE is handled gracefully so piped output (e.g.
// `gh cc-members list-members | head`) does not produce noisy errors.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/m-mizutani/clog"
	"golang.org/x/term"
)

// Format selects the console log encoding.
type Format string

const (
	// FormatAuto picks FormatConsole on a terminal and FormatJSON otherwise.
	FormatAuto    Format = "auto"
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// redacted replaces the value of any sensitive attribute.
const redacted = "[REDACTED]"

// sensitiveKeys are attribute keys (lower-cased) whose values are never logged.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"authorization": true,
	"password":      true,
	"secret":        true,
}

// Options controls the behaviour of the logger returned by New.
type Options struct {
	// Level is the minimum log level. Defaults to INFO.
	Level slog.Level
	// Format is the console encoding. Defaults to FormatAuto.
	Format Format
	// Writer is the console destination. Defaults to os.Stderr.
	Writer io.Writer
	// FilePath is the optional path for a log file.  When set, a second
	// handler writes DEBUG-level logs to this file.  The parent directory
	// is created automatically.
	FilePath string
}

// New creates a new slog.Logger with a console handler and, if
// Options.FilePath is set, an additional file handler.  It also installs a
// SIGPIPE handler to exit cleanly when the output pipe is closed.
func New(opts Options) (*slog.Logger, error) {
	installSIGPIPEHandler()

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	consoleHandler := newConsoleHandler(w, opts.Level, opts.Format)

	if opts.FilePath == "" {
		return slog.New(newRedactHandler(consoleHandler)), nil
	}

	// Ensure the log directory exists.
	dir := filepath.Dir(opts.FilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return slog.New(newRedactHandler(consoleHandler)), nil // fall back to console-only
	}

	f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(newRedactHandler(consoleHandler)), nil // fall back to console-only
	}

	// File handler always logs at DEBUG for full diagnostic traces.
	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	return slog.New(newRedactHandler(newMultiHandler(consoleHandler, fileHandler))), nil
}

// newConsoleHandler builds the console handler for the requested format.
func newConsoleHandler(w io.Writer, level slog.Level, format Format) slog.Handler {
	if format == "" || format == FormatAuto {
		format = FormatJSON
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = FormatConsole
		}
	}

	switch format {
	case FormatConsole:
		return clog.New(
			clog.WithWriter(w),
			clog.WithLevel(level),
			clog.WithTimeFmt("15:04:05"),
			clog.WithSource(false),
		)
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
}

// ParseLevel converts a human-readable level string (e.g. "DEBUG", "info",
// "WARNING") into a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat converts a format name into a Format, defaulting to FormatAuto.
func ParseFormat(s string) Format {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatConsole:
		return f
	default:
		return FormatAuto
	}
}

// installSIGPIPEHandler exits cleanly when the output pipe is closed.
func installSIGPIPEHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGPIPE)
	go func() {
		<-ch
		os.Exit(0)
	}()
}

// multiHandler fans out log records to multiple slog.Handler implementations.
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(handlers ...slog.Handler) *multiHandler {
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			_ = hh.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		handlers[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		handlers[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// redactHandler masks sensitive attribute values before delegating.
type redactHandler struct {
	next slog.Handler
}

func newRedactHandler(next slog.Handler) *redactHandler {
	return &redactHandler{next: next}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &redactHandler{next: h.next.WithAttrs(clean)}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name)}
}

// redactAttr masks a; group values are walked recursively.
func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]any, len(group))
		for i, ga := range group {
			clean[i] = redactAttr(ga)
		}
		return slog.Group(a.Key, clean...)
	}
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// Ensure the handlers satisfy the slog.Handler interface at compile time.
var (
	_ slog.Handler = (*multiHandler)(nil)
	_ slog.Handler = (*redactHandler)(nil)
)

// Discard is a convenience writer that discards all output (used in tests).
var Discard io.Writer = io.Discard
