package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// spaceHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<contextID>\t<message>\t<key=value ...>
//
// contextID identifies the running client context, so interleaved lines from
// several open contexts can be told apart in the shared log file.
type spaceHandler struct {
	w         io.Writer
	contextID string
	attrs     []slog.Attr
}

func (h *spaceHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *spaceHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, level, h.contextID, r.Message)
	if err != nil {
		return err
	}

	// Write pre-set attrs.
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}

	// Write per-record attrs.
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)
	return err
}

func (h *spaceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spaceHandler{
		w:         h.w,
		contextID: h.contextID,
		attrs:     append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *spaceHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes to logDir/space.log.
// It returns the slog.Logger, the open log file (for cleanup), and any error.
func newLogger(logDir string, contextID string) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "space.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := &spaceHandler{w: f, contextID: contextID}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the space.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
