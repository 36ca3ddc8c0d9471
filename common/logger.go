package common

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs the logger shared by the engine and every renderer package.
// Passing nil restores the silent default.
//
// Log levels used by the engine:
//   - [slog.LevelDebug]: per-resource diagnostics (pipelines built, descriptor sets flushed)
//   - [slog.LevelInfo]: lifecycle events (device created, swapchain recreated, scene registered)
//   - [slog.LevelWarn]: recoverable failures (shader reload rejected, frame skipped)
//   - [slog.LevelError]: failures that end the render loop
//
// Parameters:
//   - l: the logger to install, or nil to disable logging
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current engine logger. Safe for concurrent use.
//
// Returns:
//   - *slog.Logger: the installed logger, never nil
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
