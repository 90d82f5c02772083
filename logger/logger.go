// Package logger provides the structured logging convention shared by the
// server and client engines: a package-level, atomically reconfigurable
// slog.Logger plus a small set of field-key constants so call sites log
// consistent attribute names instead of ad-hoc strings.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Config selects the logger's level and output format. Held by config.Config
// and applied once at process startup via Configure.
type Config struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

var (
	mu      sync.RWMutex
	handler slog.Handler
	current atomic.Pointer[slog.Logger]
	output  io.Writer = os.Stderr
)

func init() {
	Configure(Config{Level: "info", Format: "text"})
}

// Configure rebuilds the package-level logger from cfg. Safe to call
// concurrently with logging calls; in-flight log calls use whichever
// logger was current when they started.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	current.Store(slog.New(handler))
}

// SetOutput redirects future Configure calls to w (tests use this to
// capture output). Call before Configure.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	l := current.Load()
	if l == nil {
		return slog.Default()
	}
	return l
}

// Debug, Info, Warn, and Error log at the matching level through the
// package-level logger using slog's key/value attribute pairs.
func Debug(msg string, args ...any) { get().Debug(msg, args...) }
func Info(msg string, args ...any)  { get().Info(msg, args...) }
func Warn(msg string, args ...any)  { get().Warn(msg, args...) }
func Error(msg string, args ...any) { get().Error(msg, args...) }

// DebugCtx, InfoCtx, WarnCtx, and ErrorCtx attach OpContext fields (if
// present on ctx) before logging.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	get().DebugContext(ctx, msg, withOpFields(ctx, args)...)
}
func InfoCtx(ctx context.Context, msg string, args ...any) {
	get().InfoContext(ctx, msg, withOpFields(ctx, args)...)
}
func WarnCtx(ctx context.Context, msg string, args ...any) {
	get().WarnContext(ctx, msg, withOpFields(ctx, args)...)
}
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	get().ErrorContext(ctx, msg, withOpFields(ctx, args)...)
}

func withOpFields(ctx context.Context, args []any) []any {
	op := FromContext(ctx)
	if op == nil {
		return args
	}
	extra := []any{KeyPeerID, op.PeerID, KeyOperation, op.Operation}
	if op.TraceID != "" {
		extra = append(extra, KeyTraceID, op.TraceID)
	}
	return append(extra, args...)
}
