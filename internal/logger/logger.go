// Package logger provides structured logging using log/slog. It sets up a
// JSON handler with service-level context, optional rotated file output, and
// trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Options configures Init. Zero values log JSON to stdout only.
type Options struct {
	File       string    // rotated log file; empty disables file output
	MaxSizeMB  int       // rotate after this size (default 25)
	MaxBackups int       // rotated files kept (default 10)
	Stdout     io.Writer // defaults to os.Stdout
}

// Init creates the structured logger for service and installs it as the
// default, so slog.Info() etc. also use structured output.
func Init(service string, level slog.Level, opt Options) (*slog.Logger, error) {
	var out io.Writer = os.Stdout
	if opt.Stdout != nil {
		out = opt.Stdout
	}
	if opt.File != "" {
		if err := os.MkdirAll(filepath.Dir(opt.File), 0o755); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		w := &lumberjack.Logger{
			Filename:   opt.File,
			MaxSize:    orDefault(opt.MaxSizeMB, 25),
			MaxBackups: orDefault(opt.MaxBackups, 10),
			MaxAge:     14,
			Compress:   true,
		}
		out = io.MultiWriter(out, w)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)
	return logger, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel maps "debug", "info", "warn" and "error" to a level. Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID builds "{token}-{unixNano}".
func GenerateTraceID(token string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", token, ts.UnixNano())
}

// FromContext returns base annotated with the context's trace ID, if any.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if tid := TraceID(ctx); tid != "" {
		return base.With(slog.String("trace_id", tid))
	}
	return base
}
