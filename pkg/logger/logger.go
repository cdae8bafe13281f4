// Package logger builds the process-wide slog logger and carries it through
// context.Context. Field helpers keep attribute keys consistent across packages.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Format is "json" or "text".
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
	// AddSource adds file:line to every record.
	AddSource bool
}

// ParseLevel parses a level name into slog.Level.
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

// New создаёт логгер: JSON в продакшене, текст для разработки.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ═══════════════════════════════════════════════════════════════════════════
// Context propagation
// ═══════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ═══════════════════════════════════════════════════════════════════════════
// Domain attributes
// ═══════════════════════════════════════════════════════════════════════════

func AccountID(id string) slog.Attr     { return slog.String("account_id", id) }
func TelegramID(id int64) slog.Attr     { return slog.Int64("telegram_id", id) }
func RequestID(id string) slog.Attr     { return slog.String("request_id", id) }
func Amount(n int64) slog.Attr          { return slog.Int64("amount", n) }
func Level(n int) slog.Attr             { return slog.Int("level", n) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }
func Err(err error) slog.Attr           { return slog.Any("error", err) }
