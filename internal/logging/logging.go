// Package logging builds the process-wide [slog.Logger] and carries it, with
// request, task and document attributes attached along the way, through
// context values.
//
//	LOG_LEVEL   debug | info (default) | warn | error
//	LOG_FORMAT  json (default) | text
//	LOG_SOURCE  true adds the source file and line to every record
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// Options configures NewWithOptions.
type Options struct {
	// Level is the minimum level name. Unknown names mean info.
	Level string
	// Format is "json" or "text". Anything else means json.
	Format string
	// AddSource records the caller's file and line.
	AddSource bool
}

// New builds the logger from LOG_LEVEL, LOG_FORMAT and LOG_SOURCE. It writes
// to stderr so command output on stdout can be piped.
func New() *slog.Logger {
	return NewWithOptions(os.Stderr, Options{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		AddSource: os.Getenv("LOG_SOURCE") == "true",
	})
}

// NewWriter is NewWithOptions without source locations.
func NewWriter(w io.Writer, level, format string) *slog.Logger {
	return NewWithOptions(w, Options{Level: level, Format: format})
}

// NewWithOptions builds a logger writing to w.
func NewWithOptions(w io.Writer, o Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: parseLevel(o.Level), AddSource: o.AddSource}
	if strings.EqualFold(o.Format, "text") {
		return slog.New(slog.NewTextHandler(w, ho))
	}
	return slog.New(slog.NewJSONHandler(w, ho))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// With derives a child of the context logger carrying args and stores it in
// the returned context, so everything downstream logs with the same
// attributes (task_id, document, request_id).
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	l := FromContext(ctx).With(args...)
	return WithLogger(ctx, l), l
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	switch strings.ToLower(s) {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
