package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Level     slog.Level
	Format    string
	Output    io.Writer
	AddSource bool
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func Init(cfg Config) {
	var handler slog.Handler

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func Debug(msg string, args ...any) { slog.Debug(msg, args...) }
func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }

// ForComponent returns a logger tagged with the component name. Packages
// create theirs at init time, so the logger resolves the default handler on
// every record; a later Init still takes effect.
func ForComponent(component string) *slog.Logger {
	return slog.New(&deferred{attrs: []slog.Attr{slog.String("component", component)}})
}

func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}

// deferred forwards to whatever handler slog.Default holds at call time.
type deferred struct {
	attrs []slog.Attr
	group string
}

func (d *deferred) current() slog.Handler {
	h := slog.Default().Handler()
	if len(d.attrs) > 0 {
		h = h.WithAttrs(d.attrs)
	}
	if d.group != "" {
		h = h.WithGroup(d.group)
	}
	return h
}

func (d *deferred) Enabled(ctx context.Context, level slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, level)
}

func (d *deferred) Handle(ctx context.Context, r slog.Record) error {
	return d.current().Handle(ctx, r)
}

func (d *deferred) WithAttrs(attrs []slog.Attr) slog.Handler {
	if d.group != "" {
		// Attributes after a group belong inside it; bind now.
		return d.current().WithAttrs(attrs)
	}
	merged := make([]slog.Attr, 0, len(d.attrs)+len(attrs))
	merged = append(merged, d.attrs...)
	merged = append(merged, attrs...)
	return &deferred{attrs: merged}
}

func (d *deferred) WithGroup(name string) slog.Handler {
	if d.group != "" {
		return d.current().WithGroup(name)
	}
	return &deferred{attrs: d.attrs, group: name}
}
