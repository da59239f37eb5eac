// Package logging configures the process-wide slog logger for taskboard.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type ctxKey int

const requestIDKey ctxKey = iota

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	closer io.Closer
)

// Config holds logging configuration.
type Config struct {
	Level    string          `yaml:"level"`  // debug, info, warn, error
	Format   string          `yaml:"format"` // text or json
	Output   string          `yaml:"output"` // stdout, stderr or a file path
	Rotation *RotationConfig `yaml:"rotation"`
}

// DefaultConfig logs text at info level to stderr.
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: "text", Output: "stderr"}
}

// Init replaces the global logger. It also becomes slog's default so library
// code calling slog directly ends up in the same sink.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	w, c, err := openOutput(cfg)
	if err != nil {
		return err
	}

	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	set(slog.New(h), c)
	return nil
}

// Discard silences all logging. Used by tests and one-shot CLI commands.
func Discard() {
	set(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func set(l *slog.Logger, c io.Closer) {
	mu.Lock()
	prev := closer
	logger, closer = l, c
	mu.Unlock()

	slog.SetDefault(l)
	if prev != nil {
		_ = prev.Close()
	}
}

// Close releases the log file, if any.
func Close() error {
	mu.Lock()
	c := closer
	closer = nil
	mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// ParseLevel maps a level name to slog.Level; unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func openOutput(cfg *Config) (io.Writer, io.Closer, error) {
	switch cfg.Output {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	default:
		w, err := newRotatingFile(cfg.Output, cfg.Rotation)
		if err != nil {
			return nil, nil, err
		}
		return w, w, nil
	}
}

// Logger returns the global logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithComponent returns a logger tagged with a component name such as
// "reminders.scanner" or "bot".
func WithComponent(component string) *slog.Logger {
	return Logger().With(slog.String("component", component))
}

// WithTask returns a logger tagged with a task ID.
func WithTask(taskID string) *slog.Logger {
	return Logger().With(slog.String("task_id", taskID))
}

// ContextWithRequestID stores a request ID for later log lines.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// FromContext returns the global logger, tagged with the request ID when ctx
// carries one.
func FromContext(ctx context.Context) *slog.Logger {
	l := Logger()
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		l = l.With(slog.String("request_id", id))
	}
	return l
}
