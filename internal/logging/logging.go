// Package logging wraps charmbracelet/log with the engine's defaults and a
// context carrier so components can log without threading a logger through
// every constructor.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Config controls logger construction.
type Config struct {
	Level  string
	Output io.Writer
	JSON   bool
}

// New builds a logger. A nil config gets info-level text output on stderr;
// plugin stdout stays reserved for the control channel.
func New(cfg *Config) *log.Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           parseLevel(cfg.Level),
	})
	if cfg.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

type ctxKey struct{}

// WithContext attaches a logger to the context.
func WithContext(ctx context.Context, logger *log.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the context's logger, or a default one.
func FromContext(ctx context.Context) *log.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*log.Logger); ok {
		return logger
	}
	return log.Default()
}
