// Package logger provides a configured zerolog instance.
package logger

import (
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/rs/zerolog"
	"io"
	"os"
)

const serviceName = "notification-system"

// NewLogger creates a new configured instance of zerolog.Logger.
// It reads the level and output format from the config and adds default fields like service name and caller.
func NewLogger(cfg *config.Config) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Logger.Level)
	if err != nil || cfg.Logger.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Logger.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("service", serviceName).
		Caller().
		Logger().
		Level(level)

	return &logger, nil
}
