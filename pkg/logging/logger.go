// Package logging configures zerolog for the pipeline. Setup runs once at
// process start; components derive tagged loggers through NewLogger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel names a minimum severity.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum severity to emit. Empty or unknown values
	// fall back to info, a misconfigured level must not silence the log.
	Level LogLevel

	// Pretty switches from JSON lines to human-readable console output.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Setup configures the process-wide logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

func parseLevel(level LogLevel) zerolog.Level {
	s := strings.ToLower(string(level))
	if s == "warning" {
		s = "warn"
	}
	if l, err := zerolog.ParseLevel(s); err == nil && l != zerolog.NoLevel {
		return l
	}
	return zerolog.InfoLevel
}

// NewLogger derives a logger tagged with its owning component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Context fields used across the pipeline:
//   - source: source name from configuration
//   - strategy: pagination strategy (id_sweep, offset, sequential_id)
//   - batch: batch sequence number within a source
//   - error_class: taxonomy class (network, timeout, http-4xx, ...)
//   - attempt: retry attempt number
//   - duration: request or run duration
//   - crs_detected / crs_expected: spatial reference codes
