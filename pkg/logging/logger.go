// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Lane scheduling (task queued, task dropped on cancel)
//   - Rate limit observations within healthy budget
//   - Empty poll cycles, identity refreshes
//
// Info: Normal operation events
//   - Posts and replies published
//   - Poll cycle processing counts
//   - Quota window resets
//   - Daemon startup/shutdown
//
// Warn: Conditions that don't prevent operation
//   - Retry attempts and backoff waits
//   - Quota reservations rejected
//   - Best-effort persistence failures (observations, outcomes, cursor)
//   - Rate limit windows observed at zero remaining
//
// Error: Conditions requiring attention
//   - Operations failed after retry exhaustion
//   - Mention handler failures
//   - Cursor load failures (cycle skipped)
//
// Context Fields:
//   - category: endpoint category (tweet, reply, mentions, ...)
//   - kind: quota activity kind (post, reply, read)
//   - attempt: retry attempt number
//   - reset_at / wait / backoff: throttling recovery timing
//   - cursor / mention_id: polling progress
