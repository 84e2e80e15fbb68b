// Package logger is the structured logging setup shared by the evcodec
// command-line tool's subcommands.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the global logger instance used by every subcommand.
var Log zerolog.Logger

// Init configures Log for console output, raising the level to Debug when
// debug is true.
func Init(debug bool) {
	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	Log = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func Debug() *zerolog.Event { return Log.Debug() }
func Info() *zerolog.Event  { return Log.Info() }
func Warn() *zerolog.Event  { return Log.Warn() }
func Error() *zerolog.Event { return Log.Error() }
func Fatal() *zerolog.Event { return Log.Fatal() }

// WithRunID returns a child logger tagging every subsequent line with the
// given correlation id.
func WithRunID(runID string) zerolog.Logger {
	return Log.With().Str("run_id", runID).Logger()
}
