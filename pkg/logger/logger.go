package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// serviceName stamps every line so aggregated pipelines can tell this
// process apart from the rest of the fleet.
const serviceName = "pix-wallet"

// New creates the process logger. level: debug, info, warn, error.
// pretty: human-readable console output for local runs.
func New(level string, pretty bool) zerolog.Logger {
	var w io.Writer = os.Stdout

	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return build(w, parseLevel(level))
}

// NewWithWriter creates a logger writing to a custom writer (useful for testing).
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	return build(w, parseLevel(level))
}

// build assembles the base context: timestamped, stamped with the
// service name, caller-annotated only at debug level.
func build(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	ctx := zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName)
	if lvl <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
