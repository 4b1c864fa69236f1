// Package logger builds the zerolog loggers used across the engine.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// New returns a logger writing to stdout. format "console" selects human-readable output; anything else is JSON.
// An unknown level is an error.
func New(level, format string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), err
		}
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// WithComponent tags l with a component field.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}
