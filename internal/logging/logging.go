// Package logging configures zerolog for ensemble components.
// Every component gets a child logger tagged with its name so log
// lines can be filtered per subsystem.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	root     zerolog.Logger
	rootOnce sync.Once
)

// Setup initializes the root logger. Level is one of
// trace|debug|info|warn|error; anything else falls back to info.
// Safe to call more than once; only the first call wins.
func Setup(level string) {
	rootOnce.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(level))
		root = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
}

// New returns a logger for the named component.
func New(component string) zerolog.Logger {
	rootOnce.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(os.Getenv("ENSEMBLE_LOG_LEVEL")))
		root = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
	return root.With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
