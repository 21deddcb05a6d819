package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger configured for stdout.
func New() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// NewWithLevel returns a stdout logger filtered to the given level. Unknown
// or empty levels fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return New().Level(parsed)
}
