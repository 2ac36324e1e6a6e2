// Package vcplog wraps zerolog with level/format/output configuration and a
// shared process-wide logger: stdout or stderr, console or JSON.
package vcplog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls the shared logger's level, format, and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console, json
	Output string // stdout, stderr
}

// DefaultConfig returns plain console logging to stdout at info level.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: "stdout"}
}

// New builds a zerolog.Logger from Config.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Default is the process-wide fallback logger, used by components that
// aren't handed an explicit logger.
var Default = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
