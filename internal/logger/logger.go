// Package logger builds the zerolog loggers of the molsim binaries.
package logger

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config selects the level and the format of the logs.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is json or console.
	Format string `mapstructure:"format"`
	// TimeFormat is rfc3339, unix or iso8601.
	TimeFormat string `mapstructure:"time_format"`
}

// New returns a logger writing to w. The time format applies to every zerolog logger of the process.
func New(cfg Config, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), errors.Wrapf(err, "invalid log level %q", cfg.Level)
		}
	}

	timeFormat, err := parseTimeFormat(cfg.TimeFormat)
	if err != nil {
		return zerolog.Nop(), err
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	default:
		return zerolog.Nop(), errors.Errorf("invalid log format %q: must be json or console", cfg.Format)
	}

	if zerolog.TimeFieldFormat != timeFormat {
		zerolog.TimeFieldFormat = timeFormat
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func parseTimeFormat(name string) (string, error) {
	switch strings.ToLower(name) {
	case "", "rfc3339":
		return time.RFC3339, nil
	case "unix":
		return zerolog.TimeFormatUnix, nil
	case "iso8601":
		return "2006-01-02T15:04:05.000Z07:00", nil
	default:
		return "", errors.Errorf("invalid log time format %q", name)
	}
}
