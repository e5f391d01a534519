// Package logger builds the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Options configures the logger.
type Options struct {
	Level  string // debug, info, warn, error, trace
	File   string // Append JSON logs to this file instead of stdout
	Pretty bool   // Human-readable console output (ignored with File)
}

// New builds a logger from opts. The returned closer releases the log file
// and is a no-op for stdout.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(opts.Level)

	var (
		output io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	switch {
	case opts.File != "":
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		output, closer = file, file
	case opts.Pretty:
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	log := build(output, level)
	log.Info().Str("level", level.String()).Str("file", opts.File).Bool("pretty", opts.Pretty).Msg("Logger initialized")
	return log, closer, nil
}

func build(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "mira").
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
