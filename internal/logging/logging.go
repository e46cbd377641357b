// Package logging configures the global zerolog logger for the service and
// the command-line tools.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely logs are written.
type Options struct {
	Level   string
	File    string
	Console bool // human-readable output on stderr instead of JSON
}

// Rotation limits for LOG_FILE output.
const (
	maxFileSizeMB = 50
	maxBackups    = 5
	maxAgeDays    = 14
)

// Setup installs the global logger and returns a closer for the log file, if any.
func Setup(opts Options) io.Closer {
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var stderr io.Writer = os.Stderr
	if opts.Console {
		stderr = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	if opts.File == "" {
		log.Logger = zerolog.New(stderr).With().Timestamp().Logger()
		return nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxFileSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(stderr, rotator)).With().Timestamp().Logger()
	return rotator
}

// ParseLevel falls back to info for unknown or empty levels.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return parsed
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
