// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Options struct {
	Level  string
	Format string
	// Out receives log lines; nil means only File (if any) gets them.
	Out io.Writer
	// File, when set, also writes plain-text lines to a rotated log file.
	File string
}

// Setup installs the global logger and level. The returned closer releases
// the log file and is never nil.
func Setup(opts Options) (io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
		if err != nil {
			return nopCloser{}, errors.Wrapf(err, "invalid log level %q", opts.Level)
		}
		level = parsed
	}

	var writers []io.Writer
	if opts.Out != nil {
		switch strings.ToLower(opts.Format) {
		case "", FormatJSON:
			writers = append(writers, opts.Out)
		case FormatConsole, "text":
			writers = append(writers, zerolog.ConsoleWriter{Out: opts.Out})
		default:
			return nopCloser{}, errors.Errorf("invalid log format %q", opts.Format)
		}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: file, NoColor: true})
		closer = file
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
