// Package sysutil holds process setup shared by cmd/server and cmd/rulesctl.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for LogOptions.File.
const (
	logMaxSizeMB  = 50
	logMaxBackups = 5
	logMaxAgeDays = 28
)

// SetLogLevel sets the global zerolog level. "warning" is accepted for warn;
// empty or unknown names fall back to info.
func SetLogLevel(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel || lvl == zerolog.TraceLevel || lvl == zerolog.Disabled {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// LogOptions selects the global logger's sinks.
type LogOptions struct {
	Level     string
	Pretty    bool      // console writer instead of JSON on stderr
	File      string    // also append JSON lines to this rotated file
	Component string    // "server" or "rulesctl", added to every line
	Stderr    io.Writer // defaults to os.Stderr
}

// SetupLogger replaces log.Logger. The returned closer flushes the rotated
// file and is a no-op without one.
func SetupLogger(opts LogOptions) io.Closer {
	SetLogLevel(opts.Level)

	console := opts.Stderr
	if console == nil {
		console = os.Stderr
	}
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}

	out, closer := console, io.Closer(nopCloser{})
	if path := strings.TrimSpace(opts.File); path != "" {
		rot := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		}
		out, closer = zerolog.MultiLevelWriter(console, rot), rot
	}

	lc := zerolog.New(out).With().Timestamp()
	if opts.Component != "" {
		lc = lc.Str("component", opts.Component)
	}
	log.Logger = lc.Logger()
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FirstNonEmpty returns the first value that is not blank, unmodified.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
