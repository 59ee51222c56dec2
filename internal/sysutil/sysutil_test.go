package sysutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogging(t *testing.T) {
	t.Helper()
	orig, lvl := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = orig
		zerolog.SetGlobalLevel(lvl)
	})
}

func TestSetLogLevel(t *testing.T) {
	restoreLogging(t)
	cases := map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		"  DeBuG  ": zerolog.DebugLevel,
		"":          zerolog.InfoLevel,
		"warn":      zerolog.WarnLevel,
		"Warning":   zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"fatal":     zerolog.FatalLevel,
		"panic":     zerolog.PanicLevel,
		"trace":     zerolog.InfoLevel,
		"disabled":  zerolog.InfoLevel,
		"loud":      zerolog.InfoLevel,
	}
	for in, want := range cases {
		SetLogLevel(in)
		assert.Equal(t, want, zerolog.GlobalLevel(), "SetLogLevel(%q)", in)
	}
}

func TestSetupLogger_ConsoleAndRotatedFile(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "triage.log")
	closer := SetupLogger(LogOptions{Level: "debug", File: path, Component: "rulesctl", Stderr: &buf})

	log.Debug().Str("user", "a***@example.com").Msg("rule applied")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), `"message":"rule applied"`)
	assert.Contains(t, buf.String(), `"component":"rulesctl"`)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user":"a***@example.com"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupLogger_PrettyConsole(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	closer := SetupLogger(LogOptions{Level: "info", Pretty: true, Stderr: &buf})
	log.Info().Msg("evaluated")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "evaluated")
	assert.NotContains(t, buf.String(), `"message"`)
	assert.NotContains(t, buf.String(), "component")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "", FirstNonEmpty())
	assert.Equal(t, "", FirstNonEmpty(" ", "\t", "\n"))
	assert.Equal(t, "  v1.2  ", FirstNonEmpty("", "  v1.2  ", "dev"))
	assert.Equal(t, "build", FirstNonEmpty("build", "env", "dev"))
}
