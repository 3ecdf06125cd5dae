package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutput_ExistingLogger(t *testing.T) {
	log := Logger("test.existing")

	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log.Info("after switch", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "after switch")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "subsystem=test.existing")
}

func TestSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log := Logger("test.level")
	SetLevel("test.level", slog.LevelWarn)

	log.Info("hidden")
	log.With("k", "v").Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseConfig(t *testing.T) {
	cfg := parseConfig("relay.server=debug, swarm=warn ,error", "JSON")

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("relay.server"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("swarm"))
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("ping"))
	assert.Equal(t, FormatJSON, cfg.Format)
}

func TestParseLevel(t *testing.T) {
	lvl, ok := ParseLevel("Warning")
	require.True(t, ok)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
