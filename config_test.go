package sdspi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ClockSlow, cfg.ClockSlowHz)
	assert.Equal(t, ClockFast, cfg.ClockFastHz)
	assert.Equal(t, r1PollRetries, cfg.R1Retries)
}

func TestLoadConfigOverridesClocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sdspi.ini")
	contents := "[sdspi]\nclock_slow_hz = 100000\nclock_fast_hz = 4000000\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 100000, cfg.ClockSlowHz)
	assert.Equal(t, 4000000, cfg.ClockFastHz)
	assert.Equal(t, r1PollRetries, cfg.R1Retries)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
}
