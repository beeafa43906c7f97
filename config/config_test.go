package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridged.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"

[[Lanes]]
Local = "this-chain"
Remote = "bridged-chain"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "./lanebridge-data", cfg.DataDir)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, uint64(128), cfg.Limits.MaxUnrewardedRelayerEntries)
	require.Equal(t, uint64(8192), cfg.Limits.MaxUnconfirmedMessages)
	require.Len(t, cfg.Lanes, 1)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"
LegacyLaneMode = true
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "LegacyLaneMode")
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	path := writeConfig(t, `
[Limits]
MaxUnrewardedRelayerEntries = 64
MaxUnconfirmedMessages = 16
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadLane(t *testing.T) {
	path := writeConfig(t, `
[[Lanes]]
Local = "same"
Remote = "same"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "bridged.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8640", cfg.ListenAddress)

	// the generated file must round-trip
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Limits, reloaded.Limits)
}
