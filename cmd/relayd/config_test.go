package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relayd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRelayConfig(t *testing.T) {
	path := writeConfig(t, `
relayer: relay-1
source:
  url: http://chain-a:8640
target:
  url: http://chain-b:8640
lanes:
  - local: chain-a
    remote: chain-b
poll_interval: 2s
stall_timeout: 3m
submissions_per_second: 4
max_relayer_entries: 16
max_unconfirmed_messages: 1024
`)
	cfg, err := loadRelayConfig(path)
	require.NoError(t, err)
	require.Equal(t, "relay-1", cfg.Relayer)
	require.Equal(t, "http://chain-a:8640", cfg.Source.URL)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, 3*time.Minute, cfg.StallTimeout)
	require.Equal(t, float64(4), cfg.SubmissionsPerSecond)
	require.Equal(t, uint64(16), cfg.MaxRelayerEntries)
	require.Equal(t, uint64(1024), cfg.MaxUnconfirmedMessages)
	require.Len(t, cfg.Lanes, 1)
}

func TestLoadRelayConfigRejectsMissingEndpoints(t *testing.T) {
	path := writeConfig(t, `
source:
  url: http://chain-a:8640
lanes:
  - local: chain-a
    remote: chain-b
`)
	_, err := loadRelayConfig(path)
	require.Error(t, err)
}

func TestLoadRelayConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
source:
  url: http://chain-a:8640
target:
  url: http://chain-b:8640
lanes:
  - local: chain-a
    remote: chain-b
legacy_mode: true
`)
	_, err := loadRelayConfig(path)
	require.Error(t, err)
}
