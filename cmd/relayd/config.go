package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// relayConfig captures the runtime settings for the relay daemon.
type relayConfig struct {
	// Relayer is the identity attached to submissions; rewards accrue to
	// it. Empty means a generated per-instance id.
	Relayer string `yaml:"relayer"`

	Source endpointConfig `yaml:"source"`
	Target endpointConfig `yaml:"target"`
	Lanes  []laneConfig   `yaml:"lanes"`

	// Bidirectional also relays target-to-source traffic on every lane.
	Bidirectional bool `yaml:"bidirectional"`

	MetricsAddress string `yaml:"metrics_listen"`
	LogLevel       string `yaml:"log_level"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	StallTimeout   time.Duration `yaml:"stall_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	BatchSize      uint64        `yaml:"batch_size"`
	// MaxRelayerEntries and MaxUnconfirmedMessages mirror the target
	// chain's per-lane backlog bounds; deliveries are deferred rather than
	// submitted into a saturated lane. Zero keeps the defaults.
	MaxRelayerEntries      uint64 `yaml:"max_relayer_entries"`
	MaxUnconfirmedMessages uint64 `yaml:"max_unconfirmed_messages"`
	// SubmissionsPerSecond rate-limits proof submissions; zero means
	// unlimited.
	SubmissionsPerSecond float64 `yaml:"submissions_per_second"`

	Telemetry telemetryConfig `yaml:"telemetry"`
}

type endpointConfig struct {
	URL string `yaml:"url"`
}

type laneConfig struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
}

type telemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

// loadRelayConfig reads the YAML configuration from disk and validates the
// result.
func loadRelayConfig(path string) (relayConfig, error) {
	cfg := relayConfig{Bidirectional: true}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return relayConfig{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return relayConfig{}, err
	}
	return cfg, nil
}

func (cfg *relayConfig) normalize() {
	cfg.Relayer = strings.TrimSpace(cfg.Relayer)
	cfg.Source.URL = strings.TrimSpace(cfg.Source.URL)
	cfg.Target.URL = strings.TrimSpace(cfg.Target.URL)
	cfg.MetricsAddress = strings.TrimSpace(cfg.MetricsAddress)
}

func (cfg relayConfig) validate() error {
	if cfg.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if cfg.Target.URL == "" {
		return fmt.Errorf("target.url is required")
	}
	if len(cfg.Lanes) == 0 {
		return fmt.Errorf("at least one lane is required")
	}
	for i, lane := range cfg.Lanes {
		if strings.TrimSpace(lane.Local) == "" || strings.TrimSpace(lane.Remote) == "" {
			return fmt.Errorf("lane %d: both local and remote endpoints are required", i)
		}
		if lane.Local == lane.Remote {
			return fmt.Errorf("lane %d: endpoints must differ", i)
		}
	}
	if cfg.SubmissionsPerSecond < 0 {
		return fmt.Errorf("submissions_per_second cannot be negative")
	}
	return nil
}
