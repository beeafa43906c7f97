package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the bridge node configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`
	LogLevel      string `toml:"LogLevel"`
	LogFile       string `toml:"LogFile"`

	// MaxMessageSize bounds stored outbound payloads, in bytes. Zero keeps
	// the built-in default.
	MaxMessageSize int `toml:"MaxMessageSize"`
	// PruneDepth bounds how many confirmed payloads one send may reclaim.
	PruneDepth uint64 `toml:"PruneDepth"`

	Limits    Limits    `toml:"Limits"`
	Lanes     []Lane    `toml:"Lanes"`
	Telemetry Telemetry `toml:"Telemetry"`
}

// Limits are the per-lane backlog bounds agreed with the bridged chain. Both
// sides must run identical values or confirmations will diverge.
type Limits struct {
	MaxUnrewardedRelayerEntries uint64 `toml:"MaxUnrewardedRelayerEntries"`
	MaxUnconfirmedMessages      uint64 `toml:"MaxUnconfirmedMessages"`
}

// Lane names one lane to open at startup by its two endpoints. The lane id is
// derived from the pair, so both chains configure the same endpoints.
type Lane struct {
	Local  string `toml:"Local"`
	Remote string `toml:"Remote"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Load reads the configuration, creating a default file when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8640"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./lanebridge-data"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Limits.MaxUnrewardedRelayerEntries == 0 {
		cfg.Limits.MaxUnrewardedRelayerEntries = 128
	}
	if cfg.Limits.MaxUnconfirmedMessages == 0 {
		cfg.Limits.MaxUnconfirmedMessages = 8192
	}
}

// Validate rejects configurations the node cannot run with.
func (cfg *Config) Validate() error {
	if cfg.Limits.MaxUnrewardedRelayerEntries > cfg.Limits.MaxUnconfirmedMessages {
		return fmt.Errorf("MaxUnrewardedRelayerEntries (%d) cannot exceed MaxUnconfirmedMessages (%d)",
			cfg.Limits.MaxUnrewardedRelayerEntries, cfg.Limits.MaxUnconfirmedMessages)
	}
	if cfg.MaxMessageSize < 0 {
		return fmt.Errorf("MaxMessageSize cannot be negative")
	}
	for i, lane := range cfg.Lanes {
		if strings.TrimSpace(lane.Local) == "" || strings.TrimSpace(lane.Remote) == "" {
			return fmt.Errorf("lane %d: both Local and Remote endpoints are required", i)
		}
		if lane.Local == lane.Remote {
			return fmt.Errorf("lane %d: endpoints must differ", i)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8640",
		DataDir:       "./lanebridge-data",
		LogLevel:      "info",
		Limits: Limits{
			MaxUnrewardedRelayerEntries: 128,
			MaxUnconfirmedMessages:      8192,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
