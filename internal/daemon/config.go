// Package daemon manages the ADPF daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/hints"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
)

// ConfigFileName is the config file inside the daemon home.
const ConfigFileName = "config.toml"

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Logging   logging.Config  `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Store     StoreConfig     `toml:"store"`
	Health    HealthConfig    `toml:"health"`
	ADPF      ADPFConfig      `toml:"adpf"`

	Profiles []domain.Profile `toml:"profiles"`
	Hints    []hints.Action   `toml:"hints"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr is the host:port the API listens on.
func (c APIConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TelemetryConfig controls the /metrics endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// StoreConfig controls the session history database.
type StoreConfig struct {
	// Dir holds adpf.db. Empty means the daemon home.
	Dir string `toml:"dir"`
	// Retention drops history older than this at startup. Empty keeps all.
	Retention string `toml:"retention"`
}

// HealthConfig controls the periodic health checks.
type HealthConfig struct {
	Interval   string `toml:"interval"`
	MaxBacklog string `toml:"max_backlog"`
}

// ADPFConfig controls the session manager and its resource sink.
type ADPFConfig struct {
	// BoostHint is the hint that suppresses the generic boost while an app
	// session is active.
	BoostHint      string            `toml:"boost_hint"`
	DefaultProfile string            `toml:"default_profile"`
	TagProfiles    map[string]string `toml:"tag_profiles"`

	// Uclamp enables sched_setattr on session threads.
	Uclamp           bool   `toml:"uclamp"`
	GpuCapacityNode  string `toml:"gpu_capacity_node"`
	GpuFrequencyNode string `toml:"gpu_frequency_node"`

	// DryRun records decisions in memory instead of touching the system.
	DryRun bool `toml:"dry_run"`
	// DryRunGpuFrequency is the GPU frequency in kHz reported while dry.
	DryRunGpuFrequency int64 `toml:"dry_run_gpu_frequency"`
}

// DefaultConfig returns a configuration that serves one 60 fps profile.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7070,
		},
		Logging: logging.Config{
			Format: "json",
			Level:  "info",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Store: StoreConfig{
			Retention: "720h",
		},
		Health: HealthConfig{
			Interval:   "60s",
			MaxBacklog: "1s",
		},
		ADPF: ADPFConfig{
			BoostHint:          domain.DefaultBoostHintName,
			Uclamp:             true,
			DryRunGpuFrequency: 800000,
		},
		Profiles: []domain.Profile{domain.DefaultProfile()},
	}
}

// Validate checks the fields the daemon cannot default.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: api.port %d", domain.ErrInvalidArgument, c.API.Port)
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("%w: at least one [[profiles]] entry is required", domain.ErrInvalidArgument)
	}
	for _, d := range []struct{ key, val string }{
		{"store.retention", c.Store.Retention},
		{"health.interval", c.Health.Interval},
		{"health.max_backlog", c.Health.MaxBacklog},
	} {
		if d.val == "" {
			continue
		}
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, d.key, err)
		}
	}
	return nil
}

// LoadConfig reads config from $ADPFD_HOME/config.toml, falling back to
// defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(adpfdHome(), ConfigFileName))
}

// LoadConfigFile reads config from path. A missing file yields defaults.
// Profiles in the file replace the built-in profile.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	cfg.Profiles = nil
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("parse config: unknown keys %v", undecoded)
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = []domain.Profile{domain.DefaultProfile()}
	}
	return cfg, cfg.Validate()
}

// LoadConfigPath loads path, or the default location when path is empty.
func LoadConfigPath(path string) (Config, error) {
	if path == "" {
		return LoadConfig()
	}
	return LoadConfigFile(path)
}

// SaveConfig writes the config to $ADPFD_HOME/config.toml.
func SaveConfig(cfg Config) error {
	return SaveConfigFile(filepath.Join(adpfdHome(), ConfigFileName), cfg)
}

// SaveConfigFile writes the config to path.
func SaveConfigFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// adpfdHome returns the daemon data directory.
func adpfdHome() string {
	if env := os.Getenv("ADPFD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".adpfd")
}

// Home is exported for use by other packages.
func Home() string {
	return adpfdHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
