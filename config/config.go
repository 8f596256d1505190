// Package config loads configuration for the scratch CLI and sweep daemon.
// Precedence, lowest to highest: built-in defaults, the YAML file,
// environment variables (with an optional .env overlay).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level configuration.
type Config struct {
	BaseDir string        `yaml:"base_dir"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	NATS    NATSConfig    `yaml:"nats"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SweepConfig controls the orphan sweeper.
type SweepConfig struct {
	Prefixes []string `yaml:"prefixes"`
	MaxAge   Duration `yaml:"max_age"`
	Interval Duration `yaml:"interval"`
	DryRun   bool     `yaml:"dry_run"`
}

// LedgerConfig controls the optional SQLite registry of created directories.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NATSConfig controls the optional lifecycle event publisher.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig controls the optional Prometheus endpoint of the daemon.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseDir: os.TempDir(),
		Sweep: SweepConfig{
			MaxAge:   Duration(24 * time.Hour),
			Interval: Duration(time.Hour),
		},
		Ledger: LedgerConfig{
			Path: "scratchdir.db",
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "scratchdir.events",
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
		},
	}
}

// Load builds the effective configuration. path may be empty, in which case
// only defaults and the environment apply. A .env or .env.local file in the
// working directory is loaded first without overriding existing variables.
func Load(path string) (*Config, error) {
	loadEnvFile()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the CLI flag
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile loads the first .env file found. Existing process environment
// variables are not overwritten.
func loadEnvFile() {
	for _, envPath := range []string{".env", ".env.local"} {
		if err := godotenv.Load(envPath); err == nil {
			slog.Debug("Loaded environment variables", "file", envPath)
			return
		}
	}
}

// applyEnv overlays SCRATCHDIR_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("SCRATCHDIR_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("SCRATCHDIR_SWEEP_PREFIXES"); v != "" {
		var prefixes []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
		cfg.Sweep.Prefixes = prefixes
	}
	if err := envDuration("SCRATCHDIR_SWEEP_MAX_AGE", &cfg.Sweep.MaxAge); err != nil {
		return err
	}
	if err := envDuration("SCRATCHDIR_SWEEP_INTERVAL", &cfg.Sweep.Interval); err != nil {
		return err
	}
	if v := os.Getenv("SCRATCHDIR_LEDGER_PATH"); v != "" {
		cfg.Ledger.Enabled = true
		cfg.Ledger.Path = v
	}
	if v := os.Getenv("SCRATCHDIR_NATS_URL"); v != "" {
		cfg.NATS.Enabled = true
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SCRATCHDIR_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = v
	}
	return nil
}

func envDuration(key string, dst *Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = Duration(parsed)
	return nil
}

// Validate checks invariants the rest of the program relies on.
func (c *Config) Validate() error {
	if c.Sweep.MaxAge <= 0 {
		return fmt.Errorf("sweep.max_age must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required when the ledger is enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when eventing is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}
