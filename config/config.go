// Package config holds the ingestion settings: feed endpoints, pagination
// sizes, windowing and the retry policy. Defaults match the upstream feed
// contracts; an optional YAML file pointed to by INGEST_CONFIG overrides
// individual values.
package config

import (
	"os"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Config is the full ingestion configuration.
type Config struct {
	NVD    NVDConfig    `yaml:"nvd"`
	CVSS   CVSSConfig   `yaml:"cvss"`
	Backup BackupConfig `yaml:"backup"`
	Retry  RetryConfig  `yaml:"retry"`

	// RescanIntervalMinutes > 0 re-runs completed ingestors on that cadence.
	RescanIntervalMinutes int `yaml:"rescan_interval_minutes"`
}

// NVDConfig drives the windowed primary-feed ingestor. BatchSize <= 0
// persists each window as a single batch.
type NVDConfig struct {
	BaseURL            string `yaml:"base_url"`
	APIKey             string `yaml:"api_key"`
	PageSize           int    `yaml:"page_size"`
	WindowDays         int    `yaml:"window_days"`
	WindowDelaySeconds int    `yaml:"window_delay_seconds"`
	DefaultStart       string `yaml:"default_start"` // used when the store is empty
	BatchSize          int    `yaml:"batch_size"`
}

// CVSSConfig drives the CVSS-vector-filtered full-rescan ingestor.
type CVSSConfig struct {
	BaseURL   string `yaml:"base_url"`
	Vector    string `yaml:"vector"`
	PageSize  int    `yaml:"page_size"`
	BatchSize int    `yaml:"batch_size"`
}

// BackupConfig drives the Red Hat security data ingestor.
type BackupConfig struct {
	BaseURL      string `yaml:"base_url"`
	DetailURL    string `yaml:"detail_url"`
	MaxPage      int    `yaml:"max_page"`
	DefaultStart string `yaml:"default_start"`
	BatchSize    int    `yaml:"batch_size"`
}

// RetryConfig is the per-request retry budget shared by all feed fetches.
type RetryConfig struct {
	MaxRetries       int `yaml:"max_retries"`
	BaseDelaySeconds int `yaml:"base_delay_seconds"`
	JitterSeconds    int `yaml:"jitter_seconds"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		NVD: NVDConfig{
			BaseURL:            "https://services.nvd.nist.gov/rest/json/cves/2.0",
			APIKey:             os.Getenv("NVD_API_KEY"),
			PageSize:           100,
			WindowDays:         120,
			WindowDelaySeconds: 6,
			DefaultStart:       "2024-01-01",
		},
		CVSS: CVSSConfig{
			BaseURL:  "https://services.nvd.nist.gov/rest/json/cves/2.0",
			Vector:   "AV:L/AC:L/PR:L/UI:R/S:U/C:N/I:L/A:L",
			PageSize: 100,
		},
		Backup: BackupConfig{
			BaseURL:      "https://access.redhat.com/labs/securitydataapi/cve.json",
			DetailURL:    "https://access.redhat.com/hydra/rest/securitydata/cve/%s.json",
			MaxPage:      1000,
			DefaultStart: "2024-01-01",
		},
		Retry: RetryConfig{
			MaxRetries:       10,
			BaseDelaySeconds: 30,
			JitterSeconds:    10,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path when path is
// non-empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return cfg, xerrors.Errorf("unable to read ingest config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, xerrors.Errorf("unable to parse ingest config %s: %w", path, err)
	}
	return cfg, nil
}

// BaseDelay returns the retry base delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySeconds) * time.Second
}

// Jitter returns the retry jitter range as a duration.
func (r RetryConfig) Jitter() time.Duration {
	return time.Duration(r.JitterSeconds) * time.Second
}

// WindowDelay returns the pause between NVD windows.
func (n NVDConfig) WindowDelay() time.Duration {
	return time.Duration(n.WindowDelaySeconds) * time.Second
}
