// Package config loads the YAML configuration and seeds configured
// sources into the store.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/database"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
	"gopkg.in/yaml.v3"
)

// SourceConfig is one seeded feed entry.
type SourceConfig struct {
	Name            string `yaml:"name"`
	Kind            string `yaml:"kind"`
	Endpoint        string `yaml:"endpoint"`
	AuthSecret      string `yaml:"auth_secret"`
	IntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// Config configures the portal.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`

	// ThreatFoxDays is the incremental query window (clamped to 1-7).
	ThreatFoxDays int `yaml:"threatfox_days"`

	// BackfillChunkSize bounds memory during bulk export imports.
	BackfillChunkSize int `yaml:"backfill_chunk_size"`

	// Poll cadences, in seconds.
	RSSPollSeconds       int `yaml:"rss_poll_seconds"`
	KEVPollSeconds       int `yaml:"kev_poll_seconds"`
	ThreatFoxPollSeconds int `yaml:"threatfox_poll_seconds"`

	Sources []SourceConfig `yaml:"sources"`
}

func (c *Config) defaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:8000"
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = "portal.db"
	}
	if c.ThreatFoxDays <= 0 {
		c.ThreatFoxDays = 3
	}
	if c.BackfillChunkSize <= 0 {
		c.BackfillChunkSize = 500
	}
	if c.RSSPollSeconds <= 0 {
		c.RSSPollSeconds = 900
	}
	if c.KEVPollSeconds <= 0 {
		c.KEVPollSeconds = 3600
	}
	if c.ThreatFoxPollSeconds <= 0 {
		c.ThreatFoxPollSeconds = 900
	}
	if len(c.Sources) == 0 {
		c.Sources = defaultSources()
	}
}

func defaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "CISA KEV", Kind: "kev", Endpoint: "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json", IntervalSeconds: 3600},
		{Name: "MSRC SUG RSS", Kind: "rss", Endpoint: "https://api.msrc.microsoft.com/update-guide/rss", IntervalSeconds: 900},
		{Name: "The DFIR Report", Kind: "rss", Endpoint: "https://thedfirreport.com/feed/", IntervalSeconds: 900},
	}
}

// Load reads the config file at path. A missing file yields the
// defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg.defaults()
	return &cfg, nil
}

// PollInterval returns the cadence for a source kind.
func (c *Config) PollInterval(kind model.SourceKind) time.Duration {
	switch kind {
	case model.KindKEV:
		return time.Duration(c.KEVPollSeconds) * time.Second
	case model.KindThreatFox:
		return time.Duration(c.ThreatFoxPollSeconds) * time.Second
	default:
		return time.Duration(c.RSSPollSeconds) * time.Second
	}
}

// Seed ensures every configured source exists in the store. Existing
// sources are left untouched (cursor state in particular).
func Seed(store database.Store, cfg *Config) error {
	for _, sc := range cfg.Sources {
		interval := sc.IntervalSeconds
		if interval <= 0 {
			interval = 900
		}
		if _, _, err := store.GetOrCreateSource(&model.Source{
			Name:                sc.Name,
			Kind:                model.SourceKind(sc.Kind),
			Endpoint:            sc.Endpoint,
			Enabled:             true,
			AuthSecret:          sc.AuthSecret,
			PollIntervalSeconds: interval,
		}); err != nil {
			return fmt.Errorf("seed source %s: %w", sc.Name, err)
		}
	}
	return nil
}
