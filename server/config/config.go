package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Mode        string `yaml:"mode"`
	AgentAPIKey string `yaml:"agent_api_key"`
}

type DatabaseConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type StorageConfig struct {
	Endpoint          string `yaml:"endpoint"`
	AccessKey         string `yaml:"access_key"`
	SecretKey         string `yaml:"secret_key"`
	UseSSL            bool   `yaml:"use_ssl"`
	ScreenshotsBucket string `yaml:"screenshots_bucket"`
}

type IngestConfig struct {
	// MaxUploadMB bounds the screenshot payload accepted per request.
	MaxUploadMB int `yaml:"max_upload_mb"`
	// RuleCacheTTLSeconds is how long a categorization rule snapshot
	// stays fresh before the next categorization triggers a reload.
	RuleCacheTTLSeconds int `yaml:"rule_cache_ttl_seconds"`
	// ActiveThresholdMinutes defines "active now" for the employees list.
	ActiveThresholdMinutes int `yaml:"active_threshold_minutes"`
}

// RuleCacheTTL returns the rule cache TTL as a duration.
func (ic IngestConfig) RuleCacheTTL() time.Duration {
	return time.Duration(ic.RuleCacheTTLSeconds) * time.Second
}

// MaxUploadBytes returns the screenshot size limit in bytes.
func (ic IngestConfig) MaxUploadBytes() int64 {
	return int64(ic.MaxUploadMB) << 20
}

// Load reads a yaml config file, expanding ${ENV} references before
// unmarshalling, and fills in defaults for anything left unset.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Database.URI == "" {
		cfg.Database.URI = "mongodb://localhost:27017"
	}
	if cfg.Database.Database == "" {
		cfg.Database.Database = "ems"
	}
	if cfg.Storage.ScreenshotsBucket == "" {
		cfg.Storage.ScreenshotsBucket = "screenshots"
	}
	if cfg.Ingest.MaxUploadMB == 0 {
		cfg.Ingest.MaxUploadMB = 16
	}
	if cfg.Ingest.RuleCacheTTLSeconds == 0 {
		cfg.Ingest.RuleCacheTTLSeconds = 300
	}
	if cfg.Ingest.ActiveThresholdMinutes == 0 {
		cfg.Ingest.ActiveThresholdMinutes = 5
	}

	return &cfg, nil
}
