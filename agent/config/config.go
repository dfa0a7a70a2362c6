// Package config loads the agent-side yaml configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Agent       AgentConfig       `yaml:"agent"`
	Activity    ActivityConfig    `yaml:"activity"`
	Screenshots ScreenshotsConfig `yaml:"screenshots"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type AgentConfig struct {
	// EmployeeID identifies this endpoint to the server. Defaults to the
	// machine hostname.
	EmployeeID string       `yaml:"employee_id"`
	Hostname   string       `yaml:"hostname"`
	APIKey     string       `yaml:"api_key"`
	Server     ServerConfig `yaml:"server"`
}

type ServerConfig struct {
	URL               string `yaml:"url"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
}

type ActivityConfig struct {
	Enabled            bool `yaml:"enabled"`
	SampleIntervalSecs int  `yaml:"sample_interval_seconds"`
	FlushIntervalSecs  int  `yaml:"flush_interval_seconds"`
	FlushBatchSize     int  `yaml:"flush_batch_size"`
}

type ScreenshotsConfig struct {
	Enabled           bool   `yaml:"enabled"`
	UploadIntervalMin int    `yaml:"upload_interval_minutes"`
	SpoolDir          string `yaml:"spool_dir"`
	MaxSpooledFiles   int    `yaml:"max_spooled_files"`
}

type HeartbeatConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func (sc ServerConfig) RetryDelay() time.Duration {
	return time.Duration(sc.RetryDelaySeconds) * time.Second
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Agent.Hostname == "" {
		cfg.Agent.Hostname, _ = os.Hostname()
	}
	if cfg.Agent.EmployeeID == "" {
		cfg.Agent.EmployeeID = cfg.Agent.Hostname
	}
	if cfg.Agent.Server.RetryAttempts == 0 {
		cfg.Agent.Server.RetryAttempts = 3
	}
	if cfg.Agent.Server.RetryDelaySeconds == 0 {
		cfg.Agent.Server.RetryDelaySeconds = 10
	}
	if cfg.Activity.SampleIntervalSecs == 0 {
		cfg.Activity.SampleIntervalSecs = 5
	}
	if cfg.Activity.FlushIntervalSecs == 0 {
		cfg.Activity.FlushIntervalSecs = 60
	}
	if cfg.Activity.FlushBatchSize == 0 {
		cfg.Activity.FlushBatchSize = 50
	}
	if cfg.Screenshots.UploadIntervalMin == 0 {
		cfg.Screenshots.UploadIntervalMin = 5
	}
	if cfg.Screenshots.MaxSpooledFiles == 0 {
		cfg.Screenshots.MaxSpooledFiles = 200
	}
	if cfg.Heartbeat.IntervalSeconds == 0 {
		cfg.Heartbeat.IntervalSeconds = 60
	}

	return &cfg, nil
}
