package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "data/logs"
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = Duration(30 * time.Second)
	}
	if cfg.Analysis.MaxRetries == 0 {
		cfg.Analysis.MaxRetries = 3
	}
	if cfg.Analysis.BaseDelay == 0 {
		cfg.Analysis.BaseDelay = Duration(1 * time.Second)
	}
	if cfg.Analysis.ContextDays == 0 {
		cfg.Analysis.ContextDays = 7
	}
	if cfg.Scheduler.RunAt == "" {
		cfg.Scheduler.RunAt = "01:00"
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = Duration(30 * time.Minute)
	}
}
