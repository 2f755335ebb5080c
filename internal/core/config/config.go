package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so YAML values like "30s" or "15m" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings for health and metrics.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig holds event store settings.
type StorageConfig struct {
	BasePath string `yaml:"base_path"`
}

// AnalysisConfig holds settings for the external classification endpoint.
type AnalysisConfig struct {
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Timeout     Duration `yaml:"timeout"`
	MaxRetries  int      `yaml:"max_retries"`
	BaseDelay   Duration `yaml:"base_delay"`
	ContextDays int      `yaml:"context_days"`
}

// SchedulerConfig holds daily run settings.
type SchedulerConfig struct {
	RunAt      string   `yaml:"run_at"`      // wall clock "HH:MM", local time
	RetryDelay Duration `yaml:"retry_delay"` // delay before re-running a failed day
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
