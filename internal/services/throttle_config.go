package services

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vantler/adcomply-backend/internal/platform/envutil"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

// ThrottleConfig tunes the call throttler. Zero values fall back to
// defaults, so a partial YAML file or env override set is fine.
type ThrottleConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseBackoff   time.Duration `yaml:"base_backoff"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
	QuietPeriod   time.Duration `yaml:"quiet_period"`
	ErrorWindow   time.Duration `yaml:"error_window"`
}

func (c ThrottleConfig) withDefaults() ThrottleConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 4
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 1 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = 5 * time.Minute
	}
	if c.ErrorWindow <= 0 {
		c.ErrorWindow = 1 * time.Minute
	}
	return c
}

// LoadThrottleConfig reads the optional YAML tuning file named by
// THROTTLE_CONFIG_PATH, then applies env overrides on top.
func LoadThrottleConfig(log *logger.Logger) (ThrottleConfig, error) {
	var cfg ThrottleConfig

	path := envutil.GetEnv("THROTTLE_CONFIG_PATH", "", log)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read throttle config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse throttle config: %w", err)
		}
	}

	if v := envutil.GetEnvAsInt("THROTTLE_MAX_CONCURRENT", 0, log); v > 0 {
		cfg.MaxConcurrent = v
	}
	if v := envutil.GetEnvAsInt("THROTTLE_MAX_RETRIES", 0, log); v > 0 {
		cfg.MaxRetries = v
	}
	return cfg.withDefaults(), nil
}
