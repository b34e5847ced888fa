// Package config loads DealFlow configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig describes one language-model backend.
type ModelConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// RedisConfig describes the optional Redis state backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Config is the full DealFlow configuration.
type Config struct {
	// Primary is the local model backend. Required.
	Primary ModelConfig `yaml:"primary"`

	// Cloud is the consent-gated fallback backend. Optional; when BaseURL
	// is empty no cloud path is offered.
	Cloud ModelConfig `yaml:"cloud"`

	Redis RedisConfig `yaml:"redis"`

	// DataDir is where the file state store keeps thread records when Redis
	// is not configured.
	DataDir string `yaml:"data_dir"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Primary:  ModelConfig{BaseURL: "http://localhost:11434", Model: "qwen2.5:14b"},
		DataDir:  "data",
		LogLevel: "info",
	}
}

// Load reads configuration from path (optional; empty path skips the file),
// applies DEALFLOW_* environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("DEALFLOW_PRIMARY_BASE_URL", &cfg.Primary.BaseURL)
	setString("DEALFLOW_PRIMARY_MODEL", &cfg.Primary.Model)
	setString("DEALFLOW_CLOUD_BASE_URL", &cfg.Cloud.BaseURL)
	setString("DEALFLOW_CLOUD_MODEL", &cfg.Cloud.Model)
	setString("DEALFLOW_REDIS_ADDR", &cfg.Redis.Addr)
	setString("DEALFLOW_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("DEALFLOW_DATA_DIR", &cfg.DataDir)
	setString("DEALFLOW_LOG_LEVEL", &cfg.LogLevel)

	if v := os.Getenv("DEALFLOW_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("DEALFLOW_REDIS_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Redis.TTL = ttl
		}
	}
}

// HasCloud reports whether a cloud fallback backend is configured.
func (c *Config) HasCloud() bool {
	return c.Cloud.BaseURL != ""
}

// UseRedis reports whether state should persist to Redis rather than files.
func (c *Config) UseRedis() bool {
	return c.Redis.Addr != ""
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Primary.BaseURL == "" {
		return fmt.Errorf("config: primary.base_url is required")
	}
	if c.Primary.Model == "" {
		return fmt.Errorf("config: primary.model is required")
	}
	if c.Cloud.BaseURL != "" && c.Cloud.Model == "" {
		return fmt.Errorf("config: cloud.model is required when cloud.base_url is set")
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("config: redis.ttl must not be negative")
	}
	if !c.UseRedis() && c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required when redis is not configured")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
