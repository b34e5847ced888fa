package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", cfg.Primary.BaseURL)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.HasCloud())
	assert.False(t, cfg.UseRedis())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
primary:
  base_url: http://models.internal:8080
  model: llama3.1:70b
cloud:
  base_url: https://api.example.com/v1
  model: gpt-4o
redis:
  addr: localhost:6379
  ttl: 720h
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://models.internal:8080", cfg.Primary.BaseURL)
	assert.Equal(t, "llama3.1:70b", cfg.Primary.Model)
	assert.True(t, cfg.HasCloud())
	assert.Equal(t, "gpt-4o", cfg.Cloud.Model)
	assert.True(t, cfg.UseRedis())
	assert.Equal(t, 720*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
primary:
  base_url: http://from-file:8080
  model: from-file
`)
	t.Setenv("DEALFLOW_PRIMARY_BASE_URL", "http://from-env:9090")
	t.Setenv("DEALFLOW_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("DEALFLOW_REDIS_TTL", "24h")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:9090", cfg.Primary.BaseURL)
	assert.Equal(t, "from-file", cfg.Primary.Model)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "primary: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing primary url",
			mutate:  func(c *Config) { c.Primary.BaseURL = "" },
			wantErr: "primary.base_url",
		},
		{
			name:    "missing primary model",
			mutate:  func(c *Config) { c.Primary.Model = "" },
			wantErr: "primary.model",
		},
		{
			name:    "cloud url without model",
			mutate:  func(c *Config) { c.Cloud.BaseURL = "https://api.example.com" },
			wantErr: "cloud.model",
		},
		{
			name:    "negative ttl",
			mutate:  func(c *Config) { c.Redis.Addr = "localhost:6379"; c.Redis.TTL = -time.Hour },
			wantErr: "redis.ttl",
		},
		{
			name:    "no data dir without redis",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: "data_dir",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: "log_level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
