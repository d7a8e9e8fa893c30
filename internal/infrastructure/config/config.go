package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all game host configuration.
type Config struct {
	Server     ServerConfig
	Catalog    CatalogConfig
	Results    ResultsConfig
	Transform  TransformConfig
	Sandbox    SandboxConfig
	Fullscreen FullscreenConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// CatalogConfig points at the game catalog service.
type CatalogConfig struct {
	BaseURL string        `envconfig:"CATALOG_URL" default:"http://localhost:3001/api"`
	Timeout time.Duration `envconfig:"CATALOG_TIMEOUT" default:"15s"`
}

// ResultsConfig points at the results persistence service.
type ResultsConfig struct {
	BaseURL string        `envconfig:"RESULTS_URL" default:"http://localhost:3001/api"`
	Timeout time.Duration `envconfig:"RESULTS_TIMEOUT" default:"10s"`
}

// TransformConfig tunes the content transformation pipeline.
type TransformConfig struct {
	CompactUI    bool `envconfig:"TRANSFORM_COMPACT_UI" default:"false"`
	MinifyOverKB int  `envconfig:"TRANSFORM_MINIFY_OVER_KB" default:"500"`
}

// SandboxConfig tunes the headless validation sandbox.
type SandboxConfig struct {
	PoolSize int           `envconfig:"SANDBOX_POOL_SIZE" default:"4"`
	Timeout  time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
}

// FullscreenConfig tunes fullscreen enforcement.
type FullscreenConfig struct {
	RetryCooldown time.Duration `envconfig:"FULLSCREEN_RETRY_COOLDOWN" default:"3s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server:     ServerConfig{Port: "8090", Host: "0.0.0.0"},
		Catalog:    CatalogConfig{BaseURL: "http://localhost:3001/api", Timeout: 15 * time.Second},
		Results:    ResultsConfig{BaseURL: "http://localhost:3001/api", Timeout: 10 * time.Second},
		Transform:  TransformConfig{MinifyOverKB: 500},
		Sandbox:    SandboxConfig{PoolSize: 4, Timeout: 5 * time.Second},
		Fullscreen: FullscreenConfig{RetryCooldown: 3 * time.Second},
		Logging:    LogConfig{Level: "info"},
		RateLimit:  RateLimitConfig{RequestsPerSecond: 100, Burst: 200, Enabled: true},
	}
}
