// Package config loads Blueband's YAML configuration with defaults,
// validation, and environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueband-db/blueband/internal/cache"
	"github.com/blueband-db/blueband/internal/embed"
	"github.com/blueband-db/blueband/internal/storage"
)

// Environment variables that override file values.
const (
	EnvProxyURL = "BLUEBAND_PROXY_URL"
	EnvDataDir  = "BLUEBAND_DATA_DIR"
)

// Config is the full configuration tree.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// StorageConfig locates the data directory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig bounds the vector cache.
type CacheConfig struct {
	MaxMemoryMB int `yaml:"max_memory_mb"`
	MaxEntries  int `yaml:"max_entries"`
	TTLHours    int `yaml:"ttl_hours"`
}

// EmbeddingConfig sets embedding defaults for new collections and the HTTP
// client behavior.
type EmbeddingConfig struct {
	Model          string `yaml:"model"`
	ProxyURL       string `yaml:"proxy_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	// Offline switches to the deterministic local embedder.
	Offline bool `yaml:"offline"`
}

// ServerConfig sets the HTTP listen address.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig sets logging behavior.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Path: defaultDataDir()},
		Cache: CacheConfig{
			MaxMemoryMB: cache.DefaultMaxMemoryBytes / (1024 * 1024),
			MaxEntries:  cache.DefaultMaxEntries,
			TTLHours:    int(cache.DefaultTTL / time.Hour),
		},
		Embedding: EmbeddingConfig{
			Model:          storage.DefaultModelName,
			TimeoutSeconds: int(embed.DefaultTimeout / time.Second),
			MaxRetries:     embed.DefaultMaxRetries,
		},
		Server: ServerConfig{Addr: "127.0.0.1:7540"},
		Log:    LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".blueband", "data")
	}
	return filepath.Join(home, ".blueband", "data")
}

// Load reads the config file when path is non-empty, layers it over the
// defaults, applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvProxyURL); v != "" {
		cfg.Embedding.ProxyURL = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Storage.Path = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.Cache.MaxMemoryMB <= 0 {
		return fmt.Errorf("cache.max_memory_mb must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be positive")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model must not be empty")
	}
	if c.Embedding.ProxyURL != "" && !strings.HasPrefix(c.Embedding.ProxyURL, "https://") {
		return fmt.Errorf("embedding.proxy_url must use HTTPS")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return nil
}

// CacheSettings converts the cache section into cache bounds.
func (c *Config) CacheSettings() cache.Config {
	return cache.Config{
		MaxMemoryBytes: c.Cache.MaxMemoryMB * 1024 * 1024,
		MaxEntries:     c.Cache.MaxEntries,
		TTL:            time.Duration(c.Cache.TTLHours) * time.Hour,
	}
}

// EmbedderSettings converts the embedding section into HTTP client settings.
func (c *Config) EmbedderSettings() embed.HTTPClientConfig {
	return embed.HTTPClientConfig{
		Timeout:    time.Duration(c.Embedding.TimeoutSeconds) * time.Second,
		MaxRetries: c.Embedding.MaxRetries,
	}
}

// CollectionDefaults builds the settings applied to collections created
// without explicit overrides.
func (c *Config) CollectionDefaults() storage.CollectionSettings {
	settings := storage.DefaultCollectionSettings()
	settings.EmbeddingModel = c.Embedding.Model
	settings.ProxyURL = c.Embedding.ProxyURL
	return settings
}
