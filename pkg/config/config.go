// Package config loads the database, Redis and cache settings from a single
// YAML document. Fields absent from the document keep their package defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ammar0144/model4go/pkg/cache"
	"github.com/ammar0144/model4go/pkg/db"
	"github.com/ammar0144/model4go/pkg/redis"
)

// Config aggregates every component configuration
type Config struct {
	Database db.Config    `yaml:"database"`
	Redis    redis.Config `yaml:"redis"`
	Cache    cache.Config `yaml:"cache"`
}

// Default returns the defaults of every component
func Default() *Config {
	return &Config{
		Database: *db.DefaultConfig(),
		Redis:    *redis.DefaultConfig(),
		Cache:    *cache.DefaultConfig(),
	}
}

// Load reads and validates the YAML file at path. ${VAR} references are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every component. The Redis section is only checked when
// the cache is backed by Redis.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if c.Cache.Backend == cache.BackendRedis {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
