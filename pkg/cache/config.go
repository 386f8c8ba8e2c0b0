package cache

import (
	"fmt"
	"time"
)

// DefaultPrefix namespaces every key written by Entity
const DefaultPrefix = "model4go:"

// Backend names accepted by Config.Backend
const (
	BackendRedis = "redis"
	BackendLocal = "local"
	BackendNone  = "none"
)

// TTLs holds the time-to-live per operation kind
type TTLs struct {
	Create                   time.Duration `json:"create" yaml:"create"`
	FindByID                 time.Duration `json:"find_by_id" yaml:"find_by_id"`
	FindBySecondaryID        time.Duration `json:"find_by_secondary_id" yaml:"find_by_secondary_id"`
	FindIDsByParentReference time.Duration `json:"find_ids_by_parent_reference" yaml:"find_ids_by_parent_reference"`
	Summary                  time.Duration `json:"summary" yaml:"summary"`
}

// DefaultTTLs returns short TTLs for point lookups and a day for reference
// and summary reads
func DefaultTTLs() TTLs {
	return TTLs{
		Create:                   300 * time.Second,
		FindByID:                 300 * time.Second,
		FindBySecondaryID:        300 * time.Second,
		FindIDsByParentReference: 86400 * time.Second,
		Summary:                  86400 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTTLs
func (t TTLs) withDefaults() TTLs {
	d := DefaultTTLs()
	if t.Create <= 0 {
		t.Create = d.Create
	}
	if t.FindByID <= 0 {
		t.FindByID = d.FindByID
	}
	if t.FindBySecondaryID <= 0 {
		t.FindBySecondaryID = d.FindBySecondaryID
	}
	if t.FindIDsByParentReference <= 0 {
		t.FindIDsByParentReference = d.FindIDsByParentReference
	}
	if t.Summary <= 0 {
		t.Summary = d.Summary
	}
	return t
}

// Config selects and tunes the cache layer
type Config struct {
	Backend string      `json:"backend" yaml:"backend"` // redis, local, none
	Prefix  string      `json:"prefix" yaml:"prefix"`
	TTLs    TTLs        `json:"ttls" yaml:"ttls"`
	Local   LocalConfig `json:"local" yaml:"local"`
}

// DefaultConfig returns a Redis-backed configuration with default TTLs
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendRedis,
		Prefix:  DefaultPrefix,
		TTLs:    DefaultTTLs(),
		Local:   DefaultLocalConfig(),
	}
}

// Validate checks the cache configuration
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRedis, BackendNone:
	case BackendLocal:
		if err := c.Local.Validate(); err != nil {
			return err
		}
	default:
		return &ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return "cache config error in field " + e.Field + ": " + e.Message
}
