package cache

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/ammar0144/model4go/pkg/redis"
)

// Store is the cache store adapter consumed by Entity
type Store interface {
	// Get returns nil, nil on a miss
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error
	// Ready reports whether the store should be consulted at all
	Ready() bool
}

// RedisStore adapts a redis.Manager to Store
type RedisStore struct {
	manager *redis.Manager
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps manager. Readiness follows the manager's health checks.
func NewRedisStore(manager *redis.Manager) *RedisStore {
	return &RedisStore{manager: manager}
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.manager.Get(ctx, key)
	if redis.IsKeyNotFound(err) {
		return nil, nil
	}
	return value, err
}

// Set implements Store
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.manager.SetWithTTL(ctx, key, value, ttl)
}

// Delete implements Store
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.manager.Delete(ctx, keys...)
}

// DeletePrefix implements Store
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	return s.manager.InvalidatePattern(ctx, escapeGlob(prefix)+"*")
}

// Ready implements Store
func (s *RedisStore) Ready() bool {
	return s.manager != nil && s.manager.Ready()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LocalConfig configures the in-process store
type LocalConfig struct {
	Capacity           int `json:"capacity" yaml:"capacity"`
	NumShards          int `json:"num_shards" yaml:"num_shards"`
	EvictionPercentage int `json:"eviction_percentage" yaml:"eviction_percentage"`

	// MaxTTL bounds how long any entry is retained; per-entry TTLs above it are cut
	MaxTTL time.Duration `json:"max_ttl" yaml:"max_ttl"`

	// EvictionInterval sets how often expired entries are swept. Zero uses the default.
	EvictionInterval time.Duration `json:"eviction_interval" yaml:"eviction_interval"`
}

// DefaultLocalConfig returns defaults sized for a single service instance
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Capacity:           10000,
		NumShards:          64,
		EvictionPercentage: 10,
		MaxTTL:             24 * time.Hour,
	}
}

// Validate checks the local store configuration
func (c LocalConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.MaxTTL <= 0 {
		return &ConfigError{Field: "MaxTTL", Message: "must be greater than 0"}
	}
	return nil
}

type localEntry struct {
	value   []byte
	expires time.Time
}

// LocalStore is an in-process Store backed by sturdyc. Entries carry their
// own expiry on top of the client-wide MaxTTL.
type LocalStore struct {
	client *sturdyc.Client[localEntry]
	now    func() time.Time
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates an in-process store
func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[localEntry](cfg.Capacity, cfg.NumShards, cfg.MaxTTL, cfg.EvictionPercentage, opts...)
	return &LocalStore{client: client, now: time.Now}, nil
}

// Get implements Store
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := s.client.Get(key)
	if !ok {
		return nil, nil
	}
	if !s.now().Before(entry.expires) {
		s.client.Delete(key)
		return nil, nil
	}
	return entry.value, nil
}

// Set implements Store
func (s *LocalStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := append([]byte(nil), value...)
	s.client.Set(key, localEntry{value: stored, expires: s.now().Add(ttl)})
	return nil
}

// Delete implements Store
func (s *LocalStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// DeletePrefix implements Store
func (s *LocalStore) DeletePrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Ready implements Store. The local store is always available.
func (s *LocalStore) Ready() bool {
	return true
}

// Size returns the number of stored entries, expired ones included until swept
func (s *LocalStore) Size() int {
	return s.client.Size()
}
