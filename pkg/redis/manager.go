package redis

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Value framing: the first byte of every stored value says how the rest is encoded
const (
	frameRaw  byte = 0
	frameGzip byte = 1
)

const scanBatchSize = 100

// Manager manages Redis connections and cache operations
type Manager struct {
	config        *Config
	client        redis.UniversalClient
	clusterClient *redis.ClusterClient
	metrics       *Metrics
	logger        *slog.Logger

	// ready is flipped by Ping; cache consumers skip Redis while it is false
	ready atomic.Bool
}

// NewManager creates a new Redis cache manager. The manager starts not ready;
// call Ping or Monitor to mark it usable.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	manager := &Manager{
		config:  config,
		metrics: NewMetrics(),
		logger:  slog.Default().With("component", "redis"),
	}

	// Initialize Redis client based on configuration
	if err := manager.initializeClient(); err != nil {
		return nil, fmt.Errorf("failed to initialize redis client: %w", err)
	}

	return manager, nil
}

// initializeClient sets up the Redis client based on configuration
func (m *Manager) initializeClient() error {
	if !m.config.Enabled {
		return nil // Skip initialization if cache is disabled
	}

	if m.config.IsClusterMode() {
		m.clusterClient = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           m.config.Cluster.Addresses,
			Username:        m.config.Cluster.Username,
			Password:        m.config.Cluster.Password,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
		m.client = m.clusterClient
	} else {
		m.client = redis.NewClient(&redis.Options{
			Addr:            m.config.GetAddr(),
			Password:        m.config.Password,
			DB:              m.config.Database,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
	}

	return nil
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	m.ready.Store(false)
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ready reports whether the last health check succeeded
func (m *Manager) Ready() bool {
	return m.config.Enabled && m.ready.Load()
}

// Ping tests the Redis connection and records the outcome for Ready.
// Returns nil if cache is disabled (not an error condition).
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}

	if m.client == nil {
		m.ready.Store(false)
		return ErrClientNotInitialized
	}

	if err := m.client.Ping(ctx).Err(); err != nil {
		m.setReady(false)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	m.setReady(true)
	return nil
}

func (m *Manager) setReady(ready bool) {
	if m.ready.Swap(ready) != ready {
		m.logger.Info("redis readiness changed", "ready", ready)
	}
}

// Monitor pings Redis every interval until ctx is done, keeping Ready current
func (m *Manager) Monitor(ctx context.Context, interval time.Duration) {
	if !m.config.Enabled || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			if err := m.Ping(pingCtx); err != nil {
				m.logger.Warn("redis health check failed", "error", err)
			}
			cancel()
		}
	}
}

// checkClient validates that cache is enabled and client is initialized
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// Get retrieves a value from cache. Returns ErrKeyNotFound on a miss.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrInvalidKey
	}

	start := time.Now()
	raw, err := m.client.Get(ctx, key).Bytes()
	m.metrics.RecordGet(time.Since(start))

	if err == redis.Nil {
		m.metrics.RecordCacheMiss()
		if m.config.Logging.LogCacheMisses {
			m.logger.Debug("cache miss", "key", key)
		}
		return nil, ErrKeyNotFound
	}
	if err != nil {
		m.metrics.RecordCacheError()
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	value, err := m.unframe(raw)
	if err != nil {
		m.metrics.RecordCacheError()
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	m.metrics.RecordCacheHit()
	if m.config.Logging.LogCacheHits {
		m.logger.Debug("cache hit", "key", key)
	}
	return value, nil
}

// Set stores a value in cache with the default TTL
func (m *Manager) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithTTL(ctx, key, value, m.config.DefaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL
func (m *Manager) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}

	framed, err := m.frame(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	start := time.Now()
	err = m.client.Set(ctx, key, framed, ttl).Err()
	m.metrics.RecordSet(time.Since(start))
	if err != nil {
		m.metrics.RecordCacheError()
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete removes keys from cache
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	start := time.Now()
	err := m.del(ctx, m.client, keys)
	m.metrics.RecordDelete(time.Since(start))
	if err != nil {
		m.metrics.RecordCacheError()
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// InvalidatePattern removes keys matching a pattern using SCAN instead of KEYS
// SCAN is non-blocking and production-safe, unlike KEYS which blocks the Redis server
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	if m.clusterClient != nil {
		// keys are spread over shards, each master has its own cursor
		return m.clusterClient.ForEachMaster(ctx, func(ctx context.Context, shard *redis.Client) error {
			return m.scanDelete(ctx, shard, pattern)
		})
	}
	return m.scanDelete(ctx, m.client, pattern)
}

func (m *Manager) scanDelete(ctx context.Context, client redis.Cmdable, pattern string) error {
	var cursor uint64
	for {
		batch, next, err := client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}

		if len(batch) > 0 {
			if err := m.del(ctx, client, batch); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}
			m.metrics.RecordInvalidation()
			if m.config.Logging.LogInvalidations {
				m.logger.Debug("cache keys invalidated", "pattern", pattern, "count", len(batch))
			}
		}

		// cursor == 0 means we've iterated through all keys
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (m *Manager) del(ctx context.Context, client redis.Cmdable, keys []string) error {
	if m.clusterClient == nil {
		return client.Del(ctx, keys...).Err()
	}
	// keys may hash to different slots
	_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, key)
		}
		return nil
	})
	return err
}

// frame prefixes value with its encoding, gzipping values above the threshold
func (m *Manager) frame(value []byte) ([]byte, error) {
	lv := m.config.LargeValue
	if lv.MaxValueSize > 0 && len(value) > lv.MaxValueSize && !lv.EnableCompression {
		return nil, fmt.Errorf("value of %d bytes exceeds max_value_size", len(value))
	}

	if !lv.EnableCompression || lv.CompressThreshold <= 0 || len(value) < lv.CompressThreshold {
		return append([]byte{frameRaw}, value...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(frameGzip)
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(value); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	if lv.MaxValueSize > 0 && buf.Len() > lv.MaxValueSize {
		return nil, fmt.Errorf("compressed value of %d bytes exceeds max_value_size", buf.Len())
	}
	if saved := len(value) + 1 - buf.Len(); saved > 0 {
		m.metrics.RecordCompression(uint64(saved))
	}
	return buf.Bytes(), nil
}

func (m *Manager) unframe(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	switch raw[0] {
	case frameRaw:
		return raw[1:], nil
	case frameGzip:
		reader, err := gzip.NewReader(bytes.NewReader(raw[1:]))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)
	default:
		return nil, fmt.Errorf("unknown frame type %d", raw[0])
	}
}

// GetMetrics returns current cache performance metrics
func (m *Manager) GetMetrics() MetricsSnapshot {
	if m.metrics == nil {
		return MetricsSnapshot{}
	}
	return m.metrics.GetSnapshot()
}

// ResetMetrics resets all performance metrics counters
func (m *Manager) ResetMetrics() {
	if m.metrics != nil {
		m.metrics.Reset()
	}
}
