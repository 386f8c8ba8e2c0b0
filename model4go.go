// Package model4go provides a relational data-access layer over GORM with
// declared relationships, cascading deletes, many-to-many association
// management and optional cache-aside reads backed by Redis.
package model4go

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ammar0144/model4go/pkg/cache"
	"github.com/ammar0144/model4go/pkg/config"
	"github.com/ammar0144/model4go/pkg/db"
	"github.com/ammar0144/model4go/pkg/model"
	"github.com/ammar0144/model4go/pkg/redis"
)

// Config represents the full configuration document
type Config = config.Config

// Record is a row keyed by column name
type Record = model.Record

// Criteria is an equality filter; slice values match with IN
type Criteria = model.Criteria

// DeleteOptions selects soft or hard delete and whether to cascade
type DeleteOptions = model.DeleteOptions

// LoadConfig reads a YAML configuration file
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Database is the registry of entities sharing one relational store and an
// optional cache store
type Database struct {
	store      model.Store
	cacheStore cache.Store
	logger     *slog.Logger
	entityOpts []model.Option
	cacheOpts  []cache.Option

	ping    func(ctx context.Context) error
	closers []func() error

	mu       sync.RWMutex
	entities map[string]*model.Entity
	sealed   bool
}

// Option configures a Database
type Option func(*Database)

// WithLogger sets the logger handed to every entity
func WithLogger(logger *slog.Logger) Option {
	return func(d *Database) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithEntityOptions appends options applied to every entity built by NewEntity
func WithEntityOptions(opts ...model.Option) Option {
	return func(d *Database) {
		d.entityOpts = append(d.entityOpts, opts...)
	}
}

// WithCacheOptions appends options applied to every cached entity
func WithCacheOptions(opts ...cache.Option) Option {
	return func(d *Database) {
		d.cacheOpts = append(d.cacheOpts, opts...)
	}
}

// NewDatabase creates a registry over store. cacheStore may be nil, in which
// case NewCachedEntity fails.
func NewDatabase(store model.Store, cacheStore cache.Store, opts ...Option) (*Database, error) {
	if store == nil {
		return nil, &model.ValidationError{Field: "store", Message: "cannot be nil"}
	}

	d := &Database{
		store:      store,
		cacheStore: cacheStore,
		logger:     slog.Default(),
		entities:   make(map[string]*model.Entity),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Open connects to MySQL and, depending on cfg.Cache.Backend, to Redis or an
// in-process cache. An unreachable Redis does not fail Open: cached entities
// read through to MySQL until the readiness monitor sees Redis come back.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Database, error) {
	if cfg == nil {
		return nil, &model.ValidationError{Field: "config", Message: "cannot be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	manager, err := db.NewManager(&cfg.Database)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	closers = append(closers, manager.Close)

	cacheStore, cacheClosers, err := openCache(ctx, cfg)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}
	closers = append(cacheClosers, closers...)

	opts = append([]Option{WithCacheOptions(cache.WithPrefix(cfg.Cache.Prefix), cache.WithTTLs(cfg.Cache.TTLs))}, opts...)
	d, err := NewDatabase(db.NewStore(manager), cacheStore, opts...)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	d.ping = manager.Ping
	d.closers = closers
	return d, nil
}

func openCache(ctx context.Context, cfg *Config) (cache.Store, []func() error, error) {
	switch cfg.Cache.Backend {
	case cache.BackendLocal:
		store, err := cache.NewLocalStore(cfg.Cache.Local)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case cache.BackendRedis:
		manager, err := redis.NewManager(&cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		if err := manager.Ping(ctx); err != nil {
			slog.Warn("redis unavailable at startup, reads go to the database", "error", err)
		}

		monitorCtx, cancel := context.WithCancel(context.Background())
		go manager.Monitor(monitorCtx, cfg.Redis.HealthCheckInterval)

		closeRedis := func() error {
			cancel()
			return manager.Close()
		}
		return cache.NewRedisStore(manager), []func() error{closeRedis}, nil

	default:
		return nil, nil, nil
	}
}

// Store returns the relational store
func (d *Database) Store() model.Store {
	return d.store
}

// Register adds e under key. Keys are unique.
func (d *Database) Register(key string, e *model.Entity) error {
	if e == nil {
		return &model.ValidationError{Field: "entity", Message: "cannot be nil"}
	}
	if !model.ValidIdentifier(key) {
		return &model.ValidationError{Field: "key", Message: fmt.Sprintf("invalid identifier %q", key)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sealed {
		return &model.ConfigurationError{Table: e.Table(), Message: "database is sealed"}
	}
	if _, exists := d.entities[key]; exists {
		return &model.ConfigurationError{Table: e.Table(), Message: fmt.Sprintf("key %q already registered", key)}
	}
	d.entities[key] = e
	return nil
}

// Entity returns the entity registered under key
func (d *Database) Entity(key string) (*model.Entity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entities[key]
	return e, ok
}

// NewEntity builds an entity for table and registers it under the table name
func (d *Database) NewEntity(table string, opts ...model.Option) (*model.Entity, error) {
	all := append([]model.Option{model.WithLogger(d.logger.With("table", table))}, d.entityOpts...)
	all = append(all, opts...)

	e, err := model.New(d.store, table, all...)
	if err != nil {
		return nil, err
	}
	if err := d.Register(table, e); err != nil {
		return nil, err
	}
	return e, nil
}

// NewCachedEntity wraps the entity registered under table, creating it first
// when absent, with the database's cache store
func (d *Database) NewCachedEntity(table string, opts ...cache.Option) (*cache.Entity, error) {
	if d.cacheStore == nil {
		return nil, &model.ConfigurationError{Table: table, Message: "no cache store configured"}
	}

	base, ok := d.Entity(table)
	if !ok {
		var err error
		if base, err = d.NewEntity(table); err != nil {
			return nil, err
		}
	}

	all := append(append([]cache.Option{}, d.cacheOpts...), opts...)
	return cache.New(base, d.cacheStore, all...)
}

// OneToMany declares that rows of childKey reference parentKey through fk
func (d *Database) OneToMany(parentKey, childKey, foreignKey string, where model.Criteria) error {
	parent, child, err := d.pair(parentKey, childKey)
	if err != nil {
		return err
	}
	return model.OneToMany(parent, child, foreignKey, where)
}

// ManyToMany declares a junction table linking firstKey and secondKey
func (d *Database) ManyToMany(firstKey, secondKey, junction, firstColumn, secondColumn string, fields ...string) error {
	first, second, err := d.pair(firstKey, secondKey)
	if err != nil {
		return err
	}
	return model.ManyToMany(first, second, junction, firstColumn, secondColumn, fields...)
}

func (d *Database) pair(a, b string) (*model.Entity, *model.Entity, error) {
	first, ok := d.Entity(a)
	if !ok {
		return nil, nil, &model.ConfigurationError{Table: a, Message: "not registered"}
	}
	second, ok := d.Entity(b)
	if !ok {
		return nil, nil, &model.ConfigurationError{Table: b, Message: "not registered"}
	}
	return first, second, nil
}

// Seal ends the registration phase. It fails when the parent/child graph has
// a cycle; otherwise every registered entity is sealed.
func (d *Database) Seal() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sealed {
		return nil
	}
	if err := d.checkCycles(); err != nil {
		return err
	}
	for _, e := range d.entities {
		e.Seal()
	}
	d.sealed = true
	return nil
}

const (
	unvisited = iota
	visiting
	done
)

func (d *Database) checkCycles() error {
	state := make(map[string]int)

	var visit func(e *model.Entity, path []string) error
	visit = func(e *model.Entity, path []string) error {
		table := e.Table()
		switch state[table] {
		case visiting:
			return &model.ConfigurationError{Table: table, Message: fmt.Sprintf("cyclic parent/child relationship: %v", append(path, table))}
		case done:
			return nil
		}

		state[table] = visiting
		children := e.Children()
		names := make([]string, 0, len(children))
		for name := range children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := visit(children[name], append(path, table)); err != nil {
				return err
			}
		}
		state[table] = done
		return nil
	}

	keys := make([]string, 0, len(d.entities))
	for key := range d.entities {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := visit(d.entities[key], nil); err != nil {
			return err
		}
	}
	return nil
}

// Sealed reports whether Seal has succeeded
func (d *Database) Sealed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sealed
}

// IsSQLReady reports whether the relational store answers a ping. Stores
// without a ping are assumed ready.
func (d *Database) IsSQLReady(ctx context.Context) bool {
	if d.ping == nil {
		return true
	}
	if err := d.ping(ctx); err != nil {
		d.logger.Warn("database ping failed", "error", err)
		return false
	}
	return true
}

// IsCacheReady reports whether cached entities currently consult the cache
func (d *Database) IsCacheReady() bool {
	return d.cacheStore != nil && d.cacheStore.Ready()
}

// Close releases the cache and database connections
func (d *Database) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
