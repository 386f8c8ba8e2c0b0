// Package cache decorates model.Entity with a cache-aside strategy. Reads
// consult the cache before the store, writes go to the store and then
// invalidate. Cache failures are logged and never surface to callers.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ammar0144/model4go/pkg/model"
)

// Entity wraps a model.Entity with cache-aside reads. Point lookups are keyed
// by identifier; the uuid key maps to the identifier so an update only has to
// evict one record entry.
type Entity struct {
	base   *model.Entity
	store  Store
	keys   keyer
	ttls   TTLs
	logger *slog.Logger

	prefix   string
	cacheKey string
}

// Option configures an Entity
type Option func(*Entity)

// WithPrefix sets the key namespace. Defaults to DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(e *Entity) {
		e.prefix = prefix
	}
}

// WithCacheKey sets the per-entity key segment. Defaults to the table name.
func WithCacheKey(key string) Option {
	return func(e *Entity) {
		if key != "" {
			e.cacheKey = key
		}
	}
}

// WithTTLs overrides the TTL table; zero fields keep their defaults
func WithTTLs(ttls TTLs) Option {
	return func(e *Entity) {
		e.ttls = ttls.withDefaults()
	}
}

// WithLogger sets the structured logger. Defaults to the base entity's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Entity) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New decorates base with store
func New(base *model.Entity, store Store, opts ...Option) (*Entity, error) {
	if base == nil {
		return nil, &model.ValidationError{Field: "entity", Message: "cannot be nil"}
	}
	if store == nil {
		return nil, &model.ValidationError{Field: "cache store", Message: "cannot be nil"}
	}

	e := &Entity{
		base:     base,
		store:    store,
		ttls:     DefaultTTLs(),
		logger:   base.Logger(),
		prefix:   DefaultPrefix,
		cacheKey: base.Table(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.keys = newKeyer(e.prefix, e.cacheKey)
	return e, nil
}

// Base returns the undecorated entity
func (e *Entity) Base() *model.Entity {
	return e.base
}

// Table returns the bound table name
func (e *Entity) Table() string {
	return e.base.Table()
}

// TTLs returns the effective TTL table
func (e *Entity) TTLs() TTLs {
	return e.ttls
}

// Key returns the cache key for a record identifier
func (e *Entity) Key(id int64) string {
	return e.keys.id(id)
}

// Create inserts through the base entity and caches the new record
func (e *Entity) Create(ctx context.Context, attrs model.Record, actingUserID string) (model.Record, error) {
	rec, err := e.base.Create(ctx, attrs, actingUserID)
	if err != nil {
		return nil, err
	}

	if e.store.Ready() {
		e.putRecord(ctx, rec, e.ttls.Create)
		e.invalidateQueries(ctx)
	}
	return rec, nil
}

// CreateID inserts through the base entity without a read-back
func (e *Entity) CreateID(ctx context.Context, attrs model.Record, actingUserID string) (int64, error) {
	id, err := e.base.CreateID(ctx, attrs, actingUserID)
	if err != nil {
		return 0, err
	}

	if e.store.Ready() {
		e.invalidateQueries(ctx)
	}
	return id, nil
}

// FindByID reads the record from cache, falling back to the store on a miss
func (e *Entity) FindByID(ctx context.Context, id int64) (model.Record, bool, error) {
	if id <= 0 || !e.store.Ready() {
		return e.base.FindByID(ctx, id)
	}

	key := e.keys.id(id)
	if data := e.get(ctx, key); data != nil {
		rec, err := decodeRecord(data)
		if err == nil {
			// hits extend the entry's lifetime
			e.set(ctx, key, data, e.ttls.FindByID)
			return rec, true, nil
		}
		e.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
	}

	rec, found, err := e.base.FindByID(ctx, id)
	if err != nil || !found {
		return rec, found, err
	}
	e.putRecord(ctx, rec, e.ttls.FindByID)
	return rec, true, nil
}

// FindBySecondaryID resolves the uuid to an identifier through the cache, then
// reads the record as FindByID does
func (e *Entity) FindBySecondaryID(ctx context.Context, secondaryID string) (model.Record, bool, error) {
	if !e.store.Ready() {
		return e.base.FindBySecondaryID(ctx, secondaryID)
	}

	key := e.keys.uuid(secondaryID)
	if data := e.get(ctx, key); data != nil {
		if ids, err := decodeIDs(data); err == nil && len(ids) == 1 {
			rec, found, err := e.FindByID(ctx, ids[0])
			if err != nil || found {
				return rec, found, err
			}
		}
		// a stale mapping falls through to the store
	}

	rec, found, err := e.base.FindBySecondaryID(ctx, secondaryID)
	if err != nil || !found {
		return rec, found, err
	}
	e.putRecord(ctx, rec, e.ttls.FindBySecondaryID)
	return rec, true, nil
}

// FindWhere caches the result set of criteria under the summary TTL
func (e *Entity) FindWhere(ctx context.Context, criteria model.Criteria) ([]model.Record, error) {
	if !e.store.Ready() || !validCriteria(criteria) {
		return e.base.FindWhere(ctx, criteria)
	}

	key := e.keys.where(criteria)
	if data := e.get(ctx, key); data != nil {
		if records, err := decodeRecords(data); err == nil {
			return records, nil
		}
	}

	records, err := e.base.FindWhere(ctx, criteria)
	if err != nil {
		return nil, err
	}
	if data, err := encodeRecords(records); err == nil {
		e.set(ctx, key, data, e.ttls.Summary)
	}
	return records, nil
}

// FindIDsByParentReference caches child identifier lists per parent
func (e *Entity) FindIDsByParentReference(ctx context.Context, parentID int64, parentTable string) ([]int64, error) {
	if !e.store.Ready() || parentID <= 0 || !model.ValidIdentifier(parentTable) {
		return e.base.FindIDsByParentReference(ctx, parentID, parentTable)
	}

	key := e.keys.parent(parentTable, parentID)
	if data := e.get(ctx, key); data != nil {
		if ids, err := decodeIDs(data); err == nil {
			return ids, nil
		}
	}

	ids, err := e.base.FindIDsByParentReference(ctx, parentID, parentTable)
	if err != nil {
		return nil, err
	}
	if data, err := encodeIDs(ids); err == nil {
		e.set(ctx, key, data, e.ttls.FindIDsByParentReference)
	}
	return ids, nil
}

// Update writes through the base entity and evicts the record
func (e *Entity) Update(ctx context.Context, id int64, attrs model.Record, actingUserID string) (int64, error) {
	updated, err := e.base.Update(ctx, id, attrs, actingUserID)
	if err != nil {
		return 0, err
	}

	if e.store.Ready() {
		e.del(ctx, e.keys.id(id))
		e.invalidateQueries(ctx)
	}
	return updated, nil
}

// Delete requires the record to exist in the store, deletes it through the
// base entity and evicts its entries whether the delete was soft or hard. A
// cascade also drops the query entries of every descendant table cached under
// its table name; their id entries expire by TTL.
func (e *Entity) Delete(ctx context.Context, id int64, actingUserID string, opts model.DeleteOptions) error {
	rec, found, err := e.base.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return &model.NotFoundError{Table: e.base.Table(), ID: id}
	}

	err = e.base.Delete(ctx, id, actingUserID, opts)

	// evict even on failure, the cascade may have committed part of its writes
	if e.store.Ready() {
		keys := []string{e.keys.id(id)}
		if u := rec.UUID(); u != "" {
			keys = append(keys, e.keys.uuid(u))
		}
		e.del(ctx, keys...)
		e.invalidateQueries(ctx)
		if !opts.SkipAssociationRecords {
			e.invalidateDescendants(ctx)
		}
	}
	return err
}

// AddAssociation delegates to the base entity. Junction rows are not cached.
func (e *Entity) AddAssociation(ctx context.Context, id int64, actingUserID string, associateIDs []int64, associateTable string, fields ...model.Record) ([]int64, error) {
	return e.base.AddAssociation(ctx, id, actingUserID, associateIDs, associateTable, fields...)
}

func (e *Entity) putRecord(ctx context.Context, rec model.Record, ttl time.Duration) {
	data, err := encodeRecord(rec)
	if err != nil {
		e.logger.Warn("failed to encode record for cache", "id", rec.ID(), "error", err)
		return
	}
	e.set(ctx, e.keys.id(rec.ID()), data, ttl)

	if u := rec.UUID(); u != "" {
		if ref, err := encodeIDs([]int64{rec.ID()}); err == nil {
			e.set(ctx, e.keys.uuid(u), ref, ttl)
		}
	}
}

func (e *Entity) invalidateQueries(ctx context.Context) {
	e.dropQueries(ctx, e.keys)
}

func (e *Entity) dropQueries(ctx context.Context, keys keyer) {
	for _, kind := range []string{kindWhere, kindParent} {
		if err := e.store.DeletePrefix(ctx, keys.prefix(kind)); err != nil {
			e.logger.Warn("cache invalidation failed", "prefix", keys.prefix(kind), "error", err)
		}
	}
}

// invalidateDescendants walks the child graph breadth first
func (e *Entity) invalidateDescendants(ctx context.Context) {
	seen := map[string]struct{}{e.base.Table(): {}}
	queue := []*model.Entity{e.base}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for table, child := range current.Children() {
			if _, ok := seen[table]; ok {
				continue
			}
			seen[table] = struct{}{}
			queue = append(queue, child)
			e.dropQueries(ctx, newKeyer(e.prefix, table))
		}
	}
}

func (e *Entity) get(ctx context.Context, key string) []byte {
	data, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.Warn("cache read failed", "key", key, "error", err)
		return nil
	}
	return data
}

func (e *Entity) set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if err := e.store.Set(ctx, key, data, ttl); err != nil {
		e.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (e *Entity) del(ctx context.Context, keys ...string) {
	if err := e.store.Delete(ctx, keys...); err != nil {
		e.logger.Warn("cache eviction failed", "keys", keys, "error", err)
	}
}

func validCriteria(criteria model.Criteria) bool {
	for k := range criteria {
		if !model.ValidIdentifier(k) {
			return false
		}
	}
	return true
}

// String describes the decorator for logs
func (e *Entity) String() string {
	return fmt.Sprintf("cache.Entity(%s)", e.keys.base)
}
