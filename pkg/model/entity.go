package model

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const defaultConcurrency = 8

// ParentRef describes how an entity's rows point at a parent table
type ParentRef struct {
	Parent     *Entity
	ForeignKey string
	Where      Criteria // extra equality filter applied on top of ForeignKey
}

// Association describes a many-to-many edge seen from one side
type Association struct {
	Other         *Entity
	JunctionTable string
	ThisKey       string   // junction column holding this entity's id
	OtherKey      string   // junction column holding the associate's id
	Fields        []string // extra junction columns copied from caller input
}

// relations is an immutable snapshot, replaced wholesale on registration
type relations struct {
	children   map[string]*Entity
	parents    map[string]ParentRef
	associates map[string]Association
}

func (r *relations) clone() *relations {
	out := &relations{
		children:   make(map[string]*Entity, len(r.children)+1),
		parents:    make(map[string]ParentRef, len(r.parents)+1),
		associates: make(map[string]Association, len(r.associates)+1),
	}
	for k, v := range r.children {
		out.children[k] = v
	}
	for k, v := range r.parents {
		out.parents[k] = v
	}
	for k, v := range r.associates {
		out.associates[k] = v
	}
	return out
}

// Entity is a table-bound record type with soft/hard delete, relationship
// registration, cascading delete and association replacement
type Entity struct {
	table       string
	store       Store
	logger      *slog.Logger
	clock       *Clock
	newUUID     func() string
	concurrency int

	mu     sync.Mutex // serialises registration writers
	rels   atomic.Pointer[relations]
	sealed atomic.Bool
}

// Option configures an Entity
type Option func(*Entity)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Entity) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the clock used for last_modified_at
func WithClock(clock *Clock) Option {
	return func(e *Entity) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithUUIDGenerator overrides secondary identifier generation
func WithUUIDGenerator(fn func() string) Option {
	return func(e *Entity) {
		if fn != nil {
			e.newUUID = fn
		}
	}
}

// WithConcurrency bounds the fan-out of cascading deletes
func WithConcurrency(n int) Option {
	return func(e *Entity) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an entity bound to table
func New(store Store, table string, opts ...Option) (*Entity, error) {
	if store == nil {
		return nil, &ValidationError{Field: "store", Message: "cannot be nil"}
	}
	if err := validateIdentifier("table", table); err != nil {
		return nil, err
	}

	e := &Entity{
		table:       table,
		store:       store,
		logger:      slog.Default(),
		clock:       defaultClock,
		newUUID:     uuid.NewString,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("table", table)
	e.rels.Store(&relations{
		children:   map[string]*Entity{},
		parents:    map[string]ParentRef{},
		associates: map[string]Association{},
	})

	return e, nil
}

// Table returns the bound table name
func (e *Entity) Table() string {
	return e.table
}

// Store returns the relational store the entity writes through
func (e *Entity) Store() Store {
	return e.store
}

// Logger returns the entity's logger
func (e *Entity) Logger() *slog.Logger {
	return e.logger
}

// Seal ends the registration phase. Later registration calls fail.
func (e *Entity) Seal() {
	e.sealed.Store(true)
}

// Sealed reports whether Seal has been called
func (e *Entity) Sealed() bool {
	return e.sealed.Load()
}

// Children returns registered child entities keyed by table name
func (e *Entity) Children() map[string]*Entity {
	return e.rels.Load().clone().children
}

// Parents returns registered parent references keyed by parent table name
func (e *Entity) Parents() map[string]ParentRef {
	return e.rels.Load().clone().parents
}

// Associates returns registered associations keyed by associate table name
func (e *Entity) Associates() map[string]Association {
	return e.rels.Load().clone().associates
}

// Parent returns the parent reference registered for table
func (e *Entity) Parent(table string) (ParentRef, bool) {
	ref, ok := e.rels.Load().parents[table]
	return ref, ok
}

// Associate returns the association registered for table
func (e *Entity) Associate(table string) (Association, bool) {
	assoc, ok := e.rels.Load().associates[table]
	return assoc, ok
}

// RegisterChild makes child a dependent of e through foreignKey. child gains
// the matching parent reference.
func (e *Entity) RegisterChild(child *Entity, foreignKey string, where Criteria) error {
	if child == nil {
		return &ValidationError{Field: "child", Message: "must be a constructed entity"}
	}
	if err := validateIdentifier("foreign key", foreignKey); err != nil {
		return err
	}
	if err := validateKeys("parent filter", where); err != nil {
		return err
	}
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := child.checkOpen(); err != nil {
		return err
	}

	e.mutate(func(r *relations) {
		if _, ok := r.children[child.table]; ok {
			e.logger.Warn("overwriting child relationship", "child", child.table)
		}
		r.children[child.table] = child
	})
	child.mutate(func(r *relations) {
		if _, ok := r.parents[e.table]; ok {
			child.logger.Warn("overwriting parent relationship", "parent", e.table)
		}
		r.parents[e.table] = ParentRef{Parent: e, ForeignKey: foreignKey, Where: where.Clone()}
	})
	return nil
}

// RegisterParent is RegisterChild seen from the child side
func (e *Entity) RegisterParent(parent *Entity, foreignKey string, where Criteria) error {
	if parent == nil {
		return &ValidationError{Field: "parent", Message: "must be a constructed entity"}
	}
	return parent.RegisterChild(e, foreignKey, where)
}

// RegisterAssociate links e and other through junction. thisKey holds e's
// identifier, otherKey holds other's. Both sides are updated.
func (e *Entity) RegisterAssociate(other *Entity, junction, thisKey, otherKey string, fields ...string) error {
	if other == nil {
		return &ValidationError{Field: "associate", Message: "must be a constructed entity"}
	}
	if err := validateIdentifier("junction table", junction); err != nil {
		return err
	}
	if err := validateIdentifier("key", thisKey); err != nil {
		return err
	}
	if err := validateIdentifier("key", otherKey); err != nil {
		return err
	}
	if thisKey == otherKey {
		return &ValidationError{Field: "key", Message: "junction keys must differ"}
	}
	for _, f := range fields {
		if err := validateIdentifier("association field", f); err != nil {
			return err
		}
	}
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := other.checkOpen(); err != nil {
		return err
	}

	declared := append([]string(nil), fields...)
	e.setAssociate(Association{Other: other, JunctionTable: junction, ThisKey: thisKey, OtherKey: otherKey, Fields: declared})
	other.setAssociate(Association{Other: e, JunctionTable: junction, ThisKey: otherKey, OtherKey: thisKey, Fields: declared})
	return nil
}

func (e *Entity) setAssociate(assoc Association) {
	e.mutate(func(r *relations) {
		if _, ok := r.associates[assoc.Other.table]; ok {
			e.logger.Warn("overwriting associate relationship", "associate", assoc.Other.table)
		}
		r.associates[assoc.Other.table] = assoc
	})
}

func (e *Entity) mutate(fn func(r *relations)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.rels.Load().clone()
	fn(next)
	e.rels.Store(next)
}

func (e *Entity) checkOpen() error {
	if e.sealed.Load() {
		return &ConfigurationError{Table: e.table, Message: "relationships are sealed"}
	}
	return nil
}

// OneToMany registers child as a dependent of parent
func OneToMany(parent, child *Entity, foreignKey string, where Criteria) error {
	if parent == nil {
		return &ValidationError{Field: "parent", Message: "must be a constructed entity"}
	}
	return parent.RegisterChild(child, foreignKey, where)
}

// ManyToMany links first and second through junction. firstKey holds first's
// identifier and secondKey holds second's.
func ManyToMany(first, second *Entity, junction, firstKey, secondKey string, fields ...string) error {
	if first == nil {
		return &ValidationError{Field: "associate", Message: "must be a constructed entity"}
	}
	return first.RegisterAssociate(second, junction, firstKey, secondKey, fields...)
}
