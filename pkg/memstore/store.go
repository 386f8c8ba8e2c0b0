// Package memstore provides an in-memory model.Store. It backs tests and
// embedded use, and counts calls per operation so callers can assert which
// reads reached the store.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/ammar0144/model4go/pkg/model"
)

// Operation names reported by Calls
const (
	OpSelect      = "select"
	OpInsert      = "insert"
	OpInsertBatch = "insert_batch"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpTransaction = "transaction"
)

type table struct {
	rows   map[int64]model.Record
	nextID int64
}

func (t *table) clone() *table {
	out := &table{rows: make(map[int64]model.Record, len(t.rows)), nextID: t.nextID}
	for id, row := range t.rows {
		out.rows[id] = row.Clone()
	}
	return out
}

// Store is a transactional in-memory store keyed by table name. A
// transaction holds the write lock until it commits or rolls back, so other
// callers never observe or lose writes to its staged state.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table

	callsMu  sync.Mutex
	calls    map[string]int
	failures map[string]error
}

var _ model.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		tables:   make(map[string]*table),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

// Calls returns how many times op has been invoked
func (s *Store) Calls(op string) int {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	return s.calls[op]
}

// ResetCalls zeroes every call counter
func (s *Store) ResetCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.calls = make(map[string]int)
}

// Fail makes every later call to op return err. A nil err clears the failure.
func (s *Store) Fail(op string, err error) {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) record(op string) error {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.calls[op]++
	return s.failures[op]
}

// Rows returns every row of tableName, soft-deleted ones included, ordered by id
func (s *Store) Rows(tableName string) []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectLocked(tableName, nil)
}

// Select implements model.Store
func (s *Store) Select(ctx context.Context, tableName string, where model.Criteria, columns ...string) ([]model.Record, error) {
	if err := s.begin(ctx, OpSelect); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return project(s.selectLocked(tableName, where), columns), nil
}

func project(rows []model.Record, columns []string) []model.Record {
	if len(columns) == 0 {
		return rows
	}
	for i, row := range rows {
		projected := make(model.Record, len(columns))
		for _, col := range columns {
			if v, ok := row[col]; ok {
				projected[col] = v
			}
		}
		rows[i] = projected
	}
	return rows
}

func (s *Store) selectLocked(tableName string, where model.Criteria) []model.Record {
	t, ok := s.tables[tableName]
	if !ok {
		return []model.Record{}
	}

	out := make([]model.Record, 0, len(t.rows))
	for _, row := range t.rows {
		if matches(row, where) {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Insert implements model.Store
func (s *Store) Insert(ctx context.Context, tableName string, row model.Record) (int64, error) {
	if err := s.begin(ctx, OpInsert); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(tableName, row)
}

// InsertBatch implements model.Store
func (s *Store) InsertBatch(ctx context.Context, tableName string, rows []model.Record) ([]int64, error) {
	if err := s.begin(ctx, OpInsertBatch); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertBatchLocked(tableName, rows)
}

func (s *Store) insertBatchLocked(tableName string, rows []model.Record) ([]int64, error) {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		id, err := s.insertLocked(tableName, row)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) insertLocked(tableName string, row model.Record) (int64, error) {
	t, ok := s.tables[tableName]
	if !ok {
		t = &table{rows: make(map[int64]model.Record)}
		s.tables[tableName] = t
	}

	stored := row.Clone()
	id := stored.ID()
	if id <= 0 {
		t.nextID++
		id = t.nextID
	} else if _, exists := t.rows[id]; exists {
		return 0, fmt.Errorf("memstore: duplicate id %d in %s", id, tableName)
	} else if id > t.nextID {
		t.nextID = id
	}

	stored[model.ColumnID] = id
	t.rows[id] = stored
	return id, nil
}

// Update implements model.Store
func (s *Store) Update(ctx context.Context, tableName string, where model.Criteria, attrs model.Record) (int64, error) {
	if err := s.begin(ctx, OpUpdate); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(tableName, where, attrs)
}

func (s *Store) updateLocked(tableName string, where model.Criteria, attrs model.Record) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("memstore: refusing unfiltered update of %s", tableName)
	}

	t, ok := s.tables[tableName]
	if !ok {
		return 0, nil
	}

	var n int64
	for _, row := range t.rows {
		if !matches(row, where) {
			continue
		}
		for k, v := range attrs {
			if k == model.ColumnID {
				continue
			}
			row[k] = v
		}
		n++
	}
	return n, nil
}

// Delete implements model.Store
func (s *Store) Delete(ctx context.Context, tableName string, where ...model.Criteria) (int64, error) {
	if err := s.begin(ctx, OpDelete); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(tableName, where)
}

func (s *Store) deleteLocked(tableName string, where []model.Criteria) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("memstore: refusing unfiltered delete of %s", tableName)
	}
	for _, c := range where {
		if len(c) == 0 {
			return 0, fmt.Errorf("memstore: refusing unfiltered delete of %s", tableName)
		}
	}

	t, ok := s.tables[tableName]
	if !ok {
		return 0, nil
	}

	var n int64
	for id, row := range t.rows {
		for _, c := range where {
			if matches(row, c) {
				delete(t.rows, id)
				n++
				break
			}
		}
	}
	return n, nil
}

// Transaction implements model.Store. fn runs with the write lock held and
// must only use the tx it is given; a failed fn restores the state captured
// when the transaction began.
func (s *Store) Transaction(ctx context.Context, fn func(tx model.Store) error) error {
	if err := s.begin(ctx, OpTransaction); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	if err := fn(&tx{s: s}); err != nil {
		s.tables = snapshot
		return err
	}
	return nil
}

func (s *Store) snapshotLocked() map[string]*table {
	out := make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		out[name] = t.clone()
	}
	return out
}

// tx is the view handed to a transaction body. The store's write lock is
// already held, so its methods skip locking.
type tx struct {
	s *Store
}

var _ model.Store = (*tx)(nil)

func (t *tx) Select(ctx context.Context, tableName string, where model.Criteria, columns ...string) ([]model.Record, error) {
	if err := t.s.begin(ctx, OpSelect); err != nil {
		return nil, err
	}
	return project(t.s.selectLocked(tableName, where), columns), nil
}

func (t *tx) Insert(ctx context.Context, tableName string, row model.Record) (int64, error) {
	if err := t.s.begin(ctx, OpInsert); err != nil {
		return 0, err
	}
	return t.s.insertLocked(tableName, row)
}

func (t *tx) InsertBatch(ctx context.Context, tableName string, rows []model.Record) ([]int64, error) {
	if err := t.s.begin(ctx, OpInsertBatch); err != nil {
		return nil, err
	}
	return t.s.insertBatchLocked(tableName, rows)
}

func (t *tx) Update(ctx context.Context, tableName string, where model.Criteria, attrs model.Record) (int64, error) {
	if err := t.s.begin(ctx, OpUpdate); err != nil {
		return 0, err
	}
	return t.s.updateLocked(tableName, where, attrs)
}

func (t *tx) Delete(ctx context.Context, tableName string, where ...model.Criteria) (int64, error) {
	if err := t.s.begin(ctx, OpDelete); err != nil {
		return 0, err
	}
	return t.s.deleteLocked(tableName, where)
}

// Transaction nests flat: the body joins the enclosing transaction
func (t *tx) Transaction(ctx context.Context, fn func(tx model.Store) error) error {
	if err := t.s.begin(ctx, OpTransaction); err != nil {
		return err
	}
	return fn(t)
}

func (s *Store) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.record(op)
}

func matches(row model.Record, where model.Criteria) bool {
	for col, want := range where {
		if !equal(row[col], want) {
			return false
		}
	}
	return true
}

// equal compares a stored value with a criteria value. A slice criteria value
// matches any of its elements.
func equal(got, want any) bool {
	if rv := reflect.ValueOf(want); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			if equal(got, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}

	switch w := want.(type) {
	case nil:
		return got == nil
	case bool:
		return model.Record{model.ColumnDeleted: got}.Deleted() == w
	case string:
		g, ok := got.(string)
		return ok && g == w
	case time.Time:
		g, ok := got.(time.Time)
		return ok && g.Equal(w)
	}

	if wn, ok := model.ToInt64(want); ok {
		gn, ok := model.ToInt64(got)
		return ok && gn == wn
	}
	return reflect.DeepEqual(got, want)
}
