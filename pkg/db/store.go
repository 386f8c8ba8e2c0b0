package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ammar0144/model4go/pkg/model"
)

// GormStore implements model.Store on top of a GORM connection. Statements are
// built from table names and criteria maps, so no GORM models are needed.
type GormStore struct {
	db      *gorm.DB
	timeout func(ctx context.Context) (context.Context, context.CancelFunc)
}

var _ model.Store = (*GormStore)(nil)

// NewStore creates a store bound to the manager's connection and query timeout
func NewStore(manager *Manager) *GormStore {
	return &GormStore{
		db:      manager.DB(),
		timeout: manager.withQueryTimeout,
	}
}

// withQueryTimeout wraps a context with the configured query timeout
func (m *Manager) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config != nil && m.config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, m.config.QueryTimeout)
	}
	return ctx, func() {}
}

// Select implements model.Store
func (s *GormStore) Select(ctx context.Context, table string, where model.Criteria, columns ...string) ([]model.Record, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	query := s.db.WithContext(ctx).Table(table)
	if len(columns) > 0 {
		query = query.Select(columns)
	}
	if len(where) > 0 {
		query = query.Where(map[string]interface{}(where))
	}

	var rows []map[string]interface{}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}

	records := make([]model.Record, len(rows))
	for i, row := range rows {
		records[i] = model.Record(row)
	}
	return records, nil
}

// Insert implements model.Store
func (s *GormStore) Insert(ctx context.Context, table string, row model.Record) (int64, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	// map creates do not back-fill the primary key, so the statement is built
	// dry and executed on the same connection pool to read LastInsertId
	stmt := s.db.Session(&gorm.Session{DryRun: true, SkipDefaultTransaction: true}).Table(table).Create(map[string]interface{}(row)).Statement
	if stmt.Error != nil {
		return 0, fmt.Errorf("build insert into %s: %w", table, stmt.Error)
	}

	result, err := s.db.Statement.ConnPool.ExecContext(ctx, stmt.SQL.String(), stmt.Vars...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return id, nil
}

// InsertBatch implements model.Store. Identifiers are resolved through the
// uuid column when every row carries one, otherwise from the first generated
// identifier.
func (s *GormStore) InsertBatch(ctx context.Context, table string, rows []model.Record) ([]int64, error) {
	if len(rows) == 0 {
		return []int64{}, nil
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()

	values := make([]map[string]interface{}, len(rows))
	uuids := make([]string, 0, len(rows))
	for i, row := range rows {
		values[i] = map[string]interface{}(row)
		if u := row.UUID(); u != "" {
			uuids = append(uuids, u)
		}
	}

	stmt := s.db.Session(&gorm.Session{DryRun: true, SkipDefaultTransaction: true}).Table(table).Create(values).Statement
	if stmt.Error != nil {
		return nil, fmt.Errorf("build batch insert into %s: %w", table, stmt.Error)
	}

	result, err := s.db.Statement.ConnPool.ExecContext(ctx, stmt.SQL.String(), stmt.Vars...)
	if err != nil {
		return nil, fmt.Errorf("batch insert into %s: %w", table, err)
	}

	if len(uuids) == len(rows) {
		return s.resolveIDs(ctx, table, uuids)
	}

	// MySQL reports the first identifier of a multi-row insert
	first, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("batch insert into %s: %w", table, err)
	}
	ids := make([]int64, len(rows))
	for i := range ids {
		ids[i] = first + int64(i)
	}
	return ids, nil
}

func (s *GormStore) resolveIDs(ctx context.Context, table string, uuids []string) ([]int64, error) {
	var found []map[string]interface{}
	err := s.db.WithContext(ctx).Table(table).
		Select([]string{model.ColumnID, model.ColumnUUID}).
		Where(map[string]interface{}{model.ColumnUUID: uuids}).
		Find(&found).Error
	if err != nil {
		return nil, fmt.Errorf("resolve ids in %s: %w", table, err)
	}

	byUUID := make(map[string]int64, len(found))
	for _, row := range found {
		rec := model.Record(row)
		byUUID[rec.UUID()] = rec.ID()
	}

	ids := make([]int64, len(uuids))
	for i, u := range uuids {
		id, ok := byUUID[u]
		if !ok {
			return nil, fmt.Errorf("resolve ids in %s: inserted row %s not found", table, u)
		}
		ids[i] = id
	}
	return ids, nil
}

// Update implements model.Store
func (s *GormStore) Update(ctx context.Context, table string, where model.Criteria, attrs model.Record) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("update %s: %w", table, gorm.ErrMissingWhereClause)
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()

	result := s.db.WithContext(ctx).Table(table).
		Where(map[string]interface{}(where)).
		Updates(map[string]interface{}(attrs))
	if result.Error != nil {
		return 0, fmt.Errorf("update %s: %w", table, result.Error)
	}
	return result.RowsAffected, nil
}

// Delete implements model.Store. Criteria are ORed together.
func (s *GormStore) Delete(ctx context.Context, table string, where ...model.Criteria) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("delete from %s: %w", table, gorm.ErrMissingWhereClause)
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()

	query := s.db.WithContext(ctx).Table(table)
	for i, c := range where {
		if len(c) == 0 {
			return 0, fmt.Errorf("delete from %s: %w", table, gorm.ErrMissingWhereClause)
		}
		if i == 0 {
			query = query.Where(map[string]interface{}(c))
		} else {
			query = query.Or(map[string]interface{}(c))
		}
	}

	result := query.Delete(map[string]interface{}{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, result.Error)
	}
	return result.RowsAffected, nil
}

// Transaction implements model.Store
func (s *GormStore) Transaction(ctx context.Context, fn func(tx model.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, timeout: s.timeout})
	})
}
