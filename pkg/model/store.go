package model

import "context"

// Store is the relational store adapter consumed by Entity. Every statement
// targets a single table; joins only happen through explicit junction-table
// operations issued by Entity itself.
type Store interface {
	// Select returns rows of table matching where. When columns is empty every
	// column is returned.
	Select(ctx context.Context, table string, where Criteria, columns ...string) ([]Record, error)

	// Insert writes one row and returns the generated identifier
	Insert(ctx context.Context, table string, row Record) (int64, error)

	// InsertBatch writes rows in one statement and returns their identifiers in
	// input order
	InsertBatch(ctx context.Context, table string, rows []Record) ([]int64, error)

	// Update applies attrs to every row matching where and returns the number of
	// affected rows
	Update(ctx context.Context, table string, where Criteria, attrs Record) (int64, error)

	// Delete physically removes rows matching any of the given criteria. At
	// least one non-empty criteria is required.
	Delete(ctx context.Context, table string, where ...Criteria) (int64, error)

	// Transaction runs fn against a store bound to a single transaction,
	// committing when fn returns nil
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
