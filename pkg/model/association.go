package model

import (
	"context"
	"fmt"
)

// AddAssociation replaces every link between id and rows of associateTable
// with links to associateIDs, in one transaction. fields carries optional
// extra junction columns, matched to a pair by the associate key value. It
// returns the identifiers of the inserted junction rows in associateIDs order.
func (e *Entity) AddAssociation(ctx context.Context, id int64, actingUserID string, associateIDs []int64, associateTable string, fields ...Record) ([]int64, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if err := validateActingUser(actingUserID); err != nil {
		return nil, err
	}
	if err := validateIdentifier("associate table", associateTable); err != nil {
		return nil, err
	}
	for _, other := range associateIDs {
		if err := validateID("associate id", other); err != nil {
			return nil, err
		}
	}

	assoc, ok := e.Associate(associateTable)
	if !ok {
		return nil, &ConfigurationError{Table: e.table, Message: "no associate relationship registered for " + associateTable}
	}

	rows, err := e.associationRows(assoc, id, actingUserID, associateIDs, fields)
	if err != nil {
		return nil, err
	}

	var ids []int64
	err = e.store.Transaction(ctx, func(tx Store) error {
		// every target pair carries ThisKey=id, so this also covers them
		if _, err := tx.Delete(ctx, assoc.JunctionTable, Criteria{assoc.ThisKey: id}); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		inserted, err := tx.InsertBatch(ctx, assoc.JunctionTable, rows)
		if err != nil {
			return err
		}
		ids = inserted
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace %s associations of %s %d: %w", associateTable, e.table, id, err)
	}

	e.logger.Debug("associations replaced", "id", id, "associate", associateTable, "count", len(rows))
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// associationRows builds the target junction rows. Duplicate associate ids
// collapse to their first occurrence.
func (e *Entity) associationRows(assoc Association, id int64, actingUserID string, associateIDs []int64, fields []Record) ([]Record, error) {
	seen := make(map[int64]struct{}, len(associateIDs))
	rows := make([]Record, 0, len(associateIDs))

	for _, other := range associateIDs {
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}

		row := Record{}
		var matched Record
		for _, f := range fields {
			if ref, ok := toInt64(f[assoc.OtherKey]); !ok || ref != other {
				continue
			}
			if matched != nil {
				return nil, &ValidationError{
					Field:   "association fields",
					Message: fmt.Sprintf("more than one entry for %s=%d", assoc.OtherKey, other),
				}
			}
			matched = f
		}
		for _, col := range assoc.Fields {
			if v, ok := matched[col]; ok {
				row[col] = v
			}
		}

		row[assoc.ThisKey] = id
		row[assoc.OtherKey] = other
		row[ColumnUUID] = e.newUUID()
		row[ColumnDeleted] = false
		rows = append(rows, e.stamp(row, actingUserID))
	}

	return rows, nil
}
