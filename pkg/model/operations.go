package model

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// stamp merges modification metadata over attrs
func (e *Entity) stamp(attrs Record, actingUserID string) Record {
	attrs[ColumnLastModifiedBy] = actingUserID
	attrs[ColumnLastModifiedAt] = e.clock.Now()
	return attrs
}

// Create inserts attrs and reads the new record back
func (e *Entity) Create(ctx context.Context, attrs Record, actingUserID string) (Record, error) {
	id, err := e.CreateID(ctx, attrs, actingUserID)
	if err != nil {
		return nil, err
	}

	rec, found, err := e.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Table: e.table, ID: id}
	}
	return rec, nil
}

// CreateID inserts attrs and returns the generated identifier without a read-back.
// The row is stamped with deleted=false, a fresh uuid and modification metadata.
func (e *Entity) CreateID(ctx context.Context, attrs Record, actingUserID string) (int64, error) {
	if err := validateActingUser(actingUserID); err != nil {
		return 0, err
	}
	if err := validateKeys("attribute", attrs); err != nil {
		return 0, err
	}

	row := attrs.Clone()
	delete(row, ColumnID)
	row[ColumnUUID] = e.newUUID()
	row[ColumnDeleted] = false
	e.stamp(row, actingUserID)

	id, err := e.store.Insert(ctx, e.table, row)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s record: %w", e.table, err)
	}

	e.logger.Debug("record created", "id", id)
	return id, nil
}

// FindByID returns the live record with the given identifier
func (e *Entity) FindByID(ctx context.Context, id int64) (Record, bool, error) {
	if err := validateID("id", id); err != nil {
		return nil, false, err
	}
	return e.findOne(ctx, Criteria{ColumnID: id})
}

// FindBySecondaryID returns the live record with the given uuid
func (e *Entity) FindBySecondaryID(ctx context.Context, secondaryID string) (Record, bool, error) {
	if _, err := uuid.Parse(secondaryID); err != nil {
		return nil, false, &ValidationError{Field: "secondary id", Message: "must be a uuid string"}
	}
	return e.findOne(ctx, Criteria{ColumnUUID: secondaryID})
}

func (e *Entity) findOne(ctx context.Context, criteria Criteria) (Record, bool, error) {
	records, err := e.FindWhere(ctx, criteria)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

// FindWhere returns every live record matching criteria
func (e *Entity) FindWhere(ctx context.Context, criteria Criteria) ([]Record, error) {
	if err := validateKeys("criteria", criteria); err != nil {
		return nil, err
	}

	where := criteria.Clone()
	where[ColumnDeleted] = false

	records, err := e.store.Select(ctx, e.table, where)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", e.table, err)
	}
	return records, nil
}

// FindIDsByParentReference returns identifiers of live rows pointing at
// parentID through the relationship registered for parentTable
func (e *Entity) FindIDsByParentReference(ctx context.Context, parentID int64, parentTable string) ([]int64, error) {
	if err := validateID("parent id", parentID); err != nil {
		return nil, err
	}
	if err := validateIdentifier("parent table", parentTable); err != nil {
		return nil, err
	}

	ref, ok := e.Parent(parentTable)
	if !ok {
		return nil, &ConfigurationError{Table: e.table, Message: "no parent relationship registered for " + parentTable}
	}

	where := ref.Where.Clone()
	where[ref.ForeignKey] = parentID
	where[ColumnDeleted] = false

	records, err := e.store.Select(ctx, e.table, where, ColumnID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s children of %s %d: %w", e.table, parentTable, parentID, err)
	}
	return IDs(records), nil
}

// Update applies attrs to the record and refreshes its modification metadata,
// returning id. A NotFoundError reports that no row carries id.
func (e *Entity) Update(ctx context.Context, id int64, attrs Record, actingUserID string) (int64, error) {
	if err := validateID("id", id); err != nil {
		return 0, err
	}
	if err := validateActingUser(actingUserID); err != nil {
		return 0, err
	}
	if err := validateKeys("attribute", attrs); err != nil {
		return 0, err
	}

	row := attrs.Clone()
	delete(row, ColumnID)
	delete(row, ColumnUUID)
	e.stamp(row, actingUserID)

	n, err := e.store.Update(ctx, e.table, Criteria{ColumnID: id}, row)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s %d: %w", e.table, id, err)
	}
	// last_modified_at always changes, so an existing row is always affected
	if n == 0 {
		return 0, &NotFoundError{Table: e.table, ID: id}
	}
	return id, nil
}
