package model

import (
	"strconv"
	"time"
)

// Managed column names stamped by Entity on every write
const (
	ColumnID             = "id"
	ColumnUUID           = "uuid"
	ColumnDeleted        = "deleted"
	ColumnLastModifiedBy = "last_modified_by"
	ColumnLastModifiedAt = "last_modified_at"
)

// Record is a row surfaced to callers, keyed by column name
type Record map[string]any

// Criteria is a structured equality predicate. Keys are ANDed together; a
// slice value matches any of its elements.
type Criteria map[string]any

// ID returns the store-assigned numeric identifier, or 0 when absent
func (r Record) ID() int64 {
	return r.Int64(ColumnID)
}

// UUID returns the secondary identifier
func (r Record) UUID() string {
	return r.String(ColumnUUID)
}

// Deleted reports whether the record is soft-deleted
func (r Record) Deleted() bool {
	switch v := r[ColumnDeleted].(type) {
	case nil:
		return false
	case bool:
		return v
	case []byte:
		b, _ := strconv.ParseBool(string(v))
		return b || string(v) == "\x01"
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		n, ok := toInt64(v)
		return ok && n != 0
	}
}

// LastModifiedBy returns the acting principal of the latest write
func (r Record) LastModifiedBy() string {
	return r.String(ColumnLastModifiedBy)
}

// LastModifiedAt returns the timestamp of the latest write
func (r Record) LastModifiedAt() time.Time {
	switch v := r[ColumnLastModifiedAt].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Int64 returns the named column as an integer, or 0 when absent or not numeric
func (r Record) Int64(column string) int64 {
	n, _ := toInt64(r[column])
	return n
}

// String returns the named column as a string
func (r Record) String(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Clone returns a shallow copy so callers can mutate without side effects
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of the criteria
func (c Criteria) Clone() Criteria {
	out := make(Criteria, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// IDs extracts the identifier of every record, skipping rows without one
func IDs(records []Record) []int64 {
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		if id := rec.ID(); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// toInt64 normalises the integer shapes produced by SQL drivers and codecs
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// ToInt64 exposes the integer normalisation used by Record for store adapters
func ToInt64(v any) (int64, bool) {
	return toInt64(v)
}
