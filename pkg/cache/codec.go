package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ammar0144/model4go/pkg/model"
)

// Key kinds
const (
	kindID     = "id:"
	kindUUID   = "uuid:"
	kindParent = "parent:"
	kindWhere  = "where:"
)

// keyer builds <prefix><cacheKey>:<kind><value> keys
type keyer struct {
	base string
}

func newKeyer(prefix, cacheKey string) keyer {
	return keyer{base: prefix + cacheKey + ":"}
}

func (k keyer) id(id int64) string {
	return k.base + kindID + strconv.FormatInt(id, 10)
}

func (k keyer) uuid(u string) string {
	return k.base + kindUUID + u
}

func (k keyer) parent(table string, id int64) string {
	return k.base + kindParent + table + ":" + strconv.FormatInt(id, 10)
}

func (k keyer) where(criteria model.Criteria) string {
	return k.base + kindWhere + hashCriteria(criteria)
}

func (k keyer) prefix(kind string) string {
	return k.base + kind
}

// hashCriteria produces a stable digest independent of map iteration order
func hashCriteria(criteria model.Criteria) string {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%#v;", k, criteria[k])
	}
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

func encodeRecord(rec model.Record) ([]byte, error) {
	return msgpack.Marshal(map[string]any(rec))
}

func decodeRecord(data []byte) (model.Record, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return model.Record(m), nil
}

func encodeRecords(records []model.Record) ([]byte, error) {
	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		rows[i] = rec
	}
	return msgpack.Marshal(rows)
}

func decodeRecords(data []byte) ([]model.Record, error) {
	var rows []map[string]any
	if err := msgpack.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	records := make([]model.Record, len(rows))
	for i, row := range rows {
		records[i] = row
	}
	return records, nil
}

func encodeIDs(ids []int64) ([]byte, error) {
	return msgpack.Marshal(ids)
}

func decodeIDs(data []byte) ([]int64, error) {
	var ids []int64
	if err := msgpack.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}
