package indexstore

import (
	"github.com/ranxian/peloton-1/schema"
	"github.com/ranxian/peloton-1/storage"
)

// EncodeRowKey builds the composite index key for row under keySchema
// (already canonicalized by the caller): the order-preserving encoding
// of each key column's value, concatenated in schema order. ok is false
// if any key column is missing from the row or doesn't match its
// declared type; that row is skipped by the builder, per spec.md §4.3's
// "a per-row insertion error is logged and skipped".
func EncodeRowKey(cols schema.Columns, keySchema schema.KeySchema, row storage.Row) (encKey []byte, ok bool) {
	var out []byte
	for _, colID := range keySchema {
		col, found := cols.Find(colID)
		if !found {
			return nil, false
		}
		v, present := row.Get(colID)
		if !present {
			return nil, false
		}
		var encOK bool
		out, encOK = schema.EncodeValue(out, col.Type, v)
		if !encOK {
			return nil, false
		}
	}
	return out, true
}
