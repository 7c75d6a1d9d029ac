// Package schema describes the column-level shape of a managed table:
// column identifiers, their encodable types, and the key schemas that
// indexes are defined over.
package schema

import "sort"

// ColumnID identifies a column within a table. Column ids are stable for
// the lifetime of a table; this subsystem never renames or drops columns.
type ColumnID uint32

// Type is the small, fixed set of column types this subsystem knows how
// to encode into order-preserving index keys.
type Type byte

const (
	Int64 Type = iota
	Float64
	String
	Bool
)

// Column describes a single column of a managed table.
type Column struct {
	ID   ColumnID
	Name string
	Type Type
}

// Columns is an ordered list of Column, indexed by position, not by ID.
type Columns []Column

func (cs Columns) Find(id ColumnID) (Column, bool) {
	for _, c := range cs {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

func (cs Columns) FindName(name string) int {
	for i, c := range cs {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// KeySchema is the ordered set of columns an index is defined over.
// Canonical() must be used before comparing or storing a KeySchema so
// that two schemas naming the same columns compare equal regardless of
// the order the caller supplied them in.
type KeySchema []ColumnID

// Canonical returns ks sorted ascending with duplicates removed. Analyzer
// candidates and catalog lookups both canonicalize before comparing, so
// {3,7} and {7,3} are the same key schema.
func (ks KeySchema) Canonical() KeySchema {
	if len(ks) == 0 {
		return nil
	}
	out := make(KeySchema, len(ks))
	copy(out, ks)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	dedup := out[:1]
	for _, id := range out[1:] {
		if dedup[len(dedup)-1] != id {
			dedup = append(dedup, id)
		}
	}
	return dedup
}

// Equal reports whether ks and other name the same set of columns,
// independent of input order. Both sides are canonicalized first.
func (ks KeySchema) Equal(other KeySchema) bool {
	a, b := ks.Canonical(), other.Canonical()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (ks KeySchema) String() string {
	s := make([]byte, 0, len(ks)*2)
	for i, id := range ks.Canonical() {
		if i > 0 {
			s = append(s, ',')
		}
		s = appendUint(s, uint64(id))
	}
	return string(s)
}

func appendUint(dst []byte, v uint64) []byte {
	if v == 0 {
		return append(dst, '0')
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return append(dst, buf[i:]...)
}
