package schema

import (
	"encoding/binary"
	"math"
)

// EncodeValue appends an order-preserving encoding of v (whose dynamic
// type must match t) to dst. Index keys are built by concatenating the
// encoded values of a row's key-schema columns in schema order, so two
// rows with equal column values always produce byte-identical encoded
// keys regardless of the original Go value's representation.
func EncodeValue(dst []byte, t Type, v any) ([]byte, bool) {
	switch t {
	case Int64:
		n, ok := asInt64(v)
		if !ok {
			return dst, false
		}
		// flip the sign bit so two's-complement ordering matches byte ordering
		return binary.BigEndian.AppendUint64(dst, uint64(n)^(1<<63)), true
	case Float64:
		f, ok := asFloat64(v)
		if !ok {
			return dst, false
		}
		bits := math.Float64bits(f)
		if f < 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		return binary.BigEndian.AppendUint64(dst, bits), true
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return dst, false
		}
		if b {
			return append(dst, 1), true
		}
		return append(dst, 0), true
	case String:
		s, ok := v.(string)
		if !ok {
			return dst, false
		}
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
		return append(dst, s...), true
	default:
		return dst, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	default:
		return 0, false
	}
}
