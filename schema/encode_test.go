package schema

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t Type, v any) []byte {
	out, ok := EncodeValue(nil, t, v)
	if !ok {
		return nil
	}
	return out
}

func TestEncodeValue_Int64PreservesOrder(t *testing.T) {
	values := []int64{-1 << 40, -100, -1, 0, 1, 100, 1 << 40}
	for i := 1; i < len(values); i++ {
		lo := encode(Int64, values[i-1])
		hi := encode(Int64, values[i])
		require.NotNil(t, lo)
		require.NotNil(t, hi)
		assert.True(t, bytes.Compare(lo, hi) < 0, "encode(%d) must sort before encode(%d)", values[i-1], values[i])
	}
}

func TestEncodeValue_Int64AcceptsAnySizedInt(t *testing.T) {
	want := encode(Int64, int64(42))
	assert.Equal(t, want, encode(Int64, 42))
	assert.Equal(t, want, encode(Int64, int32(42)))
	assert.Equal(t, want, encode(Int64, uint64(42)))
	assert.Equal(t, want, encode(Int64, uint32(42)))
}

func TestEncodeValue_Float64PreservesOrder(t *testing.T) {
	values := []float64{-100.5, -1.0, -0.001, 0.0, 0.001, 1.0, 100.5}
	for i := 1; i < len(values); i++ {
		lo := encode(Float64, values[i-1])
		hi := encode(Float64, values[i])
		require.NotNil(t, lo)
		require.NotNil(t, hi)
		assert.True(t, bytes.Compare(lo, hi) < 0, "encode(%v) must sort before encode(%v)", values[i-1], values[i])
	}
}

func TestEncodeValue_BoolFalseSortsBeforeTrue(t *testing.T) {
	assert.True(t, bytes.Compare(encode(Bool, false), encode(Bool, true)) < 0)
}

func TestEncodeValue_StringSameLengthPreservesLexicalOrder(t *testing.T) {
	values := []string{"aa", "ab", "ba", "bb"}
	for i := 1; i < len(values); i++ {
		lo := encode(String, values[i-1])
		hi := encode(String, values[i])
		assert.True(t, bytes.Compare(lo, hi) < 0, "encode(%q) must sort before encode(%q)", values[i-1], values[i])
	}
}

func TestEncodeValue_SameValueIsByteIdentical(t *testing.T) {
	assert.Equal(t, encode(Int64, int64(7)), encode(Int64, int64(7)))
	assert.Equal(t, encode(String, "tenant-1"), encode(String, "tenant-1"))
}

func TestEncodeValue_TypeMismatchFails(t *testing.T) {
	_, ok := EncodeValue(nil, Int64, "not an int")
	assert.False(t, ok)

	_, ok = EncodeValue(nil, Bool, 1)
	assert.False(t, ok)

	_, ok = EncodeValue(nil, String, 42)
	assert.False(t, ok)
}

func TestEncodeValue_AppendsToExistingPrefix(t *testing.T) {
	prefix := []byte{0xFF, 0xFE}
	out, ok := EncodeValue(prefix, Int64, int64(1))
	require.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xFE}, out[:2])
	assert.Len(t, out, 2+8)
}
