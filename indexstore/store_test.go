package indexstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ranxian/peloton-1/storage"
)

func TestStore_InsertLookupDelete(t *testing.T) {
	s, err := Open()
	assert.NoError(t, err)
	defer s.Close()

	oid := uuid.New()
	key := []byte("k1")
	ptr := storage.ItemPointer{Extent: 1, Slot: 2}

	assert.NoError(t, s.Insert(oid, key, ptr))
	got, err := s.Lookup(oid, key)
	assert.NoError(t, err)
	assert.Equal(t, []storage.ItemPointer{ptr}, got)

	assert.NoError(t, s.Delete(oid, key, ptr))
	got, err = s.Lookup(oid, key)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_InsertIdempotent(t *testing.T) {
	s, err := Open()
	assert.NoError(t, err)
	defer s.Close()

	oid := uuid.New()
	key := []byte("k1")
	ptr := storage.ItemPointer{Extent: 0, Slot: 0}

	assert.NoError(t, s.Insert(oid, key, ptr))
	assert.NoError(t, s.Insert(oid, key, ptr))

	got, err := s.Lookup(oid, key)
	assert.NoError(t, err)
	assert.Len(t, got, 1, "duplicate insert of the same (key, pointer) must be a no-op")
}

func TestStore_LookupCacheInvalidatedOnInsert(t *testing.T) {
	s, err := Open()
	assert.NoError(t, err)
	defer s.Close()

	oid := uuid.New()
	key := []byte("k1")
	ptr1 := storage.ItemPointer{Extent: 0, Slot: 0}
	ptr2 := storage.ItemPointer{Extent: 0, Slot: 1}

	assert.NoError(t, s.Insert(oid, key, ptr1))
	got, err := s.Lookup(oid, key)
	assert.NoError(t, err)
	assert.Len(t, got, 1)

	assert.NoError(t, s.Insert(oid, key, ptr2))
	got, err = s.Lookup(oid, key)
	assert.NoError(t, err)
	assert.Len(t, got, 2, "lookup cache must be invalidated by a later insert under the same key")
}

func TestStore_IndexesAreNamespaced(t *testing.T) {
	s, err := Open()
	assert.NoError(t, err)
	defer s.Close()

	a, b := uuid.New(), uuid.New()
	key := []byte("same-key")
	ptr := storage.ItemPointer{Extent: 0, Slot: 0}

	assert.NoError(t, s.Insert(a, key, ptr))
	got, err := s.Lookup(b, key)
	assert.NoError(t, err)
	assert.Empty(t, got, "index b must not see index a's entries")
}

func TestStore_LookupFindsPointerWithFFLeadingByte(t *testing.T) {
	s, err := Open()
	assert.NoError(t, err)
	defer s.Close()

	oid := uuid.New()
	key := []byte("k1")
	// An item pointer whose encoded leading byte is 0xFF used to sort
	// outside an exclusive upper bound formed by appending a single
	// 0xFF to the lower bound.
	ptr := storage.ItemPointer{Extent: 0xFF00000000000000, Slot: 0}

	assert.NoError(t, s.Insert(oid, key, ptr))
	got, err := s.Lookup(oid, key)
	assert.NoError(t, err)
	assert.Equal(t, []storage.ItemPointer{ptr}, got)
}

func TestStore_DropIndexRemovesAllEntries(t *testing.T) {
	s, err := Open()
	assert.NoError(t, err)
	defer s.Close()

	oid := uuid.New()
	for i := 0; i < 5; i++ {
		assert.NoError(t, s.Insert(oid, []byte{byte(i)}, storage.ItemPointer{Extent: 0, Slot: storage.SlotOffset(i)}))
	}
	assert.NoError(t, s.DropIndex(oid))

	count := 0
	err = s.Scan(oid, func(encKey []byte, ptr storage.ItemPointer) bool {
		count++
		return true
	})
	assert.NoError(t, err)
	assert.Zero(t, count)
}
