// Package indexstore is the concurrent ordered map an Index's entries
// live in. It is backed by Pebble running entirely against an in-memory
// virtual filesystem: this gives index entries the same key-ordered,
// concurrently-writable, snapshot-readable store the teacher engine
// keeps its hash and fullscan indexes in, without ever touching disk —
// nothing here is durable across a process restart, matching spec.md
// §6's "Persistent state: none in this core."
package indexstore

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ranxian/peloton-1/storage"
)

// keyTerminator separates an index entry's encoded column key from its
// trailing item pointer, the same tagged-terminal-byte convention the
// teacher engine uses in hashKey/fullScanKey to make prefix iteration
// unambiguous.
const keyTerminator = 'K'

// Store is one table's shared index-entry storage. Every index on the
// table keeps its entries in the same Pebble instance, namespaced by its
// index oid, exactly as the teacher namespaces per-class index data
// within one on-disk database.
type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions

	// lookupCache memoizes Lookup results keyed by xxhash(oid, encKey),
	// the same role the teacher's hashIndexCache plays for repeat
	// value->pointer resolutions. Entries are invalidated on Insert and
	// Delete for the same (oid, encKey).
	lookupCache *lru.Cache[uint64, []storage.ItemPointer]
}

// Open creates a fresh, empty index store for one table.
func Open() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	cache, _ := lru.New[uint64, []storage.ItemPointer](8192)
	return &Store{
		db:          db,
		writeOpts:   pebble.NoSync,
		lookupCache: cache,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func indexPrefix(oid uuid.UUID) []byte {
	key := make([]byte, 0, 18)
	key = append(key, 'X')
	key = append(key, oid[:]...)
	return key
}

func itemPointerBytes(ptr storage.ItemPointer) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[:8], uint64(ptr.Extent))
	binary.BigEndian.PutUint32(b[8:], uint32(ptr.Slot))
	return b
}

func itemPointerFromBytes(b []byte) storage.ItemPointer {
	return storage.ItemPointer{
		Extent: storage.ExtentID(binary.BigEndian.Uint64(b[:8])),
		Slot:   storage.SlotOffset(binary.BigEndian.Uint32(b[8:])),
	}
}

// prefixSuccessor returns the smallest key that sorts after every key
// having prefix as a prefix: prefix with its last non-0xFF byte
// incremented and everything after it dropped. Appending a single 0xFF
// byte, as a simpler exclusive upper bound might, wrongly excludes any
// entry whose byte right after prefix is itself 0xFF. Returns nil if
// prefix is all 0xFF (no successor; callers should treat that as
// unbounded), which never occurs for the fixed-width oid/terminator
// prefixes this package builds.
func prefixSuccessor(prefix []byte) []byte {
	succ := append([]byte{}, prefix...)
	for i := len(succ) - 1; i >= 0; i-- {
		if succ[i] < 0xFF {
			succ[i]++
			return succ[:i+1]
		}
	}
	return nil
}

// entryKey builds the full Pebble key for one index entry: prefix +
// encoded column key + terminator + item pointer. Two inserts of the
// same (oid, encKey, ptr) produce byte-identical keys, so re-inserting
// is naturally idempotent — required by spec.md §4.3's lock-free
// coordination mode, where the builder and an updater may race to
// insert the same entry.
func entryKey(oid uuid.UUID, encKey []byte, ptr storage.ItemPointer) []byte {
	key := indexPrefix(oid)
	key = append(key, encKey...)
	key = append(key, keyTerminator)
	key = append(key, itemPointerBytes(ptr)...)
	return key
}

// lookupCacheKey hashes (oid, encKey) into the cache key Lookup,
// Insert, and Delete share, the same xxhash-based cache-key
// construction the teacher uses for its hash-index cache.
func lookupCacheKey(oid uuid.UUID, encKey []byte) uint64 {
	h := xxhash.New()
	h.Write(oid[:])
	h.Write(encKey)
	return h.Sum64()
}

// Insert adds an index entry mapping encKey to ptr. Idempotent: inserting
// the same (encKey, ptr) pair twice is a no-op.
func (s *Store) Insert(oid uuid.UUID, encKey []byte, ptr storage.ItemPointer) error {
	if err := s.db.Set(entryKey(oid, encKey, ptr), nil, s.writeOpts); err != nil {
		return err
	}
	s.lookupCache.Remove(lookupCacheKey(oid, encKey))
	return nil
}

// Delete removes the index entry mapping encKey to ptr, if present.
func (s *Store) Delete(oid uuid.UUID, encKey []byte, ptr storage.ItemPointer) error {
	if err := s.db.Delete(entryKey(oid, encKey, ptr), s.writeOpts); err != nil {
		return err
	}
	s.lookupCache.Remove(lookupCacheKey(oid, encKey))
	return nil
}

// Lookup returns every ItemPointer currently indexed under encKey for
// the index oid, in key order. Repeat lookups for the same (oid,
// encKey) — the common case for a hot equality predicate — are served
// from lookupCache until the next Insert/Delete invalidates it.
func (s *Store) Lookup(oid uuid.UUID, encKey []byte) ([]storage.ItemPointer, error) {
	cacheKey := lookupCacheKey(oid, encKey)
	if cached, hit := s.lookupCache.Get(cacheKey); hit {
		return append([]storage.ItemPointer{}, cached...), nil
	}

	lo := append(indexPrefix(oid), encKey...)
	lo = append(lo, keyTerminator)
	hi := prefixSuccessor(lo)

	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []storage.ItemPointer
	for valid := it.First(); valid; valid = it.Next() {
		key := it.Key()
		out = append(out, itemPointerFromBytes(key[len(key)-12:]))
	}
	s.lookupCache.Add(cacheKey, out)
	// Return a copy: out is the slice backing the cache entry, and a
	// caller mutating its result must not corrupt what later lookups see.
	return append([]storage.ItemPointer{}, out...), nil
}

// Scan iterates every (encKey, ItemPointer) entry belonging to oid, in
// key order, calling yield for each, and stops early once yield
// returns false.
func (s *Store) Scan(oid uuid.UUID, yield func(encKey []byte, ptr storage.ItemPointer) bool) error {
	prefix := indexPrefix(oid)
	hi := prefixSuccessor(prefix)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: hi})
	if err != nil {
		return err
	}
	defer it.Close()

	for valid := it.First(); valid; valid = it.Next() {
		key := it.Key()
		encKey := key[len(prefix) : len(key)-13] // strip prefix, terminator, pointer
		ptr := itemPointerFromBytes(key[len(key)-12:])
		if !yield(encKey, ptr) {
			return nil
		}
	}
	return nil
}

// DropIndex removes every entry belonging to oid. Called once an index
// transitions to DROPPING and no scan holds a reference any longer.
func (s *Store) DropIndex(oid uuid.UUID) error {
	prefix := indexPrefix(oid)
	return s.db.DeleteRange(prefix, prefixSuccessor(prefix), s.writeOpts)
}
