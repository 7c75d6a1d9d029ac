package builder

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ranxian/peloton-1/storage"
)

// Coordinator arbitrates access to an extent that is currently being
// indexed, generalizing the teacher's addHashIndex mutexMap (one mutex
// per field being reindexed) to one mutex per (index, extent) pair. The
// builder owns the lock for the whole of one extent's build; the update
// executor takes the same lock when it touches a row in an extent whose
// index.p equals that extent's id, implementing the build-then-patch
// coordination rule of spec.md §4.3(a).
type Coordinator struct {
	locks sync.Map // lockKey -> *sync.Mutex
}

type lockKey struct {
	oid    uuid.UUID
	extent storage.ExtentID
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Lock blocks until the caller holds exclusive access to (oid, extent)
// and returns a function that releases it.
func (c *Coordinator) Lock(oid uuid.UUID, extent storage.ExtentID) func() {
	key := lockKey{oid, extent}
	v, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
