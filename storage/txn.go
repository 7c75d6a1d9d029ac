package storage

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// TxnID identifies a transaction attempting to own a slot.
type TxnID uint64

// TransactionManager is a minimal optimistic slot-ownership manager: the
// concrete implementation of the contract spec.md §6 describes
// ("is_owner / is_ownable / acquire_ownership", "perform_update").
// Ownership is tracked in a lock-free concurrent map keyed by
// ItemPointer, generalizing the teacher's use of a lock-free map on its
// network hot path to the update path's hot path here.
type TransactionManager struct {
	owners *xsync.MapOf[ItemPointer, TxnID]
}

func NewTransactionManager() *TransactionManager {
	return &TransactionManager{owners: xsync.NewMapOf[ItemPointer, TxnID]()}
}

// IsOwner reports whether txn currently owns ptr.
func (tm *TransactionManager) IsOwner(ptr ItemPointer, txn TxnID) bool {
	owner, ok := tm.owners.Load(ptr)
	return ok && owner == txn
}

// IsOwnable reports whether ptr has no current owner.
func (tm *TransactionManager) IsOwnable(ptr ItemPointer) bool {
	_, ok := tm.owners.Load(ptr)
	return !ok
}

// AcquireOwnership attempts to take exclusive ownership of ptr on behalf
// of txn. Returns false if another transaction already owns it.
func (tm *TransactionManager) AcquireOwnership(ptr ItemPointer, txn TxnID) bool {
	_, loaded := tm.owners.LoadOrCompute(ptr, func() TxnID { return txn })
	if !loaded {
		return true
	}
	owner, _ := tm.owners.Load(ptr)
	return owner == txn
}

// PerformUpdate releases txn's ownership of ptr, recording that the
// update committed. MVCC visibility bookkeeping beyond slot ownership
// (snapshot timestamps, undo chains) is out of scope per spec.md §1;
// this is the minimal hook the update executor calls once the new row
// bytes are installed.
func (tm *TransactionManager) PerformUpdate(ptr ItemPointer, txn TxnID) {
	tm.owners.LoadAndDelete(ptr)
}
