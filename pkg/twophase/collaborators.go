package twophase

import "github.com/mnohosten/laura-db/pkg/mvcc"

// ActivityChecker answers whether a transaction ID is still in progress,
// used when deciding whether a stale locking_xid left behind by a crashed
// finisher can be cleared.
type ActivityChecker interface {
	IsInProgress(xid mvcc.TxnID) bool
}

// Caller identifies whoever is attempting to lock or finish a prepared
// transaction, for the owner/superuser permission check.
type Caller struct {
	Identity    string
	Superuser   bool
}

// Locker acquires and releases named resources on behalf of the lock
// resource manager. A real document lock is obtained while the original
// transaction runs; RMLock's job during prepare is only to record which
// resources must be released at commit/abort (or reacquired during
// recovery), not to acquire them itself.
type Locker interface {
	Release(resource string)
	Reacquire(resource string) error
}
