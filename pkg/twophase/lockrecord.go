package twophase

import "github.com/mnohosten/laura-db/pkg/mvcc"

// encodeLockRecord packs a held resource name into an RMLock record's
// payload. The resource name is whatever the caller's locker understands
// (for pkg/database, a "collection:documentID" key).
func encodeLockRecord(resource string) []byte {
	return []byte(resource)
}

func decodeLockRecord(data []byte) string {
	return string(data)
}

// RegisterLockCallbacks wires the RMLock resource manager up to locker:
// commit and abort both simply release the resource (the lock's job was
// only to hold the resource until the transaction's fate was durable), and
// recovery reacquires it, mirroring a still-running transaction holding
// the lock the whole time.
func RegisterLockCallbacks(rmgr *ResourceManagers, locker Locker) {
	release := func(xid mvcc.TxnID, info uint16, data []byte) error {
		locker.Release(decodeLockRecord(data))
		return nil
	}
	reacquire := func(xid mvcc.TxnID, info uint16, data []byte) error {
		return locker.Reacquire(decodeLockRecord(data))
	}
	rmgr.Register(RMLock, release, release, reacquire)
}
