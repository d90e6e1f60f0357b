package twophase

import (
	"fmt"
	"sync"

	"github.com/mnohosten/laura-db/pkg/mvcc"
)

// maxCachedSubxids bounds how many subtransaction IDs a slot caches
// inline. A transaction with more subtransactions than this still
// prepares correctly; it only loses the fast path that lets recovery and
// finish skip re-deriving the list from the state file, falling back to
// Overflowed.
const maxCachedSubxids = 64

// Descriptor is the surrogate entry a prepared transaction contributes to
// process-array visibility once it is no longer backed by a live session.
// It intentionally carries only what snapshot and conflict checks need,
// not anything about how the original transaction is implemented.
type Descriptor struct {
	XID          mvcc.TxnID
	Database     uint32
	SubxactCache []mvcc.TxnID
	Overflowed   bool
}

// Slot is one entry in the prepared-transaction table. A slot's identity
// is its index in Registry.slots, kept in the unexported index field.
// Descriptor does not carry that index: code holding only an XID finds the
// owning slot by scanning the active slots for a matching Descriptor.XID.
type Slot struct {
	Descriptor Descriptor
	Owner      string
	LockingXID mvcc.TxnID
	Valid      bool
	GID        GID
	index      int
}

// Registry is the fixed-capacity table of prepared transactions, the
// counterpart of a real instance's shared prepared-transaction state.
type Registry struct {
	mu        sync.RWMutex
	slots     []*Slot
	freelist  []int
	active    map[int]struct{}
	activity  ActivityChecker
	procArray *mvcc.ProcArray
}

// NewRegistry returns a Registry with room for capacity simultaneously
// prepared transactions.
func NewRegistry(capacity int, activity ActivityChecker, procArray *mvcc.ProcArray) *Registry {
	r := &Registry{
		slots:     make([]*Slot, capacity),
		freelist:  make([]int, 0, capacity),
		active:    make(map[int]struct{}),
		activity:  activity,
		procArray: procArray,
	}
	for i := 0; i < capacity; i++ {
		r.slots[i] = &Slot{index: i}
		r.freelist = append(r.freelist, i)
	}
	return r
}

// sweepZombies recycles slots left behind by a finisher whose
// locking_xid is no longer in progress but that never actually got
// removed, folding them back onto the freelist. Caller must hold r.mu.
func (r *Registry) sweepZombies() {
	for idx := range r.active {
		slot := r.slots[idx]
		if !slot.Valid && !r.activity.IsInProgress(slot.LockingXID) {
			delete(r.active, idx)
			r.freelist = append(r.freelist, idx)
		}
	}
}

// MarkAsPreparing reserves a slot for xid under gid, failing if gid is
// already in use by another valid prepared transaction or if the table is
// full. The returned slot is not yet valid: it becomes visible to lookups
// and crash recovery only after MarkAsPrepared.
func (r *Registry) MarkAsPreparing(xid mvcc.TxnID, db uint32, gid GID, owner string) (*Slot, error) {
	if err := gid.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepZombies()

	for idx := range r.active {
		if slot := r.slots[idx]; slot.Valid && slot.GID == gid {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateGID, gid)
		}
	}

	if len(r.freelist) == 0 {
		return nil, ErrOutOfMemory
	}

	idx := r.freelist[len(r.freelist)-1]
	r.freelist = r.freelist[:len(r.freelist)-1]

	slot := r.slots[idx]
	slot.Descriptor = Descriptor{XID: xid, Database: db}
	slot.Owner = owner
	slot.LockingXID = xid
	slot.Valid = false
	slot.GID = gid

	r.active[idx] = struct{}{}

	return slot, nil
}

// LoadSubxactData records a transaction's subtransaction IDs onto its slot
// before MarkAsPrepared. It requires no lock: the slot is not yet valid
// and so is not visible to anything but its own preparer.
func (r *Registry) LoadSubxactData(slot *Slot, subxids []mvcc.TxnID) {
	if len(subxids) > maxCachedSubxids {
		slot.Descriptor.SubxactCache = append([]mvcc.TxnID(nil), subxids[:maxCachedSubxids]...)
		slot.Descriptor.Overflowed = true
		return
	}
	slot.Descriptor.SubxactCache = append([]mvcc.TxnID(nil), subxids...)
	slot.Descriptor.Overflowed = false
}

// MarkAsPrepared publishes slot: it becomes valid (visible to LockGXact and
// ListPrepared) and its descriptor joins the process array so ordinary
// snapshot and conflict checks continue to treat its XID as in progress.
func (r *Registry) MarkAsPrepared(slot *Slot) {
	r.mu.Lock()
	slot.Valid = true
	r.mu.Unlock()

	r.procArray.Add(slot.Descriptor.XID)
}

// LockGXact finds the valid prepared transaction named by gid and claims
// it for caller, returning ErrGIDBusy if another locking_xid is still
// active, ErrInsufficientPrivilege if caller is neither the owner nor a
// superuser, or ErrGIDNotFound if no such GID is valid.
func (r *Registry) LockGXact(gid GID, caller Caller, callerXID mvcc.TxnID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for idx := range r.active {
		slot := r.slots[idx]
		if !slot.Valid || slot.GID != gid {
			continue
		}

		if slot.LockingXID != slot.Descriptor.XID && r.activity.IsInProgress(slot.LockingXID) {
			return nil, ErrGIDBusy
		}

		if !caller.Superuser && caller.Identity != slot.Owner {
			return nil, ErrInsufficientPrivilege
		}

		slot.LockingXID = callerXID
		return slot, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrGIDNotFound, gid)
}

// RemoveGXact returns slot's index to the freelist. It must only be called
// once the transaction has been fully finished; calling it on a slot still
// reachable from elsewhere is a programming error in the caller, not a
// condition this package tries to recover from.
func (r *Registry) RemoveGXact(slot *Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, slot.index)
	*slot = Slot{index: slot.index}
	r.freelist = append(r.freelist, slot.index)
}

// PreparedXact is the introspection view of one prepared transaction.
type PreparedXact struct {
	XID      mvcc.TxnID
	GID      GID
	Owner    string
	Database uint32
}

// ListPrepared returns every currently valid prepared transaction.
func (r *Registry) ListPrepared() []PreparedXact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PreparedXact, 0, len(r.active))
	for idx := range r.active {
		slot := r.slots[idx]
		if !slot.Valid {
			continue
		}
		out = append(out, PreparedXact{
			XID:      slot.Descriptor.XID,
			GID:      slot.GID,
			Owner:    slot.Owner,
			Database: slot.Descriptor.Database,
		})
	}
	return out
}

// descriptorCache is a single-entry memoization of the last descriptor
// looked up by XID, scoped to one finish or recovery operation rather than
// shared across the package: a fresh instance is created per call, so
// concurrent operations never see each other's cached entry.
type descriptorCache struct {
	registry *Registry
	xid      mvcc.TxnID
	found    bool
	result   *Descriptor
}

func newDescriptorCache(registry *Registry) *descriptorCache {
	return &descriptorCache{registry: registry}
}

// lookup returns the descriptor for xid, scanning the registry only when
// xid differs from the last lookup.
func (c *descriptorCache) lookup(xid mvcc.TxnID) (*Descriptor, bool) {
	if c.found && c.xid == xid {
		return c.result, true
	}

	c.registry.mu.RLock()
	defer c.registry.mu.RUnlock()

	for idx := range c.registry.active {
		slot := c.registry.slots[idx]
		if slot.Descriptor.XID == xid {
			c.xid = xid
			c.found = true
			c.result = &slot.Descriptor
			return c.result, true
		}
	}

	c.found = false
	return nil, false
}
