package mvcc

import "sync"

// ProcArray is the set of transaction identifiers currently visible to
// snapshot scans, independent of whether a live *Transaction object backs
// them. A prepared transaction has no active session behind it anymore,
// but other transactions must keep treating its XID as in-progress until
// it is actually finished, so it is carried here rather than in
// TransactionManager.activeTxns.
type ProcArray struct {
	mu      sync.RWMutex
	entries map[TxnID]struct{}
}

// NewProcArray returns an empty ProcArray.
func NewProcArray() *ProcArray {
	return &ProcArray{entries: make(map[TxnID]struct{})}
}

// Add makes xid visible to IsInProgress checks.
func (p *ProcArray) Add(xid TxnID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[xid] = struct{}{}
}

// Remove drops xid from the array. It must happen before the transaction's
// commit/abort outcome is allowed to be observed by new snapshots.
func (p *ProcArray) Remove(xid TxnID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, xid)
}

// IsInProgress reports whether xid is currently carried in the array.
func (p *ProcArray) IsInProgress(xid TxnID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[xid]
	return ok
}

// Snapshot returns a copy of all XIDs currently in the array.
func (p *ProcArray) Snapshot() []TxnID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]TxnID, 0, len(p.entries))
	for xid := range p.entries {
		out = append(out, xid)
	}
	return out
}
