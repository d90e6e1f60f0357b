package storage

import "sync"

// CheckpointLock is the shared/exclusive lock that separates ordinary WAL
// activity from the moment a checkpoint decides which LSN is safe to
// recover from. Holding it shared, as the prepare and commit/abort paths
// do, only guarantees that a checkpoint in progress cannot declare the
// current record "old news" before it has been flushed; holding it
// exclusively is how a checkpoint gets that guarantee for itself.
type CheckpointLock struct {
	mu sync.RWMutex
}

// NewCheckpointLock returns an unlocked CheckpointLock.
func NewCheckpointLock() *CheckpointLock {
	return &CheckpointLock{}
}

// LockShared is taken by callers that insert a WAL record and must not race
// with a checkpoint that is deciding its redo point.
func (c *CheckpointLock) LockShared() {
	c.mu.RLock()
}

// UnlockShared releases a previously acquired shared hold.
func (c *CheckpointLock) UnlockShared() {
	c.mu.RUnlock()
}

// LockExclusive is taken by the checkpoint process itself.
func (c *CheckpointLock) LockExclusive() {
	c.mu.Lock()
}

// UnlockExclusive releases the checkpoint's exclusive hold.
func (c *CheckpointLock) UnlockExclusive() {
	c.mu.Unlock()
}
