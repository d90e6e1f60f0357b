package twophase

import (
	"fmt"
	"os"

	"github.com/mnohosten/laura-db/pkg/mvcc"
	"github.com/mnohosten/laura-db/pkg/storage"
)

// finisher carries out FinishPrepared for exactly one GID. A fresh
// finisher is created per call so its descriptor memoization cache never
// leaks between unrelated finishes.
type finisher struct {
	registry  *Registry
	rmgr      *ResourceManagers
	wal       *storage.WAL
	ckLock    *storage.CheckpointLock
	commitLog *mvcc.CommitLog
	procArray *mvcc.ProcArray
	dataDir   string
}

// finish locates gid, reads its state file, and carries out commit or
// abort in the fixed order durability requires: make the outcome durable
// in the WAL and commit log, remove the transaction from snapshot
// visibility, mark the slot invalid so no concurrent caller can start
// finishing it again, run resource-manager callbacks, unlink any relations
// the transaction dropped, delete the state file, and finally free the
// slot.
func (f *finisher) finish(gid GID, isCommit bool, caller Caller, callerXID mvcc.TxnID) error {
	slot, err := f.registry.LockGXact(gid, caller, callerXID)
	if err != nil {
		return err
	}

	path := statefilePath(f.dataDir, slot.Descriptor.XID)
	decoded, err := readStateFile(path)
	if err != nil {
		return err
	}
	if decoded == nil {
		return fmt.Errorf("%w: %q", ErrStateFileCorrupted, gid)
	}

	xid := slot.Descriptor.XID
	children := decoded.Subxacts

	if isCommit {
		// Hold the checkpoint-start lock shared across the WAL insert and
		// the clog update: a checkpoint must not be able to claim "everything
		// up to this LSN is durable" while the commit decision it covers is
		// still only half-recorded.
		f.ckLock.LockShared()
		lsn, walErr := f.wal.Append(&storage.LogRecord{
			Type:  storage.LogRecordCommitPrepared,
			TxnID: uint64(xid),
			Data:  encodeTxnIDs(children),
		})
		if walErr != nil {
			f.ckLock.UnlockShared()
			return fmt.Errorf("insert commit-prepared WAL record: %w", walErr)
		}
		if flushErr := f.wal.Flush(); flushErr != nil {
			panicCritical(fmt.Errorf("flush commit-prepared WAL record (lsn %d): %w", lsn, flushErr))
		}
		// Parent commits before its children, so a concurrent visibility
		// check can never observe a child committed while its parent
		// still looks in progress.
		f.commitLog.MarkCommitted(xid, children)
		f.ckLock.UnlockShared()
	} else {
		if f.commitLog.DidCommit(xid) {
			panicCritical(fmt.Errorf("cannot abort transaction %d: already committed", xid))
		}
		lsn, walErr := f.wal.Append(&storage.LogRecord{
			Type:  storage.LogRecordAbortPrepared,
			TxnID: uint64(xid),
			Data:  encodeTxnIDs(children),
		})
		if walErr != nil {
			return fmt.Errorf("insert abort-prepared WAL record: %w", walErr)
		}
		if flushErr := f.wal.Flush(); flushErr != nil {
			panicCritical(fmt.Errorf("flush abort-prepared WAL record (lsn %d): %w", lsn, flushErr))
		}
		f.commitLog.MarkAborted(xid, children)
	}

	f.procArray.Remove(xid)

	// Mark the slot invalid before running any resource-manager callback:
	// once a transaction's outcome is durable, nothing should be able to
	// attempt committing or rolling it back again, even if a callback
	// below fails partway through.
	slot.Valid = false

	phase := phasePostAbort
	rels := decoded.AbortRels
	if isCommit {
		phase = phasePostCommit
		rels = decoded.CommitRels
	}
	if err := f.rmgr.processRecords(phase, xid, decoded.Records); err != nil {
		return fmt.Errorf("resource manager callback: %w", err)
	}

	for _, rel := range rels {
		if err := storage.UnlinkRelation(f.dataDir, rel); err != nil {
			return fmt.Errorf("unlink relation: %w", err)
		}
	}

	// A missing file here is silently ignored, not a failure: the commit/abort
	// outcome is already durable in the WAL and clog, so there is nothing
	// left for a stale or already-removed state file to protect.
	if err := removeStateFile(path, false); err != nil {
		return err
	}

	f.registry.RemoveGXact(slot)

	return nil
}

// removeStateFile deletes a prepared transaction's state file. warnOnMissing
// controls whether a missing file is reported: when true it is returned as
// an "already missing" error, when false it is treated as success. Both
// callers in this package, the finish path and recovery's discard of a
// transaction the commit log already resolved, pass false.
func removeStateFile(path string, warnOnMissing bool) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) && !warnOnMissing {
			return nil
		}
		if os.IsNotExist(err) {
			return fmt.Errorf("remove state file %s: already missing", path)
		}
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}
