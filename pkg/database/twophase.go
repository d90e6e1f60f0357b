package database

import (
	"encoding/json"
	"fmt"

	"github.com/mnohosten/laura-db/pkg/mvcc"
	"github.com/mnohosten/laura-db/pkg/twophase"
)

// transportOperation is the wire form of a pending session operation,
// carried inside an RMData record so a prepared transaction's write set
// survives in the state file independently of the in-memory Session that
// produced it.
type transportOperation struct {
	OpType     string                 `json:"op"`
	Collection string                 `json:"collection"`
	DocID      string                 `json:"docId"`
	Doc        map[string]interface{} `json:"doc,omitempty"`
}

func encodeOperations(ops []sessionOperation) ([]byte, error) {
	transport := make([]transportOperation, len(ops))
	for i, op := range ops {
		t := transportOperation{OpType: op.opType, Collection: op.collection, DocID: op.docID}
		if op.doc != nil {
			t.Doc = op.doc.ToMap()
		}
		transport[i] = t
	}
	return json.Marshal(transport)
}

func decodeOperations(data []byte) ([]transportOperation, error) {
	var ops []transportOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("decode pending operations: %w", err)
	}
	return ops, nil
}

// applyTransportOps replays a prepared transaction's write set against the
// live collections, the same way Session.CommitTransaction applies an
// ordinary transaction's operations. It is called only from the RMData
// post-commit callback, which covers both a transaction prepared by a live
// Session and one restored from its state file after a restart; the RMData
// recover callback applies nothing.
func applyTransportOps(db *Database, ops []transportOperation) {
	for _, op := range ops {
		coll := db.Collection(op.Collection)

		switch op.OpType {
		case "insert":
			if _, err := coll.InsertOne(op.Doc); err != nil {
				continue
			}

		case "update":
			coll.mu.Lock()
			if doc, exists := coll.documents[op.DocID]; exists {
				for key, value := range op.Doc {
					doc.Set(key, value)
				}
			}
			coll.mu.Unlock()

		case "delete":
			coll.mu.Lock()
			delete(coll.documents, op.DocID)
			coll.mu.Unlock()
		}
	}
}

// lockResourceAdapter adapts DocumentLockManager's per-document Lock/Unlock
// pair to the Release/Reacquire shape pkg/twophase's RMLock resource
// manager expects. The lock resource name is the same "collection:id" key
// the transaction manager already uses for write-set conflict detection.
type lockResourceAdapter struct {
	mgr *DocumentLockManager
}

func (l lockResourceAdapter) Release(resource string) {
	l.mgr.Unlock(resource)
}

func (l lockResourceAdapter) Reacquire(resource string) error {
	l.mgr.Lock(resource)
	return nil
}

// openTwoPhase builds the prepared-transaction subsystem, registers its
// resource managers, and replays any state files left behind by a prior
// run before the database is handed back to callers. It must run after
// storage recovery (already done inside NewStorageEngine) and before any
// new transaction is allowed to begin.
func (db *Database) openTwoPhase(dataDir string) error {
	cfg := twophase.DefaultConfig(dataDir)

	mgr, err := twophase.NewManager(cfg, db.storage.WAL(), db.storage.CheckpointLock(), db.commitLog, db.procArray, db.txnMgr)
	if err != nil {
		return fmt.Errorf("open two-phase commit subsystem: %w", err)
	}
	db.twophaseMgr = mgr

	twophase.RegisterLockCallbacks(mgr.Resources, lockResourceAdapter{mgr: db.lockMgr})

	postCommitData := func(xid mvcc.TxnID, info uint16, data []byte) error {
		ops, err := decodeOperations(data)
		if err != nil {
			return err
		}

		if txn, ok := db.txnMgr.GetPreparedTransaction(xid); ok {
			if err := db.txnMgr.FinalizePrepared(txn, true); err != nil {
				return err
			}
		}

		applyTransportOps(db, ops)
		return nil
	}

	postAbortData := func(xid mvcc.TxnID, info uint16, data []byte) error {
		txn, ok := db.txnMgr.GetPreparedTransaction(xid)
		if !ok {
			return nil
		}
		return db.txnMgr.FinalizePrepared(txn, false)
	}

	recoverData := func(xid mvcc.TxnID, info uint16, data []byte) error {
		// Nothing to restage here: the recorded write set is only applied
		// once the transaction is actually finished, which dispatches this
		// same record through postCommitData.
		return nil
	}

	mgr.Resources.Register(twophase.RMData, postCommitData, postAbortData, recoverData)

	nextXID := db.txnMgr.NextXID()
	oldest, report, err := mgr.Recover(&nextXID)
	if err != nil {
		return fmt.Errorf("recover prepared transactions: %w", err)
	}
	_ = oldest
	db.txnMgr.AdvanceXID(nextXID)
	db.recoveryReport = report

	return nil
}

// PrepareTransaction durably prepares s's transaction under gid, so that a
// later CommitPrepared or RollbackPrepared call — potentially from a
// different session, or after a restart — decides its fate. No further
// operations may be issued against s afterward.
func (s *Session) PrepareTransaction(gid string) error {
	if s.txn.State != mvcc.TxnStateActive {
		return fmt.Errorf("cannot prepare: transaction not active")
	}

	if err := s.db.txnMgr.Prepare(s.txn); err != nil {
		return err
	}

	payload, err := encodeOperations(s.operations)
	if err != nil {
		s.db.txnMgr.UnprepareTransaction(s.txn)
		return fmt.Errorf("encode pending operations: %w", err)
	}
	records := []twophase.RMRecord{{RMID: twophase.RMData, Data: payload}}

	writeSet := s.txn.GetWriteSet()
	resources := make([]string, 0, len(writeSet))
	for key := range writeSet {
		resources = append(resources, key)
	}
	s.db.lockMgr.LockMultiple(resources)
	for _, resource := range resources {
		records = append(records, twophase.RMRecord{RMID: twophase.RMLock, Data: []byte(resource)})
	}

	subxids := s.txn.CommittedChildren()

	const owner = "session"
	if err := s.db.twophaseMgr.PrepareTransaction(s.txn.ID, 0, twophase.GID(gid), owner, subxids, nil, nil, records); err != nil {
		s.db.lockMgr.UnlockMultiple(resources)
		if unprepErr := s.db.txnMgr.UnprepareTransaction(s.txn); unprepErr != nil {
			return fmt.Errorf("%w (and failed to revert prepare: %v)", err, unprepErr)
		}
		return err
	}

	return nil
}

// CommitPrepared finishes a transaction previously prepared under gid by
// committing it. caller must be the transaction's owner or a superuser.
func (db *Database) CommitPrepared(gid string, caller twophase.Caller) error {
	callerXID := db.txnMgr.NewChildXID()
	return db.twophaseMgr.CommitPrepared(twophase.GID(gid), caller, callerXID)
}

// RollbackPrepared finishes a transaction previously prepared under gid by
// aborting it.
func (db *Database) RollbackPrepared(gid string, caller twophase.Caller) error {
	callerXID := db.txnMgr.NewChildXID()
	return db.twophaseMgr.RollbackPrepared(twophase.GID(gid), caller, callerXID)
}

// PreparedTransactions lists every transaction currently prepared and
// awaiting CommitPrepared or RollbackPrepared.
func (db *Database) PreparedTransactions() []twophase.PreparedXact {
	return db.twophaseMgr.PreparedTransactions()
}

// TwoPhaseRecoveryReport returns the report produced by replaying prepared
// transaction state files at startup, for callers that want to surface
// recovery warnings (e.g. discarded corrupt files) without this package
// reaching for a logging library on their behalf.
func (db *Database) TwoPhaseRecoveryReport() twophase.RecoveryReport {
	return db.recoveryReport
}
