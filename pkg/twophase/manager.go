package twophase

import (
	"fmt"
	"os"

	"github.com/mnohosten/laura-db/pkg/mvcc"
	"github.com/mnohosten/laura-db/pkg/storage"
)

// Manager ties the prepared-transaction registry, resource-manager
// dispatch table, and durability collaborators together into the single
// entry point callers outside this package use.
type Manager struct {
	Registry  *Registry
	Resources *ResourceManagers

	dataDir   string
	wal       *storage.WAL
	ckLock    *storage.CheckpointLock
	commitLog *mvcc.CommitLog
	procArray *mvcc.ProcArray
}

// NewManager creates dataDir if needed and returns a Manager ready to
// prepare, finish, and recover transactions within it.
func NewManager(cfg Config, wal *storage.WAL, ckLock *storage.CheckpointLock, commitLog *mvcc.CommitLog, procArray *mvcc.ProcArray, activity ActivityChecker) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create prepared-transaction directory: %w", err)
	}

	return &Manager{
		Registry:  NewRegistry(cfg.MaxPreparedTransactions, activity, procArray),
		Resources: NewResourceManagers(),
		dataDir:   cfg.DataDir,
		wal:       wal,
		ckLock:    ckLock,
		commitLog: commitLog,
		procArray: procArray,
	}, nil
}

// PrepareTransaction durably prepares xid under gid. On any failure after
// MarkAsPreparing but before MarkAsPrepared, the slot is left reserved but
// invalid; it is recycled the next time MarkAsPreparing sweeps for
// zombies, exactly as if a finisher had abandoned it mid-flight.
func (m *Manager) PrepareTransaction(xid mvcc.TxnID, db uint32, gid GID, owner string, subxids []mvcc.TxnID, commitRels, abortRels []storage.RelationID, records []RMRecord) error {
	slot, err := m.Registry.MarkAsPreparing(xid, db, gid, owner)
	if err != nil {
		return err
	}

	p := newPreparer(m.dataDir, m.wal, m.ckLock)
	p.startPrepare(slot, subxids, commitRels, abortRels)
	m.Registry.LoadSubxactData(slot, subxids)

	for _, rec := range records {
		p.registerRecord(rec)
	}

	if err := p.endPrepare(); err != nil {
		return fmt.Errorf("prepare transaction %d: %w", xid, err)
	}

	m.Registry.MarkAsPrepared(slot)
	return nil
}

// CommitPrepared finishes gid by committing it.
func (m *Manager) CommitPrepared(gid GID, caller Caller, callerXID mvcc.TxnID) error {
	f := &finisher{
		registry:  m.Registry,
		rmgr:      m.Resources,
		wal:       m.wal,
		ckLock:    m.ckLock,
		commitLog: m.commitLog,
		procArray: m.procArray,
		dataDir:   m.dataDir,
	}
	return f.finish(gid, true, caller, callerXID)
}

// RollbackPrepared finishes gid by aborting it.
func (m *Manager) RollbackPrepared(gid GID, caller Caller, callerXID mvcc.TxnID) error {
	f := &finisher{
		registry:  m.Registry,
		rmgr:      m.Resources,
		wal:       m.wal,
		ckLock:    m.ckLock,
		commitLog: m.commitLog,
		procArray: m.procArray,
		dataDir:   m.dataDir,
	}
	return f.finish(gid, false, caller, callerXID)
}

// PreparedTransactions lists every currently prepared transaction.
func (m *Manager) PreparedTransactions() []PreparedXact {
	return m.Registry.ListPrepared()
}

// Recover scans dataDir, advances nextXID past every subtransaction found,
// and reloads surviving prepared transactions into the registry, in that
// order: Prescan must run before Recover can know which files are worth
// reloading at all.
func (m *Manager) Recover(nextXID *mvcc.TxnID) (oldest mvcc.TxnID, report RecoveryReport, err error) {
	oldest, survivors, scanReport, err := Prescan(m.dataDir, nextXID)
	if err != nil {
		return 0, scanReport, err
	}

	recoverReport, err := Recover(m.dataDir, survivors, m.Registry, m.commitLog, m.Resources)
	report.FilesScanned = scanReport.FilesScanned
	report.FilesDiscarded = scanReport.FilesDiscarded + recoverReport.FilesDiscarded
	report.Warnings = append(scanReport.Warnings, recoverReport.Warnings...)
	if err != nil {
		return oldest, report, err
	}

	return oldest, report, nil
}
