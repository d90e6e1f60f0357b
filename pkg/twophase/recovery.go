package twophase

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mnohosten/laura-db/pkg/mvcc"
)

// RecoveryReport collects the non-fatal discrepancies found while
// scanning or replaying prepared-transaction state files, in the same
// spirit as pkg/storage.CompactionStats: a bulk scan over many
// independent items reports its failures structurally instead of logging
// them, leaving the caller to decide what to do with them.
type RecoveryReport struct {
	FilesScanned   int
	FilesDiscarded int
	Warnings       []string
}

func (r *RecoveryReport) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Prescan reads every file in dataDir and returns the oldest XID among
// the transactions that survive validation, needed before recovery can
// decide how far forward to advance the next-XID counter and how far back
// a subtransaction lookup must still answer "in progress". Files whose
// name decodes to an XID at or beyond nextXID are PITR leftovers from a
// future that never happened on this timeline and are discarded outright.
// It returns the set of surviving (xid, path) pairs alongside the oldest
// XID, so Recover can reuse the same scan instead of repeating it.
func Prescan(dataDir string, nextXID *mvcc.TxnID) (oldest mvcc.TxnID, survivors []string, report RecoveryReport, err error) {
	entries, readErr := os.ReadDir(dataDir)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return *nextXID, nil, report, nil
		}
		return 0, nil, report, fmt.Errorf("read prepared-transaction directory: %w", readErr)
	}

	oldest = *nextXID

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		report.FilesScanned++

		name := entry.Name()
		xidVal, parseErr := strconv.ParseUint(name, 16, 64)
		if parseErr != nil || len(name) != 8 {
			report.warn("skipping non-state-file entry %q", name)
			continue
		}
		xid := mvcc.TxnID(xidVal)
		path := dataDir + "/" + name

		if xid >= *nextXID {
			report.warn("removing future transaction %08X ahead of next-xid", xidVal)
			os.Remove(path)
			report.FilesDiscarded++
			continue
		}

		decoded, readErr := readStateFile(path)
		if readErr != nil {
			return 0, nil, report, readErr
		}
		if decoded == nil {
			report.warn("removing corrupted state file %08X", xidVal)
			os.Remove(path)
			report.FilesDiscarded++
			continue
		}
		if mvcc.TxnID(decoded.Header.XID) != xid {
			report.warn("removing state file %08X: header xid mismatch", xidVal)
			os.Remove(path)
			report.FilesDiscarded++
			continue
		}

		if xid < oldest {
			oldest = xid
		}
		for _, sub := range decoded.Subxacts {
			if sub >= *nextXID {
				*nextXID = sub + 1
			}
		}

		survivors = append(survivors, path)
	}

	return oldest, survivors, report, nil
}

// Recover reloads every surviving prepared transaction found by a prior
// Prescan call back into the registry, replays its resource-manager
// records through the recover callbacks, and reconstructs the
// subtransaction-to-parent mapping that does not otherwise survive a
// restart. Transactions whose outcome the commit log already knows (WAL
// replay having already committed or aborted them through the ordinary
// path) are discarded instead of being reloaded a second time.
func Recover(dataDir string, survivors []string, registry *Registry, commitLog *mvcc.CommitLog, rmgr *ResourceManagers) (report RecoveryReport, err error) {
	for _, path := range survivors {
		decoded, readErr := readStateFile(path)
		if readErr != nil {
			return report, readErr
		}
		if decoded == nil {
			report.warn("state file vanished mid-recovery: %s", path)
			continue
		}

		xid := mvcc.TxnID(decoded.Header.XID)

		if commitLog.DidCommit(xid) || commitLog.DidAbort(xid) {
			report.warn("transaction %d already resolved by WAL replay, discarding state file", xid)
			if rmErr := removeStateFile(path, false); rmErr != nil {
				return report, rmErr
			}
			continue
		}

		for _, sub := range decoded.Subxacts {
			commitLog.SetParent(sub, xid)
		}

		slot, prepErr := registry.MarkAsPreparing(xid, decoded.Header.Database, decoded.Header.gid(), decoded.Header.owner())
		if prepErr != nil {
			return report, fmt.Errorf("recover transaction %d: %w", xid, prepErr)
		}
		registry.LoadSubxactData(slot, decoded.Subxacts)
		registry.MarkAsPrepared(slot)

		if dispatchErr := rmgr.processRecords(phaseRecover, xid, decoded.Records); dispatchErr != nil {
			return report, fmt.Errorf("recover transaction %d: %w", xid, dispatchErr)
		}
	}

	return report, nil
}
