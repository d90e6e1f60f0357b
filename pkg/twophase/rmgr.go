package twophase

import "github.com/mnohosten/laura-db/pkg/mvcc"

// Callback is invoked once per resource-manager record found in a
// prepared transaction's state file, during finish (post-commit/abort)
// or during recovery.
type Callback func(xid mvcc.TxnID, info uint16, data []byte) error

// ResourceManagers dispatches resource-manager records by RMID to
// whichever subsystem registered interest in that kind of record.
type ResourceManagers struct {
	postCommit [rmMaxID + 1]Callback
	postAbort  [rmMaxID + 1]Callback
	recover    [rmMaxID + 1]Callback
}

// NewResourceManagers returns an empty dispatch table.
func NewResourceManagers() *ResourceManagers {
	return &ResourceManagers{}
}

// Register installs callbacks for rmid. Any of the three may be nil, in
// which case records of that kind are simply skipped during the
// corresponding phase.
func (r *ResourceManagers) Register(rmid RMID, postCommit, postAbort, recoverCB Callback) {
	r.postCommit[rmid] = postCommit
	r.postAbort[rmid] = postAbort
	r.recover[rmid] = recoverCB
}

type dispatchPhase int

const (
	phasePostCommit dispatchPhase = iota
	phasePostAbort
	phaseRecover
)

// processRecords walks a chain of resource-manager records, calling the
// registered callback for each until it finds the end sentinel.
func (r *ResourceManagers) processRecords(phase dispatchPhase, xid mvcc.TxnID, buf []byte) error {
	for len(buf) > 0 {
		rec, err := decodeRecordHeader(buf)
		if err != nil {
			return err
		}
		buf = buf[alignUp(recordHeaderSize):]

		if rec.RMID == RMEndID {
			return nil
		}

		payload := buf[:rec.Len]
		buf = buf[alignUp(int(rec.Len)):]

		if int(rec.RMID) >= len(r.postCommit) {
			continue
		}

		var cb Callback
		switch phase {
		case phasePostCommit:
			cb = r.postCommit[rec.RMID]
		case phasePostAbort:
			cb = r.postAbort[rec.RMID]
		case phaseRecover:
			cb = r.recover[rec.RMID]
		}
		if cb == nil {
			continue
		}
		if err := cb(xid, rec.Info, payload); err != nil {
			return err
		}
	}
	return nil
}
