package twophase

import (
	"fmt"
	"io"
	"os"

	"github.com/mnohosten/laura-db/pkg/mvcc"
	"github.com/mnohosten/laura-db/pkg/storage"
)

// RMRecord is one resource-manager record to be durably attached to a
// prepared transaction, supplied by the caller assembling it (e.g.
// pkg/database, which knows about document locks and pending writes that
// this package does not).
type RMRecord struct {
	RMID RMID
	Info uint16
	Data []byte
}

// preparer assembles and durably writes one prepared transaction's state
// file. A fresh preparer is created per PrepareTransaction call; nothing
// about it is shared across calls.
type preparer struct {
	dataDir string
	wal     *storage.WAL
	ckLock  *storage.CheckpointLock
	chain   *recordChain
	header  *fileHeader
}

func newPreparer(dataDir string, wal *storage.WAL, ckLock *storage.CheckpointLock) *preparer {
	return &preparer{dataDir: dataDir, wal: wal, ckLock: ckLock, chain: newRecordChain()}
}

// startPrepare builds and appends the header, subxact array, and
// commit/abort relation arrays for slot, and loads the slot's
// subtransaction cache the same pass produces.
func (p *preparer) startPrepare(slot *Slot, subxids []mvcc.TxnID, commitRels, abortRels []storage.RelationID) {
	hdr := &fileHeader{
		Magic:       stateFileMagic,
		XID:         uint64(slot.Descriptor.XID),
		Database:    slot.Descriptor.Database,
		NSubxacts:   int32(len(subxids)),
		NCommitRels: int32(len(commitRels)),
		NAbortRels:  int32(len(abortRels)),
	}
	setHeaderGID(hdr, slot.GID)
	setHeaderOwner(hdr, slot.Owner)
	p.header = hdr

	p.chain.append(encodeHeader(hdr))
	p.chain.append(encodeTxnIDs(subxids))
	p.chain.append(encodeRelationList(commitRels))
	p.chain.append(encodeRelationList(abortRels))
}

// registerRecord appends one resource-manager record to the chain.
func (p *preparer) registerRecord(rec RMRecord) {
	p.chain.append(encodeRecordHeader(recordOnDisk{Len: uint32(len(rec.Data)), RMID: rec.RMID, Info: rec.Info}))
	p.chain.append(rec.Data)
}

// endPrepare finishes assembly, then carries out the durability protocol:
// write the file with a deliberately wrong trailing CRC and fsync it
// (cheap, outside any critical section, and guarantees the eventual
// correct-CRC write below cannot fail for want of disk space), then enter
// the critical section proper — WAL insert, WAL flush, correct CRC,
// fsync, close — under the checkpoint lock so a concurrent checkpoint
// cannot decide this transaction's WAL record is already safely
// superseded before it has actually reached disk.
func (p *preparer) endPrepare() (err error) {
	p.chain.append(encodeRecordHeader(recordOnDisk{RMID: RMEndID}))

	p.header.TotalLen = p.chain.len() + crcSize
	// Re-encode the header segment in place now that TotalLen is known;
	// it is always the chain's first segment.
	p.chain.segments[0] = func() []byte {
		seg := make([]byte, len(p.chain.segments[0]))
		copy(seg, encodeHeader(p.header))
		return seg
	}()

	body := p.chain.bytes()
	path := statefilePath(p.dataDir, mvcc.TxnID(p.header.XID))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close state file: %w", cerr)
		}
	}()

	if _, err = f.Write(body); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	crc := crc32Of(body)
	bogus := ^crc
	if err = writeCRC(f, bogus); err != nil {
		return fmt.Errorf("write placeholder crc: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("fsync state file: %w", err)
	}

	if _, err = f.Seek(-int64(crcSize), io.SeekEnd); err != nil {
		return fmt.Errorf("seek state file: %w", err)
	}

	// Critical section: from here on, any failure must be treated as
	// fatal rather than reported as an ordinary error, since the WAL
	// record and the state file are about to become the two copies of
	// this transaction's durable existence and they must not diverge.
	p.ckLock.LockShared()
	defer p.ckLock.UnlockShared()

	lsn, walErr := p.wal.Append(&storage.LogRecord{
		Type:  storage.LogRecordPrepare,
		TxnID: p.header.XID,
		Data:  body,
	})
	if walErr != nil {
		panicCritical(fmt.Errorf("insert prepare WAL record: %w", walErr))
	}
	if flushErr := p.wal.Flush(); flushErr != nil {
		panicCritical(fmt.Errorf("flush prepare WAL record (lsn %d): %w", lsn, flushErr))
	}

	if err = writeCRC(f, crc); err != nil {
		panicCritical(fmt.Errorf("write final crc: %w", err))
	}
	if err = f.Sync(); err != nil {
		panicCritical(fmt.Errorf("fsync final crc: %w", err))
	}

	return nil
}

// panicCritical escalates a fault encountered inside a critical section.
// Go has no equivalent of promoting an error to a process-killing signal
// short of actually panicking; an unrecovered panic here is the correct
// translation, since partial progress through this sequence would leave
// the WAL and the state file telling different stories about whether the
// transaction is prepared.
func panicCritical(err error) {
	panic(fmt.Errorf("twophase: fatal error in critical section: %w", err))
}

func writeCRC(f *os.File, crc uint32) error {
	buf := make([]byte, crcSize)
	putUint32(buf, crc)
	_, err := f.Write(buf)
	return err
}

func statefilePath(dataDir string, xid mvcc.TxnID) string {
	return fmt.Sprintf("%s/%08X", dataDir, uint64(xid))
}
