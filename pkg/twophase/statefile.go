package twophase

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/mnohosten/laura-db/pkg/mvcc"
	"github.com/mnohosten/laura-db/pkg/storage"
)

const (
	// stateFileMagic identifies a well-formed prepared-transaction state
	// file; any other leading four bytes is treated as foreign or
	// truncated data.
	stateFileMagic uint32 = 0x57F94530

	// maxAlign is the padding boundary every segment of a state file is
	// rounded up to, matching the chain builder in chain.go.
	maxAlign = 8

	// gidFieldSize is the fixed width the GID occupies inside the header,
	// one byte more than MaxGIDLen so a GID of the maximum usable length
	// still leaves a zero terminator byte when trimmed back on read.
	gidFieldSize = MaxGIDLen + 1

	// ownerFieldSize is the fixed width the owner identity occupies
	// inside the header.
	ownerFieldSize = 64

	// maxStateFileSize guards against treating an arbitrarily large or
	// corrupt file as a real state file; no real prepared transaction
	// approaches this size.
	maxStateFileSize = 10_000_000

	fileHeaderSize   = 4 + 4 + 8 + 4 + ownerFieldSize + 4 + 4 + 4 + gidFieldSize
	recordHeaderSize = 4 + 2 + 2
	crcSize          = 4
)

// RMID identifies which resource manager a record inside a state file
// belongs to.
type RMID uint16

const (
	RMLock RMID = iota
	RMInval
	RMNotify
	RMData
	rmMaxID = RMData
)

// RMEndID is the sentinel record ID written after the last real
// resource-manager record, never dispatched to any callback.
const RMEndID RMID = 0xFFFF

// fileHeader is the fixed-size prologue of a state file.
type fileHeader struct {
	Magic       uint32
	TotalLen    uint32
	XID         uint64
	Database    uint32
	Owner       [ownerFieldSize]byte
	NSubxacts   int32
	NCommitRels int32
	NAbortRels  int32
	GID         [gidFieldSize]byte
}

func encodeHeader(h *fileHeader) []byte {
	buf := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.TotalLen)
	binary.LittleEndian.PutUint64(buf[8:16], h.XID)
	binary.LittleEndian.PutUint32(buf[16:20], h.Database)
	ownerEnd := 20 + ownerFieldSize
	copy(buf[20:ownerEnd], h.Owner[:])
	binary.LittleEndian.PutUint32(buf[ownerEnd:ownerEnd+4], uint32(h.NSubxacts))
	binary.LittleEndian.PutUint32(buf[ownerEnd+4:ownerEnd+8], uint32(h.NCommitRels))
	binary.LittleEndian.PutUint32(buf[ownerEnd+8:ownerEnd+12], uint32(h.NAbortRels))
	copy(buf[ownerEnd+12:ownerEnd+12+gidFieldSize], h.GID[:])
	return buf
}

func decodeHeader(buf []byte) (*fileHeader, error) {
	if len(buf) < fileHeaderSize {
		return nil, fmt.Errorf("%w: header truncated", ErrStateFileCorrupted)
	}
	h := &fileHeader{
		Magic:    binary.LittleEndian.Uint32(buf[0:4]),
		TotalLen: binary.LittleEndian.Uint32(buf[4:8]),
		XID:      binary.LittleEndian.Uint64(buf[8:16]),
		Database: binary.LittleEndian.Uint32(buf[16:20]),
	}
	ownerEnd := 20 + ownerFieldSize
	copy(h.Owner[:], buf[20:ownerEnd])
	h.NSubxacts = int32(binary.LittleEndian.Uint32(buf[ownerEnd : ownerEnd+4]))
	h.NCommitRels = int32(binary.LittleEndian.Uint32(buf[ownerEnd+4 : ownerEnd+8]))
	h.NAbortRels = int32(binary.LittleEndian.Uint32(buf[ownerEnd+8 : ownerEnd+12]))
	copy(h.GID[:], buf[ownerEnd+12:ownerEnd+12+gidFieldSize])
	return h, nil
}

func (h *fileHeader) gid() GID {
	return GID(trimZero(h.GID[:]))
}

func (h *fileHeader) owner() string {
	return string(trimZero(h.Owner[:]))
}

func trimZero(b []byte) []byte {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return b[:n]
}

func setHeaderGID(h *fileHeader, gid GID) {
	copy(h.GID[:], []byte(gid))
}

func setHeaderOwner(h *fileHeader, owner string) {
	copy(h.Owner[:], []byte(owner))
}

// recordOnDisk is the fixed-size prologue written before each
// resource-manager record's payload.
type recordOnDisk struct {
	Len  uint32
	RMID RMID
	Info uint16
}

func encodeRecordHeader(r recordOnDisk) []byte {
	buf := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Len)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(r.RMID))
	binary.LittleEndian.PutUint16(buf[6:8], r.Info)
	return buf
}

func decodeRecordHeader(buf []byte) (recordOnDisk, error) {
	if len(buf) < recordHeaderSize {
		return recordOnDisk{}, fmt.Errorf("%w: record header truncated", ErrStateFileCorrupted)
	}
	return recordOnDisk{
		Len:  binary.LittleEndian.Uint32(buf[0:4]),
		RMID: RMID(binary.LittleEndian.Uint16(buf[4:6])),
		Info: binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}

// decodedFile is the parsed, in-memory form of a state file.
type decodedFile struct {
	Header     *fileHeader
	Subxacts   []mvcc.TxnID
	CommitRels []storage.RelationID
	AbortRels  []storage.RelationID
	Records    []byte // raw bytes starting at the first resource-manager record
}

// readStateFile opens, validates, and decodes the state file for xid. Any
// problem short of an outright I/O error returns (nil, nil): a corrupted
// or foreign file is not this package's business to report as a fault,
// only to refuse to trust — callers decide how seriously to take a nil
// result (finish treats it as ErrStateFileCorrupted, recovery treats it as
// a warning and moves on).
func readStateFile(path string) (decoded *decodedFile, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	// The CRC check below authenticates the header-derived offsets used
	// afterward, but a file that matches by coincidence (or a bug in this
	// package) could still describe offsets past the end of the buffer.
	// Treat that the same as any other malformed file instead of panicking
	// while scanning a directory full of them.
	defer func() {
		if r := recover(); r != nil {
			decoded, err = nil, nil
		}
	}()

	if len(data) < fileHeaderSize+recordHeaderSize+crcSize || len(data) > maxStateFileSize {
		return nil, nil
	}

	crcOffset := len(data) - crcSize
	if crcOffset != alignUp(crcOffset) {
		return nil, nil
	}

	computed := crc32.ChecksumIEEE(data[:crcOffset])
	stored := binary.LittleEndian.Uint32(data[crcOffset:])
	if computed != stored {
		return nil, nil
	}

	hdr, err := decodeHeader(data)
	if err != nil {
		return nil, nil
	}
	if hdr.Magic != stateFileMagic || int(hdr.TotalLen) != len(data) {
		return nil, nil
	}

	offset := alignUp(fileHeaderSize)

	readTxnIDs := func(n int32) []mvcc.TxnID {
		out := make([]mvcc.TxnID, n)
		for i := range out {
			out[i] = mvcc.TxnID(binary.LittleEndian.Uint64(data[offset+i*8:]))
		}
		offset += alignUp(int(n) * 8)
		return out
	}

	subxacts := readTxnIDs(hdr.NSubxacts)

	commitRels := decodeRelationList(data, &offset, hdr.NCommitRels)
	abortRels := decodeRelationList(data, &offset, hdr.NAbortRels)

	return &decodedFile{
		Header:     hdr,
		Subxacts:   subxacts,
		CommitRels: commitRels,
		AbortRels:  abortRels,
		Records:    data[offset:crcOffset],
	}, nil
}

// decodeRelationList reads n length-prefixed relation names starting at
// *offset, advancing *offset past the MAXALIGN-padded segment.
func decodeRelationList(data []byte, offset *int, n int32) []storage.RelationID {
	start := *offset
	pos := start
	out := make([]storage.RelationID, n)
	for i := int32(0); i < n; i++ {
		l := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		out[i] = storage.RelationID(data[pos : pos+l])
		pos += l
	}
	*offset = start + alignUp(pos-start)
	return out
}

func encodeRelationList(rels []storage.RelationID) []byte {
	var buf []byte
	for _, rel := range rels {
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(rel)))
		buf = append(buf, lenBuf...)
		buf = append(buf, []byte(rel)...)
	}
	return buf
}

func crc32Of(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

func putUint32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

func encodeTxnIDs(ids []mvcc.TxnID) []byte {
	buf := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(id))
	}
	return buf
}
