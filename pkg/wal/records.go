package wal

import (
	"encoding/binary"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
)

// Record payloads are manually binary-encoded rather than through a
// generated schema: every field is fixed-width or length-prefixed, matching
// the rest of the page/WAL on-disk formats.

// BeginRecord opens a transaction.
type BeginRecord struct {
	TxnID uint64
}

func (r BeginRecord) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, r.TxnID)
	return buf
}

func DecodeBeginRecord(buf []byte) (BeginRecord, error) {
	if len(buf) != 8 {
		return BeginRecord{}, kerrors.NewCorruption("wal.begin", "short record")
	}
	return BeginRecord{TxnID: binary.LittleEndian.Uint64(buf)}, nil
}

// PutRecord records that path now maps to id, whose document is chained
// starting at headPage.
type PutRecord struct {
	TxnID    uint64
	DocID    [16]byte
	HeadPage uint64
	Path     string
}

func (r PutRecord) Encode() []byte {
	pathBytes := []byte(r.Path)
	buf := make([]byte, 8+16+8+4+len(pathBytes))
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], r.TxnID)
	off += 8
	copy(buf[off:], r.DocID[:])
	off += 16
	binary.LittleEndian.PutUint64(buf[off:], r.HeadPage)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(pathBytes)))
	off += 4
	copy(buf[off:], pathBytes)
	return buf
}

func DecodePutRecord(buf []byte) (PutRecord, error) {
	if len(buf) < 8+16+8+4 {
		return PutRecord{}, kerrors.NewCorruption("wal.put", "short record")
	}
	var r PutRecord
	off := 0
	r.TxnID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(r.DocID[:], buf[off:off+16])
	off += 16
	r.HeadPage = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	pathLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if off+int(pathLen) > len(buf) {
		return PutRecord{}, kerrors.NewCorruption("wal.put", "path length exceeds record")
	}
	r.Path = string(buf[off : off+int(pathLen)])
	return r, nil
}

// DeleteRecord records that id was removed.
type DeleteRecord struct {
	TxnID uint64
	DocID [16]byte
}

func (r DeleteRecord) Encode() []byte {
	buf := make([]byte, 8+16)
	binary.LittleEndian.PutUint64(buf, r.TxnID)
	copy(buf[8:], r.DocID[:])
	return buf
}

func DecodeDeleteRecord(buf []byte) (DeleteRecord, error) {
	if len(buf) != 8+16 {
		return DeleteRecord{}, kerrors.NewCorruption("wal.delete", "short record")
	}
	var r DeleteRecord
	r.TxnID = binary.LittleEndian.Uint64(buf)
	copy(r.DocID[:], buf[8:])
	return r, nil
}

// CommitRecord closes a transaction; its effects become visible once this
// record's fsync returns.
type CommitRecord struct {
	TxnID uint64
}

func (r CommitRecord) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, r.TxnID)
	return buf
}

func DecodeCommitRecord(buf []byte) (CommitRecord, error) {
	if len(buf) != 8 {
		return CommitRecord{}, kerrors.NewCorruption("wal.commit", "short record")
	}
	return CommitRecord{TxnID: binary.LittleEndian.Uint64(buf)}, nil
}

// CheckpointRecord marks a durable snapshot point; WAL segments before it
// may be truncated.
type CheckpointRecord struct {
	SnapshotID    uint64
	BTreeRootPage uint64
	TrigramRootID uint64
}

func (r CheckpointRecord) Encode() []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:], r.SnapshotID)
	binary.LittleEndian.PutUint64(buf[8:], r.BTreeRootPage)
	binary.LittleEndian.PutUint64(buf[16:], r.TrigramRootID)
	return buf
}

func DecodeCheckpointRecord(buf []byte) (CheckpointRecord, error) {
	if len(buf) != 24 {
		return CheckpointRecord{}, kerrors.NewCorruption("wal.checkpoint", "short record")
	}
	return CheckpointRecord{
		SnapshotID:    binary.LittleEndian.Uint64(buf[0:]),
		BTreeRootPage: binary.LittleEndian.Uint64(buf[8:]),
		TrigramRootID: binary.LittleEndian.Uint64(buf[16:]),
	}, nil
}
