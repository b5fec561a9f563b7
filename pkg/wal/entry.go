// Package wal implements the write-ahead log every mutation passes through
// before it is visible in the page store or the indices. Entries are
// length-prefixed and CRC32C-checksummed; a torn write at the tail is
// detected, never replayed.
package wal

import (
	"encoding/binary"
	"io"
)

const (
	HeaderSize = 24
	WALVersion = 1
	WALMagic   = 0xDEADBEEF
)

// EntryType identifies what a WAL record represents.
const (
	EntryBegin uint8 = iota + 1
	EntryPut
	EntryDelete
	EntryCommit
	EntryCheckpoint
)

// WALHeader is the fixed 24-byte prologue of every entry.
type WALHeader struct {
	Magic      uint32
	Version    uint8
	EntryType  uint8
	Reserved   uint16
	LSN        uint64
	PayloadLen uint32
	CRC32      uint32
}

// WALEntry is one header plus its payload.
type WALEntry struct {
	Header  WALHeader
	Payload []byte
}

func (h *WALHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.EntryType
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.LSN)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC32)
}

func (h *WALHeader) Decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = buf[4]
	h.EntryType = buf[5]
	h.Reserved = binary.LittleEndian.Uint16(buf[6:8])
	h.LSN = binary.LittleEndian.Uint64(buf[8:16])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[16:20])
	h.CRC32 = binary.LittleEndian.Uint32(buf[20:24])
}

// WriteTo writes the header then the payload.
func (e *WALEntry) WriteTo(w io.Writer) (int64, error) {
	var headerBuf [HeaderSize]byte
	e.Header.Encode(headerBuf[:])

	n, err := w.Write(headerBuf[:])
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(e.Payload)
	return int64(n + m), err
}

// NewEntry builds an entry with its CRC32C computed over payload, ready to
// hand to a Writer.
func NewEntry(entryType uint8, lsn uint64, payload []byte) *WALEntry {
	return &WALEntry{
		Header: WALHeader{
			Magic:      WALMagic,
			Version:    WALVersion,
			EntryType:  entryType,
			LSN:        lsn,
			PayloadLen: uint32(len(payload)),
			CRC32:      CalculateCRC32(payload),
		},
		Payload: payload,
	}
}
