package wal

import (
	"io"
	"os"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
)

const maxPayloadLen = 1 << 30 // guards against a garbage length field

// WALReader reads entries back sequentially, stopping at the first
// malformed record rather than skipping it: a partially written tail is
// expected after a crash and is the recovery loop's signal to stop replay.
type WALReader struct {
	file   *os.File
	offset int64
}

// NewWALReader opens an existing log file for sequential reads.
func NewWALReader(path string) (*WALReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kerrors.NewIoFatal("wal.reader.open", err)
	}
	return &WALReader{file: f}, nil
}

// ReadEntry reads the next entry. It returns io.EOF when the log is
// exhausted cleanly. Any other error (bad magic, truncated payload, bad
// checksum) marks the record, and everything after it, as a torn tail.
func (r *WALReader) ReadEntry() (*WALEntry, error) {
	headerBuf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.file, headerBuf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	if n != HeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	var header WALHeader
	header.Decode(headerBuf)

	if header.Magic != WALMagic {
		return nil, kerrors.NewCorruption("wal.entry", "bad magic")
	}
	if header.Version != WALVersion {
		return nil, kerrors.NewCorruption("wal.entry", "unsupported version")
	}
	if header.PayloadLen == 0 {
		r.offset += int64(HeaderSize)
		return &WALEntry{Header: header}, nil
	}
	if header.PayloadLen > maxPayloadLen {
		return nil, kerrors.NewCorruption("wal.entry", "payload length exceeds sane bound")
	}

	entry := AcquireEntry()
	entry.Header = header
	if uint32(cap(entry.Payload)) < header.PayloadLen {
		entry.Payload = make([]byte, header.PayloadLen)
	} else {
		entry.Payload = entry.Payload[:header.PayloadLen]
	}

	if _, err := io.ReadFull(r.file, entry.Payload); err != nil {
		ReleaseEntry(entry)
		return nil, io.ErrUnexpectedEOF
	}

	if !ValidateCRC32(entry.Payload, header.CRC32) {
		ReleaseEntry(entry)
		return nil, kerrors.NewCorruption("wal.entry", "checksum mismatch")
	}

	r.offset += int64(HeaderSize) + int64(header.PayloadLen)
	return entry, nil
}

// Close releases the underlying file handle.
func (r *WALReader) Close() error {
	return r.file.Close()
}
