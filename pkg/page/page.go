// Package page implements the fixed-size page store documents are chunked
// across. Each page is 4 KiB: a 24-byte header (magic, version, kind,
// next-page pointer, payload length, CRC32C) followed by up to 4072 bytes of
// payload. Pages chain into a linked list so a document larger than one page
// spans several.
package page

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
)

const (
	// Size is the fixed on-disk size of every page: a small fixed header
	// followed by payload.
	Size = 4096

	headerSize  = 24
	magic       = 0x4b4f5441 // "KOTA"
	version     = 1
	MaxPayload  = Size - headerSize
	// NoNext marks the last page in a chain.
	NoNext PageID = 0xFFFFFFFFFFFFFFFF
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Kind distinguishes the role a page plays.
type Kind uint8

const (
	KindFree Kind = iota
	KindDocHead
	KindDocChain
)

// PageID is a page's 0-based offset in the backing file (offset = id * Size).
type PageID uint64

type header struct {
	magic      uint32
	version    uint16
	kind       Kind
	_          uint8 // padding
	next       PageID
	payloadLen uint32
	crc        uint32
}

func encodeHeader(h header, payload []byte) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.version)
	buf[6] = byte(h.kind)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.next))
	binary.LittleEndian.PutUint32(buf[16:20], h.payloadLen)
	binary.LittleEndian.PutUint32(buf[20:24], crc32.Checksum(payload, castagnoliTable))
	return buf
}

func decodeHeader(buf []byte) header {
	return header{
		magic:      binary.LittleEndian.Uint32(buf[0:4]),
		version:    binary.LittleEndian.Uint16(buf[4:6]),
		kind:       Kind(buf[6]),
		next:       PageID(binary.LittleEndian.Uint64(buf[8:16])),
		payloadLen: binary.LittleEndian.Uint32(buf[16:20]),
		crc:        binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// Manager owns the single backing file a KotaDB instance stores its pages
// in, handing out page ids and maintaining a free list reclaimed on delete.
// It scans the file on open to recover allocation state, guards the
// allocation cursor with a mutex, and writes pages synchronously.
type Manager struct {
	mu       sync.RWMutex
	file     *os.File
	nextID   PageID
	freeList []PageID
}

// Open opens or creates the page file at path, scanning existing pages to
// rebuild the free list and allocation cursor.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, kerrors.NewIoFatal("page.open", err)
	}
	m := &Manager{file: f}
	if err := m.scan(); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) scan() error {
	info, err := m.file.Stat()
	if err != nil {
		return kerrors.NewIoFatal("page.stat", err)
	}
	count := PageID(info.Size() / Size)
	m.nextID = count

	buf := make([]byte, headerSize)
	for id := PageID(0); id < count; id++ {
		if _, err := m.file.ReadAt(buf, int64(id)*Size); err != nil {
			return kerrors.NewIoFatal("page.scan", err)
		}
		h := decodeHeader(buf)
		if h.magic != magic {
			continue
		}
		if h.kind == KindFree {
			m.freeList = append(m.freeList, id)
		}
	}
	return nil
}

// Allocate reserves a page id, preferring a reclaimed free page over growing
// the file.
func (m *Manager) Allocate() PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return id
	}
	id := m.nextID
	m.nextID++
	return id
}

// Write writes one page's header and payload. It does not fsync; the page is
// durable only after a later Sync. len(payload) must not exceed MaxPayload.
func (m *Manager) Write(id PageID, kind Kind, next PageID, payload []byte) error {
	if len(payload) > MaxPayload {
		return kerrors.NewInvalidInput("page.payload", "exceeds max page payload size")
	}
	h := header{magic: magic, version: version, kind: kind, next: next, payloadLen: uint32(len(payload))}
	buf := make([]byte, Size)
	copy(buf, encodeHeader(h, payload))
	copy(buf[headerSize:], payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.file.WriteAt(buf, int64(id)*Size); err != nil {
		return kerrors.NewIoFatal("page.write", err)
	}
	return nil
}

// Read reads one page, validating its CRC32C. A checksum mismatch reports
// Corruption rather than returning the bad payload.
func (m *Manager) Read(id PageID) (kind Kind, next PageID, payload []byte, err error) {
	buf := make([]byte, Size)
	m.mu.RLock()
	_, readErr := m.file.ReadAt(buf, int64(id)*Size)
	m.mu.RUnlock()
	if readErr != nil {
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return 0, 0, nil, kerrors.NewNotFound("page", pageIDStringer(id))
		}
		return 0, 0, nil, kerrors.NewIoFatal("page.read", readErr)
	}

	h := decodeHeader(buf[:headerSize])
	if h.magic != magic {
		return 0, 0, nil, kerrors.NewCorruption("page", "bad magic")
	}
	if h.version != version {
		return 0, 0, nil, kerrors.NewCorruption("page", "unsupported version")
	}
	if int(h.payloadLen) > MaxPayload {
		return 0, 0, nil, kerrors.NewCorruption("page", "payload length exceeds page size")
	}
	payload = make([]byte, h.payloadLen)
	copy(payload, buf[headerSize:headerSize+int(h.payloadLen)])
	if crc32.Checksum(payload, castagnoliTable) != h.crc {
		return 0, 0, nil, kerrors.NewCorruption("page", "checksum mismatch")
	}
	return h.kind, h.next, payload, nil
}

// Free marks a page reclaimable and adds it back to the free list. It
// rewrites the page as an empty KindFree page, so the old payload bytes are
// zeroed on disk.
func (m *Manager) Free(id PageID) error {
	if err := m.Write(id, KindFree, NoNext, nil); err != nil {
		return err
	}
	m.mu.Lock()
	m.freeList = append(m.freeList, id)
	m.mu.Unlock()
	return nil
}

// WriteChain splits payload across as many pages as needed, linking them
// head-to-tail, and returns the head page id. kind is applied to the head
// page; continuation pages are KindDocChain.
func (m *Manager) WriteChain(kind Kind, payload []byte) (PageID, error) {
	if len(payload) == 0 {
		id := m.Allocate()
		return id, m.Write(id, kind, NoNext, nil)
	}

	var ids []PageID
	for offset := 0; offset < len(payload); offset += MaxPayload {
		ids = append(ids, m.Allocate())
	}

	for i, id := range ids {
		start := i * MaxPayload
		end := start + MaxPayload
		if end > len(payload) {
			end = len(payload)
		}
		next := NoNext
		pageKind := KindDocChain
		if i == 0 {
			pageKind = kind
		}
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		if err := m.Write(id, pageKind, next, payload[start:end]); err != nil {
			return 0, err
		}
	}
	return ids[0], nil
}

// ReadChain follows a page chain from head, concatenating payloads. Any
// Corruption encountered partway through is returned immediately; the
// document is never returned torn.
func (m *Manager) ReadChain(head PageID) ([]byte, error) {
	var out []byte
	id := head
	for {
		_, next, payload, err := m.Read(id)
		if err != nil {
			return nil, err
		}
		out = append(out, payload...)
		if next == NoNext {
			break
		}
		id = next
	}
	return out, nil
}

// FreeChain walks a page chain from head, reclaiming every page in it.
func (m *Manager) FreeChain(head PageID) error {
	id := head
	for {
		_, next, _, err := m.Read(id)
		if err != nil {
			return err
		}
		if err := m.Free(id); err != nil {
			return err
		}
		if next == NoNext {
			break
		}
		id = next
	}
	return nil
}

// Sync forces the page file durable.
func (m *Manager) Sync() error {
	if err := m.file.Sync(); err != nil {
		return kerrors.NewIoFatal("page.sync", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (m *Manager) Close() error {
	return m.file.Close()
}

type pageIDStringer PageID

func (p pageIDStringer) String() string {
	return "page:" + itoa(uint64(p))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
