package storage

import (
	"sync/atomic"
)

// LSNTracker hands out monotonically increasing log sequence numbers. A
// single instance is shared by every writer on an Engine so WAL records
// from concurrent transactions never collide.
type LSNTracker struct {
	current uint64
}

// NewLSNTracker starts the counter at start (the last LSN recovery saw).
func NewLSNTracker(start uint64) *LSNTracker {
	return &LSNTracker{current: start}
}

// Next returns the next unused LSN.
func (lt *LSNTracker) Next() uint64 {
	return atomic.AddUint64(&lt.current, 1)
}

// Current returns the last LSN handed out.
func (lt *LSNTracker) Current() uint64 {
	return atomic.LoadUint64(&lt.current)
}

// Set forces the counter to val. Engine does not call it: Open seeds the
// tracker through NewLSNTracker with the last LSN replay observed.
func (lt *LSNTracker) Set(val uint64) {
	atomic.StoreUint64(&lt.current, val)
}
