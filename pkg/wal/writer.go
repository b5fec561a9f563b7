package wal

import (
	"bufio"
	"os"
	"sync"
	"sync/atomic"
	"time"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
)

// WALWriter serializes writes into the log file and applies the configured
// SyncPolicy. A single file is used; segment rotation and truncation after a
// checkpoint are handled by the caller (pkg/storage), which closes this
// writer, removes the file, and opens a fresh writer at the same path.
type WALWriter struct {
	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	options Options

	batchBytes int64
	lastLSN    uint64

	done   chan struct{}
	ticker *time.Ticker
	closed bool
}

// NewWALWriter opens (creating if absent) the log file at path.
func NewWALWriter(path string, opts Options) (*WALWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, kerrors.NewIoFatal("wal.writer.open", err)
	}

	w := &WALWriter{
		file:    f,
		writer:  bufio.NewWriterSize(f, opts.BufferSize),
		options: opts,
		done:    make(chan struct{}),
	}

	if opts.SyncPolicy == SyncInterval {
		w.ticker = time.NewTicker(opts.SyncIntervalDuration)
		go w.backgroundSync()
	}

	return w, nil
}

// NextLSN hands out the next monotonic log sequence number.
func (w *WALWriter) NextLSN() uint64 {
	return atomic.AddUint64(&w.lastLSN, 1)
}

// WriteEntry appends entry to the buffered writer and applies the sync
// policy.
func (w *WALWriter) WriteEntry(entry *WALEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := entry.WriteTo(w.writer)
	if err != nil {
		return kerrors.NewIoTransient("wal.write", err)
	}
	w.batchBytes += n

	switch w.options.SyncPolicy {
	case SyncEveryWrite:
		return w.syncLocked()
	case SyncBatch:
		if w.batchBytes >= w.options.SyncBatchBytes {
			return w.syncLocked()
		}
	}
	return nil
}

// Sync forces buffered writes durable.
func (w *WALWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *WALWriter) syncLocked() error {
	if err := w.writer.Flush(); err != nil {
		return kerrors.NewIoTransient("wal.flush", err)
	}
	if err := w.file.Sync(); err != nil {
		return kerrors.NewIoFatal("wal.fsync", err)
	}
	w.batchBytes = 0
	return nil
}

// Close flushes, syncs, and closes the log file, stopping any background
// sync ticker.
func (w *WALWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.ticker != nil {
		w.ticker.Stop()
		close(w.done)
	}

	if err := w.syncLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *WALWriter) backgroundSync() {
	for {
		select {
		case <-w.ticker.C:
			w.Sync()
		case <-w.done:
			return
		}
	}
}
