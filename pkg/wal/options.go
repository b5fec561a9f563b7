package wal

import "time"

// SyncPolicy controls when the writer forces data durable.
type SyncPolicy int

const (
	// SyncEveryWrite fsyncs after every entry. Safest, slowest.
	SyncEveryWrite SyncPolicy = iota

	// SyncInterval fsyncs on a background timer.
	SyncInterval

	// SyncBatch fsyncs once accumulated bytes cross SyncBatchBytes.
	SyncBatch
)

// Options configures a WALWriter.
type Options struct {
	// DirPath is the directory the log segment lives in.
	DirPath string

	// BufferSize is the bufio buffer size between writes and the syscall layer.
	BufferSize int

	SyncPolicy SyncPolicy

	// SyncIntervalDuration applies only to SyncInterval.
	SyncIntervalDuration time.Duration

	// SyncBatchBytes applies only to SyncBatch.
	SyncBatchBytes int64
}

// DefaultOptions returns sensible defaults: fsync after every write and a
// 64 KiB write buffer. Options has no segment size; the log is a single file.
func DefaultOptions() Options {
	return Options{
		DirPath:              "./wal",
		BufferSize:           64 * 1024,
		SyncPolicy:           SyncEveryWrite,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       1 * 1024 * 1024,
	}
}
