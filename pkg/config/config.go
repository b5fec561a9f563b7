// Package config defines the engine's startup-time configuration,
// validated once at Open so a misconfigured engine fails fast instead of
// misbehaving at the first write.
package config

import (
	"time"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
)

// Config collects every tunable the engine accepts at startup.
type Config struct {
	DataDir string

	CacheCapacity int

	WALSegmentBytes int64
	FsyncOnCommit   bool

	BTreeFanout int

	TrigramScoreThresholdShort float64
	TrigramScoreThresholdLong  float64

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration

	CheckpointInterval time.Duration
}

// Default returns the engine's default configuration.
func Default() Config {
	return Config{
		DataDir:                    "./kotadb-data",
		CacheCapacity:              1000,
		WALSegmentBytes:            64 * 1024 * 1024,
		FsyncOnCommit:              true,
		BTreeFanout:                128,
		TrigramScoreThresholdShort: 0.80,
		TrigramScoreThresholdLong:  0.60,
		RetryMaxAttempts:           5,
		RetryInitialBackoff:        10 * time.Millisecond,
		RetryMaxBackoff:            2 * time.Second,
		CheckpointInterval:         5 * time.Minute,
	}
}

// Validate reports the first configuration field that fails its bounds
// check, wrapped as a kerrors.Config error.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return kerrors.NewConfig("data_dir", "must not be empty")
	}
	if c.CacheCapacity <= 0 {
		return kerrors.NewConfig("cache_capacity", "must be positive")
	}
	if c.WALSegmentBytes <= 0 {
		return kerrors.NewConfig("wal_segment_bytes", "must be positive")
	}
	if c.BTreeFanout < 3 {
		return kerrors.NewConfig("btree_fanout", "must be at least 3 (minimum viable B+ tree degree)")
	}
	if c.TrigramScoreThresholdShort <= 0 || c.TrigramScoreThresholdShort > 1 {
		return kerrors.NewConfig("trigram_score_threshold_short", "must be in (0, 1]")
	}
	if c.TrigramScoreThresholdLong <= 0 || c.TrigramScoreThresholdLong > 1 {
		return kerrors.NewConfig("trigram_score_threshold_long", "must be in (0, 1]")
	}
	if c.RetryMaxAttempts < 0 {
		return kerrors.NewConfig("retry_max_attempts", "must be >= 0")
	}
	if c.RetryInitialBackoff <= 0 {
		return kerrors.NewConfig("retry_initial_backoff", "must be positive")
	}
	if c.RetryMaxBackoff < c.RetryInitialBackoff {
		return kerrors.NewConfig("retry_max_backoff", "must be >= retry_initial_backoff")
	}
	if c.CheckpointInterval <= 0 {
		return kerrors.NewConfig("checkpoint_interval", "must be positive")
	}
	return nil
}
