package config

import (
	"testing"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate cleanly: %v", err)
	}
}

func TestValidate_RejectsBadFields(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.DataDir = "" },
		func(c *Config) { c.CacheCapacity = 0 },
		func(c *Config) { c.WALSegmentBytes = 0 },
		func(c *Config) { c.BTreeFanout = 2 },
		func(c *Config) { c.TrigramScoreThresholdShort = 1.5 },
		func(c *Config) { c.TrigramScoreThresholdLong = 0 },
		func(c *Config) { c.RetryMaxAttempts = -1 },
		func(c *Config) { c.RetryInitialBackoff = 0 },
		func(c *Config) { c.RetryMaxBackoff = 0 },
		func(c *Config) { c.CheckpointInterval = 0 },
	}

	for i, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		err := cfg.Validate()
		if !kerrors.Is(err, kerrors.Config) {
			t.Errorf("case %d: expected Config error, got %v", i, err)
		}
	}
}
