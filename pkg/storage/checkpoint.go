package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.mongodb.org/mongo-driver/v2/bson"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
)

// manifestEntry is one row of the primary index as of a checkpoint: the
// path, the document it resolves to, and the head page its content chain
// starts at. Recovery rebuilds the in-memory btree and trigram index from
// these rows instead of replaying every WAL record back to the beginning
// of time.
type manifestEntry struct {
	Path     string `bson:"path"`
	DocID    [16]byte `bson:"doc_id"`
	HeadPage uint64 `bson:"head_page"`
}

type manifest struct {
	LSN     uint64           `bson:"lsn"`
	Entries []manifestEntry  `bson:"entries"`
}

// CheckpointManager persists and reloads the primary-index manifest using
// write-temp-then-rename durability and keep-only-the-latest retention: a
// single rolling checkpoint file per data directory, since this engine has
// exactly one primary index.
type CheckpointManager struct {
	basePath string
	mu       sync.Mutex
}

// NewCheckpointManager roots checkpoint files under basePath.
func NewCheckpointManager(basePath string) *CheckpointManager {
	return &CheckpointManager{basePath: basePath}
}

// Create writes entries as the checkpoint taken at lsn, then removes any
// older checkpoint files.
func (cm *CheckpointManager) Create(entries []manifestEntry, lsn uint64) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := bson.Marshal(manifest{LSN: lsn, Entries: entries})
	if err != nil {
		return kerrors.NewIoFatal("checkpoint.serialize", err)
	}
	compressed, err := compressManifest(data)
	if err != nil {
		return kerrors.NewIoFatal("checkpoint.compress", err)
	}

	filename := fmt.Sprintf("checkpoint_%d.chk", lsn)
	path := filepath.Join(cm.basePath, filename)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, compressed, 0644); err != nil {
		return kerrors.NewIoFatal("checkpoint.write", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return kerrors.NewIoFatal("checkpoint.rename", err)
	}

	return cm.cleanOlderThan(lsn)
}

func (cm *CheckpointManager) cleanOlderThan(keepLSN uint64) error {
	files, err := os.ReadDir(cm.basePath)
	if err != nil {
		return kerrors.NewIoFatal("checkpoint.readdir", err)
	}
	for _, f := range files {
		lsn, ok := parseCheckpointName(f.Name())
		if ok && lsn < keepLSN {
			os.Remove(filepath.Join(cm.basePath, f.Name()))
		}
	}
	return nil
}

// LoadLatest loads the most recent checkpoint in basePath, if any. It
// reports ok=false (not an error) when the directory holds no checkpoint,
// which is the expected state on a brand-new data directory.
func (cm *CheckpointManager) LoadLatest() (entries []manifestEntry, lsn uint64, ok bool, err error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	files, readErr := os.ReadDir(cm.basePath)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, 0, false, nil
		}
		return nil, 0, false, kerrors.NewIoFatal("checkpoint.readdir", readErr)
	}

	var maxLSN uint64
	var latestFile string
	found := false
	for _, f := range files {
		candidate, isCheckpoint := parseCheckpointName(f.Name())
		if isCheckpoint && (!found || candidate >= maxLSN) {
			maxLSN = candidate
			latestFile = f.Name()
			found = true
		}
	}
	if !found {
		return nil, 0, false, nil
	}

	compressed, readErr := os.ReadFile(filepath.Join(cm.basePath, latestFile))
	if readErr != nil {
		return nil, 0, false, kerrors.NewIoFatal("checkpoint.read", readErr)
	}
	data, err := decompressManifest(compressed)
	if err != nil {
		return nil, 0, false, kerrors.NewCorruption("checkpoint", "malformed manifest: "+err.Error())
	}

	var m manifest
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, 0, false, kerrors.NewCorruption("checkpoint", "malformed manifest: "+err.Error())
	}
	return m.Entries, m.LSN, true, nil
}

// compressManifest zstd-compresses a checkpoint's serialized bytes before
// they hit disk; checkpoints hold one row per live document and benefit
// from the same repetitive-key-name compression any BSON document does.
func compressManifest(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompressManifest(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

func parseCheckpointName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, "checkpoint_") || !strings.HasSuffix(name, ".chk") {
		return 0, false
	}
	lsnStr := strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint_"), ".chk")
	lsn, err := strconv.ParseUint(lsnStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return lsn, true
}
