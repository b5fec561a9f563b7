// Package wrapper composes the storage engine behind five orthogonal
// layers, outermost first: tracing, validation, retry, cache, metering.
// Each layer implements the same DocumentStore interface as the one it
// wraps and calls only that inner layer, never a peer, so a layer can be
// swapped or dropped without touching the others.
package wrapper

import (
	"log/slog"

	"github.com/kotadb/kotadb/pkg/config"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/trigram"
	"github.com/kotadb/kotadb/pkg/types"
)

// DocumentStore is the capability set every wrapper layer and the storage
// engine itself implement: insert, update, delete (idempotent), the two
// list shapes, flush, full-text search, and the epoch/checkpoint/close
// lifecycle every layer must pass through unchanged.
type DocumentStore interface {
	Insert(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error)
	Update(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error)
	Get(path types.Path) (storage.Document, error)
	GetByID(id types.DocumentId) (storage.Document, error)
	Delete(path types.Path) (bool, error)
	Scan(prefix types.Path, limit int) ([]storage.Document, error)
	ListAll(limit int) ([]storage.Document, error)
	List(offset, limit int) ([]storage.Document, error)
	Search(query string, limit int) ([]trigram.Hit, error)
	Epoch() uint64
	Checkpoint() error
	Flush() error
	Close() error
}

var _ DocumentStore = (*storage.Engine)(nil)

// New composes engine behind the full wrapper stack and returns the
// outermost layer, which callers use exactly like a bare *storage.Engine.
func New(engine *storage.Engine, cfg config.Config, logger *slog.Logger) (DocumentStore, error) {
	var store DocumentStore = engine
	store = newMeterLayer(store)

	cached, err := newCacheLayer(store, cfg.CacheCapacity)
	if err != nil {
		return nil, err
	}
	store = cached

	store = newRetryLayer(store, cfg)
	store = newValidateLayer(store)
	store = newTracingLayer(store, logger)
	return store, nil
}
