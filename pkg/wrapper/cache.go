package wrapper

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/trigram"
	"github.com/kotadb/kotadb/pkg/types"
)

var (
	cacheHitCount  atomic.Uint64
	cacheMissCount atomic.Uint64
)

// CacheHitRatio returns the fraction of Get/GetByID lookups across every
// cache layer built by New that were served from the LRU rather than
// falling through to storage. Returns 0 if no lookups have happened yet.
func CacheHitRatio() float64 {
	hits := cacheHitCount.Load()
	misses := cacheMissCount.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// cacheLayer is a write-through LRU keyed by path and, separately, by
// document id, since both Get and GetByID are common lookup shapes. Every
// write invalidates both caches for the affected document rather than
// updating them in place, so a racing reader never observes a half-applied
// entry.
type cacheLayer struct {
	next   DocumentStore
	byPath *lru.Cache[string, storage.Document]
	byID   *lru.Cache[types.DocumentId, storage.Document]
}

func newCacheLayer(next DocumentStore, capacity int) (*cacheLayer, error) {
	byPath, err := lru.New[string, storage.Document](capacity)
	if err != nil {
		return nil, err
	}
	byID, err := lru.New[types.DocumentId, storage.Document](capacity)
	if err != nil {
		return nil, err
	}
	return &cacheLayer{next: next, byPath: byPath, byID: byID}, nil
}

func (c *cacheLayer) invalidate(path types.Path, id types.DocumentId) {
	c.byPath.Remove(path.String())
	c.byID.Remove(id)
}

func (c *cacheLayer) Insert(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	id, err := c.next.Insert(path, title, tags, content, metadata)
	if err != nil {
		return id, err
	}
	c.invalidate(path, id)
	return id, nil
}

func (c *cacheLayer) Update(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	id, err := c.next.Update(path, title, tags, content, metadata)
	if err != nil {
		return id, err
	}
	c.invalidate(path, id)
	return id, nil
}

func (c *cacheLayer) Get(path types.Path) (storage.Document, error) {
	if doc, ok := c.byPath.Get(path.String()); ok {
		cacheOutcomes.WithLabelValues("hit").Inc()
		cacheHitCount.Add(1)
		return doc, nil
	}
	cacheOutcomes.WithLabelValues("miss").Inc()
	cacheMissCount.Add(1)
	doc, err := c.next.Get(path)
	if err != nil {
		return doc, err
	}
	c.byPath.Add(path.String(), doc)
	c.byID.Add(doc.ID, doc)
	return doc, nil
}

func (c *cacheLayer) GetByID(id types.DocumentId) (storage.Document, error) {
	if doc, ok := c.byID.Get(id); ok {
		cacheOutcomes.WithLabelValues("hit").Inc()
		cacheHitCount.Add(1)
		return doc, nil
	}
	cacheOutcomes.WithLabelValues("miss").Inc()
	cacheMissCount.Add(1)
	doc, err := c.next.GetByID(id)
	if err != nil {
		return doc, err
	}
	c.byID.Add(id, doc)
	c.byPath.Add(doc.Path.String(), doc)
	return doc, nil
}

func (c *cacheLayer) Delete(path types.Path) (bool, error) {
	doc, lookupErr := c.next.Get(path)
	deleted, err := c.next.Delete(path)
	if err != nil {
		return deleted, err
	}
	if lookupErr == nil {
		c.invalidate(path, doc.ID)
	} else {
		c.byPath.Remove(path.String())
	}
	return deleted, nil
}

func (c *cacheLayer) Scan(prefix types.Path, limit int) ([]storage.Document, error) {
	return c.next.Scan(prefix, limit)
}

func (c *cacheLayer) ListAll(limit int) ([]storage.Document, error) {
	return c.next.ListAll(limit)
}

func (c *cacheLayer) List(offset, limit int) ([]storage.Document, error) {
	return c.next.List(offset, limit)
}

func (c *cacheLayer) Search(query string, limit int) ([]trigram.Hit, error) {
	return c.next.Search(query, limit)
}

func (c *cacheLayer) Epoch() uint64 {
	return c.next.Epoch()
}

func (c *cacheLayer) Checkpoint() error {
	if err := c.next.Checkpoint(); err != nil {
		return err
	}
	c.byPath.Purge()
	c.byID.Purge()
	return nil
}

// Flush purges both caches in addition to forcing the inner durability
// barrier: like Checkpoint, a forced flush is an explicit invalidation point
// besides a write.
func (c *cacheLayer) Flush() error {
	if err := c.next.Flush(); err != nil {
		return err
	}
	c.byPath.Purge()
	c.byID.Purge()
	return nil
}

func (c *cacheLayer) Close() error {
	return c.next.Close()
}
