package wrapper

import (
	"math/rand"
	"time"

	"github.com/kotadb/kotadb/pkg/config"
	kerrors "github.com/kotadb/kotadb/pkg/errors"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/trigram"
	"github.com/kotadb/kotadb/pkg/types"
)

// retryLayer retries a closed set of transient errors with exponential
// backoff and jitter. Every call runs at least once and at most
// cfg.RetryMaxAttempts times; each backoff starts at cfg.RetryInitialBackoff,
// doubles per attempt, is capped at cfg.RetryMaxBackoff, and then varies by
// up to ±25% jitter. There is no overall wall-clock limit on the total time
// spent retrying. Insert, Update, and
// Delete are retried too: the WAL assigns every transaction a commit id, so
// a transient failure is only ever observed before that commit id's effects
// land in the primary index, which makes retrying a transiently-failed
// write safe to repeat.
type retryLayer struct {
	next         DocumentStore
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
}

func newRetryLayer(next DocumentStore, cfg config.Config) *retryLayer {
	return &retryLayer{
		next:         next,
		maxAttempts:  cfg.RetryMaxAttempts,
		initialDelay: cfg.RetryInitialBackoff,
		maxDelay:     cfg.RetryMaxBackoff,
	}
}

func (r *retryLayer) backoff(attempt int) time.Duration {
	delay := r.initialDelay * time.Duration(1<<uint(attempt))
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	jitter := time.Duration(float64(delay) * 0.25 * (rand.Float64()*2 - 1))
	delay += jitter
	if delay < 0 {
		delay = r.initialDelay
	}
	return delay
}

func (r *retryLayer) run(fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !kerrors.Retryable(err) {
			return err
		}
		if attempt >= r.maxAttempts-1 {
			break
		}
		time.Sleep(r.backoff(attempt))
	}
	return lastErr
}

func (r *retryLayer) Insert(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	var id types.DocumentId
	err := r.run(func() error {
		var innerErr error
		id, innerErr = r.next.Insert(path, title, tags, content, metadata)
		return innerErr
	})
	return id, err
}

func (r *retryLayer) Update(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	var id types.DocumentId
	err := r.run(func() error {
		var innerErr error
		id, innerErr = r.next.Update(path, title, tags, content, metadata)
		return innerErr
	})
	return id, err
}

func (r *retryLayer) Get(path types.Path) (storage.Document, error) {
	var doc storage.Document
	err := r.run(func() error {
		var innerErr error
		doc, innerErr = r.next.Get(path)
		return innerErr
	})
	return doc, err
}

func (r *retryLayer) GetByID(id types.DocumentId) (storage.Document, error) {
	var doc storage.Document
	err := r.run(func() error {
		var innerErr error
		doc, innerErr = r.next.GetByID(id)
		return innerErr
	})
	return doc, err
}

func (r *retryLayer) Delete(path types.Path) (bool, error) {
	var deleted bool
	err := r.run(func() error {
		var innerErr error
		deleted, innerErr = r.next.Delete(path)
		return innerErr
	})
	return deleted, err
}

func (r *retryLayer) Scan(prefix types.Path, limit int) ([]storage.Document, error) {
	var docs []storage.Document
	err := r.run(func() error {
		var innerErr error
		docs, innerErr = r.next.Scan(prefix, limit)
		return innerErr
	})
	return docs, err
}

func (r *retryLayer) ListAll(limit int) ([]storage.Document, error) {
	var docs []storage.Document
	err := r.run(func() error {
		var innerErr error
		docs, innerErr = r.next.ListAll(limit)
		return innerErr
	})
	return docs, err
}

func (r *retryLayer) List(offset, limit int) ([]storage.Document, error) {
	var docs []storage.Document
	err := r.run(func() error {
		var innerErr error
		docs, innerErr = r.next.List(offset, limit)
		return innerErr
	})
	return docs, err
}

func (r *retryLayer) Search(query string, limit int) ([]trigram.Hit, error) {
	var hits []trigram.Hit
	err := r.run(func() error {
		var innerErr error
		hits, innerErr = r.next.Search(query, limit)
		return innerErr
	})
	return hits, err
}

func (r *retryLayer) Epoch() uint64 {
	return r.next.Epoch()
}

func (r *retryLayer) Checkpoint() error {
	return r.run(func() error {
		return r.next.Checkpoint()
	})
}

func (r *retryLayer) Flush() error {
	return r.run(func() error {
		return r.next.Flush()
	})
}

func (r *retryLayer) Close() error {
	return r.next.Close()
}
