package wrapper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/trigram"
	"github.com/kotadb/kotadb/pkg/types"
)

var (
	opsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotadb_operations_total",
			Help: "Total number of storage operations by kind and outcome",
		},
		[]string{"op", "outcome"},
	)
	opLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kotadb_operation_duration_seconds",
			Help:    "Storage operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// cacheOutcomes counts cache hits and misses, incremented directly by the
// cache layer (which sits outside this one) rather than routed through it,
// since both are just counters against the same registry.
var cacheOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kotadb_cache_lookups_total",
		Help: "Total number of cache lookups by outcome",
	},
	[]string{"outcome"},
)

// meterLayer is the innermost wrapper: it times every call against the
// engine and records its outcome as Prometheus counters and a latency
// histogram, labeled by operation.
type meterLayer struct {
	next DocumentStore
}

func newMeterLayer(next DocumentStore) *meterLayer {
	return &meterLayer{next: next}
}

func (m *meterLayer) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	opLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(op, outcome).Inc()
	return err
}

func (m *meterLayer) Insert(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	var id types.DocumentId
	err := m.observe("insert", func() error {
		var innerErr error
		id, innerErr = m.next.Insert(path, title, tags, content, metadata)
		return innerErr
	})
	return id, err
}

func (m *meterLayer) Update(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	var id types.DocumentId
	err := m.observe("update", func() error {
		var innerErr error
		id, innerErr = m.next.Update(path, title, tags, content, metadata)
		return innerErr
	})
	return id, err
}

func (m *meterLayer) Get(path types.Path) (storage.Document, error) {
	var doc storage.Document
	err := m.observe("get", func() error {
		var innerErr error
		doc, innerErr = m.next.Get(path)
		return innerErr
	})
	return doc, err
}

func (m *meterLayer) GetByID(id types.DocumentId) (storage.Document, error) {
	var doc storage.Document
	err := m.observe("get_by_id", func() error {
		var innerErr error
		doc, innerErr = m.next.GetByID(id)
		return innerErr
	})
	return doc, err
}

func (m *meterLayer) Delete(path types.Path) (bool, error) {
	var deleted bool
	err := m.observe("delete", func() error {
		var innerErr error
		deleted, innerErr = m.next.Delete(path)
		return innerErr
	})
	return deleted, err
}

func (m *meterLayer) Scan(prefix types.Path, limit int) ([]storage.Document, error) {
	var docs []storage.Document
	err := m.observe("scan", func() error {
		var innerErr error
		docs, innerErr = m.next.Scan(prefix, limit)
		return innerErr
	})
	return docs, err
}

func (m *meterLayer) ListAll(limit int) ([]storage.Document, error) {
	var docs []storage.Document
	err := m.observe("list_all", func() error {
		var innerErr error
		docs, innerErr = m.next.ListAll(limit)
		return innerErr
	})
	return docs, err
}

func (m *meterLayer) List(offset, limit int) ([]storage.Document, error) {
	var docs []storage.Document
	err := m.observe("list", func() error {
		var innerErr error
		docs, innerErr = m.next.List(offset, limit)
		return innerErr
	})
	return docs, err
}

func (m *meterLayer) Search(query string, limit int) ([]trigram.Hit, error) {
	var hits []trigram.Hit
	err := m.observe("search", func() error {
		var innerErr error
		hits, innerErr = m.next.Search(query, limit)
		return innerErr
	})
	return hits, err
}

func (m *meterLayer) Epoch() uint64 {
	return m.next.Epoch()
}

func (m *meterLayer) Checkpoint() error {
	return m.observe("checkpoint", func() error {
		return m.next.Checkpoint()
	})
}

func (m *meterLayer) Flush() error {
	return m.observe("flush", func() error {
		return m.next.Flush()
	})
}

func (m *meterLayer) Close() error {
	return m.next.Close()
}
