package wrapper

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/tracing"
	"github.com/kotadb/kotadb/pkg/trigram"
	"github.com/kotadb/kotadb/pkg/types"
)

// tracingLayer is the outermost wrapper: it assigns every call a fresh
// operation id and emits a span log line with operation kind, latency,
// and outcome, redacting document content from the logged arguments.
type tracingLayer struct {
	next   DocumentStore
	logger *slog.Logger
}

func newTracingLayer(next DocumentStore, logger *slog.Logger) *tracingLayer {
	return &tracingLayer{next: next, logger: logger}
}

func (t *tracingLayer) span(op string, attrs []slog.Attr, fn func() error) {
	opID := uuid.NewString()
	start := time.Now()
	err := fn()
	args := []any{slog.String("op", op), slog.String("op_id", opID), slog.Duration("latency", time.Since(start))}
	for _, a := range attrs {
		args = append(args, a)
	}
	if err != nil {
		args = append(args, slog.String("outcome", "error"), slog.String("error", err.Error()))
		t.logger.Error("span", args...)
		if kerrors.Is(err, kerrors.IoFatal) || kerrors.Is(err, kerrors.Corruption) {
			tracing.ReportFatal(op, err)
		}
		return
	}
	args = append(args, slog.String("outcome", "ok"))
	t.logger.Debug("span", args...)
}

func (t *tracingLayer) Insert(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	var id types.DocumentId
	var err error
	t.span("insert", []slog.Attr{slog.String("path", path.String())}, func() error {
		id, err = t.next.Insert(path, title, tags, content, metadata)
		return err
	})
	return id, err
}

func (t *tracingLayer) Update(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	var id types.DocumentId
	var err error
	t.span("update", []slog.Attr{slog.String("path", path.String())}, func() error {
		id, err = t.next.Update(path, title, tags, content, metadata)
		return err
	})
	return id, err
}

func (t *tracingLayer) Get(path types.Path) (storage.Document, error) {
	var doc storage.Document
	var err error
	t.span("get", []slog.Attr{slog.String("path", path.String())}, func() error {
		doc, err = t.next.Get(path)
		return err
	})
	return doc, err
}

func (t *tracingLayer) GetByID(id types.DocumentId) (storage.Document, error) {
	var doc storage.Document
	var err error
	t.span("get_by_id", []slog.Attr{slog.String("id", id.String())}, func() error {
		doc, err = t.next.GetByID(id)
		return err
	})
	return doc, err
}

func (t *tracingLayer) Delete(path types.Path) (bool, error) {
	var deleted bool
	var err error
	t.span("delete", []slog.Attr{slog.String("path", path.String())}, func() error {
		deleted, err = t.next.Delete(path)
		return err
	})
	return deleted, err
}

func (t *tracingLayer) Scan(prefix types.Path, limit int) ([]storage.Document, error) {
	var docs []storage.Document
	var err error
	t.span("scan", []slog.Attr{slog.String("prefix", prefix.String()), slog.Int("limit", limit)}, func() error {
		docs, err = t.next.Scan(prefix, limit)
		return err
	})
	return docs, err
}

func (t *tracingLayer) ListAll(limit int) ([]storage.Document, error) {
	var docs []storage.Document
	var err error
	t.span("list_all", []slog.Attr{slog.Int("limit", limit)}, func() error {
		docs, err = t.next.ListAll(limit)
		return err
	})
	return docs, err
}

func (t *tracingLayer) List(offset, limit int) ([]storage.Document, error) {
	var docs []storage.Document
	var err error
	t.span("list", []slog.Attr{slog.Int("offset", offset), slog.Int("limit", limit)}, func() error {
		docs, err = t.next.List(offset, limit)
		return err
	})
	return docs, err
}

func (t *tracingLayer) Search(query string, limit int) ([]trigram.Hit, error) {
	var hits []trigram.Hit
	var err error
	t.span("search", []slog.Attr{slog.Int("limit", limit)}, func() error {
		hits, err = t.next.Search(query, limit)
		return err
	})
	return hits, err
}

func (t *tracingLayer) Epoch() uint64 {
	return t.next.Epoch()
}

func (t *tracingLayer) Checkpoint() error {
	var err error
	t.span("checkpoint", nil, func() error {
		err = t.next.Checkpoint()
		return err
	})
	return err
}

func (t *tracingLayer) Flush() error {
	var err error
	t.span("flush", nil, func() error {
		err = t.next.Flush()
		return err
	})
	return err
}

func (t *tracingLayer) Close() error {
	return t.next.Close()
}
