// Package document implements the high-level query surface over the
// wrapper-stacked storage engine: a Query function that inspects the shape
// of its input and dispatches to list-all, prefix-scan, path-lookup, or
// full-text search; a CRUD surface (Create/Get/Update/Delete/Search) keyed
// by document id for external callers such as an HTTP or MCP server; and a
// Stats snapshot of the engine's current size and cache behavior.
package document

import (
	"log/slog"
	"strings"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/trigram"
	"github.com/kotadb/kotadb/pkg/types"
	"github.com/kotadb/kotadb/pkg/wrapper"
)

// Router dispatches queries against a wrapped document store, logging the
// routing decision it took so a slow or unexpected query can be explained
// after the fact.
type Router struct {
	store  wrapper.DocumentStore
	logger *slog.Logger
}

// NewRouter builds a Router over store, logging routing decisions to logger.
func NewRouter(store wrapper.DocumentStore, logger *slog.Logger) *Router {
	return &Router{store: store, logger: logger}
}

// Result holds the documents a query produced (a single document for a
// direct path lookup). Hits is set only for full-text search, alongside the
// hydrated Documents.
type Result struct {
	Documents []storage.Document
	Hits      []trigram.Hit
}

// Query dispatches query per the routing rules:
//   - "*" or empty  -> ListAll
//   - contains "*" or "?" as a path glob -> Scan(prefix) against the
//     glob's literal prefix up to the first wildcard
//   - looks like a path (starts with or contains "/") -> Get, falling back to Scan(query)
//     as a prefix if no exact document exists at that path
//   - anything else -> full-text Search, with documents hydrated through
//     the store so callers never see raw trigram ids
func (r *Router) Query(query string, limit int) (Result, error) {
	trimmed := strings.TrimSpace(query)

	switch {
	case trimmed == "" || trimmed == "*":
		r.logRoute(query, "list_all")
		docs, err := r.store.ListAll(limit)
		return Result{Documents: docs}, err

	case strings.ContainsAny(trimmed, "*?"):
		prefix := literalPrefix(trimmed)
		r.logRoute(query, "scan_glob")
		path, err := types.NewPath(prefix)
		if err != nil {
			return Result{}, err
		}
		docs, err := r.store.Scan(path, limit)
		return Result{Documents: docs}, err

	case looksLikePath(trimmed):
		r.logRoute(query, "get_then_scan")
		path, err := types.NewPath(trimmed)
		if err != nil {
			return Result{}, err
		}
		if doc, err := r.store.Get(path); err == nil {
			return Result{Documents: []storage.Document{doc}}, nil
		}
		docs, err := r.store.Scan(path, limit)
		return Result{Documents: docs}, err

	default:
		r.logRoute(query, "search")
		hits, err := r.store.Search(trimmed, limit)
		if err != nil {
			return Result{}, err
		}
		docs, err := r.hydrate(hits)
		return Result{Documents: docs, Hits: hits}, err
	}
}

func (r *Router) hydrate(hits []trigram.Hit) ([]storage.Document, error) {
	docs := make([]storage.Document, 0, len(hits))
	for _, hit := range hits {
		doc, err := r.store.GetByID(hit.ID)
		if err != nil {
			continue // a hit for a document the store no longer has is dropped, not fatal
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *Router) logRoute(query, route string) {
	if r.logger == nil {
		return
	}
	r.logger.Debug("query routed", slog.String("query", query), slog.String("route", route))
}

// looksLikePath reports whether s resembles a document path rather than a
// free-text search term: it starts with "/" or contains a "/" segment.
func looksLikePath(s string) bool {
	return strings.HasPrefix(s, "/") || strings.Contains(s, "/")
}

// literalPrefix returns the portion of a glob pattern before its first
// wildcard character, since the primary index can only prefix-scan.
func literalPrefix(glob string) string {
	if idx := strings.IndexAny(glob, "*?"); idx >= 0 {
		return glob[:idx]
	}
	return glob
}

// Create inserts a new document at path and returns its assigned id. It
// fails with AlreadyExist if a document already lives at that path.
func (r *Router) Create(path types.Path, title types.Title, content string, tags []types.Tag, metadata map[string]any) (types.DocumentId, error) {
	return r.store.Insert(path, title, tags, content, metadata)
}

// Get fetches a document by id.
func (r *Router) Get(id types.DocumentId) (storage.Document, error) {
	return r.store.GetByID(id)
}

// Delta describes a partial update to an existing document: a nil field
// means "leave unchanged." Tags and Metadata replace wholesale rather than
// merge, since neither has a natural per-key merge rule at this layer.
type Delta struct {
	Title    *types.Title
	Content  *string
	Tags     []types.Tag
	Metadata map[string]any
}

// Update applies delta to the document identified by id, resolving its
// current path first since the underlying store is path-keyed. Fields left
// nil (or, for Tags, left unset as nil) carry over from the existing
// document unchanged. Fails with NotFound if id does not exist.
func (r *Router) Update(id types.DocumentId, delta Delta) (storage.Document, error) {
	existing, err := r.store.GetByID(id)
	if err != nil {
		return storage.Document{}, err
	}

	title := existing.Title
	if delta.Title != nil {
		title = *delta.Title
	}
	content := existing.Content
	if delta.Content != nil {
		content = *delta.Content
	}
	tags := existing.Tags
	if delta.Tags != nil {
		tags = delta.Tags
	}
	metadata := existing.Metadata
	if delta.Metadata != nil {
		metadata = delta.Metadata
	}

	if _, err := r.store.Update(existing.Path, title, tags, content, metadata); err != nil {
		return storage.Document{}, err
	}
	return r.store.GetByID(id)
}

// Delete removes the document identified by id, resolving its current path
// first. Idempotent: deleting an id that no longer exists returns
// (false, nil) rather than an error.
func (r *Router) Delete(id types.DocumentId) (bool, error) {
	existing, err := r.store.GetByID(id)
	if err != nil {
		if kerrors.Is(err, kerrors.NotFound) {
			return false, nil
		}
		return false, err
	}
	return r.store.Delete(existing.Path)
}

// Search runs a full-text query and returns up to limit hits after skipping
// the first offset, ranked by the trigram index's own scoring. The index
// itself has no offset parameter, so pagination is applied client-side over
// the full (limit+offset)-bounded result.
func (r *Router) Search(text string, limit, offset int) ([]trigram.Hit, error) {
	fetch := limit
	if fetch > 0 {
		fetch += offset
	}
	hits, err := r.store.Search(text, fetch)
	if err != nil {
		return nil, err
	}
	if offset >= len(hits) {
		return nil, nil
	}
	hits = hits[offset:]
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Stats summarizes the engine's current size and the wrapper stack's
// cache behavior.
type Stats struct {
	DocCount      int
	TotalBytes    int64
	TrigramCount  int
	CacheHitRatio float64
}

// Stats returns a snapshot of store's current size and cache performance.
// DocCount/TotalBytes come from a full ListAll, and TrigramCount is the
// number of distinct trigrams across those documents' titles and content,
// since the engine does not
// separately track running totals; this is O(n) and intended for
// diagnostics, not a hot path.
func (r *Router) Stats() (Stats, error) {
	docs, err := r.store.ListAll(0)
	if err != nil {
		return Stats{}, err
	}
	var totalBytes int64
	grams := make(map[string]struct{})
	for _, doc := range docs {
		totalBytes += doc.Size.Int64()
		for _, g := range trigram.Tokenize(doc.Title.String() + "\n" + doc.Content) {
			grams[g] = struct{}{}
		}
	}
	return Stats{
		DocCount:      len(docs),
		TotalBytes:    totalBytes,
		TrigramCount:  len(grams),
		CacheHitRatio: wrapper.CacheHitRatio(),
	}, nil
}
