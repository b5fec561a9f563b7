package document

import (
	"io"
	"log/slog"
	"testing"

	"github.com/kotadb/kotadb/pkg/config"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/types"
	"github.com/kotadb/kotadb/pkg/wrapper"
)

func testRouter(t *testing.T) *Router {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.BTreeFanout = 4

	engine, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := wrapper.New(engine, cfg, logger)
	if err != nil {
		t.Fatalf("wrapper.New: %v", err)
	}
	return NewRouter(store, logger)
}

func seed(t *testing.T, r *Router) map[string]types.DocumentId {
	t.Helper()
	ids := make(map[string]types.DocumentId)
	put := func(path, title, content string) {
		p, err := types.NewPath(path)
		if err != nil {
			t.Fatalf("NewPath(%q): %v", path, err)
		}
		tt, err := types.NewTitle(title)
		if err != nil {
			t.Fatalf("NewTitle(%q): %v", title, err)
		}
		id, err := r.store.Insert(p, tt, nil, content, nil)
		if err != nil {
			t.Fatalf("Insert(%q): %v", path, err)
		}
		ids[path] = id
	}
	put("/docs/alpha.md", "Alpha", "the alpha document mentions quicksilver")
	put("/docs/beta.md", "Beta", "the beta document has different words")
	put("/other/gamma.md", "Gamma", "a gamma document elsewhere")
	return ids
}

func TestRouter_EmptyOrStarListsAll(t *testing.T) {
	r := testRouter(t)
	seed(t, r)

	for _, q := range []string{"", "*"} {
		result, err := r.Query(q, 0)
		if err != nil {
			t.Fatalf("Query(%q): %v", q, err)
		}
		if len(result.Documents) != 3 {
			t.Fatalf("Query(%q): expected 3 docs, got %d", q, len(result.Documents))
		}
	}
}

func TestRouter_GlobRoutesToScan(t *testing.T) {
	r := testRouter(t)
	seed(t, r)

	result, err := r.Query("/docs/*", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("expected 2 docs under /docs, got %d", len(result.Documents))
	}
}

func TestRouter_PathLookupFindsExactDocument(t *testing.T) {
	r := testRouter(t)
	seed(t, r)

	result, err := r.Query("/docs/alpha.md", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Documents) != 1 {
		t.Fatalf("expected exactly 1 doc, got %d", len(result.Documents))
	}
	if result.Documents[0].Title.String() != "Alpha" {
		t.Fatalf("got title %q, want Alpha", result.Documents[0].Title.String())
	}
}

func TestRouter_PathLookupFallsBackToScan(t *testing.T) {
	r := testRouter(t)
	seed(t, r)

	result, err := r.Query("/docs/", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("expected scan fallback to find 2 docs, got %d", len(result.Documents))
	}
}

func TestRouter_FreeTextRoutesToSearch(t *testing.T) {
	r := testRouter(t)
	seed(t, r)

	result, err := r.Query("quicksilver", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Hits) == 0 {
		t.Fatalf("expected at least one search hit")
	}
	if len(result.Documents) != len(result.Hits) {
		t.Fatalf("expected hydrated documents to match hit count: docs=%d hits=%d", len(result.Documents), len(result.Hits))
	}
}

func TestRouter_Stats(t *testing.T) {
	r := testRouter(t)
	seed(t, r)

	stats, err := r.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.DocCount != 3 {
		t.Fatalf("expected DocCount 3, got %d", stats.DocCount)
	}
	if stats.TotalBytes <= 0 {
		t.Fatalf("expected positive TotalBytes, got %d", stats.TotalBytes)
	}
}

func TestRouter_CreateGetUpdateDelete(t *testing.T) {
	r := testRouter(t)

	path, err := types.NewPath("/notes/crud.md")
	if err != nil {
		t.Fatalf("NewPath: %v", err)
	}
	title, err := types.NewTitle("Crud")
	if err != nil {
		t.Fatalf("NewTitle: %v", err)
	}

	id, err := r.Create(path, title, "original content", nil, map[string]any{"source": "test"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Content != "original content" {
		t.Fatalf("got content %q, want %q", doc.Content, "original content")
	}

	newContent := "updated content"
	updated, err := r.Update(id, Delta{Content: &newContent})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != "updated content" {
		t.Fatalf("got content %q, want %q", updated.Content, "updated content")
	}
	if updated.Title.String() != "Crud" {
		t.Fatalf("expected Title to carry over unchanged, got %q", updated.Title.String())
	}

	deleted, err := r.Delete(id)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected first delete to report true")
	}

	deletedAgain, err := r.Delete(id)
	if err != nil {
		t.Fatalf("second Delete returned an error: %v", err)
	}
	if deletedAgain {
		t.Fatalf("expected second delete to report false")
	}

	if _, err := r.Get(id); err == nil {
		t.Fatalf("expected Get after Delete to fail")
	}
}

func TestRouter_SearchWithOffset(t *testing.T) {
	r := testRouter(t)
	seed(t, r)

	all, err := r.Search("document", 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(all) < 2 {
		t.Fatalf("expected at least 2 hits, got %d", len(all))
	}

	rest, err := r.Search("document", 10, 1)
	if err != nil {
		t.Fatalf("Search with offset: %v", err)
	}
	if len(rest) != len(all)-1 {
		t.Fatalf("expected offset to drop exactly one hit: got %d, want %d", len(rest), len(all)-1)
	}
	if rest[0].ID != all[1].ID {
		t.Fatalf("expected offset result to align with unpaginated result")
	}
}
