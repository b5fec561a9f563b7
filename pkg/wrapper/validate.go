package wrapper

import (
	kerrors "github.com/kotadb/kotadb/pkg/errors"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/trigram"
	"github.com/kotadb/kotadb/pkg/types"
)

// validateLayer re-checks postconditions the inner layers are supposed to
// guarantee, failing fast with a structured error rather than returning a
// result that would surprise the caller.
type validateLayer struct {
	next DocumentStore
}

func newValidateLayer(next DocumentStore) *validateLayer {
	return &validateLayer{next: next}
}

func (v *validateLayer) Insert(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	id, err := v.next.Insert(path, title, tags, content, metadata)
	if err != nil {
		return id, err
	}
	if id.String() == (types.DocumentId{}).String() {
		return id, kerrors.NewConfig("wrapper.insert", "storage returned a zero document id")
	}
	return id, nil
}

func (v *validateLayer) Update(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	id, err := v.next.Update(path, title, tags, content, metadata)
	if err != nil {
		return id, err
	}
	if id.String() == (types.DocumentId{}).String() {
		return id, kerrors.NewConfig("wrapper.update", "storage returned a zero document id")
	}
	return id, nil
}

func (v *validateLayer) Get(path types.Path) (storage.Document, error) {
	doc, err := v.next.Get(path)
	if err != nil {
		return doc, err
	}
	if doc.Path.String() != path.String() {
		return doc, kerrors.NewConfig("wrapper.get", "returned document path does not match the query")
	}
	return doc, nil
}

func (v *validateLayer) GetByID(id types.DocumentId) (storage.Document, error) {
	doc, err := v.next.GetByID(id)
	if err != nil {
		return doc, err
	}
	if doc.ID.String() != id.String() {
		return doc, kerrors.NewConfig("wrapper.get_by_id", "returned document id does not match the query")
	}
	return doc, nil
}

func (v *validateLayer) Delete(path types.Path) (bool, error) {
	return v.next.Delete(path)
}

func (v *validateLayer) Scan(prefix types.Path, limit int) ([]storage.Document, error) {
	docs, err := v.next.Scan(prefix, limit)
	if err != nil {
		return docs, err
	}
	for _, doc := range docs {
		if !doc.Path.HasPrefix(prefix) {
			return nil, kerrors.NewConfig("wrapper.scan", "returned document does not match the scanned prefix")
		}
	}
	return docs, nil
}

func (v *validateLayer) ListAll(limit int) ([]storage.Document, error) {
	return v.next.ListAll(limit)
}

func (v *validateLayer) List(offset, limit int) ([]storage.Document, error) {
	return v.next.List(offset, limit)
}

func (v *validateLayer) Search(query string, limit int) ([]trigram.Hit, error) {
	return v.next.Search(query, limit)
}

func (v *validateLayer) Epoch() uint64 {
	return v.next.Epoch()
}

func (v *validateLayer) Checkpoint() error {
	return v.next.Checkpoint()
}

func (v *validateLayer) Flush() error {
	return v.next.Flush()
}

func (v *validateLayer) Close() error {
	return v.next.Close()
}
