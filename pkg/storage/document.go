package storage

import (
	"time"

	"github.com/kotadb/kotadb/pkg/types"
)

// Document is the unit of storage the engine operates on: a path-addressed
// blob of content plus the metadata the trigram index and query layer need.
// Field values are the validated types package's types, not raw strings, so
// a Document handed to the engine is already known-good.
type Document struct {
	ID         types.DocumentId
	Path       types.Path
	Title      types.Title
	Tags       []types.Tag
	Content    string
	Size       types.NonZeroSize
	CreatedAt  types.Timestamp
	ModifiedAt types.Timestamp
	Metadata   map[string]any
}

// wireDocument is Document's on-disk shape: the validated wrapper types
// don't themselves carry bson tags, so encoding goes through this plain
// struct and a hand-built shape rather than reflecting over domain types
// directly.
type wireDocument struct {
	ID         [16]byte       `bson:"id"`
	Path       string         `bson:"path"`
	Title      string         `bson:"title"`
	Tags       []string       `bson:"tags"`
	Content    string         `bson:"content"`
	Size       int64          `bson:"size"`
	CreatedAt  int64          `bson:"created_at"`
	ModifiedAt int64          `bson:"modified_at"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
}

func (d Document) toWire() wireDocument {
	tags := make([]string, len(d.Tags))
	for i, t := range d.Tags {
		tags[i] = t.String()
	}
	return wireDocument{
		ID:         d.ID.Bytes(),
		Path:       d.Path.String(),
		Title:      d.Title.String(),
		Tags:       tags,
		Content:    d.Content,
		Size:       d.Size.Int64(),
		CreatedAt:  d.CreatedAt.Unix(),
		ModifiedAt: d.ModifiedAt.Unix(),
		Metadata:   d.Metadata,
	}
}

func fromWire(w wireDocument, now time.Time) (Document, error) {
	id, err := types.DocumentIdFromBytes(w.ID)
	if err != nil {
		return Document{}, err
	}
	path, err := types.NewPath(w.Path)
	if err != nil {
		return Document{}, err
	}
	title, err := types.NewTitle(w.Title)
	if err != nil {
		return Document{}, err
	}
	tags := make([]types.Tag, 0, len(w.Tags))
	for _, raw := range w.Tags {
		tag, err := types.NewTag(raw)
		if err != nil {
			return Document{}, err
		}
		tags = append(tags, tag)
	}
	size, err := types.NewNonZeroSize(w.Size)
	if err != nil {
		return Document{}, err
	}
	created, err := types.NewTimestamp(w.CreatedAt, now)
	if err != nil {
		return Document{}, err
	}
	modified, err := types.NewTimestamp(w.ModifiedAt, now)
	if err != nil {
		return Document{}, err
	}
	return Document{
		ID:         id,
		Path:       path,
		Title:      title,
		Tags:       tags,
		Content:    w.Content,
		Size:       size,
		CreatedAt:  created,
		ModifiedAt: modified,
		Metadata:   w.Metadata,
	}, nil
}

// searchableText is what the trigram index tokenizes: title and content, so
// a query matching only the title still surfaces the document.
func (d Document) searchableText() string {
	return d.Title.String() + "\n" + d.Content
}
