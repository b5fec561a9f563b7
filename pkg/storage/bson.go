package storage

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
)

// encodeDocument marshals a document's wire form to BSON, the encoding the
// page chain stores on disk.
func encodeDocument(d Document) ([]byte, error) {
	data, err := bson.Marshal(d.toWire())
	if err != nil {
		return nil, kerrors.NewCorruption("document.encode", err.Error())
	}
	return data, nil
}

func decodeDocument(data []byte) (wireDocument, error) {
	var w wireDocument
	if err := bson.Unmarshal(data, &w); err != nil {
		return wireDocument{}, kerrors.NewCorruption("document.decode", err.Error())
	}
	return w, nil
}

// ToJSON renders a document's wire form as JSON, for callers that want a
// human-readable export rather than the BSON on-disk bytes.
func ToJSON(d Document) (string, error) {
	data, err := bson.Marshal(d.toWire())
	if err != nil {
		return "", kerrors.NewCorruption("document.encode", err.Error())
	}
	var asD bson.D
	if err := bson.Unmarshal(data, &asD); err != nil {
		return "", kerrors.NewCorruption("document.encode", err.Error())
	}
	jsonBytes, err := bson.MarshalExtJSON(asD, false, false)
	if err != nil {
		return "", fmt.Errorf("document to json: %w", err)
	}
	return string(jsonBytes), nil
}
