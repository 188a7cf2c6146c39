package storagebackend

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/index"
)

// vectorBlob is the JSON shape stored at vectors/{collection_id}/{doc_id}.
type vectorBlob struct {
	DocID      uuid.UUID      `json:"doc_id"`
	ExternalID string         `json:"external_id,omitempty"`
	Vector     []float32      `json:"vector"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func encodeVectorBlob(doc index.Document) ([]byte, error) {
	blob, err := json.Marshal(vectorBlob{
		DocID:      doc.DocID,
		ExternalID: doc.ExternalID,
		Vector:     doc.Vector,
		Metadata:   doc.Metadata,
	})
	if err != nil {
		return nil, akidberr.Wrap(akidberr.Internal, err, "storagebackend: encode vector blob for %s", doc.DocID)
	}
	return blob, nil
}

func decodeVectorBlob(blob []byte) (index.Document, error) {
	var v vectorBlob
	if err := json.Unmarshal(blob, &v); err != nil {
		return index.Document{}, akidberr.Wrap(akidberr.Corruption, err, "storagebackend: decode vector blob")
	}
	return index.Document{DocID: v.DocID, ExternalID: v.ExternalID, Vector: v.Vector, Metadata: v.Metadata}, nil
}
