package storagebackend

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/index"
)

// snapshotRow is the on-disk parquet row shape for a compaction snapshot.
// Vectors are stored flat; metadata is carried as a JSON string since its
// shape is caller-defined and not representable as a fixed parquet schema.
type snapshotRow struct {
	DocID      string    `parquet:"doc_id"`
	ExternalID string    `parquet:"external_id"`
	Vector     []float32 `parquet:"vector"`
	MetadataJS string    `parquet:"metadata_json"`
}

// encodeSnapshot serializes the live document set into the parquet bytes
// written under snapshots/{collection_id}/snapshot-{unix_ts}.parquet.
func encodeSnapshot(docs []index.Document) ([]byte, error) {
	rows := make([]snapshotRow, 0, len(docs))
	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, akidberr.Wrap(akidberr.Internal, err, "storagebackend: marshal metadata for snapshot row %s", d.DocID)
		}
		rows = append(rows, snapshotRow{
			DocID:      d.DocID.String(),
			ExternalID: d.ExternalID,
			Vector:     d.Vector,
			MetadataJS: string(meta),
		})
	}

	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		return nil, akidberr.Wrap(akidberr.Internal, err, "storagebackend: encode snapshot")
	}
	return buf.Bytes(), nil
}

// decodeSnapshot is the inverse of encodeSnapshot, used by the recovery path
// that seeds a storage backend's in-memory map from the last snapshot before
// replaying the WAL tail.
func decodeSnapshot(blob []byte) ([]index.Document, error) {
	rows, err := parquet.Read[snapshotRow](bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, akidberr.Wrap(akidberr.Corruption, err, "storagebackend: decode snapshot")
	}

	docs := make([]index.Document, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.DocID)
		if err != nil {
			return nil, akidberr.Wrap(akidberr.Corruption, err, "storagebackend: snapshot row doc_id %q", r.DocID)
		}
		var meta map[string]any
		if len(r.MetadataJS) > 0 {
			if err := json.Unmarshal([]byte(r.MetadataJS), &meta); err != nil {
				return nil, akidberr.Wrap(akidberr.Corruption, err, "storagebackend: snapshot row %s metadata", r.DocID)
			}
		}
		docs = append(docs, index.Document{DocID: id, Vector: r.Vector, ExternalID: r.ExternalID, Metadata: meta})
	}
	return docs, nil
}
