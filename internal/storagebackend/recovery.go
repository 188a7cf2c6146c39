package storagebackend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/index"
	"github.com/aifocal/akidb/internal/lsn"
	"github.com/aifocal/akidb/internal/walrecord"
)

// snapshotPointer records the object-store key of the most recent compaction
// snapshot so Recover can fetch it without a Store.List capability (the
// object store contract deliberately has no listing operation).
type snapshotPointer struct {
	Key string `json:"key"`
}

func snapshotPointerPath(walDir string) string {
	return filepath.Join(walDir, "last_snapshot.json")
}

func saveSnapshotPointer(walDir, key string) error {
	data, err := json.Marshal(snapshotPointer{Key: key})
	if err != nil {
		return akidberr.Wrap(akidberr.Internal, err, "storagebackend: marshal snapshot pointer")
	}
	tmp := snapshotPointerPath(walDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return akidberr.Wrap(akidberr.ResourceExhausted, err, "storagebackend: write snapshot pointer")
	}
	if err := os.Rename(tmp, snapshotPointerPath(walDir)); err != nil {
		return akidberr.Wrap(akidberr.ResourceExhausted, err, "storagebackend: rename snapshot pointer")
	}
	return nil
}

func loadSnapshotPointer(walDir string) (snapshotPointer, bool, error) {
	data, err := os.ReadFile(snapshotPointerPath(walDir)) //nolint:gosec // path built from validated dir
	if err != nil {
		if os.IsNotExist(err) {
			return snapshotPointer{}, false, nil
		}
		return snapshotPointer{}, false, akidberr.Wrap(akidberr.Internal, err, "storagebackend: read snapshot pointer")
	}
	var ptr snapshotPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return snapshotPointer{}, false, akidberr.Wrap(akidberr.Corruption, err, "storagebackend: decode snapshot pointer")
	}
	return ptr, true, nil
}

// Recover seeds the backend's in-memory map from the last compaction
// snapshot (if any) and replays every WAL record since that snapshot's
// horizon. validate is called on every replayed Upsert's vector; a record
// that fails validation (almost always a dimension mismatch against the
// collection's declared dimension) is skipped rather than poisoning the
// index, and counted in the returned skipped count. The caller (the
// collection service) is responsible for inserting the returned documents
// into a freshly constructed HNSW index — the index itself is not persisted.
func (b *Backend) Recover(ctx context.Context, validate func(vector []float32) error) (recovered []index.Document, skipped int, err error) {
	horizon := lsn.Zero

	if b.store != nil {
		if ptr, ok, perr := loadSnapshotPointer(b.cfg.WALDir); perr != nil {
			return nil, 0, perr
		} else if ok {
			blob, gerr := b.store.Get(ctx, ptr.Key)
			if gerr != nil && akidberr.KindOf(gerr) != akidberr.NotFound {
				return nil, 0, gerr
			}
			if gerr == nil {
				docs, derr := decodeSnapshot(blob)
				if derr != nil {
					return nil, 0, derr
				}
				b.mu.Lock()
				for _, d := range docs {
					b.vectors[d.DocID] = d
				}
				b.mu.Unlock()
			}
		}
	}

	if h, herr := b.wal.Horizon(); herr == nil {
		horizon = h
	}

	records, err := b.wal.Replay(horizon)
	if err != nil {
		return nil, 0, err
	}

	b.mu.Lock()
	for _, r := range records {
		switch r.Kind {
		case walrecord.KindUpsert:
			if validate != nil {
				if verr := validate(r.Vector); verr != nil {
					skipped++
					continue
				}
			}
			b.vectors[r.DocID] = index.Document{DocID: r.DocID, Vector: r.Vector, Metadata: r.Metadata}
		case walrecord.KindDelete:
			delete(b.vectors, r.DocID)
		}
	}
	b.mu.Unlock()

	return b.AllVectors(), skipped, nil
}
