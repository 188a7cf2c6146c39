// Package storagebackend composes a WAL, an in-memory vector map, and an
// object store into the per-collection storage engine: the component the
// collection service constructs one of per collection and shuts down when
// the collection is deleted or the process exits.
package storagebackend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/distance"
	"github.com/aifocal/akidb/internal/index"
	"github.com/aifocal/akidb/internal/metrics"
	"github.com/aifocal/akidb/internal/objectstore"
	"github.com/aifocal/akidb/internal/wal"
)

const uploadQueueCapacity = 4096

type uploadJob struct {
	docID    uuid.UUID
	blob     []byte // nil for a delete job
	isDelete bool
}

// Backend is the per-collection storage engine: WAL + in-memory vector map +
// (depending on TieringPolicy) an object store reached through a DLQ.
type Backend struct {
	cfg          Config
	collectionID string // string form of cfg.CollectionID, for keys and metric labels

	wal     *wal.WAL
	store   objectstore.Store // raw store, used for synchronous reads; nil under Memory
	dlq     *objectstore.DLQ  // nil under Memory
	cache   *boundedCache     // non-nil only under S3Only
	metrics *metrics.Metrics  // may be nil in tests that don't care about metrics

	mu      sync.RWMutex
	vectors map[uuid.UUID]index.Document

	insertsSinceCompaction atomic.Int64
	uploadQueue            chan uploadJob

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	shutdownOnce sync.Once
	joined       chan struct{}
}

// New constructs a storage backend for cfg.CollectionID, opens its WAL, and
// spawns its background workers. m may be nil, in which case metrics are not
// reported (used by unit tests that don't stand up a registry).
func New(cfg Config, m *metrics.Metrics) (*Backend, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	w, err := wal.Open(wal.Config{
		Dir:             cfg.WALDir,
		CollectionID:    cfg.CollectionID,
		SyncMode:        wal.SyncMode(cfg.SyncMode),
		SyncInterval:    cfg.SyncInterval,
		MaxSegmentBytes: cfg.MaxSegmentBytes,
		MaxSegmentRecs:  cfg.MaxSegmentRecs,
	})
	if err != nil {
		return nil, err
	}

	b := &Backend{
		cfg:          cfg,
		collectionID: cfg.CollectionID.String(),
		wal:          w,
		store:        cfg.Store,
		metrics:      m,
		vectors:      make(map[uuid.UUID]index.Document),
		joined:       make(chan struct{}),
	}

	if cfg.Store != nil {
		b.dlq = objectstore.NewDLQ(cfg.Store, cfg.Backoff, b.onUploadFailure)
	}
	if cfg.Policy == S3Only {
		b.cache = newBoundedCache(cfg.CacheSize)
	}
	if cfg.Policy == MemoryS3 {
		b.uploadQueue = make(chan uploadJob, uploadQueueCapacity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)
	b.ctx = ctx
	b.cancel = cancel
	b.eg = eg

	eg.Go(func() error { return b.maintenanceLoop(egCtx) })
	if b.dlq != nil {
		eg.Go(func() error { return b.dlq.RunRetryLoop(egCtx) })
		eg.Go(func() error { return b.dlq.RunCleanupLoop(egCtx) })
	}
	if cfg.Policy == MemoryS3 {
		eg.Go(func() error { return b.uploadLoop(egCtx) })
	}

	go func() {
		_ = eg.Wait()
		close(b.joined)
	}()

	return b, nil
}

// onUploadFailure is the DLQ's permanent-failure callback: it surfaces a
// dropped upload/delete as the upload_failures counter rather than silently
// losing track of it.
func (b *Backend) onUploadFailure(key string, err error) {
	if b.metrics != nil {
		b.metrics.UploadFailures.WithLabelValues(b.collectionID).Inc()
	}
	_ = key
	_ = err
}

// Insert validates doc, appends an Upsert WAL record, installs doc into the
// in-memory map, and (depending on tiering policy) schedules or performs the
// object-store write.
func (b *Backend) Insert(doc index.Document) error {
	if doc.DocID == uuid.Nil {
		return akidberr.New(akidberr.Validation, "storagebackend: doc_id is required")
	}
	if !distance.AllFinite(doc.Vector) {
		return akidberr.New(akidberr.Validation, "storagebackend: vector for %s contains a non-finite component", doc.DocID)
	}

	if _, err := b.wal.AppendUpsert(doc.DocID, doc.Vector, doc.Metadata); err != nil {
		return err
	}

	b.mu.Lock()
	b.vectors[doc.DocID] = doc
	b.mu.Unlock()

	b.insertsSinceCompaction.Add(1)
	if b.metrics != nil {
		b.metrics.Inserts.WithLabelValues(b.collectionID).Inc()
		b.metrics.WALSizeBytes.WithLabelValues(b.collectionID).Set(float64(b.wal.CurrentSizeBytes()))
	}

	switch b.cfg.Policy {
	case MemoryS3:
		blob, err := encodeVectorBlob(doc)
		if err != nil {
			return err
		}
		b.scheduleUpload(uploadJob{docID: doc.DocID, blob: blob})
	case S3Only:
		blob, err := encodeVectorBlob(doc)
		if err != nil {
			return err
		}
		if err := b.dlq.Put(b.ctx, objectstore.VectorKey(b.collectionID, doc.DocID.String()), blob); err != nil {
			return err
		}
		b.cache.put(doc)
	}
	return nil
}

// Delete appends a Delete WAL record, removes doc_id from the in-memory map,
// and schedules or performs the corresponding object-store deletion.
func (b *Backend) Delete(docID uuid.UUID) error {
	if _, err := b.wal.AppendDelete(docID); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.vectors, docID)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.Deletes.WithLabelValues(b.collectionID).Inc()
	}

	switch b.cfg.Policy {
	case MemoryS3:
		b.scheduleUpload(uploadJob{docID: docID, isDelete: true})
	case S3Only:
		if err := b.dlq.Delete(b.ctx, objectstore.VectorKey(b.collectionID, docID.String())); err != nil {
			return err
		}
		b.cache.remove(docID)
	}
	return nil
}

// scheduleUpload enqueues an async object-store job. When the queue is full
// the job is handed to the DLQ synchronously instead, so the caller's
// insert/delete is slowed rather than the job being dropped; a transient
// store failure then leaves it queued in the DLQ for retry.
func (b *Backend) scheduleUpload(job uploadJob) {
	select {
	case b.uploadQueue <- job:
	default:
		if b.dlq != nil {
			key := objectstore.VectorKey(b.collectionID, job.docID.String())
			if job.isDelete {
				_ = b.dlq.Delete(b.ctx, key)
			} else {
				_ = b.dlq.Put(b.ctx, key, job.blob)
			}
		}
	}
	if b.metrics != nil {
		b.metrics.PendingUploads.WithLabelValues(b.collectionID).Set(float64(len(b.uploadQueue)))
	}
}

// Get always increments the queries counter, even on a miss: monitoring
// correctness depends on every lookup attempt being counted.
func (b *Backend) Get(ctx context.Context, docID uuid.UUID) (index.Document, bool, error) {
	if b.metrics != nil {
		b.metrics.Queries.WithLabelValues(b.collectionID).Inc()
	}

	if b.cfg.Policy != S3Only {
		b.mu.RLock()
		doc, ok := b.vectors[docID]
		b.mu.RUnlock()
		return doc, ok, nil
	}

	if doc, ok := b.cache.get(docID); ok {
		return doc, true, nil
	}
	blob, err := b.store.Get(ctx, objectstore.VectorKey(b.collectionID, docID.String()))
	if err != nil {
		if akidberr.KindOf(err) == akidberr.NotFound {
			return index.Document{}, false, nil
		}
		return index.Document{}, false, err
	}
	doc, err := decodeVectorBlob(blob)
	if err != nil {
		return index.Document{}, false, err
	}
	b.cache.put(doc)
	return doc, true, nil
}

// AllVectors returns every live in-memory document, used by the collection
// service's load/migration path and by the compaction worker's snapshot.
func (b *Backend) AllVectors() []index.Document {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]index.Document, 0, len(b.vectors))
	for _, d := range b.vectors {
		out = append(out, d)
	}
	return out
}

// CurrentLSN reports the WAL's last-assigned LSN, used by the collection
// service's recovery path to decide how much of the WAL to replay.
func (b *Backend) CurrentLSN() uint64 {
	return uint64(b.wal.CurrentLSN())
}

// Shutdown signals every background worker to stop, awaits their join up to
// cfg.ShutdownTimeout (or ctx's deadline, whichever is tighter), flushes the
// WAL, and closes its file handles. Idempotent: a second call is a no-op.
func (b *Backend) Shutdown(ctx context.Context) error {
	var shutdownErr error
	b.shutdownOnce.Do(func() {
		b.cancel()

		deadline := time.After(b.cfg.ShutdownTimeout)
		select {
		case <-b.joined:
		case <-ctx.Done():
			shutdownErr = akidberr.Wrap(akidberr.Internal, ctx.Err(), "storagebackend: shutdown canceled before workers joined")
		case <-deadline:
			shutdownErr = akidberr.New(akidberr.Internal, "storagebackend: background workers did not join within %s", b.cfg.ShutdownTimeout)
		}

		if err := b.wal.Flush(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
		if err := b.wal.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	})
	return shutdownErr
}
