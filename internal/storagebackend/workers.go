package storagebackend

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aifocal/akidb/internal/objectstore"
)

var tracer = otel.Tracer("akidb/storagebackend")

// maintenanceLoop is the compaction worker (background worker 1). On each
// tick it evaluates the compaction triggers and, when tripped, snapshots the
// live set, advances the WAL's replay horizon, and prunes segments older
// than that horizon. Every tick also refreshes the gauges that aren't tied
// to a specific mutation (wal_size_bytes, dlq_depth, pending_uploads,
// circuit_breaker_state), piggybacking on the same 1s cadence rather than
// running a fifth goroutine just to poll gauges.
func (b *Backend) maintenanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.CompactionTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.refreshGauges()
			if err := b.maybeCompact(ctx); err != nil {
				// Compaction failures are not fatal to the backend: the WAL
				// keeps growing and the next tick tries again.
				continue
			}
		}
	}
}

func (b *Backend) refreshGauges() {
	if b.metrics == nil {
		return
	}
	b.metrics.WALSizeBytes.WithLabelValues(b.collectionID).Set(float64(b.wal.CurrentSizeBytes()))
	if b.dlq != nil {
		b.metrics.DLQDepth.WithLabelValues(b.collectionID).Set(float64(b.dlq.Len()))
		state := 0.0
		if b.dlq.CircuitOpen() {
			state = 1.0
		}
		b.metrics.CircuitBreakerState.WithLabelValues(b.collectionID).Set(state)
	}
	if b.uploadQueue != nil {
		b.metrics.PendingUploads.WithLabelValues(b.collectionID).Set(float64(len(b.uploadQueue)))
	}
}

func (b *Backend) maybeCompact(ctx context.Context) error {
	ops := b.insertsSinceCompaction.Load()
	tripped := ops >= b.cfg.CompactionThresholdOps || b.wal.CurrentSizeBytes() >= b.cfg.CompactionThresholdBytes
	if !tripped {
		return nil
	}

	ctx, span := tracer.Start(ctx, "compaction", trace.WithAttributes(
		attribute.String("akidb.collection_id", b.collectionID),
	))
	defer span.End()

	// Under Memory tiering there is no object store to hold a durable
	// snapshot, so pruning the WAL would permanently lose data on the next
	// crash. Still reset the counter so the tick doesn't spin uselessly.
	if b.store == nil {
		b.insertsSinceCompaction.Store(0)
		return nil
	}

	docs := b.AllVectors()
	blob, err := encodeSnapshot(docs)
	if err != nil {
		span.RecordError(err)
		return err
	}

	horizon := b.wal.CurrentLSN()
	key := objectstore.SnapshotKey(b.collectionID, time.Now().UnixNano())
	if err := b.dlq.Put(ctx, key, blob); err != nil {
		span.RecordError(err)
		return err
	}
	if err := b.wal.Checkpoint(horizon); err != nil {
		span.RecordError(err)
		return err
	}
	if err := saveSnapshotPointer(b.cfg.WALDir, key); err != nil {
		span.RecordError(err)
		return err
	}

	b.insertsSinceCompaction.Store(0)
	if b.metrics != nil {
		b.metrics.Compactions.WithLabelValues(b.collectionID).Inc()
		b.metrics.LastSnapshotAt.WithLabelValues(b.collectionID).Set(float64(time.Now().Unix()))
	}
	return nil
}

// uploadLoop is the S3 upload worker (background worker 2): it drains the
// async upload queue used under MemoryS3 tiering, writing each job to the
// object store through the DLQ wrapper so a transient failure is retried in
// the background instead of surfacing to whoever called Insert/Delete.
func (b *Backend) uploadLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-b.uploadQueue:
			key := objectstore.VectorKey(b.collectionID, job.docID.String())
			if job.isDelete {
				_ = b.dlq.Delete(ctx, key)
			} else {
				_ = b.dlq.Put(ctx, key, job.blob)
			}
			if b.metrics != nil {
				b.metrics.PendingUploads.WithLabelValues(b.collectionID).Set(float64(len(b.uploadQueue)))
			}
		}
	}
}
