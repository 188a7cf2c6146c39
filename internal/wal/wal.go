// Package wal implements the per-collection, segmented, append-only write-ahead
// log: segment rotation named by the first LSN each segment holds, a JSON
// checkpoint file tracking the compaction horizon, and CRC-validated replay.
package wal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/lsn"
	"github.com/aifocal/akidb/internal/walrecord"
)

// Segment file header: magic(4) + version(2) + reserved(2) + baseLSN(8).
const (
	segmentMagic   uint32 = 0x414b4957 // "AKIW"
	segmentVersion uint16 = 1
	headerSize            = 16

	defaultSegmentBytes   = 64 << 20
	defaultSegmentRecords = 100_000
	minSegmentBytes       = 1 << 20
	minSegmentRecords     = 100

	defaultSyncInterval = 10 * time.Millisecond
)

// SyncMode controls when segment writes reach stable storage.
type SyncMode string

const (
	// SyncFull fsyncs after every append.
	SyncFull SyncMode = "full"
	// SyncBatch fsyncs on a background ticker.
	SyncBatch SyncMode = "batch"
	// SyncNone never explicitly syncs; for benchmarking only.
	SyncNone SyncMode = "none"
)

// Config configures a per-collection WAL.
type Config struct {
	Dir             string // Directory holding this collection's segment files.
	CollectionID    uuid.UUID
	SyncMode        SyncMode
	SyncInterval    time.Duration
	MaxSegmentBytes int64
	MaxSegmentRecs  int
}

func (c *Config) applyDefaults() error {
	if c.Dir == "" {
		return akidberr.New(akidberr.Validation, "wal: Dir is required")
	}
	if c.SyncMode == "" {
		c.SyncMode = SyncBatch
	}
	switch c.SyncMode {
	case SyncFull, SyncBatch, SyncNone:
	default:
		return akidberr.New(akidberr.Validation, "wal: invalid sync mode %q", c.SyncMode)
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaultSyncInterval
	}
	if c.MaxSegmentBytes <= 0 {
		c.MaxSegmentBytes = defaultSegmentBytes
	}
	if c.MaxSegmentBytes < minSegmentBytes {
		return akidberr.New(akidberr.Validation, "wal: segment size %d below minimum %d", c.MaxSegmentBytes, minSegmentBytes)
	}
	if c.MaxSegmentRecs <= 0 {
		c.MaxSegmentRecs = defaultSegmentRecords
	}
	if c.MaxSegmentRecs < minSegmentRecords {
		return akidberr.New(akidberr.Validation, "wal: segment records %d below minimum %d", c.MaxSegmentRecs, minSegmentRecords)
	}
	return nil
}

// checkpoint tracks the compaction horizon: segments whose last LSN is <= this
// value may be pruned.
type checkpoint struct {
	HorizonLSN uint64    `json:"horizon_lsn"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WAL is a durable, segmented, per-collection append-only log.
type WAL struct {
	dir          string
	collectionID uuid.UUID
	syncMode     SyncMode

	mu          sync.Mutex
	current     *os.File
	currentBase lsn.LSN // first LSN the current segment holds
	segBytes    int64
	segRecs     int

	counter *lsn.Counter

	maxSegBytes int64
	maxSegRecs  int

	closed atomic.Bool

	syncCancel func()
	syncDone   chan struct{}
}

// Open creates or reopens the WAL for a collection, replaying existing
// segments only far enough to discover the highest assigned LSN (full replay
// for recovery is a separate call to Replay).
func Open(cfg Config) (*WAL, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, akidberr.Wrap(akidberr.ResourceExhausted, err, "wal: create directory %s", cfg.Dir)
	}

	w := &WAL{
		dir:          cfg.Dir,
		collectionID: cfg.CollectionID,
		syncMode:     cfg.SyncMode,
		maxSegBytes:  cfg.MaxSegmentBytes,
		maxSegRecs:   cfg.MaxSegmentRecs,
	}

	highest, err := w.highestAssignedLSN()
	if err != nil {
		return nil, err
	}
	w.counter = lsn.NewCounter(highest)

	if err := w.rotate(); err != nil {
		return nil, err
	}

	if cfg.SyncMode == SyncBatch {
		done := make(chan struct{})
		stop := make(chan struct{})
		w.syncDone = done
		w.syncCancel = sync.OnceFunc(func() { close(stop) })
		go w.syncLoop(stop, done, cfg.SyncInterval)
	}

	return w, nil
}

// CurrentLSN reports the last LSN assigned by Append*.
func (w *WAL) CurrentLSN() lsn.LSN {
	return w.counter.Current()
}

// AppendUpsert assigns and durably frames an Upsert record, returning its LSN.
func (w *WAL) AppendUpsert(docID uuid.UUID, vector []float32, metadata map[string]any) (lsn.LSN, error) {
	return w.append(walrecord.Record{
		Kind:         walrecord.KindUpsert,
		CollectionID: w.collectionID,
		DocID:        docID,
		Vector:       vector,
		Metadata:     metadata,
	})
}

// AppendDelete assigns and durably frames a Delete record, returning its LSN.
func (w *WAL) AppendDelete(docID uuid.UUID) (lsn.LSN, error) {
	return w.append(walrecord.Record{
		Kind:         walrecord.KindDelete,
		CollectionID: w.collectionID,
		DocID:        docID,
	})
}

func (w *WAL) append(r walrecord.Record) (lsn.LSN, error) {
	assigned, err := w.counter.Advance()
	if err != nil {
		return 0, err
	}
	r.LSN = assigned

	buf, err := walrecord.Encode(r)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.current.Write(buf); err != nil {
		return 0, akidberr.Wrap(akidberr.ResourceExhausted, err, "wal: append record")
	}
	w.segBytes += int64(len(buf))
	w.segRecs++

	if w.segBytes >= w.maxSegBytes || w.segRecs >= w.maxSegRecs {
		if err := w.rotateLocked(); err != nil {
			return assigned, err
		}
	}

	if w.syncMode == SyncFull {
		if err := w.current.Sync(); err != nil {
			return assigned, akidberr.Wrap(akidberr.ResourceExhausted, err, "wal: fsync")
		}
	}
	return assigned, nil
}

// Flush forces a durability boundary regardless of sync mode.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	if err := w.current.Sync(); err != nil {
		return akidberr.Wrap(akidberr.ResourceExhausted, err, "wal: flush")
	}
	return nil
}

// Rotate closes the current segment and opens a new one named after the
// next LSN to be assigned.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *WAL) rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *WAL) rotateLocked() error {
	if w.current != nil {
		if err := w.current.Sync(); err != nil {
			return akidberr.Wrap(akidberr.ResourceExhausted, err, "wal: sync before rotate")
		}
		if err := w.current.Close(); err != nil {
			return akidberr.Wrap(akidberr.Internal, err, "wal: close before rotate")
		}
	}

	// Segment invariant: named after the FIRST LSN it will contain, i.e.
	// current_lsn+1. Naming by the last LSN held would make replay-from-LSN
	// silently drop records at rotation boundaries.
	base := w.counter.Current() + 1

	path := w.segmentPath(base)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path built from validated dir
	if err != nil {
		return akidberr.Wrap(akidberr.ResourceExhausted, err, "wal: open segment")
	}

	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], segmentMagic)
	binary.BigEndian.PutUint16(hdr[4:6], segmentVersion)
	binary.BigEndian.PutUint64(hdr[8:16], uint64(base))
	if _, err := f.Write(hdr[:]); err != nil {
		_ = f.Close()
		return akidberr.Wrap(akidberr.ResourceExhausted, err, "wal: write segment header")
	}

	w.current = f
	w.currentBase = base
	w.segBytes = headerSize
	w.segRecs = 0
	return nil
}

// CurrentSizeBytes sums the on-disk size of every segment not yet pruned,
// feeding the size-based compaction trigger.
func (w *WAL) CurrentSizeBytes() int64 {
	paths, err := w.listSegments()
	if err != nil {
		return 0
	}
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Replay yields every record with lsn > fromLSN, in strict LSN order across
// all segments. A CRC failure aborts with a Corruption error naming the
// segment and byte offset; a truncated tail record (expected after a crash)
// simply ends that segment's replay without error.
func (w *WAL) Replay(fromLSN lsn.LSN) ([]walrecord.Record, error) {
	paths, err := w.listSegments()
	if err != nil {
		return nil, akidberr.Wrap(akidberr.Internal, err, "wal: list segments")
	}

	var out []walrecord.Record
	for _, path := range paths {
		records, err := w.readSegment(path)
		if err != nil {
			return out, err
		}
		for _, r := range records {
			if !walrecord.EqualCollection(r, w.collectionID) {
				return out, akidberr.New(akidberr.Corruption, "wal: segment %s contains record for foreign collection %s", path, r.CollectionID)
			}
			if r.LSN > fromLSN {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (w *WAL) readSegment(path string) ([]walrecord.Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path built from validated dir
	if err != nil {
		return nil, akidberr.Wrap(akidberr.Internal, err, "wal: open segment %s", path)
	}
	if len(data) < headerSize {
		return nil, akidberr.New(akidberr.Corruption, "wal: segment %s shorter than header", path)
	}
	magic := binary.BigEndian.Uint32(data[0:4])
	if magic != segmentMagic {
		return nil, akidberr.New(akidberr.Corruption, "wal: segment %s has bad magic 0x%08x", path, magic)
	}

	var records []walrecord.Record
	offset := headerSize
	for offset < len(data) {
		frame, consumed, err := walrecord.SplitFrame(data[offset:])
		if err != nil {
			// Truncated tail: expected after a crash mid-write. Stop here,
			// not an error — the caller resumes appending from this point.
			break
		}
		rec, err := walrecord.Decode(frame)
		if err != nil {
			return records, akidberr.Wrap(akidberr.Corruption, err, "wal: segment %s offset %d", path, offset)
		}
		records = append(records, rec)
		offset += consumed
	}
	return records, nil
}

// Checkpoint advances the compaction horizon and prunes segments whose
// highest LSN is at or below it.
func (w *WAL) Checkpoint(horizon lsn.LSN) error {
	cp := checkpoint{HorizonLSN: uint64(horizon), UpdatedAt: time.Now().UTC()}
	if err := w.saveCheckpoint(cp); err != nil {
		return err
	}
	return w.pruneSegments(horizon)
}

func (w *WAL) pruneSegments(horizon lsn.LSN) error {
	paths, err := w.listSegments()
	if err != nil {
		return akidberr.Wrap(akidberr.Internal, err, "wal: list segments for prune")
	}
	// Never prune the currently-open segment.
	w.mu.Lock()
	currentPath := w.segmentPath(w.currentBase)
	w.mu.Unlock()

	for _, p := range paths {
		if p == currentPath {
			continue
		}
		records, err := w.readSegment(p)
		if err != nil || len(records) == 0 {
			continue
		}
		var highest lsn.LSN
		for _, r := range records {
			if r.LSN > highest {
				highest = r.LSN
			}
		}
		if highest <= horizon {
			_ = os.Remove(p)
		}
	}
	return nil
}

// Close syncs and closes the current segment and stops the batch-sync loop.
func (w *WAL) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	if w.syncCancel != nil {
		w.syncCancel()
		<-w.syncDone
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	if err := w.current.Sync(); err != nil {
		return akidberr.Wrap(akidberr.Internal, err, "wal: final sync")
	}
	return w.current.Close()
}

func (w *WAL) syncLoop(stop <-chan struct{}, done chan<- struct{}, interval time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.current != nil {
				_ = w.current.Sync()
			}
			w.mu.Unlock()
		}
	}
}

func (w *WAL) segmentPath(base lsn.LSN) string {
	return filepath.Join(w.dir, fmt.Sprintf("%016x.wal", uint64(base)))
}

func (w *WAL) checkpointPath() string {
	return filepath.Join(w.dir, "checkpoint.json")
}

func (w *WAL) listSegments() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".wal") {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(paths) // lexicographic == numeric order: fixed-width zero-padded hex
	return paths, nil
}

// highestAssignedLSN scans existing segments to resume numbering after the
// highest LSN found on disk, so a restart does not reassign LSNs already durable.
func (w *WAL) highestAssignedLSN() (lsn.LSN, error) {
	paths, err := w.listSegments()
	if err != nil {
		return lsn.Zero, akidberr.Wrap(akidberr.Internal, err, "wal: scan segments")
	}
	var highest lsn.LSN
	for _, p := range paths {
		records, err := w.readSegment(p)
		if err != nil {
			// A corrupt older segment does not prevent startup; it will
			// surface again (and loudly) the next time Replay is called.
			continue
		}
		for _, r := range records {
			if r.LSN > highest {
				highest = r.LSN
			}
		}
	}
	return highest, nil
}

func (w *WAL) loadCheckpoint() (checkpoint, error) {
	data, err := os.ReadFile(w.checkpointPath())
	if errors.Is(err, os.ErrNotExist) {
		return checkpoint{}, nil
	}
	if err != nil {
		return checkpoint{}, akidberr.Wrap(akidberr.Internal, err, "wal: read checkpoint")
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return checkpoint{}, akidberr.Wrap(akidberr.Corruption, err, "wal: parse checkpoint")
	}
	return cp, nil
}

func (w *WAL) saveCheckpoint(cp checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return akidberr.Wrap(akidberr.Internal, err, "wal: marshal checkpoint")
	}
	tmp := w.checkpointPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return akidberr.Wrap(akidberr.ResourceExhausted, err, "wal: write checkpoint tmp")
	}
	f, err := os.Open(tmp) //nolint:gosec // path built from validated dir
	if err != nil {
		return akidberr.Wrap(akidberr.Internal, err, "wal: open checkpoint tmp for sync")
	}
	syncErr := f.Sync()
	_ = f.Close()
	if syncErr != nil {
		return akidberr.Wrap(akidberr.ResourceExhausted, syncErr, "wal: sync checkpoint tmp")
	}
	if err := os.Rename(tmp, w.checkpointPath()); err != nil {
		return akidberr.Wrap(akidberr.Internal, err, "wal: rename checkpoint")
	}
	return nil
}

// Horizon returns the last checkpointed compaction horizon.
func (w *WAL) Horizon() (lsn.LSN, error) {
	cp, err := w.loadCheckpoint()
	if err != nil {
		return 0, err
	}
	return lsn.LSN(cp.HorizonLSN), nil
}
