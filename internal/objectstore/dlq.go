package objectstore

import (
	"context"
	"sync"
	"time"

	"github.com/aifocal/akidb/internal/akidberr"
)

// BackoffConfig parameterizes the DLQ retry worker's exponential backoff.
type BackoffConfig struct {
	Base       time.Duration
	Max        time.Duration
	EntryTTL   time.Duration // entries older than this are dropped by the cleanup worker
	RetryTick  time.Duration // how often the retry worker wakes to scan the queue
	CleanTick  time.Duration // how often the cleanup worker scans for expired entries
}

func (c *BackoffConfig) applyDefaults() {
	if c.Base <= 0 {
		c.Base = 100 * time.Millisecond
	}
	if c.Max <= 0 {
		c.Max = 30 * time.Second
	}
	if c.EntryTTL <= 0 {
		c.EntryTTL = 24 * time.Hour
	}
	if c.RetryTick <= 0 {
		c.RetryTick = time.Second
	}
	if c.CleanTick <= 0 {
		c.CleanTick = time.Minute
	}
}

// backoffDelay computes min(max, base*2^min(attempt,30)) using saturating
// arithmetic: a pathological attempt count must never panic or wrap the shift.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	shift := attempt
	if shift > 30 {
		shift = 30
	}
	scaled := base << uint(shift) //nolint:gosec // shift clamped to [0,30] above
	if scaled < base || scaled > maxDelay {
		return maxDelay
	}
	return scaled
}

// entry is one queued retryable upload or delete.
type entry struct {
	key        string
	blob       []byte // nil for a delete entry
	isDelete   bool
	attempt    int
	enqueuedAt time.Time
	nextAt     time.Time
}

// onPermanentFailure is invoked when a queued entry is dropped because a
// retry attempt returned a non-retryable error.
type onPermanentFailure func(key string, err error)

// DLQ wraps a Store with fire-and-forget retry semantics: a Put/Delete that
// fails with a transient error is queued and retried with exponential
// backoff by a background worker instead of failing the caller.
type DLQ struct {
	store   Store
	backoff BackoffConfig
	onFail  onPermanentFailure

	mu      sync.Mutex
	queue   []*entry
	breaker *circuitBreaker
}

// NewDLQ wraps store with dead-letter retry semantics. onFail, if non-nil, is
// called for every entry that is dropped after a permanent failure.
func NewDLQ(store Store, backoff BackoffConfig, onFail onPermanentFailure) *DLQ {
	backoff.applyDefaults()
	return &DLQ{
		store:   store,
		backoff: backoff,
		onFail:  onFail,
		breaker: newCircuitBreaker(),
	}
}

// Put attempts a synchronous write; a transient failure is queued for retry
// and reported to the caller as success (fire-and-forget upload semantics).
// A permanent failure or an open circuit breaker is returned immediately.
func (d *DLQ) Put(ctx context.Context, key string, blob []byte) error {
	if d.breaker.open() {
		return errCircuitOpen(key)
	}
	err := d.store.Put(ctx, key, blob)
	d.breaker.record(err == nil)
	if err == nil {
		return nil
	}
	if akidberr.KindOf(err) != akidberr.TransientBackend {
		return err
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	d.enqueue(&entry{key: key, blob: cp, enqueuedAt: time.Now(), nextAt: time.Now()})
	return nil
}

// Delete attempts a synchronous delete, queuing on transient failure exactly
// like Put.
func (d *DLQ) Delete(ctx context.Context, key string) error {
	if d.breaker.open() {
		return errCircuitOpen(key)
	}
	err := d.store.Delete(ctx, key)
	d.breaker.record(err == nil)
	if err == nil {
		return nil
	}
	if akidberr.KindOf(err) != akidberr.TransientBackend {
		return err
	}
	d.enqueue(&entry{key: key, isDelete: true, enqueuedAt: time.Now(), nextAt: time.Now()})
	return nil
}

func (d *DLQ) enqueue(e *entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, e)
}

// Len reports the number of entries currently queued for retry.
func (d *DLQ) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// CircuitOpen reports whether the wrapped store's circuit breaker is
// currently tripped, for callers exposing circuit_breaker_state metrics.
func (d *DLQ) CircuitOpen() bool {
	return d.breaker.open()
}

// RunRetryLoop drains the queue with exponential backoff until ctx is
// canceled. Intended to run as one of the storage backend's background
// workers under an errgroup.Group.
func (d *DLQ) RunRetryLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.backoff.RetryTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.drainDue(ctx)
		}
	}
}

func (d *DLQ) drainDue(ctx context.Context) {
	now := time.Now()
	d.mu.Lock()
	due := d.queue[:0]
	var ready []*entry
	for _, e := range d.queue {
		if now.After(e.nextAt) || now.Equal(e.nextAt) {
			ready = append(ready, e)
		} else {
			due = append(due, e)
		}
	}
	d.queue = due
	d.mu.Unlock()

	for _, e := range ready {
		var err error
		if e.isDelete {
			err = d.store.Delete(ctx, e.key)
		} else {
			err = d.store.Put(ctx, e.key, e.blob)
		}
		d.breaker.record(err == nil)

		if err == nil {
			continue
		}
		if akidberr.KindOf(err) != akidberr.TransientBackend {
			if d.onFail != nil {
				d.onFail(e.key, err)
			}
			continue
		}
		e.attempt++
		e.nextAt = time.Now().Add(backoffDelay(d.backoff.Base, d.backoff.Max, e.attempt))
		d.enqueue(e)
	}
}

// RunCleanupLoop trims entries older than EntryTTL, counting each as a
// permanent failure. Intended to run as one of the storage backend's
// background workers under an errgroup.Group.
func (d *DLQ) RunCleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.backoff.CleanTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.cleanupExpired()
		}
	}
}

func (d *DLQ) cleanupExpired() {
	now := time.Now()
	d.mu.Lock()
	kept := d.queue[:0]
	var expired []*entry
	for _, e := range d.queue {
		if now.Sub(e.enqueuedAt) > d.backoff.EntryTTL {
			expired = append(expired, e)
		} else {
			kept = append(kept, e)
		}
	}
	d.queue = kept
	d.mu.Unlock()

	for _, e := range expired {
		if d.onFail != nil {
			d.onFail(e.key, akidberr.New(akidberr.TransientBackend, "objectstore: dlq entry for %q expired after TTL", e.key))
		}
	}
}

func errCircuitOpen(key string) error {
	return akidberr.New(akidberr.TransientBackend, "objectstore: circuit breaker open, rejecting put/delete for %q", key)
}
