// Package lsn implements the monotonic log sequence number used to order
// WAL records within a single collection.
package lsn

import (
	"math"
	"sync/atomic"

	"github.com/aifocal/akidb/internal/akidberr"
)

// LSN is a log sequence number. Zero is reserved as the "before any record" sentinel.
type LSN uint64

// Zero is the sentinel meaning "replay from the beginning."
const Zero LSN = 0

// Less reports whether l sorts strictly before other.
func (l LSN) Less(other LSN) bool {
	return l < other
}

// Compare returns -1, 0, or 1 as l is less than, equal to, or greater than other.
func (l LSN) Compare(other LSN) int {
	switch {
	case l < other:
		return -1
	case l > other:
		return 1
	default:
		return 0
	}
}

// Next returns l+1, or an Internal error if l is already math.MaxUint64.
// Overflow must fail loudly rather than wrap back to Zero, which would make
// a brand-new record compare as "before" every record already on disk.
func (l LSN) Next() (LSN, error) {
	if l == math.MaxUint64 {
		return 0, akidberr.New(akidberr.Internal, "lsn: counter overflow at %d", uint64(l))
	}
	return l + 1, nil
}

// Counter is a goroutine-safe, monotonically-increasing LSN generator.
type Counter struct {
	value atomic.Uint64
}

// NewCounter returns a Counter whose last-assigned LSN is initial (the next
// call to Advance returns initial+1).
func NewCounter(initial LSN) *Counter {
	c := &Counter{}
	c.value.Store(uint64(initial))
	return c
}

// Advance assigns and returns the next LSN, or an Internal error on overflow.
func (c *Counter) Advance() (LSN, error) {
	for {
		cur := c.value.Load()
		if cur == math.MaxUint64 {
			return 0, akidberr.New(akidberr.Internal, "lsn: counter overflow at %d", cur)
		}
		next := cur + 1
		if c.value.CompareAndSwap(cur, next) {
			return LSN(next), nil
		}
	}
}

// Current returns the last LSN assigned by Advance, or the initial value if
// Advance has never been called.
func (c *Counter) Current() LSN {
	return LSN(c.value.Load())
}

// SetIfHigher advances the counter's internal state to v if v is greater than
// the current value. The WAL does not call it: wal.Open resumes numbering by
// constructing its counter with NewCounter at the highest LSN found on disk.
func (c *Counter) SetIfHigher(v LSN) {
	for {
		cur := c.value.Load()
		if uint64(v) <= cur {
			return
		}
		if c.value.CompareAndSwap(cur, uint64(v)) {
			return
		}
	}
}
