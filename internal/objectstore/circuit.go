package objectstore

import "sync"

// circuitBreaker tracks the recent put/delete failure rate against the
// underlying store; when open, callers fail fast instead of waiting out a
// timeout against a backend that is already known to be unhealthy.
type circuitBreaker struct {
	mu sync.Mutex

	window     []bool // true = success, bounded to windowSize
	isOpen     bool
	probeAfter int // successes still needed before a half-open probe closes the breaker
}

const (
	windowSize        = 20
	failureThreshold  = 0.5 // fraction of the window that must fail to trip open
	minSamples        = 5
	probeSuccessCount = 2
)

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{}
}

// open reports whether the breaker is currently tripped.
func (c *circuitBreaker) open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

// record reports the outcome of a store operation and updates breaker state.
func (c *circuitBreaker) record(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isOpen {
		if success {
			c.probeAfter--
			if c.probeAfter <= 0 {
				c.isOpen = false
				c.window = nil
			}
		} else {
			c.probeAfter = probeSuccessCount
		}
		return
	}

	c.window = append(c.window, success)
	if len(c.window) > windowSize {
		c.window = c.window[len(c.window)-windowSize:]
	}
	if len(c.window) < minSamples {
		return
	}

	failures := 0
	for _, ok := range c.window {
		if !ok {
			failures++
		}
	}
	if float64(failures)/float64(len(c.window)) >= failureThreshold {
		c.isOpen = true
		c.probeAfter = probeSuccessCount
		c.window = nil
	}
}
