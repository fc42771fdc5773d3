package engine

import (
	"sync"
	"time"
)

// Collector accumulates execution counters. All methods are safe for
// concurrent use; the scheduler updates it from every execution goroutine.
type Collector struct {
	mu        sync.Mutex
	started   int64
	succeeded int64
	failed    int64
	skipped   int64
	elapsed   time.Duration
}

// Stats is a point-in-time copy of the collector's counters.
type Stats struct {
	Started      int64
	Succeeded    int64
	Failed       int64
	SkippedSteps int64
	Elapsed      time.Duration
}

func (c *Collector) executionStarted() {
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
}

func (c *Collector) executionFinished(d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed += d
	if err != nil {
		c.failed++
		return
	}
	c.succeeded++
}

func (c *Collector) stepSkipped() {
	c.mu.Lock()
	c.skipped++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Started:      c.started,
		Succeeded:    c.succeeded,
		Failed:       c.failed,
		SkippedSteps: c.skipped,
		Elapsed:      c.elapsed,
	}
}
