// Package batch implements the progress-batching layer that sits between a
// search engine (walker or grep driver) and a consumer's progress channel.
// Below a warm-up threshold every addition is forwarded immediately, so the
// first results are visible without delay; after warm-up, additions
// accumulate until either a batch-size or a timer threshold is reached,
// trading a little latency for far fewer channel/IPC crossings.
package batch

import (
	"sync"
	"time"
)

// WarmupCount is the number of items below which every Add flushes
// immediately.
const WarmupCount = 50

// DefaultBatchSize is the item count that triggers a flush once warm-up has
// passed.
const DefaultBatchSize = 50

// DefaultFlushInterval is the maximum time a post-warm-up batch is held
// before being flushed regardless of size.
const DefaultFlushInterval = 4 * time.Second

// Collector batches calls to Add and periodically (or once full) invokes
// Emit with the accumulated slice. Collector is safe for concurrent use:
// Add may be called from the goroutine reading a backend's output while
// Flush is called from a timer goroutine.
type Collector[T any] struct {
	// Emit receives each batch plus the running total of items emitted so
	// far (across all batches, including this one).
	Emit func(items []T, total int)

	BatchSize     int
	FlushInterval time.Duration

	mu      sync.Mutex
	pending []T
	total   int
	timer   *time.Timer
	closed  bool
}

// New constructs a Collector with the package defaults. Callers may
// override BatchSize/FlushInterval on the returned value before the first
// Add.
func New[T any](emit func(items []T, total int)) *Collector[T] {
	return &Collector[T]{
		Emit:          emit,
		BatchSize:     DefaultBatchSize,
		FlushInterval: DefaultFlushInterval,
	}
}

// Add appends a single item.
func (c *Collector[T]) Add(item T) {
	c.AddAll([]T{item})
}

// AddAll appends a slice of items, flushing immediately if warm-up hasn't
// passed yet, or if the batch has reached BatchSize.
func (c *Collector[T]) AddAll(items []T) {
	if len(items) == 0 {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	belowWarmup := c.total+len(c.pending) < WarmupCount
	c.pending = append(c.pending, items...)

	if belowWarmup || len(c.pending) >= c.BatchSize {
		c.flushLocked()
		c.mu.Unlock()
		return
	}

	if c.timer == nil {
		c.timer = time.AfterFunc(c.FlushInterval, c.Flush)
	}
	c.mu.Unlock()
}

// Flush drains any pending items immediately, clearing the flush timer.
// Safe to call from a timer callback or explicitly by the caller (e.g. when
// the underlying search completes and any remainder must be delivered).
func (c *Collector[T]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Collector[T]) flushLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.pending) == 0 {
		return
	}
	batch := c.pending
	c.pending = nil
	c.total += len(batch)
	if c.Emit != nil {
		c.Emit(batch, c.total)
	}
}

// Close flushes any remainder and marks the collector as done; further Add
// calls are ignored. Close is idempotent.
func (c *Collector[T]) Close() {
	c.mu.Lock()
	c.flushLocked()
	c.closed = true
	c.mu.Unlock()
}

// Total returns the running count of items emitted so far.
func (c *Collector[T]) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
