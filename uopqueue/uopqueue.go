// Package uopqueue implements the uop queue: a bounded shift-register
// sitting between the Fetch Target Queue and the back end's decode stage,
// draining ops a line-width at a time and freeing them back to the op
// pool when a recovery flushes them. Grounded on uop_queue_stage.cc/h, in
// a stage-buffer style consistent with a shift-register pipeline stage.
package uopqueue

import "github.com/sarchlab/frontendsim/op"

// Config sizes the queue.
type Config struct {
	Capacity int // max ops buffered
	Width    int // ops drained per cycle, matches the uop cache's line width
}

// DefaultConfig mirrors the uop cache's default line width.
func DefaultConfig() Config {
	return Config{Capacity: 64, Width: 8}
}

// Stats accumulates queue occupancy outcomes.
type Stats struct {
	Pushed     uint64
	Popped     uint64
	Flushed    uint64
	FullCycles uint64
}

// Queue is a bounded FIFO of ops.
type Queue struct {
	cfg   Config
	ops   []*op.Op
	pool  *op.Pool
	stats Stats
}

// New builds a Queue bound to pool for freeing flushed ops.
func New(cfg Config, pool *op.Pool) *Queue {
	return &Queue{cfg: cfg, pool: pool}
}

// Len returns the number of ops currently buffered.
func (q *Queue) Len() int { return len(q.ops) }

// Full reports whether the queue is at capacity.
func (q *Queue) Full() bool { return len(q.ops) >= q.cfg.Capacity }

// Stats returns a copy of the queue's statistics.
func (q *Queue) Stats() Stats { return q.stats }

// Push appends an op to the tail of the queue. Panics if full.
func (q *Queue) Push(o *op.Op) {
	if q.Full() {
		q.stats.FullCycles++
		panic("uopqueue: push onto a full queue")
	}
	q.ops = append(q.ops, o)
	q.stats.Pushed++
}

// CanPush reports whether room remains for n more ops.
func (q *Queue) CanPush(n int) bool {
	return len(q.ops)+n <= q.cfg.Capacity
}

// Drain pops up to Width ops from the head of the queue, the amount the
// back end's decode stage can accept this cycle.
func (q *Queue) Drain() []*op.Op {
	n := q.cfg.Width
	if n > len(q.ops) {
		n = len(q.ops)
	}
	out := q.ops[:n]
	q.ops = q.ops[n:]
	q.stats.Popped += uint64(n)
	return out
}

// Flush discards every buffered op, returning each to the pool the queue
// was built with. Called on a recovery that squashes everything in flight
// past the resolved op.
func (q *Queue) Flush() {
	for _, o := range q.ops {
		q.pool.Free(o)
	}
	q.stats.Flushed += uint64(len(q.ops))
	q.ops = nil
}

// FlushAfter discards every op at or after index i, freeing them back to
// the pool, keeping the prefix intact.
func (q *Queue) FlushAfter(i int) {
	if i < 0 || i > len(q.ops) {
		panic("uopqueue: flush index out of range")
	}
	for _, o := range q.ops[i:] {
		q.pool.Free(o)
	}
	q.stats.Flushed += uint64(len(q.ops) - i)
	q.ops = q.ops[:i]
}
