// Package ftq implements the Fetch Target Queue: a bounded deque of Fetch
// Targets with registered iterators that track a position into the queue
// and auto-adjust when the queue is popped or flushed. Grounded on
// decoupled_frontend.cc's ftq/decoupled_fe_iter handling.
package ftq

import (
	"github.com/sarchlab/frontendsim/ft"
	"github.com/sarchlab/frontendsim/op"
)

// Iter is a position into the FTQ: an FT index, an op index within that
// FT, and a flattened op index across the whole queue. Mirrors
// decoupled_fe_iter in decoupled_frontend.h.
type Iter struct {
	FTPos          int
	OpPos          int
	FlattenedOpPos int

	valid bool
}

// Valid reports whether the iterator still refers to a live position.
func (it Iter) Valid() bool { return it.valid }

// FTQ is a bounded FIFO of Fetch Targets.
type FTQ struct {
	fts      []*ft.FT
	capacity int
	iters    []*Iter
}

// New creates an FTQ bounded to capacity Fetch Targets.
func New(capacity int) *FTQ {
	return &FTQ{capacity: capacity}
}

// Len returns the number of Fetch Targets currently queued.
func (q *FTQ) Len() int { return len(q.fts) }

// Full reports whether the queue has reached its capacity.
func (q *FTQ) Full() bool { return len(q.fts) >= q.capacity }

// NumOps returns the total number of ops across every queued FT, mirroring
// ftq_num_ops.
func (q *FTQ) NumOps() int {
	n := 0
	for _, f := range q.fts {
		n += len(f.Ops)
	}
	return n
}

// PushTail appends an FT to the back of the queue. Panics if the queue is
// already full; callers must check Full() first (the DFE's break
// conditions are responsible for never overfilling the FTQ).
func (q *FTQ) PushTail(f *ft.FT) {
	if q.Full() {
		panic("ftq: push onto a full queue")
	}
	q.fts = append(q.fts, f)
}

// At returns the Fetch Target at position i without removing it.
func (q *FTQ) At(i int) *ft.FT { return q.fts[i] }

// PopHead removes and returns the oldest Fetch Target, adjusting every
// registered iterator's position to account for the removal. Mirrors
// decoupled_frontend.cc's pop_ft.
func (q *FTQ) PopHead() *ft.FT {
	if len(q.fts) == 0 {
		panic("ftq: pop from an empty queue")
	}
	head := q.fts[0]
	q.fts = q.fts[1:]

	for _, it := range q.iters {
		if !it.valid {
			continue
		}
		if it.FTPos == 0 {
			it.valid = false
			continue
		}
		it.FTPos--
		it.FlattenedOpPos -= len(head.Ops)
	}
	return head
}

// FlushFrom discards every Fetch Target from index i onward (e.g. on a
// recovery redirect), invalidating any iterator that pointed into the
// discarded tail.
func (q *FTQ) FlushFrom(i int) {
	if i < 0 || i > len(q.fts) {
		panic("ftq: flush index out of range")
	}
	q.fts = q.fts[:i]

	for _, it := range q.iters {
		if it.valid && it.FTPos >= i {
			it.valid = false
		}
	}
}

// NewIter registers and returns a new iterator positioned at the head of
// the queue.
func (q *FTQ) NewIter() *Iter {
	it := &Iter{valid: len(q.fts) > 0}
	q.iters = append(q.iters, it)
	return it
}

// ReleaseIter unregisters it so the queue stops adjusting it on pop/flush.
func (q *FTQ) ReleaseIter(it *Iter) {
	for i, reg := range q.iters {
		if reg == it {
			q.iters = append(q.iters[:i], q.iters[i+1:]...)
			return
		}
	}
}

// Get returns the FT it currently points into and the op at its position,
// mirroring ftq_iter_get.
func (q *FTQ) Get(it *Iter) (*ft.FT, *op.Op, bool) {
	if !it.valid || it.FTPos >= len(q.fts) {
		return nil, nil, false
	}
	f := q.fts[it.FTPos]
	if it.OpPos >= len(f.Ops) {
		return f, nil, false
	}
	return f, f.Ops[it.OpPos], true
}

// GetNext advances it to the next op, crossing into the following FT when
// the current one is exhausted. Mirrors ftq_iter_get_next. Reports false
// once the iterator runs off the tail of the queue.
func (q *FTQ) GetNext(it *Iter) bool {
	if !it.valid || it.FTPos >= len(q.fts) {
		return false
	}

	f := q.fts[it.FTPos]
	it.OpPos++
	it.FlattenedOpPos++
	if it.OpPos >= len(f.Ops) {
		it.OpPos = 0
		it.FTPos++
	}
	return it.FTPos < len(q.fts)
}

// CurrentOp returns the op it currently points to, or nil past the tail.
func (q *FTQ) CurrentOp(it *Iter) *op.Op {
	_, o, ok := q.Get(it)
	if !ok {
		return nil
	}
	return o
}
