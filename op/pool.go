package op

// poolChunkSize is the number of Op records allocated the first time the
// pool grows; each later chunk is twice the previous one, matching op_pool.c's OP_POOL_ENTRIES_INC doubling discipline
// (exponential chunk growth avoids a malloc-per-op tail).
const poolChunkSize = 128

// Pool is a free-list allocator of Op records. It hands out pointers from
// preallocated chunks instead of allocating per-op, and recycles freed
// records onto a free list.
type Pool struct {
	freeHead    *Op
	entries     uint64
	activeOps   uint64
	uniqueCount uint64
	opNumByCore map[uint32]uint64
	chunkSize   uint64
}

// NewPool creates an empty op pool.
func NewPool() *Pool {
	return &Pool{
		opNumByCore: make(map[uint32]uint64),
		chunkSize:   poolChunkSize,
	}
}

// ActiveOps returns the number of currently allocated (unfreed) ops.
func (p *Pool) ActiveOps() uint64 { return p.activeOps }

// Entries returns the total number of Op records ever allocated by the
// pool (active + free).
func (p *Pool) Entries() uint64 { return p.entries }

// Alloc hands out the next available Op, zeroing all fields past ProcID
// and stamping identity fields. Mirrors alloc_op/op_pool_setup_op.
func (p *Pool) Alloc(procID, bpID uint32) *Op {
	if p.freeHead == nil {
		p.expand()
	}

	o := p.freeHead
	if o.poolValid {
		panic("op pool: handed out an already-valid op")
	}
	p.freeHead = o.poolNext

	id := o.poolID
	*o = Op{}
	o.poolID = id
	o.poolValid = true
	o.ProcID = procID
	o.BpID = bpID

	o.OpNum = p.opNumByCore[procID]
	p.opNumByCore[procID] = o.OpNum + 1
	o.UniqueNum = p.uniqueCount
	p.uniqueCount++

	p.activeOps++
	return o
}

// Free returns an op to the pool. It panics if the op is not currently
// allocated, mirroring free_op's ASSERT(op->op_pool_valid).
func (p *Pool) Free(o *Op) {
	if o == nil {
		panic("op pool: free of nil op")
	}
	if !o.poolValid {
		panic("op pool: double free or free of unallocated op")
	}

	o.poolValid = false
	p.activeOps--
	if int64(p.activeOps) < 0 {
		panic("op pool: active op count went negative")
	}

	o.poolNext = p.freeHead
	p.freeHead = o
}

// Reset clears the pool's counters. Existing outstanding Op pointers
// become invalid for further use through this pool.
func (p *Pool) Reset() {
	p.activeOps = 0
	p.uniqueCount = 0
	p.opNumByCore = make(map[uint32]uint64)
}

func (p *Pool) expand() {
	chunk := make([]Op, p.chunkSize)
	for i := range chunk {
		chunk[i].poolID = p.entries
		p.entries++
		if i < len(chunk)-1 {
			chunk[i].poolNext = &chunk[i+1]
		}
	}
	chunk[len(chunk)-1].poolNext = p.freeHead
	p.freeHead = &chunk[0]
	p.chunkSize *= 2
}
