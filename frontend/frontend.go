// Package frontend defines the external interface boundary between the
// decoupled front end and its two collaborators: an upstream instruction
// source (pulled from) and a downstream back end (pushed to). The real
// instruction stream — what address executes next and which way a branch
// actually went — is explicitly out of this module's scope; frontend
// supplies a trace-driven reference source and an exec-driven variant that
// satisfy the same pull contract the DFE consumes.
package frontend

import "github.com/sarchlab/frontendsim/op"

// TraceEntry is one decoded instruction from an external trace: its
// address/size, control-flow classification, and oracle outcome. This is
// the boundary format a real instruction-stream source (a trace reader, a
// functional emulator, a hardware execution harness) must produce.
type TraceEntry struct {
	PC        uint64
	InstSize  uint64
	CfType    op.CfType
	OracleDir bool // taken/not-taken for conditional branches, always true for unconditional cf
	NextPC    uint64
	BarFetch  bool
	Exit      bool
}

// TraceFrontend is a reference pull-interface implementation that replays
// a fixed, pre-recorded sequence of TraceEntry records. It satisfies
// dfe.OpSource.
type TraceFrontend struct {
	pool    *op.Pool
	entries []TraceEntry
	byPC    map[uint64]int
	procID  uint32
	bpID    uint32
}

// NewTraceFrontend builds a frontend that replays entries in order,
// indexed by PC so NextOp can be called for whatever PC the DFE is
// currently fetching from (including off-path speculative addresses that
// happen to coincide with a recorded entry).
func NewTraceFrontend(pool *op.Pool, procID, bpID uint32, entries []TraceEntry) *TraceFrontend {
	byPC := make(map[uint64]int, len(entries))
	for i, e := range entries {
		if _, exists := byPC[e.PC]; !exists {
			byPC[e.PC] = i
		}
	}
	return &TraceFrontend{pool: pool, entries: entries, byPC: byPC, procID: procID, bpID: bpID}
}

// NextOp returns the op recorded at pc, or false if the trace has nothing
// at that address (the off-path stream has run off the end of what was
// recorded). ft.FT.Build then stops with the ops it already has and
// returns EventNone; an FT left empty is not queued by the DFE.
func (f *TraceFrontend) NextOp(pc uint64) (*op.Op, bool) {
	i, ok := f.byPC[pc]
	if !ok {
		return nil, false
	}
	e := f.entries[i]

	o := f.pool.Alloc(f.procID, f.bpID)
	o.PC = e.PC
	o.InstSize = e.InstSize
	o.CfType = e.CfType
	o.OracleDir = e.OracleDir
	o.NextPC = e.NextPC
	o.BarFetch = e.BarFetch
	o.Exit = e.Exit
	o.BOM = true
	o.EOM = true
	return o, true
}

// ExecDrivenFrontend adapts the same TraceEntry source to a stall/resume
// protocol: NextOp blocks logically (returns ok=false) until Resume has
// been called for at least as many ops as have been requested, mirroring
// decoupled_frontend.cc's FE_PIN_EXEC_DRIVEN branch, where the front end
// must wait for the execution-driven back end to retire an instruction
// before the next one becomes visible.
type ExecDrivenFrontend struct {
	trace     *TraceFrontend
	available int
}

// NewExecDrivenFrontend wraps trace in an exec-driven pacing layer.
func NewExecDrivenFrontend(trace *TraceFrontend) *ExecDrivenFrontend {
	return &ExecDrivenFrontend{trace: trace}
}

// Resume grants the front end permission to fetch n further ops, called by
// the execution-driven back end as it retires instructions.
func (f *ExecDrivenFrontend) Resume(n int) {
	f.available += n
}

// NextOp returns the next op if the exec-driven backend has granted
// enough room via Resume; otherwise it reports a stall.
func (f *ExecDrivenFrontend) NextOp(pc uint64) (*op.Op, bool) {
	if f.available <= 0 {
		return nil, false
	}
	o, ok := f.trace.NextOp(pc)
	if ok {
		f.available--
	}
	return o, ok
}
