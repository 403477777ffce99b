// Package ft builds Fetch Targets: maximal runs of ops bounded by a taken
// control-flow op, a serializing fetch barrier, an icache line crossing or
// application exit. Grounded on ft.cc's Ft::build/predict_one_cf_op.
package ft

import (
	"fmt"

	"github.com/sarchlab/frontendsim/bp"
	"github.com/sarchlab/frontendsim/op"
)

// EndReason classifies why a Fetch Target stopped growing.
type EndReason uint8

// Fetch Target end reasons.
const (
	NotEnded EndReason = iota
	TakenBranch
	BarFetch
	IcacheLineBoundary
	AppExit
)

// Event is the tagged result of predicting a single op or an entire FT,
// replacing the coroutine-style FT_Event yields in the C original with a
// plain value the caller switches on.
type Event uint8

// Fetch-target prediction events.
const (
	EventNone Event = iota
	EventMispredict
	EventFetchBarrier
	EventOffpathTakenRedirect
)

// StaticInfo is the control-flow-independent identity of a Fetch Target:
// its start address and shape, used as half of the uop-cache lookup key
// and for consecutivity checks between adjacent FTs.
type StaticInfo struct {
	StartAddr uint64
	Length    uint64 // bytes from StartAddr to the end of the last op
	NumUops   uint32
	EndedBy   EndReason
}

// DynamicInfo is the per-fetch instance data for an FT: whether this
// particular fetch was off path, and the cycle it was built.
type DynamicInfo struct {
	OffPath    bool
	BuildCycle uint64
	RecoveryFT bool // true if this FT was synthesized to restart a recovery
}

// FT is a single Fetch Target: a contiguous, control-flow-bounded run of
// ops plus the static/dynamic metadata describing it.
type FT struct {
	Static  StaticInfo
	Dynamic DynamicInfo
	Ops     []*op.Op
}

// IcacheLineSize bounds how many contiguous bytes an FT may span before an
// ICACHE_LINE_BOUNDARY end is forced. The uop cache closes its lines at the
// same byte boundary.
const IcacheLineSize = 64

// New starts an empty Fetch Target at startAddr.
func New(startAddr uint64, cycle uint64) *FT {
	return &FT{
		Static:  StaticInfo{StartAddr: startAddr},
		Dynamic: DynamicInfo{BuildCycle: cycle},
	}
}

// AddOp appends op o to the FT, asserting PC contiguity: a non-BOM op must
// continue exactly where the previous op left off, mirroring ft.cc's
// add_op asserts.
func (f *FT) AddOp(o *op.Op) {
	if len(f.Ops) > 0 {
		prev := f.Ops[len(f.Ops)-1]
		if o.PC != prev.EndAddr() {
			panic(fmt.Sprintf("ft: op at 0x%x is not contiguous with previous op ending at 0x%x", o.PC, prev.EndAddr()))
		}
	} else if o.PC != f.Static.StartAddr {
		panic(fmt.Sprintf("ft: first op at 0x%x does not match FT start 0x%x", o.PC, f.Static.StartAddr))
	}
	f.Ops = append(f.Ops, o)
}

// CanFetchOp reports whether one more op can be appended to this FT without
// crossing an icache line boundary measured from Static.StartAddr.
func (f *FT) CanFetchOp(next *op.Op) bool {
	lineEnd := (f.Static.StartAddr/IcacheLineSize + 1) * IcacheLineSize
	return next.EndAddr() <= lineEnd
}

// EndReasonOf inspects the last op added and reports why the FT ended, or
// NotEnded if the FT should keep growing. Mirrors ft.cc's get_end_reason.
func (f *FT) EndReasonOf() EndReason {
	if len(f.Ops) == 0 {
		return NotEnded
	}
	last := f.Ops[len(f.Ops)-1]

	switch {
	case last.Exit:
		return AppExit
	case last.BarFetch:
		return BarFetch
	case last.CfType.IsCf() && last.OracleDir:
		return TakenBranch
	case last.EndAddr() >= (f.Static.StartAddr/IcacheLineSize+1)*IcacheLineSize:
		return IcacheLineBoundary
	default:
		return NotEnded
	}
}

// PredictOneOp runs direction/target prediction for a single op via the
// supplied predictor and classifies the resulting event, mirroring ft.cc's
// predict_one_cf_op dispatch.
func PredictOneOp(predictor *bp.Predictor, o *op.Op) Event {
	if o.BarFetch || o.CfType == op.CfSyscall {
		return EventFetchBarrier
	}

	predictor.PredictOp(o)
	predictor.SpecUpdate(o)

	if o.BpPredInfo.RecoverAtDecode || o.BpPredInfo.RecoverAtExec {
		return EventMispredict
	}
	if o.OffPath && o.OracleDir {
		return EventOffpathTakenRedirect
	}
	return EventNone
}

// Build pulls ops one at a time from next (the frontend's op source) until
// the FT reaches a terminal end reason, predicting each control-flow op
// along the way. It returns the terminal event the last op produced (None
// if the FT simply ran out of ops to pull because of an icache boundary or
// app exit, rather than a speculative redirect).
func (f *FT) Build(predictor *bp.Predictor, next func() (*op.Op, bool)) Event {
	for {
		o, ok := next()
		if !ok {
			break
		}

		f.AddOp(o)

		var ev Event
		if o.CfType.IsCf() || o.BarFetch {
			ev = PredictOneOp(predictor, o)
		}

		reason := f.EndReasonOf()
		if reason != NotEnded {
			f.finish(reason)
			return ev
		}
		if ev != EventNone {
			f.finish(f.EndReasonOf())
			return ev
		}
	}

	f.finish(f.EndReasonOf())
	return EventNone
}

func (f *FT) finish(reason EndReason) {
	f.Static.EndedBy = reason
	f.Static.NumUops = uint32(len(f.Ops))
	if len(f.Ops) > 0 {
		f.Static.Length = f.Ops[len(f.Ops)-1].EndAddr() - f.Static.StartAddr
	}
	for _, o := range f.Ops {
		o.OffPath = f.Dynamic.OffPath
	}
}

// SplitFT splits off the ops at and after index into a new FT, re-finalizing
// both halves. Used when a redirect is discovered mid-FT (e.g. the
// off-path successor must start its own FT). Mirrors ft.cc's split_ft.
func (f *FT) SplitFT(index int) *FT {
	if index <= 0 || index >= len(f.Ops) {
		panic("ft: split index out of range")
	}

	tail := f.Ops[index:]
	f.Ops = f.Ops[:index]

	next := New(tail[0].PC, f.Dynamic.BuildCycle)
	next.Ops = tail
	next.Dynamic.OffPath = f.Dynamic.OffPath

	f.finish(f.EndReasonOf())
	next.finish(next.EndReasonOf())
	return next
}

// IsConsecutive reports whether candidate can immediately follow f without
// a redirect: after an icache line boundary or fetch barrier candidate must
// start at f's fall-through address, after a taken branch at the last op's
// predicted next PC; any other end reason is never consecutive. Mirrors
// ft.cc's is_consecutive.
func (f *FT) IsConsecutive(candidate *FT) bool {
	if len(f.Ops) == 0 {
		return false
	}
	last := f.Ops[len(f.Ops)-1]

	switch f.Static.EndedBy {
	case IcacheLineBoundary, BarFetch:
		return candidate.Static.StartAddr == last.EndAddr()
	case TakenBranch:
		return candidate.Static.StartAddr == last.BpPredInfo.PredNPC
	default:
		return false
	}
}

// ClearRecoveryInfo drops the predictor-state snapshots on every op in the
// FT, releasing references once the FT can no longer trigger a recovery
// (e.g. after it has retired).
func (f *FT) ClearRecoveryInfo() {
	for _, o := range f.Ops {
		o.RecoveryInfo = op.RecoveryInfo{}
	}
}

// Validate checks internal consistency: PC contiguity across all ops and
// that NumUops/Length agree with the op slice. Panics on violation,
// matching ft.cc's validate().
func (f *FT) Validate() {
	if int(f.Static.NumUops) != len(f.Ops) {
		panic("ft: NumUops does not match op count")
	}
	for i := 1; i < len(f.Ops); i++ {
		if f.Ops[i].PC != f.Ops[i-1].EndAddr() {
			panic(fmt.Sprintf("ft: op %d is not contiguous with op %d", i, i-1))
		}
	}
}
