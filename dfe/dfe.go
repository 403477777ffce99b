// Package dfe implements the Decoupled Front-End finite state machine:
// the per-cycle loop that builds Fetch Targets on (or off) the predicted
// path and pushes them onto the Fetch Target Queue, switching between
// on-path serving, off-path serving and recovery. Grounded on
// decoupled_frontend.cc/h.
package dfe

import (
	"fmt"

	"github.com/sarchlab/frontendsim/bp"
	"github.com/sarchlab/frontendsim/confidence"
	"github.com/sarchlab/frontendsim/ft"
	"github.com/sarchlab/frontendsim/ftq"
	"github.com/sarchlab/frontendsim/op"
)

// State is one of the four states the front end can be in at the start of
// a cycle. Mirrors DFE_STATE in decoupled_frontend.h.
type State uint8

// Decoupled front-end states.
const (
	Inactive State = iota
	ServingOnPath
	ServingOffPath
	Recovering
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "INACTIVE"
	case ServingOnPath:
		return "SERVING_ON_PATH"
	case ServingOffPath:
		return "SERVING_OFF_PATH"
	case Recovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}

// RecoveryPolicy governs what a secondary DFE does when the primary
// resolves a recovery, mirroring DFE_Recovery_Policy.
type RecoveryPolicy uint8

// Recovery policies for secondary DFEs (NUM_BPS > 1); the primary DFE
// always behaves as PrimaryDFE.
const (
	PrimaryDFE RecoveryPolicy = iota
	ContinueOnRecovery
	ContinueOnPrediction
)

// Config bounds the per-cycle work a DFE may do (FE_FTQ_FT_PER_CYCLE,
// FE_FTQ_TAKEN_CFS_PER_CYCLE).
type Config struct {
	FTQCapacity          int
	FTPerCycle           int
	TakenCFsPerCycle     int
	ForwardProgressLimit uint64
	Policy               RecoveryPolicy
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		FTQCapacity:          16,
		FTPerCycle:           3,
		TakenCFsPerCycle:     1,
		ForwardProgressLimit: 1_000_000,
		Policy:               PrimaryDFE,
	}
}

// OpSource pulls the next op to fetch starting at pc, the frontend's pull
// interface. A real source decodes instructions off a trace or an
// execution-driven backend; tests and the trace frontend both satisfy it.
type OpSource interface {
	NextOp(pc uint64) (*op.Op, bool)
}

// DFE is the decoupled front-end state machine for one core/bp instance.
type DFE struct {
	Config Config

	state  State
	policy RecoveryPolicy

	Queue      *ftq.FTQ
	Predictor  *bp.Predictor
	Confidence *confidence.Estimator
	Pool       *op.Pool
	Source     OpSource

	pc               uint64
	cycle            uint64
	stalledCycles    uint64
	savedRecoveryFT  *ft.FT
	current          *ft.FT
	offPathReason    op.OffPathReason
	secondary        []*DFE // secondary DFEs synced on redirect/recover
}

// New builds a DFE wired to queue/predictor/confidence/pool/source,
// starting in the INACTIVE state at startPC.
func New(cfg Config, queue *ftq.FTQ, predictor *bp.Predictor, conf *confidence.Estimator, pool *op.Pool, source OpSource, startPC uint64) *DFE {
	return &DFE{
		Config:     cfg,
		policy:     cfg.Policy,
		Queue:      queue,
		Predictor:  predictor,
		Confidence: conf,
		Pool:       pool,
		Source:     source,
		pc:         startPC,
		state:      Inactive,
	}
}

// State returns the DFE's current state.
func (d *DFE) State() State { return d.state }

// AddSecondary registers a secondary DFE whose predictor is kept in sync
// via bp_sync on this DFE's redirects/recoveries, mirroring
// per_core_dfe[proc_id][bp_id] fan-out in decoupled_frontend.cc.
func (d *DFE) AddSecondary(sec *DFE) {
	d.secondary = append(d.secondary, sec)
}

// Update runs one cycle of the front-end loop: while none of the
// per-cycle break conditions trip, pull and build Fetch Targets and push
// them onto the queue. Mirrors decoupled_frontend.cc's update().
func (d *DFE) Update() {
	d.cycle++
	d.Confidence.PerCycleUpdate()

	if d.state == Inactive {
		return
	}

	ftsBuilt := 0
	takenCFs := 0

	for {
		if d.Queue.Full() {
			break
		}
		if ftsBuilt >= d.Config.FTPerCycle {
			break
		}
		if takenCFs >= d.Config.TakenCFsPerCycle {
			break
		}
		if d.state == Recovering {
			break
		}

		built, ev := d.buildOneFT()
		if built == nil {
			d.stalledCycles++
			d.checkForwardProgress()
			break
		}
		d.stalledCycles = 0
		ftsBuilt++

		d.Queue.PushTail(built)
		if ev != ft.EventMispredict { // redirectToOffPath already set pc
			d.pc = built.Static.StartAddr + built.Static.Length
			if built.Static.EndedBy == ft.TakenBranch {
				d.pc = built.Ops[len(built.Ops)-1].BpPredInfo.PredNPC
			}
		}

		if built.Static.EndedBy == ft.TakenBranch {
			takenCFs++
		}
		if built.Static.EndedBy == ft.AppExit {
			d.state = Inactive
			break
		}
		if built.Static.EndedBy == ft.BarFetch {
			break
		}
		if ev == ft.EventMispredict {
			break
		}
	}
}

func (d *DFE) checkForwardProgress() {
	if d.Config.ForwardProgressLimit == 0 {
		return
	}
	if d.stalledCycles >= d.Config.ForwardProgressLimit {
		panic(fmt.Sprintf("dfe: no forward progress for %d cycles", d.stalledCycles))
	}
}

func (d *DFE) buildOneFT() (*ft.FT, ft.Event) {
	f := ft.New(d.pc, d.cycle)
	f.Dynamic.OffPath = d.state == ServingOffPath

	next := func() (*op.Op, bool) { return d.Source.NextOp(d.pc) }
	ev := f.Build(d.Predictor, next)
	if len(f.Ops) == 0 {
		return nil, ft.EventNone
	}

	for _, o := range f.Ops {
		d.Confidence.PerOpUpdate(o)
		if o.CfType.IsCf() {
			d.Confidence.PerCfOpUpdate(o)
		}
	}
	d.Confidence.PerFTUpdate()

	if ev == ft.EventMispredict {
		d.redirectToOffPath(f)
	}

	d.current = f
	return f, ev
}

// Start transitions the DFE from INACTIVE to SERVING_ON_PATH at startPC,
// mirroring the frontend's initial activation.
func (d *DFE) Start(startPC uint64) {
	d.pc = startPC
	d.state = ServingOnPath
}

// redirectToOffPath splits a mispredicting FT at the triggering op and
// begins serving speculative off-path fetch from the predicted-but-wrong
// target, or, under ContinueOnPrediction, goes INACTIVE. Mirrors
// decoupled_frontend.cc's redirect_to_off_path.
func (d *DFE) redirectToOffPath(f *ft.FT) {
	idx := len(f.Ops) - 1
	var tail *ft.FT
	if idx > 0 {
		tail = f.SplitFT(idx)
	} else {
		tail = f
	}
	triggerOp := tail.Ops[0]
	d.offPathReason = d.EvalOffPathReason(triggerOp)
	triggerOp.BpPredInfo.OffPathReason = d.offPathReason

	d.savedRecoveryFT = tail

	switch d.policy {
	case PrimaryDFE:
		d.state = ServingOffPath
		d.pc = triggerOp.BpPredInfo.PredNPC
	case ContinueOnRecovery:
		d.state = ServingOffPath
		d.pc = triggerOp.BpPredInfo.PredNPC
		for _, sec := range d.secondary {
			sec.Predictor.SyncFrom(d.Predictor)
		}
	case ContinueOnPrediction:
		d.state = Inactive
	}
}

// EvalOffPathReason classifies why op triggered a recovery, mirroring
// decoupled_frontend.cc's eval_off_path_reason.
func (d *DFE) EvalOffPathReason(o *op.Op) op.OffPathReason {
	switch {
	case o.BtbPredInfo.IBPMiss:
		return op.ReasonIBTBMiss
	case o.BtbPredInfo.BTBMiss && o.BpPredInfo.Mispred:
		return op.ReasonBTBMissMispred
	case o.BtbPredInfo.BTBMiss:
		return op.ReasonBTBMiss
	case o.BpPredInfo.Misfetch:
		return op.ReasonMisfetch
	case o.BpPredInfo.Mispred:
		return op.ReasonMispred
	default:
		return op.ReasonNotIdentified
	}
}

// Recover resolves a speculation-path recovery signalled by the back end
// for op o: the predictor restores the snapshot taken at predict time,
// the FTQ and any saved off-path FT are flushed, and the DFE resumes
// fetching from the oracle-resolved target. Mirrors
// decoupled_frontend.cc's recover().
func (d *DFE) Recover(o *op.Op, resolvedTarget uint64) {
	d.Predictor.Recover(o.CfType, o.OracleDir, o.RecoveryInfo)
	d.Confidence.Recover()

	for i := 0; i < d.Queue.Len(); i++ {
		if f := d.Queue.At(i); f == d.savedRecoveryFT || f.Dynamic.OffPath {
			d.Queue.FlushFrom(i)
			break
		}
	}
	d.savedRecoveryFT = nil

	d.pc = resolvedTarget
	d.state = ServingOnPath

	for _, sec := range d.secondary {
		sec.Predictor.SyncFrom(d.Predictor)
		sec.state = ServingOnPath
		sec.pc = resolvedTarget
	}
}

// SchedRecovery marks op o as having a scheduled recovery and reports
// whether this call set the mark; a repeated call for the same op returns
// false. It does not compare o with other ops: which of several
// mispredicting ops is oldest is not tracked here.
func SchedRecovery(o *op.Op) bool {
	if o.BpPredInfo.RecoverySched {
		return false
	}
	o.BpPredInfo.RecoverySched = true
	return true
}

// Retire finalizes an op once it has retired in the back end, clearing any
// recovery snapshot it held so the predictor state it references can be
// reclaimed.
func (d *DFE) Retire(o *op.Op) {
	d.Predictor.Retire(o)
	o.RecoveryInfo = op.RecoveryInfo{}
}

// Stall marks the front end as blocked on something external (e.g. an
// exec-driven backend waiting on a fetch barrier), leaving state
// unchanged and resetting the forward-progress stall count to zero.
func (d *DFE) Stall() {
	d.stalledCycles = 0
}
