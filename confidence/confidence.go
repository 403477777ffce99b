// Package confidence implements the running confidence estimator: a
// weight-based accumulator that tracks how trustworthy the current
// speculative fetch stream is, tagged with why an op went off path.
// Grounded on decoupled_frontend.h's Off_Path_Reason/Conf_Off_Path_Reason
// enums.
package confidence

import "github.com/sarchlab/frontendsim/op"

// ConfOffPathReason classifies, for confidence-estimation purposes only,
// why the front end is currently fetching off path. Distinct from
// op.OffPathReason, which drives actual recovery; this tag is purely
// informational and never changes architectural behavior.
type ConfOffPathReason uint8

// Confidence off-path reasons, mirroring decoupled_frontend.h's
// Conf_Off_Path_Reason (collapsed to the cases this module actually
// produces; the remaining C enumerators exist only for BP algorithms this
// module doesn't implement).
const (
	ConfReasonNone ConfOffPathReason = iota
	ConfReasonLowConfBranch
	ConfReasonBTBMiss
	ConfReasonIBTBMiss
	ConfReasonNoTarget
)

// Config sizes the estimator's sampling window and low-confidence weight.
type Config struct {
	Weight       int32  // per-low-confidence-event weight added to the accumulator
	Threshold    int32  // accumulator value at or above which the stream is "low confidence"
	SampleWindow uint32 // PerCfOpUpdate calls per btb_miss_rate sampling window; cycles do not advance it
}

// DefaultConfig returns reasonable defaults for the estimator.
func DefaultConfig() Config {
	return Config{Weight: 1, Threshold: 8, SampleWindow: 1024}
}

// Estimator accumulates a running low-confidence count and a sampled
// BTB-miss rate, and exposes the current off-path reason tag.
type Estimator struct {
	cfg Config

	lowConfCount int32
	cfOpDistance uint32 // ops since the last control-flow op

	windowBTBMiss  uint32
	windowBTBTotal uint32
	btbMissRate    float64

	reason ConfOffPathReason
}

// New builds an estimator from cfg.
func New(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// LowConfidence reports whether the running accumulator is currently at or
// above the configured threshold.
func (e *Estimator) LowConfidence() bool {
	return e.lowConfCount >= e.cfg.Threshold
}

// Reason returns the current off-path reason tag.
func (e *Estimator) Reason() ConfOffPathReason { return e.reason }

// CfOpDistance returns the number of non-control-flow ops fetched since the
// last control-flow op.
func (e *Estimator) CfOpDistance() uint32 { return e.cfOpDistance }

// BTBMissRate returns the sampled miss rate over the last completed
// sampling window.
func (e *Estimator) BTBMissRate() float64 { return e.btbMissRate }

// PerOpUpdate runs once per fetched op, tracking the running distance
// since the last control-flow op.
func (e *Estimator) PerOpUpdate(o *op.Op) {
	if o.CfType.IsCf() {
		e.cfOpDistance = 0
	} else {
		e.cfOpDistance++
	}
}

// PerCfOpUpdate runs once per control-flow op, folding its BTB/prediction
// outcome into the running accumulator and the BTB-miss sampling window.
func (e *Estimator) PerCfOpUpdate(o *op.Op) {
	e.windowBTBTotal++
	if o.BtbPredInfo.BTBMiss {
		e.windowBTBMiss++
		e.lowConfCount += e.cfg.Weight
		e.reason = ConfReasonBTBMiss
	}
	if o.BtbPredInfo.IBPMiss {
		e.lowConfCount += e.cfg.Weight
		e.reason = ConfReasonIBTBMiss
	}
	if o.BtbPredInfo.NoTarget {
		e.lowConfCount += e.cfg.Weight
		e.reason = ConfReasonNoTarget
	}

	if e.windowBTBTotal >= e.cfg.SampleWindow {
		e.btbMissRate = float64(e.windowBTBMiss) / float64(e.windowBTBTotal)
		e.windowBTBMiss = 0
		e.windowBTBTotal = 0
	}
}

// PerFTUpdate runs once per completed Fetch Target; the default estimator
// has no per-FT state, but the hook exists so callers can treat FT
// completion uniformly with op/cycle events.
func (e *Estimator) PerFTUpdate() {}

// PerCycleUpdate decays the running low-confidence accumulator by one per
// cycle, so transient low-confidence periods recover once the stream
// stabilizes.
func (e *Estimator) PerCycleUpdate() {
	if e.lowConfCount > 0 {
		e.lowConfCount--
	}
}

// Recover resets the accumulator and reason tag on a front-end recovery,
// since post-recovery fetch is by definition back on the architectural
// path.
func (e *Estimator) Recover() {
	e.lowConfCount = 0
	e.reason = ConfReasonNone
}

// ResolveCf folds the final resolved outcome of a control-flow op back
// into the estimator once it's known, independent of the prediction-time
// PerCfOpUpdate call.
func (e *Estimator) ResolveCf(o *op.Op) {
	if o.BpPredInfo.Mispred {
		e.lowConfCount += e.cfg.Weight
		e.reason = ConfReasonLowConfBranch
	}
}
