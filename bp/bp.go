// Package bp implements the branch predictor surface used by the decoupled
// front end: a direction predictor, BTB, indirect-target predictor and
// call-return stack, all addressed through predict/spec_update/update/
// retire/recover so the front end never needs to know which concrete
// algorithm backs a prediction.
package bp

import "github.com/sarchlab/frontendsim/op"

// Config sizes the tables backing the default predictor.
type Config struct {
	GHRBits      uint32 // width of the global history register
	BHTSize      uint32 // entries in the direction table, power of two
	BTBSize      uint32 // entries in the branch target buffer
	IBTBSize     uint32 // entries in the indirect-target predictor
	CRSDepth     uint32 // call-return stack depth
	CRSRealistic uint32 // 0, 1 or 2; see decoupled_frontend.h CRS_REALISTIC
}

// DefaultConfig returns conservative defaults for a gshare-style direction
// predictor with BTB, indirect and CRS sizing.
func DefaultConfig() Config {
	return Config{
		GHRBits:      12,
		BHTSize:      1024,
		BTBSize:      256,
		IBTBSize:     128,
		CRSDepth:     32,
		CRSRealistic: 1,
	}
}

// Stats accumulates prediction outcomes in a plain counter struct, with
// rate accessors defined below rather than computed inline at each call site.
type Stats struct {
	Predictions    uint64
	Correct        uint64
	Mispredictions uint64
	Misfetches     uint64
	BTBHits        uint64
	BTBMisses      uint64
	IBTBHits       uint64
	IBTBMisses     uint64
	CRSHits        uint64
	CRSMisses      uint64
}

// Accuracy returns the direction-prediction hit rate as a percentage.
func (s Stats) Accuracy() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return 100 * float64(s.Correct) / float64(s.Predictions)
}

// MispredictionRate returns the direction misprediction rate as a percentage.
func (s Stats) MispredictionRate() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return 100 * float64(s.Mispredictions) / float64(s.Predictions)
}

// BTBHitRate returns the BTB hit rate as a percentage.
func (s Stats) BTBHitRate() float64 {
	total := s.BTBHits + s.BTBMisses
	if total == 0 {
		return 0
	}
	return 100 * float64(s.BTBHits) / float64(total)
}

type btbEntry struct {
	tag    uint64
	target uint64
	valid  bool
}

type crsEntry struct {
	addr  uint64
	valid bool
}

// Predictor is the default gshare-direction / BTB / indirect-target /
// call-return-stack predictor. It implements the capability set the
// decoupled front end needs: Predict, SpecUpdate, Update, Retire, Recover
// and IsFull.
type Predictor struct {
	cfg Config

	ghr uint32
	bht []uint8 // 2-bit saturating counters, gshare-indexed

	btb    []btbEntry
	ibtb   []btbEntry // indirect-target predictor, same shape as the BTB
	crs    []crsEntry
	crsTos uint32 // index of the top of stack

	stats Stats
}

// New builds a predictor from cfg. Table sizes are used as given; indexing
// masks with size-1, so a size that is not a power of two leaves some
// entries unreachable.
func New(cfg Config) *Predictor {
	return &Predictor{
		cfg:  cfg,
		bht:  initBHT(cfg.BHTSize),
		btb:  make([]btbEntry, cfg.BTBSize),
		ibtb: make([]btbEntry, cfg.IBTBSize),
		crs:  make([]crsEntry, cfg.CRSDepth),
	}
}

func initBHT(size uint32) []uint8 {
	bht := make([]uint8, size)
	for i := range bht {
		bht[i] = 2 // weakly taken, biased-taken default
	}
	return bht
}

// Stats returns a copy of the accumulated statistics.
func (p *Predictor) Stats() Stats { return p.stats }

// Reset clears all predictor state and statistics.
func (p *Predictor) Reset() {
	p.ghr = 0
	p.bht = initBHT(p.cfg.BHTSize)
	p.btb = make([]btbEntry, p.cfg.BTBSize)
	p.ibtb = make([]btbEntry, p.cfg.IBTBSize)
	p.crs = make([]crsEntry, p.cfg.CRSDepth)
	p.crsTos = 0
	p.stats = Stats{}
}

func (p *Predictor) bhtIndex(pc uint64) uint32 {
	mask := uint32(len(p.bht) - 1)
	return (uint32(pc>>2) ^ p.ghr) & mask
}

func (p *Predictor) btbIndex(pc uint64) uint32 {
	mask := uint32(len(p.btb) - 1)
	return uint32(pc>>2) & mask
}

func (p *Predictor) ibtbIndex(pc uint64) uint32 {
	mask := uint32(len(p.ibtb) - 1)
	return (uint32(pc>>2) ^ p.ghr) & mask
}

// PredictOp is the central per-op dispatch, mirroring ft.cc's
// predict_one_cf_op: given an op whose CfType and oracle direction/target
// have already been stamped by the front end, it fills in BpPredInfo and
// BtbPredInfo and decides whether this op must trigger a recovery.
//
// A conditional branch whose direction prediction disagrees with the
// oracle direction is recovered at exec (a BTB miss on a branch predicted
// and resolved taken is recovered at decode; see predictConditional);
// calls/unconditional
// branches/returns/indirect branches are recovered at decode only on a
// target mismatch (direction is never in question for them), since their
// target is resolved at decode rather than at execute. Exactly one of
// RecoverAtDecode/RecoverAtExec is ever set, matching op.ValidateRecoveryFlags.
func (p *Predictor) PredictOp(o *op.Op) {
	if !o.CfType.IsCf() {
		return
	}

	o.RecoveryInfo = p.snapshotFor(o)

	switch {
	case o.CfType.IsReturn():
		p.predictReturn(o)
	case o.CfType.IsIndirect():
		p.predictIndirect(o)
	case o.CfType.IsConditional():
		p.predictConditional(o)
	default: // unconditional direct branch or call
		p.predictDirect(o)
	}

	if o.CfType.IsCall() {
		p.pushCRS(o.EndAddr())
	}

	o.ValidateRecoveryFlags()
}

// predictConditional implements the conditional-branch recovery matrix:
// D = oracle direction, P = predicted direction, T = BTB hit.
//
//   - (T, P=D, target=oracle): correct, no recovery.
//   - (T, P=D, target wrong): misfetch, recover at decode.
//   - (T, P≠D, fallthrough=oracle target): direction mismatch, resolved
//     at exec like any other mispredict; not also flagged as a misfetch.
//   - (T, P≠D, fallthrough≠target): mispredict, recover at exec.
//   - (¬T, P=taken, D=taken): no target is known either way, so the
//     front end falls through regardless — force pred := not-taken,
//     recover at decode (the BTB miss itself is known at decode).
//   - (¬T, P=taken, D=not-taken): force pred := not-taken, recover at
//     exec — a single flush at exec, the simulator never flushes the
//     same op twice.
//   - (¬T, P=not-taken, D=taken): recover at exec.
//   - (¬T, P=not-taken, D=not-taken): correct.
func (p *Predictor) predictConditional(o *op.Op) {
	p.stats.Predictions++
	idx := p.bhtIndex(o.PC)
	counter := p.bht[idx]
	pred := counter >= 2
	predOrig := pred

	target, hit := p.lookupBTB(o.PC)
	o.BtbPredInfo.BTBMiss = !hit
	if !hit {
		p.stats.BTBMisses++
	} else {
		p.stats.BTBHits++
	}

	if hit {
		if pred {
			o.BpPredInfo.PredAddr = target
			o.BpPredInfo.PredNPC = target
		} else {
			o.BpPredInfo.PredNPC = o.EndAddr()
		}

		switch {
		case pred == o.OracleDir && o.BpPredInfo.PredNPC == o.NextPC:
			p.stats.Correct++
		case pred == o.OracleDir:
			o.BpPredInfo.Misfetch = true
			o.BpPredInfo.RecoverAtDecode = true
			p.stats.Misfetches++
		default:
			o.BpPredInfo.Mispred = true
			o.BpPredInfo.RecoverAtExec = true
			p.stats.Mispredictions++
		}
	} else {
		o.BtbPredInfo.NoTarget = pred
		pred = false
		o.BpPredInfo.PredNPC = o.EndAddr()

		switch {
		case predOrig && o.OracleDir:
			o.BpPredInfo.Mispred = true
			o.BpPredInfo.RecoverAtDecode = true
			p.stats.Mispredictions++
		case predOrig:
			o.BpPredInfo.Mispred = true
			o.BpPredInfo.RecoverAtExec = true
			p.stats.Mispredictions++
		case o.OracleDir:
			o.BpPredInfo.Mispred = true
			o.BpPredInfo.RecoverAtExec = true
			p.stats.Mispredictions++
		default:
			p.stats.Correct++
		}
	}

	o.BpPredInfo.Pred = pred
	o.BpPredInfo.PredOrig = predOrig
}

func (p *Predictor) predictDirect(o *op.Op) {
	target, hit := p.lookupBTB(o.PC)
	o.BtbPredInfo.BTBMiss = !hit
	o.BpPredInfo.Pred = true
	o.BpPredInfo.PredOrig = true

	if hit {
		p.stats.BTBHits++
		o.BpPredInfo.PredNPC = target
		if target != o.NextPC {
			o.BpPredInfo.Misfetch = true
			o.BpPredInfo.RecoverAtDecode = true
		}
	} else {
		p.stats.BTBMisses++
		o.BtbPredInfo.NoTarget = true
		o.BpPredInfo.PredNPC = o.EndAddr()
		o.BpPredInfo.RecoverAtDecode = true
		o.BpPredInfo.OffPathReason = op.ReasonBTBMiss
	}
}

func (p *Predictor) predictIndirect(o *op.Op) {
	p.stats.Predictions++
	idx := p.ibtbIndex(o.PC)
	entry := p.ibtb[idx]
	hit := entry.valid

	o.BpPredInfo.Pred = true
	o.BpPredInfo.PredOrig = true
	if hit {
		p.stats.IBTBHits++
		o.BpPredInfo.PredNPC = entry.target
	} else {
		p.stats.IBTBMisses++
		o.BtbPredInfo.IBPMiss = true
		o.BtbPredInfo.NoTarget = true
		o.BpPredInfo.PredNPC = o.EndAddr()
	}

	if !hit || entry.target != o.NextPC {
		o.BpPredInfo.Misfetch = hit
		o.BpPredInfo.RecoverAtDecode = true
		if hit {
			o.BpPredInfo.OffPathReason = op.ReasonIBTBMiss
		} else {
			o.BpPredInfo.OffPathReason = op.ReasonBTBMiss
		}
	} else {
		p.stats.Correct++
	}
}

func (p *Predictor) predictReturn(o *op.Op) {
	p.stats.Predictions++
	target, ok := p.topCRS()
	o.BpPredInfo.Pred = true
	o.BpPredInfo.PredOrig = true

	if ok {
		p.stats.CRSHits++
		o.BpPredInfo.PredNPC = target
	} else {
		p.stats.CRSMisses++
		o.BtbPredInfo.NoTarget = true
		o.BpPredInfo.PredNPC = o.EndAddr()
	}

	if !ok || target != o.NextPC {
		o.BpPredInfo.Misfetch = ok
		o.BpPredInfo.RecoverAtDecode = true
		o.BpPredInfo.OffPathReason = op.ReasonBTBMiss
	} else {
		p.stats.Correct++
	}

	p.popCRS()
}

func (p *Predictor) lookupBTB(pc uint64) (uint64, bool) {
	idx := p.btbIndex(pc)
	e := p.btb[idx]
	if !e.valid || e.tag != pc {
		return 0, false
	}
	return e.target, true
}

func (p *Predictor) pushCRS(retAddr uint64) {
	if len(p.crs) == 0 {
		return
	}
	p.crs[p.crsTos] = crsEntry{addr: retAddr, valid: true}
	p.crsTos = (p.crsTos + 1) % uint32(len(p.crs))
}

func (p *Predictor) topCRS() (uint64, bool) {
	if len(p.crs) == 0 {
		return 0, false
	}
	prev := (p.crsTos + uint32(len(p.crs)) - 1) % uint32(len(p.crs))
	e := p.crs[prev]
	return e.addr, e.valid
}

func (p *Predictor) popCRS() {
	if len(p.crs) == 0 {
		return
	}
	// CRS_REALISTIC mode 1: speculative pop, never restored on mispredict
	// of an unrelated branch — matches decoupled_frontend.cc's default
	// handling when CRS_REALISTIC != 2.
	prev := (p.crsTos + uint32(len(p.crs)) - 1) % uint32(len(p.crs))
	p.crs[prev].valid = false
	p.crsTos = prev
}

// SpecUpdate speculatively updates global history immediately after a
// prediction is made, so back-to-back predictions in the same cycle see a
// consistent history register. Direction-table counters are not touched
// here; those update at resolve time via Update.
func (p *Predictor) SpecUpdate(o *op.Op) {
	if !o.CfType.IsConditional() {
		return
	}
	p.ghr = (p.ghr >> 1) | (boolToBit(o.BpPredInfo.Pred) << 31)
}

// Update commits the resolved outcome of a conditional branch into the
// direction table. Calls this at retire (or at the point the decoupled
// front end considers the branch resolved), mirroring bp_resolve_op/
// bp_retire_op's division of labor: speculative state updates at
// SpecUpdate, architectural state updates here.
func (p *Predictor) Update(o *op.Op, taken bool, target uint64) {
	if !o.CfType.IsConditional() {
		if o.CfType.IsCf() {
			p.updateBTB(o.PC, target)
		}
		return
	}

	idx := p.bhtIndex(o.PC)
	if taken {
		if p.bht[idx] < 3 {
			p.bht[idx]++
		}
		p.updateBTB(o.PC, target)
	} else if p.bht[idx] > 0 {
		p.bht[idx]--
	}
}

func (p *Predictor) updateBTB(pc, target uint64) {
	idx := p.btbIndex(pc)
	p.btb[idx] = btbEntry{tag: pc, target: target, valid: true}
}

// UpdateIndirect records the resolved target of an indirect branch/call
// into the indirect-target predictor.
func (p *Predictor) UpdateIndirect(pc, target uint64) {
	idx := p.ibtbIndex(pc)
	p.ibtb[idx] = btbEntry{tag: pc, target: target, valid: true}
}

// Retire is a no-op hook for the default predictor (no retire-time state),
// kept so the front end can call it uniformly across predictor
// implementations that do need retirement-triggered updates.
func (p *Predictor) Retire(*op.Op) {}

// Recover restores global history and, in CRS_REALISTIC mode 2, the
// call-return stack, to the snapshot taken at predict time. Conditional
// branches shift their own prediction into history at predict time, so
// on recovery that shift is replaced by the now-resolved direction
// rather than restored verbatim: global history becomes
// (snapshot >> 1) | (resolvedTaken << 31). Every other cf-type restores
// the snapshot's global history unchanged, since only conditional
// branches ever touch it speculatively (see SpecUpdate).
func (p *Predictor) Recover(cfType op.CfType, resolvedTaken bool, info op.RecoveryInfo) {
	if cfType.IsConditional() {
		p.ghr = (info.GlobalHist >> 1) | (boolToBit(resolvedTaken) << 31)
	} else {
		p.ghr = info.GlobalHist
	}
	if p.cfg.CRSRealistic == 2 {
		p.crsTos = info.CRSTos
	}
}

// Snapshot captures the predictor state needed to restore on recovery.
func (p *Predictor) Snapshot() op.RecoveryInfo {
	return op.RecoveryInfo{
		GlobalHist: p.ghr,
		CRSTos:     p.crsTos,
		CRSDepth:   uint32(len(p.crs)),
	}
}

// snapshotFor builds the full recovery snapshot for op o: the predictor
// state from Snapshot plus the oracle/PC/proc-id context recorded
// verbatim off the op, taken before any prediction is made for it.
func (p *Predictor) snapshotFor(o *op.Op) op.RecoveryInfo {
	info := p.Snapshot()
	info.OracleDir = o.OracleDir
	info.OracleTarget = o.NextPC
	info.PC = o.PC
	info.ProcID = o.ProcID
	return info
}

// IsFull always reports false for the default predictor: its tables are
// fixed-size and overwrite on conflict rather than stalling.
func (p *Predictor) IsFull() bool { return false }

// SyncFrom copies primary predictor state into this (secondary) predictor
// instance, mirroring decoupled_frontend.cc's bp_sync calls for
// CONTINUE_ON_PREDICTION/CONTINUE_ON_RECOVERY secondary DFEs.
func (p *Predictor) SyncFrom(src *Predictor) {
	p.ghr = src.ghr
	copy(p.bht, src.bht)
	copy(p.btb, src.btb)
	copy(p.ibtb, src.ibtb)
	copy(p.crs, src.crs)
	p.crsTos = src.crsTos
}

func boolToBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
