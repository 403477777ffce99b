// Package op defines the per-(micro-)operation record that flows through
// the decoupled front end, along with the recyclable pool that hands
// records out and reclaims them.
package op

// CfType classifies the control-flow behavior of an op.
type CfType uint8

// Control-flow classifications.
const (
	CfNone CfType = iota
	CfBranch
	CfConditional
	CfCall
	CfIndirectBranch
	CfIndirectCall
	CfReturn
	CfSyscall
)

// IsConditional reports whether this is a conditional branch.
func (c CfType) IsConditional() bool { return c == CfConditional }

// IsIndirect reports whether target resolution depends on an indirect
// predictor (ibr/icall).
func (c CfType) IsIndirect() bool { return c == CfIndirectBranch || c == CfIndirectCall }

// IsCall reports whether the op pushes a return address onto the CRS.
func (c CfType) IsCall() bool { return c == CfCall || c == CfIndirectCall }

// IsReturn reports whether the op pops the CRS.
func (c CfType) IsReturn() bool { return c == CfReturn }

// IsCf reports whether this op is any kind of control-flow op.
func (c CfType) IsCf() bool { return c != CfNone }

// BpPredInfo is the per-op branch-direction prediction info, captured at
// predict time. Mirrors Bp_Pred_Info in pred_info.h.
type BpPredInfo struct {
	PredAddr        uint64
	PredNPC         uint64
	Pred            bool // predicted direction
	PredOrig        bool // predicted direction, not overwritten on BTB miss
	Misfetch        bool
	Mispred         bool
	RecoverySched   bool
	RecoverAtDecode bool
	RecoverAtExec   bool
	OffPathReason   OffPathReason
}

// BtbPredInfo is the per-op BTB/indirect-predictor info. Mirrors
// Btb_Pred_Info in pred_info.h.
type BtbPredInfo struct {
	BTBMiss         bool
	BTBMissResolved bool
	NoTarget        bool
	IBPMiss         bool
	PredTarget      uint64
}

// OffPathReason classifies why an op will trigger a recovery. Mirrors the
// Off_Path_Reason enum in decoupled_frontend.h.
type OffPathReason uint8

// Off-path reason values.
const (
	ReasonNotIdentified OffPathReason = iota
	ReasonIBTBMiss
	ReasonBTBMiss
	ReasonBTBMissMispred
	ReasonMispred
	ReasonMisfetch
)

// RecoveryInfo is an immutable snapshot of predictor state taken at
// predict time, sufficient to restore that state on recovery.
type RecoveryInfo struct {
	GlobalHist     uint32
	TargHist       uint32
	CRSNext        uint32
	CRSTos         uint32
	CRSTail        uint32
	CRSDepth       uint32
	OracleDir      bool
	OracleTarget   uint64
	PC             uint64
	PredictCycle   uint64
	RecoveryOp     *Op
	RecoveryFetch  uint64
	RecoveryInstID uint64
	ProcID         uint32
}

// Op is a single architectural/micro-op record.
//
// Fields past ProcID are cleared by the pool on every allocation; see
// Pool.Alloc.
type Op struct {
	// Identity, stable once allocated.
	ProcID uint32
	BpID   uint32

	OpNum     uint64 // monotonic per core, order of issue
	UniqueNum uint64 // global monotonic, used for tiebreak/logging

	OffPath bool
	BOM     bool
	EOM     bool
	Exit    bool // application-exit sentinel

	PC       uint64
	InstSize uint64
	NextPC   uint64 // oracle
	PredNPC  uint64

	CfType    CfType
	OracleDir bool

	BarFetch bool // serializing fetch barrier

	BpPredInfo   BpPredInfo
	BtbPredInfo  BtbPredInfo
	RecoveryInfo RecoveryInfo

	InstUID uint64

	// pool bookkeeping, not cleared across reuse.
	poolValid bool
	poolNext  *Op
	poolID    uint64
}

// EndAddr returns the address just past this op's instruction.
func (o *Op) EndAddr() uint64 { return o.PC + o.InstSize }

// TriggersRecovery reports whether this op is marked to schedule a
// recovery, either at decode or at exec. At most one of the two flags may
// be set; see ValidateRecoveryFlags.
func (o *Op) TriggersRecovery() bool {
	return o.BpPredInfo.RecoverAtDecode || o.BpPredInfo.RecoverAtExec
}

// ValidateRecoveryFlags asserts the invariant that for any op flagged as
// triggering recovery, recover-at-decode XOR recover-at-exec holds.
func (o *Op) ValidateRecoveryFlags() {
	d, e := o.BpPredInfo.RecoverAtDecode, o.BpPredInfo.RecoverAtExec
	if d && e {
		panic("op: both recover_at_decode and recover_at_exec set")
	}
}
