package bp_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/frontendsim/bp"
	"github.com/sarchlab/frontendsim/op"
)

func TestBp(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bp Suite")
}

var _ = Describe("Predictor", func() {
	var pred *bp.Predictor

	BeforeEach(func() {
		pred = bp.New(bp.DefaultConfig())
	})

	Describe("conditional branches", func() {
		It("trains toward taken with repeated taken resolutions", func() {
			pc := uint64(0x1000)
			target := uint64(0x2000)
			for i := 0; i < 4; i++ {
				pred.Update(&op.Op{PC: pc, CfType: op.CfConditional}, true, target)
			}
			o := &op.Op{PC: pc, CfType: op.CfConditional, OracleDir: true, NextPC: target}
			pred.PredictOp(o)
			Expect(o.BpPredInfo.Pred).To(BeTrue())
			Expect(o.BpPredInfo.Mispred).To(BeFalse())
		})

		It("flags a misprediction when direction disagrees with the oracle", func() {
			o := &op.Op{PC: 0x1000, CfType: op.CfConditional, OracleDir: false, NextPC: 0x1004}
			pred.PredictOp(o)
			Expect(o.BpPredInfo.Mispred).To(BeTrue())
			Expect(o.BpPredInfo.RecoverAtExec).To(BeTrue())
			Expect(o.BpPredInfo.RecoverAtDecode).To(BeFalse())
		})

		It("never sets both recovery flags", func() {
			o := &op.Op{PC: 0x1000, CfType: op.CfConditional, OracleDir: false, NextPC: 0x1004}
			pred.PredictOp(o)
			Expect(func() { o.ValidateRecoveryFlags() }).NotTo(Panic())
		})
	})

	Describe("direct branches", func() {
		It("recovers at decode on a BTB miss", func() {
			o := &op.Op{PC: 0x1000, CfType: op.CfBranch, NextPC: 0x2000}
			pred.PredictOp(o)
			Expect(o.BtbPredInfo.BTBMiss).To(BeTrue())
			Expect(o.BpPredInfo.RecoverAtDecode).To(BeTrue())
		})

		It("predicts the cached target after an update", func() {
			pc := uint64(0x1000)
			target := uint64(0x2000)
			pred.Update(&op.Op{PC: pc, CfType: op.CfBranch}, true, target)
			o := &op.Op{PC: pc, CfType: op.CfBranch, NextPC: target}
			pred.PredictOp(o)
			Expect(o.BtbPredInfo.BTBMiss).To(BeFalse())
			Expect(o.BpPredInfo.PredNPC).To(Equal(target))
			Expect(o.BpPredInfo.RecoverAtDecode).To(BeFalse())
		})
	})

	Describe("calls and returns", func() {
		It("predicts a return address pushed by a prior call", func() {
			callPC := uint64(0x1000)
			call := &op.Op{PC: callPC, InstSize: 4, CfType: op.CfCall, NextPC: 0x5000}
			pred.PredictOp(call)

			ret := &op.Op{PC: 0x5004, CfType: op.CfReturn, NextPC: callPC + 4}
			pred.PredictOp(ret)

			Expect(ret.BpPredInfo.PredNPC).To(Equal(callPC + 4))
			Expect(ret.BpPredInfo.RecoverAtDecode).To(BeFalse())
		})

		It("misses on an empty call-return stack", func() {
			ret := &op.Op{PC: 0x5004, CfType: op.CfReturn, NextPC: 0x1004}
			pred.PredictOp(ret)
			Expect(ret.BtbPredInfo.NoTarget).To(BeTrue())
			Expect(ret.BpPredInfo.RecoverAtDecode).To(BeTrue())
		})
	})

	Describe("indirect branches", func() {
		It("recovers at decode on an indirect-predictor miss", func() {
			o := &op.Op{PC: 0x1000, CfType: op.CfIndirectBranch, NextPC: 0x3000}
			pred.PredictOp(o)
			Expect(o.BtbPredInfo.IBPMiss).To(BeTrue())
			Expect(o.BpPredInfo.RecoverAtDecode).To(BeTrue())
		})

		It("predicts correctly once the indirect predictor is trained", func() {
			pc := uint64(0x1000)
			target := uint64(0x3000)
			pred.UpdateIndirect(pc, target)
			o := &op.Op{PC: pc, CfType: op.CfIndirectBranch, NextPC: target}
			pred.PredictOp(o)
			Expect(o.BpPredInfo.PredNPC).To(Equal(target))
			Expect(o.BpPredInfo.RecoverAtDecode).To(BeFalse())
		})
	})

	Describe("Reset", func() {
		It("clears trained state back to defaults", func() {
			pred.Update(&op.Op{PC: 0x1000, CfType: op.CfBranch}, true, 0x2000)
			pred.Reset()
			o := &op.Op{PC: 0x1000, CfType: op.CfBranch, NextPC: 0x2000}
			pred.PredictOp(o)
			Expect(o.BtbPredInfo.BTBMiss).To(BeTrue())
		})
	})

	Describe("SyncFrom", func() {
		It("copies trained state from a primary predictor into a secondary one", func() {
			pred.Update(&op.Op{PC: 0x1000, CfType: op.CfBranch}, true, 0x2000)
			secondary := bp.New(bp.DefaultConfig())
			secondary.SyncFrom(pred)

			o := &op.Op{PC: 0x1000, CfType: op.CfBranch, NextPC: 0x2000}
			secondary.PredictOp(o)
			Expect(o.BtbPredInfo.BTBMiss).To(BeFalse())
		})
	})
})
