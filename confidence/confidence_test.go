package confidence_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/frontendsim/confidence"
	"github.com/sarchlab/frontendsim/op"
)

func TestConfidence(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Confidence Suite")
}

var _ = Describe("Estimator", func() {
	var e *confidence.Estimator

	BeforeEach(func() {
		e = confidence.New(confidence.Config{Weight: 2, Threshold: 4, SampleWindow: 10})
	})

	It("starts with high confidence", func() {
		Expect(e.LowConfidence()).To(BeFalse())
	})

	It("becomes low confidence after enough BTB misses", func() {
		for i := 0; i < 3; i++ {
			e.PerCfOpUpdate(&op.Op{BtbPredInfo: op.BtbPredInfo{BTBMiss: true}})
		}
		Expect(e.LowConfidence()).To(BeTrue())
		Expect(e.Reason()).To(Equal(confidence.ConfReasonBTBMiss))
	})

	It("decays the accumulator over cycles", func() {
		e.PerCfOpUpdate(&op.Op{BtbPredInfo: op.BtbPredInfo{BTBMiss: true}})
		e.PerCfOpUpdate(&op.Op{BtbPredInfo: op.BtbPredInfo{BTBMiss: true}})
		Expect(e.LowConfidence()).To(BeTrue())

		for i := 0; i < 4; i++ {
			e.PerCycleUpdate()
		}
		Expect(e.LowConfidence()).To(BeFalse())
	})

	It("resets on recovery", func() {
		e.PerCfOpUpdate(&op.Op{BtbPredInfo: op.BtbPredInfo{BTBMiss: true}})
		e.PerCfOpUpdate(&op.Op{BtbPredInfo: op.BtbPredInfo{BTBMiss: true}})
		e.Recover()
		Expect(e.LowConfidence()).To(BeFalse())
		Expect(e.Reason()).To(Equal(confidence.ConfReasonNone))
	})

	It("tracks cf_op_distance across non-control-flow ops", func() {
		e.PerOpUpdate(&op.Op{CfType: op.CfNone})
		e.PerOpUpdate(&op.Op{CfType: op.CfNone})
		Expect(e.CfOpDistance()).To(Equal(uint32(2)))

		e.PerOpUpdate(&op.Op{CfType: op.CfBranch})
		Expect(e.CfOpDistance()).To(Equal(uint32(0)))
	})

	It("samples a BTB-miss rate once the window fills", func() {
		for i := 0; i < 10; i++ {
			e.PerCfOpUpdate(&op.Op{BtbPredInfo: op.BtbPredInfo{BTBMiss: i < 5}})
		}
		Expect(e.BTBMissRate()).To(BeNumerically("~", 0.5, 0.01))
	})
})
