package op_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/frontendsim/op"
)

func TestOp(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Op Suite")
}

var _ = Describe("Pool", func() {
	var pool *op.Pool

	BeforeEach(func() {
		pool = op.NewPool()
	})

	It("starts with zero active ops", func() {
		Expect(pool.ActiveOps()).To(Equal(uint64(0)))
	})

	It("stamps monotonically increasing op_num per core", func() {
		o1 := pool.Alloc(0, 0)
		o2 := pool.Alloc(0, 0)
		Expect(o2.OpNum).To(BeNumerically(">", o1.OpNum))
	})

	It("tracks op_num independently per core", func() {
		a0 := pool.Alloc(0, 0)
		b0 := pool.Alloc(1, 0)
		Expect(a0.OpNum).To(Equal(uint64(0)))
		Expect(b0.OpNum).To(Equal(uint64(0)))
	})

	It("stamps strictly increasing unique_num globally", func() {
		o1 := pool.Alloc(0, 0)
		o2 := pool.Alloc(1, 0)
		Expect(o2.UniqueNum).To(BeNumerically(">", o1.UniqueNum))
	})

	It("increments active ops on alloc and decrements on free", func() {
		o := pool.Alloc(0, 0)
		Expect(pool.ActiveOps()).To(Equal(uint64(1)))
		pool.Free(o)
		Expect(pool.ActiveOps()).To(Equal(uint64(0)))
	})

	It("panics on double free", func() {
		o := pool.Alloc(0, 0)
		pool.Free(o)
		Expect(func() { pool.Free(o) }).To(Panic())
	})

	It("reuses freed ops without growing entries unnecessarily", func() {
		o := pool.Alloc(0, 0)
		pool.Free(o)
		entriesBefore := pool.Entries()
		pool.Alloc(0, 0)
		Expect(pool.Entries()).To(Equal(entriesBefore))
	})

	It("grows the pool across chunk boundaries", func() {
		for i := 0; i < 300; i++ {
			pool.Alloc(0, 0)
		}
		Expect(pool.ActiveOps()).To(Equal(uint64(300)))
		Expect(pool.Entries()).To(BeNumerically(">=", 300))
	})
})

var _ = Describe("Op", func() {
	It("accepts an op with neither recover-at-decode nor recover-at-exec set", func() {
		o := &op.Op{}
		Expect(func() { o.ValidateRecoveryFlags() }).NotTo(Panic())
	})

	It("panics when both recovery flags are set", func() {
		o := &op.Op{}
		o.BpPredInfo.RecoverAtDecode = true
		o.BpPredInfo.RecoverAtExec = true
		Expect(func() { o.ValidateRecoveryFlags() }).To(Panic())
	})

	It("reports TriggersRecovery when either flag is set", func() {
		o := &op.Op{}
		Expect(o.TriggersRecovery()).To(BeFalse())
		o.BpPredInfo.RecoverAtExec = true
		Expect(o.TriggersRecovery()).To(BeTrue())
	})
})
