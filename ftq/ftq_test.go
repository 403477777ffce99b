package ftq_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/frontendsim/ft"
	"github.com/sarchlab/frontendsim/ftq"
	"github.com/sarchlab/frontendsim/op"
)

func TestFtq(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ftq Suite")
}

func mkFT(start uint64, n int) *ft.FT {
	f := &ft.FT{Static: ft.StaticInfo{StartAddr: start}}
	for i := 0; i < n; i++ {
		f.Ops = append(f.Ops, &op.Op{PC: start + uint64(i)*4, InstSize: 4})
	}
	f.Static.NumUops = uint32(n)
	return f
}

var _ = Describe("FTQ", func() {
	var q *ftq.FTQ

	BeforeEach(func() {
		q = ftq.New(4)
	})

	It("reports full once at capacity", func() {
		for i := 0; i < 4; i++ {
			q.PushTail(mkFT(uint64(i)*0x100, 1))
		}
		Expect(q.Full()).To(BeTrue())
		Expect(func() { q.PushTail(mkFT(0x1000, 1)) }).To(Panic())
	})

	It("counts ops across every queued FT", func() {
		q.PushTail(mkFT(0x1000, 3))
		q.PushTail(mkFT(0x2000, 2))
		Expect(q.NumOps()).To(Equal(5))
	})

	Describe("iterators", func() {
		It("walks ops across an FT boundary", func() {
			q.PushTail(mkFT(0x1000, 2))
			q.PushTail(mkFT(0x2000, 2))

			it := q.NewIter()
			_, o, ok := q.Get(it)
			Expect(ok).To(BeTrue())
			Expect(o.PC).To(Equal(uint64(0x1000)))

			Expect(q.GetNext(it)).To(BeTrue())
			_, o, ok = q.Get(it)
			Expect(ok).To(BeTrue())
			Expect(o.PC).To(Equal(uint64(0x1004)))

			Expect(q.GetNext(it)).To(BeTrue())
			_, o, ok = q.Get(it)
			Expect(ok).To(BeTrue())
			Expect(o.PC).To(Equal(uint64(0x2000)))
		})

		It("invalidates an iterator whose FT is popped", func() {
			q.PushTail(mkFT(0x1000, 1))
			it := q.NewIter()

			q.PopHead()
			Expect(it.Valid()).To(BeFalse())
		})

		It("adjusts FTPos down when an earlier FT is popped", func() {
			q.PushTail(mkFT(0x1000, 1))
			q.PushTail(mkFT(0x2000, 1))
			it := q.NewIter()
			q.GetNext(it) // move onto the second FT

			q.PopHead()
			Expect(it.Valid()).To(BeTrue())
			Expect(it.FTPos).To(Equal(0))
		})

		It("invalidates an iterator whose FT is flushed", func() {
			q.PushTail(mkFT(0x1000, 1))
			q.PushTail(mkFT(0x2000, 1))
			it := q.NewIter()
			q.GetNext(it)

			q.FlushFrom(1)
			Expect(it.Valid()).To(BeFalse())
		})
	})
})
