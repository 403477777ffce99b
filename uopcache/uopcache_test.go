package uopcache_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/frontendsim/ft"
	"github.com/sarchlab/frontendsim/op"
	"github.com/sarchlab/frontendsim/uopcache"
)

func TestUopcache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Uopcache Suite")
}

func mkFT(start uint64, n int, endedBy ft.EndReason) *ft.FT {
	f := &ft.FT{Static: ft.StaticInfo{StartAddr: start, EndedBy: endedBy}}
	for i := 0; i < n; i++ {
		f.Ops = append(f.Ops, &op.Op{PC: start + uint64(i)*4, InstSize: 4})
	}
	f.Static.NumUops = uint32(n)
	f.Static.Length = uint64(n) * 4
	return f
}

// drainChain walks a lookup buffer to completion and reports how many
// lines it visited.
func drainChain(buf *uopcache.Buffer) int {
	visited := 0
	for {
		_, done := buf.Consume(1)
		visited++
		if done {
			return visited
		}
	}
}

var _ = Describe("Cache", func() {
	Describe("LRU policy", func() {
		var c *uopcache.Cache

		BeforeEach(func() {
			c = uopcache.New(uopcache.Config{Sets: 4, Associativity: 2, LineWidth: 8, Policy: uopcache.PolicyLRU})
		})

		It("misses on an empty cache", func() {
			f := mkFT(0x1000, 3, ft.TakenBranch)
			_, hit := c.Lookup(f.Static)
			Expect(hit).To(BeFalse())
		})

		It("hits after insertion", func() {
			f := mkFT(0x1000, 3, ft.TakenBranch)
			Expect(c.Insert(f)).To(BeTrue())
			_, hit := c.Lookup(f.Static)
			Expect(hit).To(BeTrue())
		})

		It("rejects insertion of an FT spanning more lines than the associativity", func() {
			f := mkFT(0x1000, 20, ft.TakenBranch) // LineWidth 8 -> 3 lines, associativity is 2
			Expect(c.Insertable(f)).To(BeFalse())
			Expect(c.Insert(f)).To(BeFalse())
		})
	})

	Describe("Random policy", func() {
		It("hits after insertion", func() {
			c := uopcache.New(uopcache.Config{Sets: 4, Associativity: 2, LineWidth: 8, Policy: uopcache.PolicyRandom})
			f := mkFT(0x2000, 2, ft.TakenBranch)
			c.Insert(f)
			_, hit := c.Lookup(f.Static)
			Expect(hit).To(BeTrue())
		})
	})

	Describe("Round-robin policy", func() {
		It("evicts an entire FT's lines together, not partially", func() {
			c := uopcache.New(uopcache.Config{Sets: 1, Associativity: 2, LineWidth: 1, Policy: uopcache.PolicyRoundRobin})

			a := mkFT(0x1000, 2, ft.TakenBranch) // two 1-op lines fill both ways
			c.Insert(a)
			before := c.Stats()
			Expect(before.Insertions).To(Equal(uint64(1)))

			b := mkFT(0x3000, 1, ft.TakenBranch)
			c.Insert(b)

			after := c.Stats()
			Expect(after.Evictions).To(BeNumerically(">=", uint64(1)))

			_, hitA := c.Lookup(a.Static)
			Expect(hitA).To(BeFalse())
		})
	})

	Describe("Chained lookup and consume", func() {
		It("walks every line of a multi-line FT and terminates at end_of_ft (S6)", func() {
			c := uopcache.New(uopcache.Config{Sets: 1, Associativity: 4, LineWidth: 1, Policy: uopcache.PolicyLRU})

			a := mkFT(0x1000, 3, ft.TakenBranch)
			Expect(c.Insert(a)).To(BeTrue())

			buf, hit := c.Lookup(a.Static)
			Expect(hit).To(BeTrue())
			Expect(drainChain(buf)).To(Equal(3))

			// b needs all 4 ways in the cache's single set; only 1 is free,
			// so making room forces a's lines out. Cross-line consistency
			// means every line of a is invalidated, not just the one whose
			// slot b first claims.
			b := mkFT(0x5000, 4, ft.TakenBranch)
			Expect(c.Insert(b)).To(BeTrue())

			_, hitA := c.Lookup(a.Static)
			Expect(hitA).To(BeFalse())

			bufB, hitB := c.Lookup(b.Static)
			Expect(hitB).To(BeTrue())
			Expect(drainChain(bufB)).To(Equal(4))
		})

		It("partially consumes a line without advancing past it", func() {
			c := uopcache.New(uopcache.Config{Sets: 4, Associativity: 2, LineWidth: 4, Policy: uopcache.PolicyLRU})
			f := mkFT(0x2000, 4, ft.TakenBranch) // fits in a single 4-op line
			Expect(c.Insert(f)).To(BeTrue())

			buf, hit := c.Lookup(f.Static)
			Expect(hit).To(BeTrue())

			ops, done := buf.Consume(2)
			Expect(ops).To(HaveLen(2))
			Expect(done).To(BeFalse())

			ops2, done2 := buf.Consume(2)
			Expect(ops2).To(HaveLen(2))
			Expect(done2).To(BeTrue())
			Expect(buf.Done()).To(BeTrue())
		})

		It("reports a miss for the whole FT when any link in the chain is gone", func() {
			c := uopcache.New(uopcache.Config{Sets: 1, Associativity: 1, LineWidth: 1, Policy: uopcache.PolicyLRU})

			a := mkFT(0x1000, 1, ft.TakenBranch)
			Expect(c.Insert(a)).To(BeTrue())

			b := mkFT(0x9000, 1, ft.TakenBranch)
			Expect(c.Insert(b)).To(BeTrue()) // only 1 way available, evicts a

			_, hit := c.Lookup(a.Static)
			Expect(hit).To(BeFalse())
		})
	})

	Describe("Stats", func() {
		It("tracks hit rate", func() {
			c := uopcache.New(uopcache.DefaultConfig())
			f := mkFT(0x1000, 2, ft.TakenBranch)
			c.Insert(f)
			c.Lookup(f.Static)
			c.Lookup(ft.StaticInfo{StartAddr: 0xdead, EndedBy: f.Static.EndedBy})

			s := c.Stats()
			Expect(s.Lookups).To(Equal(uint64(2)))
			Expect(s.HitRate()).To(BeNumerically("~", 50.0, 0.1))
		})
	})
})
