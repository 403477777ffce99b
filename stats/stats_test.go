package stats_test

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/frontendsim/stats"
)

func TestStats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stats Suite")
}

var _ = Describe("Counters", func() {
	It("accumulates increments", func() {
		c := stats.NewCounters()
		c.Inc("ft_built", 1)
		c.Inc("ft_built", 2)
		Expect(c.Get("ft_built")).To(Equal(uint64(3)))
	})

	It("lists touched names sorted", func() {
		c := stats.NewCounters()
		c.Inc("z", 1)
		c.Inc("a", 1)
		Expect(c.Names()).To(Equal([]string{"a", "z"}))
	})
})

var _ = Describe("Histogram", func() {
	It("buckets values by inclusive upper bound", func() {
		h := stats.NewHistogram("ft_lines", 1, 2, 4, 8)
		h.Add(1)
		h.Add(3)
		h.Add(100)

		counts := h.Counts()
		Expect(counts[0]).To(Equal(uint64(1))) // <=1
		Expect(counts[2]).To(Equal(uint64(1))) // <=4
		Expect(counts[len(counts)-1]).To(Equal(uint64(1))) // overflow
	})
})

var _ = Describe("WriteCSV", func() {
	It("writes one row per counter and histogram bucket", func() {
		c := stats.NewCounters()
		c.Inc("recoveries", 2)
		h := stats.NewHistogram("ft_lines", 1, 2)

		var buf strings.Builder
		err := stats.WriteCSV(&buf, stats.Report{ProcID: 0, Counters: c, Histograms: []*stats.Histogram{h}})
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("recoveries"))
		Expect(buf.String()).To(ContainSubstring("ft_lines"))
	})
})
