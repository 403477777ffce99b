// Package stats collects per-core counters and distribution bins for the
// front end and dumps them to a CSV report. Grounded on statistics.c's
// DEF_STAT-generated counter tables and a Stats-struct-with-accessor-methods
// convention.
package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
)

// Counters is a named set of monotonically increasing per-core counters,
// mirroring statistics.c's global_stat_array of simple event counts.
type Counters struct {
	values map[string]uint64
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{values: make(map[string]uint64)}
}

// Inc increments the named counter by delta.
func (c *Counters) Inc(name string, delta uint64) {
	c.values[name] += delta
}

// Get returns the current value of the named counter.
func (c *Counters) Get(name string) uint64 {
	return c.values[name]
}

// Names returns every counter name that has been touched, sorted for
// deterministic report output.
func (c *Counters) Names() []string {
	names := make([]string, 0, len(c.values))
	for n := range c.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Histogram buckets a per-FT quantity (e.g. uop-cache lines per FT) into a
// fixed set of bins, mirroring the UOP_CACHE_FT_LINES_{1..8,9+} histograms
// in uop_cache.cc.
type Histogram struct {
	Label     string
	bucketMax []uint64 // inclusive upper bound per bucket except the last, which catches everything above
	counts    []uint64
}

// NewHistogram creates a histogram with the given inclusive bucket upper
// bounds; one extra overflow bucket is added automatically for values
// above the last bound.
func NewHistogram(label string, bucketMax ...uint64) *Histogram {
	return &Histogram{
		Label:     label,
		bucketMax: bucketMax,
		counts:    make([]uint64, len(bucketMax)+1),
	}
}

// Add records one observation of value v.
func (h *Histogram) Add(v uint64) {
	for i, max := range h.bucketMax {
		if v <= max {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.counts)-1]++
}

// Counts returns a copy of the per-bucket observation counts.
func (h *Histogram) Counts() []uint64 {
	out := make([]uint64, len(h.counts))
	copy(out, h.counts)
	return out
}

// Report bundles all statistics for one core for dumping.
type Report struct {
	ProcID     uint32
	Counters   *Counters
	Histograms []*Histogram
}

// WriteCSV dumps r as a CSV report to w: one row per counter, followed by
// one row per histogram bucket. Mirrors statistics.c's per-core .csv dump.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"proc_id", "kind", "name", "value"}); err != nil {
		return err
	}

	for _, name := range r.Counters.Names() {
		row := []string{fmt.Sprint(r.ProcID), "counter", name, fmt.Sprint(r.Counters.Get(name))}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	for _, h := range r.Histograms {
		for i, c := range h.Counts() {
			row := []string{fmt.Sprint(r.ProcID), "histogram", fmt.Sprintf("%s[%d]", h.Label, i), fmt.Sprint(c)}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	return nil
}
