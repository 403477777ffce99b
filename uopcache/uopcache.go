// Package uopcache implements the FT-granular uop cache: a Fetch Target is
// stored as a chain of lines, each holding up to LineWidth ops, linked by
// offset_to_next_line until a line flags end_of_ft. Lookups walk the whole
// chain into a per-cycle buffer that the uop queue then drains line by
// line, possibly consuming a line only partially. Grounded on
// uop_cache.cc, wrapping akita/v4/mem/cache for its LRU tag directory.
package uopcache

import (
	"hash/fnv"
	"math/rand"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/frontendsim/ft"
	"github.com/sarchlab/frontendsim/op"
)

// Policy selects the line-replacement algorithm.
type Policy uint8

// Replacement policies. PolicyRRIP picks victims with the same per-set
// round-robin cursor as PolicyRoundRobin; no re-reference prediction state
// is kept.
const (
	PolicyLRU Policy = iota
	PolicyRandom
	PolicyRoundRobin
	PolicyRRIP
)

// Config sizes the uop cache.
type Config struct {
	Sets          int
	Associativity int
	LineWidth     int // max ops per line, UOP_CACHE_WIDTH
	Policy        Policy
}

// DefaultConfig mirrors a typical M-series decode-bandwidth uop cache.
func DefaultConfig() Config {
	return Config{Sets: 64, Associativity: 8, LineWidth: 8, Policy: PolicyLRU}
}

// key identifies a single uop-cache line: its own start address plus the
// start address and end reason of the Fetch Target it belongs to. The FT's
// length and uop count are not part of the key, so FTs that differ only in
// those map to the same line keys.
type key struct {
	lineAddr uint64
	start    uint64 // FT static start address
	endedBy  ft.EndReason
}

func (k key) hash() uint64 {
	h := fnv.New64a()
	var buf [17]byte
	putUint64(buf[0:8], k.lineAddr)
	putUint64(buf[8:16], k.start)
	buf[16] = byte(k.endedBy)
	h.Write(buf[:])
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// line is one Uop_Cache_Data entry: the ops of one line of one Fetch
// Target, plus the chain/replacement metadata uop_cache.cc tracks per line.
type line struct {
	key  key
	ftID *ft.FT // identity of the owning FT, for cross-line eviction
	ops  []*op.Op

	ftFirstOpOffPath bool   // true if the FT's first op was fetched off path
	nUops            uint32 // ops remaining in this line, shrinks under partial Consume
	offsetToNextLine uint64 // 0 when end_of_ft is true
	endOfFT          bool
	usedCount        uint64 // lines never consumed before eviction are useless reuse
	containsFakeNop  bool   // line stands in for an op the front end couldn't encode
	priority         uint32 // hook for a priority-aware replacement policy; unused by LRU/RRIP
}

// Stats accumulates uop-cache access outcomes.
type Stats struct {
	Lookups    uint64
	Hits       uint64
	Misses     uint64
	Insertions uint64
	Evictions  uint64
}

// HitRate returns the fraction of lookups that hit, as a percentage.
func (s Stats) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return 100 * float64(s.Hits) / float64(s.Lookups)
}

// Cache is the set-associative, FT-granular uop cache.
type Cache struct {
	cfg Config

	// LRU path: backed by akita's directory/victim-finder.
	directory *akitacache.DirectoryImpl
	lines     map[uint64]*line // hashed key -> line payload, LRU path

	// Non-LRU paths: a self-contained set/way array, since akita only
	// ships an LRU victim finder.
	sets [][]*line

	ftLines map[*ft.FT][]key // owning FT identity -> every line key it occupies

	rng *rand.Rand
	rr  []int // per-set round-robin cursor

	stats Stats
}

// New builds a uop cache from cfg.
func New(cfg Config) *Cache {
	c := &Cache{cfg: cfg, ftLines: make(map[*ft.FT][]key)}

	if cfg.Policy == PolicyLRU {
		c.directory = akitacache.NewDirectory(cfg.Sets, cfg.Associativity, 64, akitacache.NewLRUVictimFinder())
		c.lines = make(map[uint64]*line)
		return c
	}

	c.sets = make([][]*line, cfg.Sets)
	for i := range c.sets {
		c.sets[i] = make([]*line, cfg.Associativity)
	}
	c.rr = make([]int, cfg.Sets)
	c.rng = rand.New(rand.NewSource(1))
	return c
}

// Stats returns a copy of the cache's access statistics.
func (c *Cache) Stats() Stats { return c.stats }

func (c *Cache) setIndex(k key) int {
	return int(k.hash() % uint64(c.cfg.Sets))
}

// find locates the line stored under k, touching the replacement policy's
// recency state as a real access would.
func (c *Cache) find(k key) (*line, bool) {
	if c.cfg.Policy == PolicyLRU {
		h := k.hash()
		blk, found := c.directory.Lookup(0, h)
		if !found || blk == nil {
			return nil, false
		}
		c.directory.Visit(blk)
		l, ok := c.lines[h]
		return l, ok
	}

	set := c.sets[c.setIndex(k)]
	for _, l := range set {
		if l != nil && l.key == k {
			return l, true
		}
	}
	return nil, false
}

// peek reports whether a line is stored under k, without disturbing
// replacement-policy recency. Used by the insertion rules, which must not
// let a presence check itself count as a use.
func (c *Cache) peek(k key) (*line, bool) {
	if c.cfg.Policy == PolicyLRU {
		l, ok := c.lines[k.hash()]
		return l, ok
	}
	set := c.sets[c.setIndex(k)]
	for _, l := range set {
		if l != nil && l.key == k {
			return l, true
		}
	}
	return nil, false
}

// bufLine is one line's worth of ops captured into a lookup buffer.
type bufLine struct {
	ops     []*op.Op
	endOfFT bool
}

// Buffer is the per-cycle lookup buffer: the chain of lines found for one
// Fetch Target, drained front-to-back by Consume. Mirrors
// Uop_Cache_Stage_Cpp's lookup_buffer/num_looked_up_lines.
type Buffer struct {
	lines    []bufLine
	idx      int // index of the current (not yet fully drained) line
	consumed int // ops already taken from lines[idx]
}

// Done reports whether every line in the buffer has been fully consumed.
func (b *Buffer) Done() bool { return b.idx >= len(b.lines) }

// Consume pulls up to n ops from the buffer's current line. If the current
// line holds more ops than requested, it is only partially drained: the
// line pointer does not advance, and end-of-FT is never reported for a
// partial consumption, even if this is the chain's last line. Otherwise the
// line is fully drained and the pointer advances to the next one, with
// ftDone true only when the line just drained was the chain's last.
// Mirrors uop_cache_consume_uops_from_lookup_buffer.
func (b *Buffer) Consume(n int) (ops []*op.Op, ftDone bool) {
	if b.Done() {
		return nil, true
	}

	cur := b.lines[b.idx]
	remaining := cur.ops[b.consumed:]

	if len(remaining) > n {
		b.consumed += n
		return remaining[:n], false
	}

	b.idx++
	b.consumed = 0
	return remaining, cur.endOfFT
}

// Lookup performs a chained lookup for the Fetch Target identified by
// static: starting at its start address, it follows each hit's
// offset_to_next_line to the next line until a line reports end_of_ft. A
// miss anywhere along the chain is a miss for the whole FT. On a hit, every
// visited line is marked used once and the whole chained lookup counts as
// a single read-port access. Mirrors
// uop_cache_lookup_ft_and_fill_lookup_buffer.
func (c *Cache) Lookup(static ft.StaticInfo) (*Buffer, bool) {
	c.stats.Lookups++

	var chain []bufLine
	addr := static.StartAddr
	for {
		k := key{lineAddr: addr, start: static.StartAddr, endedBy: static.EndedBy}
		l, found := c.find(k)
		if !found {
			c.stats.Misses++
			return nil, false
		}

		l.usedCount++
		chain = append(chain, bufLine{ops: l.ops, endOfFT: l.endOfFT})
		if l.endOfFT {
			break
		}
		addr += l.offsetToNextLine
	}

	c.stats.Hits++
	return &Buffer{lines: chain}, true
}

// buildLines lays f's ops out into uop-cache lines: a line closes when it
// reaches LineWidth ops, the next op would cross an icache line boundary,
// or the FT ends. ok is false when a line would need to link to another
// line starting at the same address (rule 1: an inst wider than one line
// makes two consecutive lines share a start, which the chain can't
// represent). Mirrors generate_uop_cache_data_from_FT.
func (c *Cache) buildLines(f *ft.FT) (lines []*line, ok bool) {
	if len(f.Ops) == 0 {
		return nil, true
	}

	i := 0
	for i < len(f.Ops) {
		lineStart := f.Ops[i].PC
		lineEnd := (lineStart/ft.IcacheLineSize + 1) * ft.IcacheLineSize

		var ops []*op.Op
		for i < len(f.Ops) && len(ops) < c.cfg.LineWidth && f.Ops[i].EndAddr() <= lineEnd {
			ops = append(ops, f.Ops[i])
			i++
		}
		if len(ops) == 0 {
			// A single op already overruns both the width and the icache
			// line it starts in; give it its own line so progress is made.
			ops = append(ops, f.Ops[i])
			i++
		}

		l := &line{
			key:              key{lineAddr: lineStart, start: f.Static.StartAddr, endedBy: f.Static.EndedBy},
			ftID:             f,
			ops:              ops,
			ftFirstOpOffPath: f.Dynamic.OffPath,
			nUops:            uint32(len(ops)),
		}

		if i >= len(f.Ops) {
			l.endOfFT = true
		} else {
			l.offsetToNextLine = f.Ops[i].PC - lineStart
			if l.offsetToNextLine == 0 {
				return nil, false
			}
		}

		lines = append(lines, l)
	}
	return lines, true
}

// Insertable reports whether f can be inserted at all: an FT that lays out
// into more lines than the cache's associativity can never fit. Mirrors
// uop_cache_FT_if_insertable's rules 1 and 2.
func (c *Cache) Insertable(f *ft.FT) bool {
	lines, ok := c.buildLines(f)
	if !ok {
		return false
	}
	return len(lines) <= c.cfg.Associativity
}

// Insert builds uop-cache lines from f and inserts them as a unit,
// preallocating room for the whole FT before writing any of its lines.
// Mirrors uop_cache_insert_FT's rules 1, 3, 4 and 5 (rule 2 is Insertable).
func (c *Cache) Insert(f *ft.FT) bool {
	lines, ok := c.buildLines(f)
	if !ok || len(lines) == 0 || len(lines) > c.cfg.Associativity {
		return false
	}

	// Rule 3: a fake-nop placeholder occupying the FT's first line must be
	// invalidated, along with the rest of its owning FT, before a fresh
	// version of this FT can be written.
	if existing, found := c.peek(lines[0].key); found && existing.containsFakeNop {
		c.evictFT(existing.ftID)
	}

	newKeys := make(map[key]bool, len(lines))
	for _, l := range lines {
		newKeys[l.key] = true
	}

	// Rule 4: preallocate every line's slot up front. Evicting space for
	// one line of this FT must never evict a sibling line of the same FT
	// that hasn't been written yet.
	for _, l := range lines {
		c.preallocate(l.key, newKeys)
	}

	for _, l := range lines {
		c.insertLine(l) // rule 5: a short-reuse collision is skipped, not overwritten
	}

	c.ftLines[f] = keysOf(lines)
	c.stats.Insertions++
	return true
}

func keysOf(lines []*line) []key {
	keys := make([]key, len(lines))
	for i, l := range lines {
		keys[i] = l.key
	}
	return keys
}

// preallocate makes room for one incoming line at key k, evicting whatever
// currently occupies its slot — unless that occupant is itself one of this
// FT's own not-yet-written sibling lines, in which case no eviction is
// needed since the slot is about to be overwritten anyway.
func (c *Cache) preallocate(k key, newKeys map[key]bool) {
	if _, found := c.peek(k); found {
		return // rule 5: already present, insertLine will skip it
	}

	if c.cfg.Policy == PolicyLRU {
		victim := c.directory.FindVictim(k.hash())
		if victim == nil || !victim.IsValid {
			return
		}
		if occ, ok := c.lines[victim.Tag]; ok {
			if newKeys[occ.key] {
				return
			}
			c.evictFT(occ.ftID)
		}
		return
	}

	set := c.sets[c.setIndex(k)]
	for _, occ := range set {
		if occ == nil {
			return // a free way already exists, nothing to evict
		}
	}

	way := c.pickVictimWay(c.setIndex(k))
	if occ := set[way]; occ != nil && !newKeys[occ.key] {
		c.evictFT(occ.ftID)
	}
}

// insertLine writes l into its slot. It is a no-op if l's own key is
// already present (rule 5: a reuse distance short enough that the first
// occurrence of this line was inserted between this FT's lookup and its
// insertion).
func (c *Cache) insertLine(l *line) {
	if c.cfg.Policy == PolicyLRU {
		h := l.key.hash()
		if _, ok := c.lines[h]; ok {
			return
		}
		blk, _ := c.directory.Lookup(0, h)
		victim := blk
		if victim == nil {
			victim = c.directory.FindVictim(h)
		}
		if victim != nil {
			if victim.IsValid {
				c.evictBlock(victim)
			}
			victim.Tag = h
			victim.IsValid = true
			c.directory.Visit(victim)
		}
		c.lines[h] = l
		return
	}

	set := c.setIndex(l.key)
	for _, existing := range c.sets[set] {
		if existing != nil && existing.key == l.key {
			return
		}
	}
	way := c.pickVictimWay(set)
	for c.sets[set][way] != nil && c.sets[set][way].ftID == l.ftID {
		way = c.pickVictimWay(set) // never overwrite a sibling line of this FT
	}
	if existing := c.sets[set][way]; existing != nil {
		c.evictLine(existing)
	}
	c.sets[set][way] = l
}

func (c *Cache) pickVictimWay(set int) int {
	switch c.cfg.Policy {
	case PolicyRandom:
		return c.rng.Intn(c.cfg.Associativity)
	case PolicyRoundRobin, PolicyRRIP:
		w := c.rr[set]
		c.rr[set] = (w + 1) % c.cfg.Associativity
		return w
	default:
		return 0
	}
}

// evictBlock handles eviction on the akita-backed LRU path: it looks up
// the side-table line for the victim block and evicts the whole owning
// FT, preserving cross-line consistency.
func (c *Cache) evictBlock(blk *akitacache.Block) {
	if l, ok := c.lines[blk.Tag]; ok {
		c.evictFT(l.ftID)
	}
}

func (c *Cache) evictLine(l *line) {
	c.evictFT(l.ftID)
}

// evictFT invalidates every line belonging to the FT identified by ftID,
// the cross-line consistency invariant from uop_cache_evict_FT: evicting
// any one line of an FT invalidates all of it.
func (c *Cache) evictFT(ftID *ft.FT) {
	keys, ok := c.ftLines[ftID]
	if !ok {
		return
	}
	delete(c.ftLines, ftID)
	c.stats.Evictions += uint64(len(keys))

	if c.cfg.Policy == PolicyLRU {
		for _, k := range keys {
			delete(c.lines, k.hash())
		}
		return
	}

	for _, k := range keys {
		set := c.setIndex(k)
		for w, l := range c.sets[set] {
			if l != nil && l.key == k {
				c.sets[set][w] = nil
			}
		}
	}
}

// Reset clears the cache and all statistics.
func (c *Cache) Reset() {
	c.stats = Stats{}
	c.ftLines = make(map[*ft.FT][]key)
	if c.cfg.Policy == PolicyLRU {
		c.directory.Reset()
		c.lines = make(map[uint64]*line)
		return
	}
	for i := range c.sets {
		for w := range c.sets[i] {
			c.sets[i][w] = nil
		}
	}
	c.rr = make([]int, c.cfg.Sets)
}
