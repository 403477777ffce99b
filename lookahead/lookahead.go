// Package lookahead implements the lookahead buffer: a ring buffer of
// Fetch Targets the uop cache can scan ahead of the FTQ's head. Two
// secondary indexes (by start address and by static key) hold plain
// sequence numbers rather than pointers, so they never own the FTs they
// reference; lookups by enclosed PC or line address scan the live entries
// and have no index.
// Grounded on lookahead_buffer.h/.cc.
package lookahead

import "github.com/sarchlab/frontendsim/ft"

// entry pairs a Fetch Target with the absolute sequence number it was
// pushed under, so secondary indexes can be validated against eviction.
type entry struct {
	seq uint64
	ft  *ft.FT
}

// Buffer is a bounded ring buffer of Fetch Targets with two secondary
// indexes (start address, static key) for fast lookup.
type Buffer struct {
	capacity int
	entries  []entry // logical order, oldest first
	nextSeq  uint64
	rdSeq    uint64 // sequence number at the read pointer (oldest live entry)

	byStart     map[uint64][]uint64 // start addr -> sequence numbers
	byStaticKey map[staticKey][]uint64
}

type staticKey struct {
	start   uint64
	endedBy ft.EndReason
}

// New creates an empty lookahead buffer bounded to capacity entries.
func New(capacity int) *Buffer {
	return &Buffer{
		capacity:    capacity,
		byStart:     make(map[uint64][]uint64),
		byStaticKey: make(map[staticKey][]uint64),
	}
}

// Count returns the number of Fetch Targets currently buffered.
func (b *Buffer) Count() int { return len(b.entries) }

// Full reports whether the buffer is at capacity.
func (b *Buffer) Full() bool { return len(b.entries) >= b.capacity }

// RdPtr returns the sequence number of the oldest buffered entry,
// mirroring lookahead_buffer.h's rdptr.
func (b *Buffer) RdPtr() uint64 { return b.rdSeq }

// Push appends f to the tail of the buffer, returning its sequence number.
// Panics if the buffer is full; callers must check Full() first.
func (b *Buffer) Push(f *ft.FT) uint64 {
	if b.Full() {
		panic("lookahead: push onto a full buffer")
	}
	seq := b.nextSeq
	b.nextSeq++
	if len(b.entries) == 0 {
		b.rdSeq = seq
	}
	b.entries = append(b.entries, entry{seq: seq, ft: f})

	b.byStart[f.Static.StartAddr] = append(b.byStart[f.Static.StartAddr], seq)
	sk := staticKey{start: f.Static.StartAddr, endedBy: f.Static.EndedBy}
	b.byStaticKey[sk] = append(b.byStaticKey[sk], seq)
	return seq
}

// PopFT removes and returns the oldest Fetch Target, advancing the read
// pointer. Mirrors lookahead_buffer.h's pop_ft.
func (b *Buffer) PopFT() *ft.FT {
	if len(b.entries) == 0 {
		panic("lookahead: pop from an empty buffer")
	}
	head := b.entries[0]
	b.entries = b.entries[1:]
	if len(b.entries) > 0 {
		b.rdSeq = b.entries[0].seq
	}
	return head.ft
}

// Peek returns the oldest Fetch Target without removing it.
func (b *Buffer) Peek() (*ft.FT, bool) {
	if len(b.entries) == 0 {
		return nil, false
	}
	return b.entries[0].ft, true
}

// CanFetchOp reports whether the buffer has room for at least one more
// Fetch Target.
func (b *Buffer) CanFetchOp() bool { return !b.Full() }

// GetFT returns the Fetch Target stored at sequence number seq, if it is
// still buffered.
func (b *Buffer) GetFT(seq uint64) (*ft.FT, bool) {
	for _, e := range b.entries {
		if e.seq == seq {
			return e.ft, true
		}
	}
	return nil, false
}

// FindFTsByStartAddr returns every currently-buffered Fetch Target
// starting at addr, oldest first.
func (b *Buffer) FindFTsByStartAddr(addr uint64) []*ft.FT {
	var out []*ft.FT
	for _, seq := range b.byStart[addr] {
		if f, ok := b.GetFT(seq); ok {
			out = append(out, f)
		}
	}
	return out
}

// FindFTsByStaticInfo returns every currently-buffered Fetch Target whose
// start address and end reason match static; length and uop count are not
// compared.
func (b *Buffer) FindFTsByStaticInfo(static ft.StaticInfo) []*ft.FT {
	sk := staticKey{start: static.StartAddr, endedBy: static.EndedBy}
	var out []*ft.FT
	for _, seq := range b.byStaticKey[sk] {
		if f, ok := b.GetFT(seq); ok {
			out = append(out, f)
		}
	}
	return out
}

// FindYoungestFTByStaticInfo returns the most recently pushed Fetch Target
// matching static, if any.
func (b *Buffer) FindYoungestFTByStaticInfo(static ft.StaticInfo) (*ft.FT, bool) {
	matches := b.FindFTsByStaticInfo(static)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[len(matches)-1], true
}

// FindOldestFTByStaticInfo returns the least recently pushed Fetch Target
// matching static, if any.
func (b *Buffer) FindOldestFTByStaticInfo(static ft.StaticInfo) (*ft.FT, bool) {
	matches := b.FindFTsByStaticInfo(static)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

// FindFTsEnclosingPC returns every currently-buffered Fetch Target whose
// address range contains pc.
func (b *Buffer) FindFTsEnclosingPC(pc uint64) []*ft.FT {
	var out []*ft.FT
	for _, e := range b.entries {
		start := e.ft.Static.StartAddr
		end := start + e.ft.Static.Length
		if pc >= start && pc < end {
			out = append(out, e.ft)
		}
	}
	return out
}

// FindFTsEnclosingLineAddr returns every currently-buffered Fetch Target
// that overlaps the 64-byte line starting at lineAddr.
func (b *Buffer) FindFTsEnclosingLineAddr(lineAddr uint64) []*ft.FT {
	lineEnd := lineAddr + ft.IcacheLineSize
	var out []*ft.FT
	for _, e := range b.entries {
		start := e.ft.Static.StartAddr
		end := start + e.ft.Static.Length
		if start < lineEnd && end > lineAddr {
			out = append(out, e.ft)
		}
	}
	return out
}

// Reset clears the buffer and every secondary index.
func (b *Buffer) Reset() {
	b.entries = nil
	b.nextSeq = 0
	b.rdSeq = 0
	b.byStart = make(map[uint64][]uint64)
	b.byStaticKey = make(map[staticKey][]uint64)
}
