// Package report formats the three pieces of stdout output spec.md §6
// requires: the final cache dump, the final stream-buffer dump, and the
// a-q measurements block. Labels, spacing and the memory-traffic formula
// are taken field-for-field from the reference implementation's
// print_cache/print_stream_buffers/printStats.
package report

import (
	"fmt"
	"io"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/internal/tagging"
)

// Reporter writes the fixed-format textual report for one simulation run.
type Reporter struct {
	w io.Writer
}

// New returns a Reporter that writes to w.
func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// WriteCacheContents prints the "===== <name> contents =====" block: one
// line per set, its valid ways MRU-first as "<hex tag> <D or space>".
func (r *Reporter) WriteCacheContents(name string, sets [][]tagging.Way) {
	fmt.Fprintf(r.w, "\n===== %s contents =====\n", name)

	for i, ways := range sets {
		fmt.Fprintf(r.w, "set %6d:    ", i)

		for _, way := range ways {
			dirty := ' '
			if way.Dirty {
				dirty = 'D'
			}
			fmt.Fprintf(r.w, "%x %c   ", way.Tag, dirty)
		}

		fmt.Fprintln(r.w)
	}
}

// WriteStreamBuffers prints the "===== Stream Buffer(s) contents =====" block.
// It is a no-op when prefN is 0, matching the reference's early return; with
// prefN > 0 the header is printed even when there are no valid buffers.
func (r *Reporter) WriteStreamBuffers(prefN uint32, buffers []Buffer) {
	if prefN == 0 {
		return
	}

	fmt.Fprintf(r.w, "\n===== Stream Buffer(s) contents =====\n")

	for _, buf := range buffers {
		for _, block := range buf.Blocks {
			fmt.Fprintf(r.w, " %x ", block)
		}

		fmt.Fprintln(r.w)
	}
}

// Buffer is the subset of streambuf.Buffer the reporter needs, expressed
// locally so this package does not import internal/streambuf.
type Buffer struct {
	Blocks []uint32
}

// WriteMeasurements prints the "===== Measurements =====" block, lines a-q,
// in the exact order and wording the reference implementation uses.
func (r *Reporter) WriteMeasurements(l1, l2 cache.Counters, hasL2 bool) {
	fmt.Fprintf(r.w, "\n===== Measurements =====\n")
	fmt.Fprintf(r.w, "a. L1 reads:                   %d\n", l1.Reads)
	fmt.Fprintf(r.w, "b. L1 read misses:             %d\n", l1.ReadMisses)
	fmt.Fprintf(r.w, "c. L1 writes:                  %d\n", l1.Writes)
	fmt.Fprintf(r.w, "d. L1 write misses:            %d\n", l1.WriteMisses)
	fmt.Fprintf(r.w, "e. L1 miss rate:               %.4f\n", l1.MissRate())
	fmt.Fprintf(r.w, "f. L1 writebacks:              %d\n", l1.Writebacks)
	fmt.Fprintf(r.w, "g. L1 prefetches:              %d\n", l1.Prefetches)

	var l2ReadMisses, l2Writes, l2WriteMisses, l2Writebacks, l2Prefetches uint64
	var l2MissRate float64

	if hasL2 {
		l2ReadMisses = l2.ReadMisses
		l2Writes = l2.Writes
		l2WriteMisses = l2.WriteMisses
		l2Writebacks = l2.Writebacks
		l2Prefetches = l2.Prefetches
		if l1.NextLevelDemands > 0 {
			rate := float64(l2.ReadMisses) / float64(l1.NextLevelDemands)
			if rate > 0 {
				l2MissRate = rate
			}
		}
	}

	fmt.Fprintf(r.w, "h. L2 reads (demand):          %d\n", l1.NextLevelDemands)
	fmt.Fprintf(r.w, "i. L2 read misses (demand):    %d\n", l2ReadMisses)
	fmt.Fprintf(r.w, "j. L2 reads (prefetch):        %d\n", 0)
	fmt.Fprintf(r.w, "k. L2 read misses (prefetch):  %d\n", 0)
	fmt.Fprintf(r.w, "l. L2 writes:                  %d\n", l2Writes)
	fmt.Fprintf(r.w, "m. L2 write misses:            %d\n", l2WriteMisses)
	fmt.Fprintf(r.w, "n. L2 miss rate:               %.4f\n", l2MissRate)
	fmt.Fprintf(r.w, "o. L2 writebacks:              %d\n", l2Writebacks)
	fmt.Fprintf(r.w, "p. L2 prefetches:              %d\n", l2Prefetches)

	last := l1
	if hasL2 {
		last = l2
	}
	traffic := last.ReadMisses + last.WriteMisses + last.Writebacks + last.Prefetches
	fmt.Fprintf(r.w, "q. memory traffic:             %d\n", traffic)
}
