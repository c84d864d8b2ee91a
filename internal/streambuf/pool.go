// Package streambuf implements the stream-buffer pool that backs hardware
// sequential prefetching at one cache level: a fixed set of FIFOs that each
// track a contiguous run of blocks, ordered MRU-first so both allocation
// and the final dump have a well-defined order (spec §3, §4.3).
package streambuf

import "container/list"

// Mode selects how Refill fills a buffer's slots, per spec §4.3.
type Mode int

const (
	// NewStream overwrites every slot starting from blockAddr+1.
	NewStream Mode = iota
	// Continue refills only the slots that are stale after head advanced.
	Continue
)

// Buffer is one stream buffer's state, exposed read-only for dumps.
type Buffer struct {
	Valid  bool
	Head   int
	Blocks []uint32
}

// Pool is a fixed pool of N stream buffers of depth M each.
type Pool interface {
	// Probe scans buffers MRU-to-LRU for blockAddr. On a hit it advances the
	// buffer's head past the matched slot and promotes the buffer to MRU.
	Probe(blockAddr uint32) (bufferID int, ok bool)
	// Refill overwrites bufferID's stale/all slots per mode and promotes it
	// to MRU. It returns the block addresses that were newly written, in
	// ascending order — each one is both a prefetch count and a read the
	// caller should issue to the lower level.
	Refill(bufferID int, blockAddr uint32, mode Mode) []uint32
	// AllocateNewStream picks the LRU buffer, starts a new stream on it from
	// blockAddr, and returns its ID plus the blocks it was filled with.
	AllocateNewStream(blockAddr uint32) (bufferID int, prefetched []uint32)
	// Depth returns pref_m, the number of blocks each buffer holds.
	Depth() int
	// MRUOrder returns the valid buffers, most-recently-used first, each
	// with its blocks in logical order starting at Head (for dumps).
	MRUOrder() []Buffer
}

type pool struct {
	depth   int
	buffers []Buffer
	// order holds buffer IDs; front = MRU, back = LRU, mirroring the
	// container/list MoveToFront/PushFront/evict-from-back idiom used for
	// LRU pools elsewhere in the corpus.
	order    *list.List
	elements []*list.Element
}

// New allocates a Pool of n buffers, each holding m consecutive blocks. n
// may be 0, which disables prefetching: every Probe call then misses and
// MRUOrder returns an empty slice.
func New(n, m int) Pool {
	p := &pool{
		depth:    m,
		buffers:  make([]Buffer, n),
		order:    list.New(),
		elements: make([]*list.Element, n),
	}

	for i := 0; i < n; i++ {
		p.buffers[i] = Buffer{Blocks: make([]uint32, m)}
		p.elements[i] = p.order.PushFront(i)
	}

	return p
}

func (p *pool) Depth() int {
	return p.depth
}

func (p *pool) Probe(blockAddr uint32) (int, bool) {
	for e := p.order.Front(); e != nil; e = e.Next() {
		id := e.Value.(int)
		buf := &p.buffers[id]
		if !buf.Valid {
			continue
		}

		for i, b := range buf.Blocks {
			if b == blockAddr {
				buf.Head = (i + 1) % p.depth
				p.order.MoveToFront(e)

				return id, true
			}
		}
	}

	return 0, false
}

func (p *pool) Refill(bufferID int, blockAddr uint32, mode Mode) []uint32 {
	buf := &p.buffers[bufferID]

	var written []uint32

	switch mode {
	case NewStream:
		for i := 0; i < p.depth; i++ {
			buf.Blocks[i] = blockAddr + 1 + uint32(i)
			written = append(written, buf.Blocks[i])
		}
		buf.Head = 0
	case Continue:
		for i := 0; i < p.depth; i++ {
			pos := (buf.Head + i) % p.depth
			expected := blockAddr + 1 + uint32(i)
			if buf.Blocks[pos] != expected {
				buf.Blocks[pos] = expected
				written = append(written, expected)
			}
		}
	}

	buf.Valid = true
	p.order.MoveToFront(p.elements[bufferID])

	return written
}

func (p *pool) AllocateNewStream(blockAddr uint32) (int, []uint32) {
	back := p.order.Back()
	victimID := back.Value.(int)

	prefetched := p.Refill(victimID, blockAddr, NewStream)

	return victimID, prefetched
}

func (p *pool) MRUOrder() []Buffer {
	out := make([]Buffer, 0, len(p.buffers))

	for e := p.order.Front(); e != nil; e = e.Next() {
		id := e.Value.(int)
		buf := p.buffers[id]
		if !buf.Valid {
			continue
		}

		ordered := make([]uint32, p.depth)
		for i := 0; i < p.depth; i++ {
			ordered[i] = buf.Blocks[(buf.Head+i)%p.depth]
		}
		out = append(out, Buffer{Valid: true, Head: buf.Head, Blocks: ordered})
	}

	return out
}
