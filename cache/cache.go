// Package cache implements one level of a set-associative, write-back,
// write-allocate cache with strict LRU replacement and an optional stream-
// buffer prefetcher, recursively backed by a lower Level. See spec §4.4 for
// the access decision table this file implements.
package cache

import (
	"github.com/sarchlab/cachesim/internal/addr"
	"github.com/sarchlab/cachesim/internal/streambuf"
	"github.com/sarchlab/cachesim/internal/tagging"
)

// Op is the kind of memory reference driving an access.
type Op int

const (
	// Read is a load.
	Read Op = iota
	// Write is a store.
	Write
)

// Result is the outcome of an Access call.
type Result int

const (
	// Hit means the cache satisfied the access without a demand read to
	// the lower level (a stream-buffer refill may still issue prefetch
	// reads to it).
	Hit Result = iota
	// Miss means the cache had to allocate a new line for the access.
	Miss
)

// Level is anything that can serve a demand/writeback/prefetch access, per
// spec §9's suggested abstraction ("a trait/interface object ... also
// admits a mock memory for tests"). A Cache implements Level; nil models
// "no lower level" — memory implicitly serves that case and isn't modeled.
type Level interface {
	Access(address uint32, op Op) Result
}

// Cache is one level of the hierarchy: tag array + optional stream-buffer
// pool, tied to an optional lower Level.
type Cache struct {
	geometry   addr.Geometry
	tags       tagging.TagArray
	prefetcher streambuf.Pool
	prefN      uint32
	lower      Level

	counters Counters
}

// Builder constructs a Cache with a fluent WithX chain, mirroring the
// teacher's mem/cache.Builder shape.
type Builder struct {
	blocksize uint32
	size      uint32
	assoc     uint32
	prefN     uint32
	prefM     uint32
	lower     Level
}

// MakeBuilder returns a Builder with no prefetcher and no lower level.
func MakeBuilder() Builder {
	return Builder{prefM: 1}
}

// WithBlockSize sets the block size in bytes.
func (b Builder) WithBlockSize(blocksize uint32) Builder {
	b.blocksize = blocksize
	return b
}

// WithSize sets the total data size in bytes.
func (b Builder) WithSize(size uint32) Builder {
	b.size = size
	return b
}

// WithAssoc sets the number of ways per set.
func (b Builder) WithAssoc(assoc uint32) Builder {
	b.assoc = assoc
	return b
}

// WithPrefetcher enables n stream buffers of depth m. n == 0 disables
// prefetching; m is validated against n by Build, not clamped here.
func (b Builder) WithPrefetcher(n, m uint32) Builder {
	b.prefN = n
	b.prefM = m
	return b
}

// WithLowerLevel sets the level this cache propagates demands/writebacks/
// prefetches to. A nil lower level means this is the last level before
// memory.
func (b Builder) WithLowerLevel(lower Level) Builder {
	b.lower = lower
	return b
}

// Build validates the geometry and allocates the Cache, returning
// *addr.ConfigError if the geometry is inconsistent (spec §7).
func (b Builder) Build() (*Cache, error) {
	geometry, err := addr.NewGeometry(b.blocksize, b.size, b.assoc)
	if err != nil {
		return nil, err
	}

	if b.prefN > 0 && b.prefM == 0 {
		return nil, &addr.ConfigError{Reason: "pref_m must be >= 1 when pref_n > 0"}
	}

	return &Cache{
		geometry:   geometry,
		tags:       tagging.New(geometry.NumSets, geometry.Assoc),
		prefetcher: streambuf.New(int(b.prefN), int(b.prefM)),
		prefN:      b.prefN,
		lower:      b.lower,
	}, nil
}

// Counters returns a snapshot of this level's statistics.
func (c *Cache) Counters() Counters {
	return c.counters
}

// Access performs one cache access, implementing the four-scenario
// decision table of spec §4.4.
func (c *Cache) Access(address uint32, op Op) Result {
	decoded := c.geometry.Decode(address)

	if op == Read {
		c.counters.Reads++
	} else {
		c.counters.Writes++
	}

	prefetchBufID, prefetchHit := -1, false
	if c.prefN > 0 {
		if id, ok := c.prefetcher.Probe(decoded.Block); ok {
			prefetchBufID, prefetchHit = id, true
		}
	}

	if wayID, ok := c.tags.Lookup(decoded.Index, decoded.Tag); ok {
		return c.onCacheHit(decoded, op, wayID, prefetchBufID, prefetchHit)
	}

	return c.onCacheMiss(address, decoded, op, prefetchBufID, prefetchHit)
}

// onCacheHit handles decision-table rows 1 and 2 (cache hit).
func (c *Cache) onCacheHit(
	decoded addr.Address,
	op Op,
	wayID int,
	prefetchBufID int,
	prefetchHit bool,
) Result {
	if op == Write {
		c.tags.MarkDirty(decoded.Index, wayID)
	}
	c.tags.Touch(decoded.Index, wayID)

	if prefetchHit {
		c.consumeFromStreamBuffer(prefetchBufID, decoded.Block, streambuf.Continue)
	}

	return Hit
}

// onCacheMiss handles decision-table rows 3 and 4 (cache miss).
func (c *Cache) onCacheMiss(
	address uint32,
	decoded addr.Address,
	op Op,
	prefetchBufID int,
	prefetchHit bool,
) Result {
	victim := c.tags.Victim(decoded.Index)
	c.writebackIfDirty(decoded.Index, victim)

	if prefetchHit {
		// Scenario 2: the block comes from the stream buffer, so no demand
		// is sent to the lower level.
		c.consumeFromStreamBuffer(prefetchBufID, decoded.Block, streambuf.Continue)
	} else {
		// Scenario 1: genuine demand miss.
		if op == Read {
			c.counters.ReadMisses++
		} else {
			c.counters.WriteMisses++
		}

		if c.lower != nil {
			c.lower.Access(address, Read)
			c.counters.NextLevelDemands++
		}

		if c.prefN > 0 {
			_, prefetched := c.prefetcher.AllocateNewStream(decoded.Block)
			c.issuePrefetches(prefetched)
		}
	}

	c.tags.Install(decoded.Index, victim, decoded.Tag, op == Write)

	return Miss
}

// consumeFromStreamBuffer refills a buffer that was just probed and issues
// any newly-written blocks as prefetch reads to the lower level, in
// ascending block order, per the ordering guarantee in spec §5.
func (c *Cache) consumeFromStreamBuffer(bufferID int, blockAddr uint32, mode streambuf.Mode) {
	written := c.prefetcher.Refill(bufferID, blockAddr, mode)
	c.issuePrefetches(written)
}

func (c *Cache) issuePrefetches(blockAddrs []uint32) {
	for _, b := range blockAddrs {
		c.counters.Prefetches++
		if c.lower != nil {
			c.lower.Access(c.geometry.BlockAddrToAddr(b), Read)
		}
	}
}

// writebackIfDirty writes the victim way back to the lower level if it is
// valid and dirty and bumps Writebacks. It leaves the dirty bit as it is;
// the Install that follows overwrites it.
func (c *Cache) writebackIfDirty(index uint32, wayID int) {
	way := c.tags.Way(index, wayID)
	if !way.Valid || !way.Dirty {
		return
	}

	if c.lower != nil {
		evictedAddr := c.geometry.EvictedAddr(way.Tag, index)
		c.lower.Access(evictedAddr, Write)
	}
	c.counters.Writebacks++
}

// SetContents returns, for every set, its valid ways MRU-first, for the
// final cache dump (spec §6.1).
func (c *Cache) SetContents() [][]tagging.Way {
	out := make([][]tagging.Way, c.geometry.NumSets)
	for i := uint32(0); i < c.geometry.NumSets; i++ {
		ids := c.tags.MRUOrder(i)
		ways := make([]tagging.Way, 0, len(ids))
		for _, id := range ids {
			ways = append(ways, c.tags.Way(i, id))
		}
		out[i] = ways
	}

	return out
}

// StreamBufferContents returns the valid stream buffers MRU-first, each
// with its blocks in logical order starting at head, for the final
// stream-buffer dump (spec §6.2).
func (c *Cache) StreamBufferContents() []streambuf.Buffer {
	return c.prefetcher.MRUOrder()
}

// Geometry returns the cache's derived geometry, e.g. for the memory-
// traffic formula's offset-bit arithmetic in the reporter.
func (c *Cache) Geometry() addr.Geometry {
	return c.geometry
}

// PrefN returns the configured number of stream buffers (0 if prefetching
// is disabled at this level).
func (c *Cache) PrefN() uint32 {
	return c.prefN
}
