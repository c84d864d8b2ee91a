package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/cachesim/cache"
)

// Geometry used throughout: blocksize=16 => offset_bits=4; size=64, assoc=1
// => 4 sets. Matches spec §8's concrete scenarios.
func buildL1(opts ...func(cache.Builder) cache.Builder) *cache.Cache {
	b := cache.MakeBuilder().WithBlockSize(16).WithSize(64).WithAssoc(1)
	for _, o := range opts {
		b = o(b)
	}
	c, err := b.Build()
	Expect(err).NotTo(HaveOccurred())

	return c
}

var _ = Describe("Cache.Access", func() {
	It("scenario 1: repeated read of the same address is one miss then one hit", func() {
		l1 := buildL1()

		Expect(l1.Access(0x0, cache.Read)).To(Equal(cache.Miss))
		Expect(l1.Access(0x0, cache.Read)).To(Equal(cache.Hit))

		ctr := l1.Counters()
		Expect(ctr.Reads).To(Equal(uint64(2)))
		Expect(ctr.ReadMisses).To(Equal(uint64(1)))
		Expect(ctr.Writebacks).To(Equal(uint64(0)))
	})

	It("scenario 2: evicting a dirty line issues a writeback", func() {
		l1 := buildL1()

		l1.Access(0x100, cache.Write) // installs dirty line in set 0
		l1.Access(0x200, cache.Read)  // same set (assoc=1), evicts it

		Expect(l1.Counters().Writebacks).To(Equal(uint64(1)))
	})

	It("scenario 3: a demand miss that starts a stream then rides it for the next 3 blocks", func() {
		lower := &fakeLevel{}
		l1 := buildL1(func(b cache.Builder) cache.Builder {
			return b.WithLowerLevel(lower).WithPrefetcher(1, 4)
		})

		l1.Access(0x0, cache.Read)
		l1.Access(0x10, cache.Read)
		l1.Access(0x20, cache.Read)
		l1.Access(0x30, cache.Read)

		ctr := l1.Counters()
		Expect(ctr.Reads).To(Equal(uint64(4)))
		Expect(ctr.ReadMisses).To(Equal(uint64(1)))
		Expect(ctr.Prefetches).To(Equal(uint64(7)))
		Expect(ctr.NextLevelDemands).To(Equal(uint64(1)))
	})

	It("scenario 5: a dirty writeback carries a zero-offset reconstructed address", func() {
		lower := &fakeLevel{}
		l1 := buildL1(func(b cache.Builder) cache.Builder {
			return b.WithLowerLevel(lower)
		})

		l1.Access(0xdeadbeef, cache.Write)
		l1.Access(0x20, cache.Read) // same set as 0xdeadbeef (assoc=1), evicts the dirty line

		// Lower-level calls: demand read of 0xdeadbeef, then for the second
		// access the writeback followed by the demand read of 0x20.
		Expect(lower.writeCount()).To(Equal(1))
		evicted := lower.calls[len(lower.calls)-2]
		Expect(evicted.op).To(Equal(cache.Write))
		Expect(evicted.address % 16).To(Equal(uint32(0)))
	})

	It("idempotent re-read increments reads by 2 and read_misses by 1", func() {
		l1 := buildL1()

		l1.Access(0x40, cache.Read)
		l1.Access(0x40, cache.Read)

		ctr := l1.Counters()
		Expect(ctr.Reads).To(Equal(uint64(2)))
		Expect(ctr.ReadMisses).To(Equal(uint64(1)))
	})

	It("suppresses the demand read to the lower level on a prefetch hit", func() {
		lower := &fakeLevel{}
		l1 := buildL1(func(b cache.Builder) cache.Builder {
			return b.WithLowerLevel(lower).WithPrefetcher(1, 4)
		})

		l1.Access(0x0, cache.Read)  // miss, starts stream [1,2,3,4], demand+4 prefetches
		demandsBefore := l1.Counters().NextLevelDemands
		l1.Access(0x10, cache.Read) // miss, but prefetch hit on block 1

		Expect(l1.Counters().NextLevelDemands).To(Equal(demandsBefore))
	})

	It("propagates a demand miss to the lower level as a read", func() {
		lower := &fakeLevel{}
		l1 := buildL1(func(b cache.Builder) cache.Builder {
			return b.WithLowerLevel(lower)
		})

		l1.Access(0x500, cache.Read)

		Expect(lower.readCount()).To(Equal(1))
	})

	It("rejects an inconsistent geometry at build time", func() {
		_, err := cache.MakeBuilder().WithBlockSize(17).WithSize(64).WithAssoc(1).Build()
		Expect(err).To(HaveOccurred())
	})

	It("rejects pref_m == 0 when pref_n > 0 at build time", func() {
		_, err := cache.MakeBuilder().WithBlockSize(16).WithSize(64).WithAssoc(1).
			WithPrefetcher(2, 0).Build()
		Expect(err).To(HaveOccurred())
	})

	It("conserves writebacks <= misses", func() {
		lower := &fakeLevel{}
		l1 := buildL1(func(b cache.Builder) cache.Builder {
			return b.WithLowerLevel(lower)
		})

		for _, a := range []uint32{0x0, 0x100, 0x200, 0x300, 0x400} {
			l1.Access(a, cache.Write)
		}

		ctr := l1.Counters()
		Expect(ctr.Writebacks).To(BeNumerically("<=", ctr.ReadMisses+ctr.WriteMisses))
	})
})
