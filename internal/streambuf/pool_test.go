package streambuf_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/cachesim/internal/streambuf"
)

var _ = Describe("Pool", func() {
	It("misses on every probe when empty", func() {
		p := streambuf.New(0, 4)
		_, ok := p.Probe(0)
		Expect(ok).To(BeFalse())
		Expect(p.MRUOrder()).To(BeEmpty())
	})

	It("starts a new stream covering the next pref_m blocks", func() {
		p := streambuf.New(1, 4)
		id, prefetched := p.AllocateNewStream(0)
		Expect(id).To(Equal(0))
		Expect(prefetched).To(Equal([]uint32{1, 2, 3, 4}))
	})

	It("probes a hit and advances head past the matched block", func() {
		p := streambuf.New(1, 4)
		p.AllocateNewStream(0) // blocks = [1,2,3,4]

		id, ok := p.Probe(1)
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(0))

		order := p.MRUOrder()
		Expect(order).To(HaveLen(1))
		// Head now points just past block 1: logical order starts at 2.
		Expect(order[0].Blocks).To(Equal([]uint32{2, 3, 4, 1}))
	})

	It("refills only stale tail slots on CONTINUE", func() {
		p := streambuf.New(1, 4)
		p.AllocateNewStream(0) // blocks = [1,2,3,4], head=0
		p.Probe(1)             // head -> 1

		written := p.Refill(0, 1, streambuf.Continue)
		// After consuming block 1, slot 0 (value 1) is stale; expected
		// sequence from block 1 is 2,3,4,5 — only slot holding 5 changes.
		Expect(written).To(Equal([]uint32{5}))
	})

	It("selects the LRU buffer for a new stream allocation", func() {
		p := streambuf.New(2, 2)
		idA, _ := p.AllocateNewStream(0)   // blocks [1,2]
		idB, _ := p.AllocateNewStream(100) // blocks [101,102]
		Expect(idA).ToNot(Equal(idB))

		p.Probe(1) // touches A's buffer, promoting it to MRU

		idC, _ := p.AllocateNewStream(200)
		Expect(idC).To(Equal(idB)) // B was LRU after A got touched
	})

	It("returns the first MRU match when two buffers share a block", func() {
		p := streambuf.New(2, 2)
		idA, _ := p.AllocateNewStream(0) // [1,2]
		p.Refill(idA, 0, streambuf.NewStream)

		idB, _ := p.AllocateNewStream(1) // [2,3], now MRU
		Expect(idB).ToNot(Equal(idA))

		hit, ok := p.Probe(2)
		Expect(ok).To(BeTrue())
		Expect(hit).To(Equal(idB))
	})
})
