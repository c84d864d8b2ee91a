package tagging_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/cachesim/internal/tagging"
)

var _ = Describe("TagArray", func() {
	var tags tagging.TagArray

	BeforeEach(func() {
		tags = tagging.New(4, 2)
	})

	It("reports a miss on a cold set", func() {
		_, ok := tags.Lookup(0, 0x10)
		Expect(ok).To(BeFalse())
	})

	It("finds an installed way by tag", func() {
		tags.Install(0, 1, 0x10, false)

		wayID, ok := tags.Lookup(0, 0x10)
		Expect(ok).To(BeTrue())
		Expect(wayID).To(Equal(1))
	})

	It("victimizes an invalid way before evicting a valid one", func() {
		// assoc=2: one way is filled and promoted to MRU, so the
		// still-invalid way is left at the LRU end and is the victim.
		tags.Install(0, 0, 0x10, false)
		victim := tags.Victim(0)
		Expect(tags.Way(0, victim).Valid).To(BeFalse())
	})

	It("evicts the least-recently-used way once all ways are valid", func() {
		tags.Install(0, 0, 0x10, false)
		tags.Install(0, 1, 0x20, false)
		// Way 0 was installed first, so it is LRU relative to way 1.
		Expect(tags.Victim(0)).To(Equal(0))
	})

	It("promotes a way to MRU on touch", func() {
		tags.Install(0, 0, 0x10, false)
		tags.Install(0, 1, 0x20, false)
		tags.Touch(0, 0)
		// Touching way 0 makes way 1 the new LRU/victim.
		Expect(tags.Victim(0)).To(Equal(1))
	})

	It("marks a way dirty without disturbing its tag", func() {
		tags.Install(0, 0, 0x10, false)
		tags.MarkDirty(0, 0)
		Expect(tags.Way(0, 0).Dirty).To(BeTrue())
		Expect(tags.Way(0, 0).Tag).To(Equal(uint32(0x10)))
	})

	It("lists valid ways MRU first", func() {
		tags.Install(0, 0, 0x10, false)
		tags.Install(0, 1, 0x20, false)
		tags.Touch(0, 0)
		Expect(tags.MRUOrder(0)).To(Equal([]int{0, 1}))
	})

	It("maintains a permutation of LRU ranks across many accesses", func() {
		tags.Install(0, 0, 0x1, false)
		tags.Install(0, 1, 0x2, false)
		tags.Touch(0, 0)
		tags.Touch(0, 1)
		tags.Touch(0, 0)

		seen := map[int]bool{}
		for i := 0; i < 2; i++ {
			v := tags.Victim(0)
			Expect(seen[v]).To(BeFalse())
			tags.Touch(0, v) // rotate through both ways
			seen[v] = true
		}
		Expect(seen).To(HaveLen(2))
	})
})
