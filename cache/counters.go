package cache

// Counters accumulates the per-level statistics spec §4.4 requires. Every
// field is monotonically non-decreasing across the lifetime of a Cache.
type Counters struct {
	Reads            uint64
	Writes           uint64
	ReadMisses       uint64
	WriteMisses      uint64
	Writebacks       uint64
	Prefetches       uint64
	NextLevelDemands uint64
}

// Accesses returns Reads + Writes.
func (c Counters) Accesses() uint64 {
	return c.Reads + c.Writes
}

// Misses returns ReadMisses + WriteMisses.
func (c Counters) Misses() uint64 {
	return c.ReadMisses + c.WriteMisses
}

// MissRate returns max(0, misses/accesses), 0 when there were no accesses.
func (c Counters) MissRate() float64 {
	if c.Accesses() == 0 {
		return 0
	}

	rate := float64(c.Misses()) / float64(c.Accesses())
	if rate < 0 {
		return 0
	}

	return rate
}
