package cache_test

import "github.com/sarchlab/cachesim/cache"

// fakeLevel is a hand-written test double standing in for a lower-level
// Cache or for "memory" — see DESIGN.md for why this replaces a mockgen-
// generated mock.
type fakeLevel struct {
	calls []call
}

type call struct {
	address uint32
	op      cache.Op
}

func (f *fakeLevel) Access(address uint32, op cache.Op) cache.Result {
	f.calls = append(f.calls, call{address: address, op: op})
	return cache.Miss
}

func (f *fakeLevel) writeCount() int {
	n := 0
	for _, c := range f.calls {
		if c.op == cache.Write {
			n++
		}
	}

	return n
}

func (f *fakeLevel) readCount() int {
	n := 0
	for _, c := range f.calls {
		if c.op == cache.Read {
			n++
		}
	}

	return n
}
