package tagging

// lruVictim returns the way ID at the front of the LRU queue. It is kept as
// a separate, named step (rather than inlined into TagArray.Victim) so the
// replacement policy stays easy to swap out, mirroring the teacher's
// VictimFinder/LRUVictimFinder split between the tag array and its eviction
// strategy.
func lruVictim(set *Set) int {
	return set.LRUQueue[0]
}
