package alloc

// candidate is one entry of the preallocation list: a free block along with
// its age, queued up so allocation rarely has to fall back to scanning the
// bitmap from allocate_head (§4.4).
type candidate struct {
	block uint32
	age   uint32
}

// prealloc holds up to capacity candidates ascending by age, so the front
// is always the youngest (least-worn) block seen so far and the back is
// the oldest. A plain ascending slice is the literal shape §4.4 describes
// ("ascending by age... evicts oldest when full") and both ends it needs
// (pop-youngest, evict-oldest) are O(1) against a slice; container/heap
// only gives cheap access to one end, not both, so it doesn't fit this
// shape as directly.
type prealloc struct {
	capacity int
	entries  []candidate
}

func newPrealloc(capacity int) *prealloc {
	return &prealloc{capacity: capacity}
}

func (p *prealloc) len() int { return len(p.entries) }

// push inserts c in ascending-age order, evicting the oldest entry first
// if the list is already at capacity.
func (p *prealloc) push(c candidate) {
	i := 0
	for i < len(p.entries) && p.entries[i].age <= c.age {
		i++
	}
	p.entries = append(p.entries, candidate{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = c

	if len(p.entries) > p.capacity {
		p.entries = p.entries[:p.capacity]
	}
}

// popMeeting removes and returns the youngest entry if meanAge-age >=
// threshold, reporting ok=false if the list is empty or nothing qualifies.
func (p *prealloc) popMeeting(meanAge uint32, threshold int32) (candidate, bool) {
	if len(p.entries) == 0 {
		return candidate{}, false
	}
	c := p.entries[0]
	if !sufficientlyWorn(c.age, meanAge, threshold) {
		return candidate{}, false
	}
	p.entries = p.entries[1:]
	return c, true
}

// sufficientlyWorn reports whether a candidate of the given age is far
// enough below the mean free age to be worth preferring (§4.4): sufficient
// when mean_free_age - age >= threshold, done in signed arithmetic since
// threshold is decremented below zero across rejected candidates and age
// may exceed the mean.
func sufficientlyWorn(age, meanAge uint32, threshold int32) bool {
	return int64(meanAge)-int64(age) >= int64(threshold)
}

// removeBlock drops block from the list if present, used when a block is
// claimed directly off the bitmap scan path and might also be sitting in
// prealloc from an earlier population pass.
func (p *prealloc) removeBlock(block uint32) {
	for i, c := range p.entries {
		if c.block == block {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}
