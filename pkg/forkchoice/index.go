package forkchoice

import (
	"sync"

	"github.com/ipfs/go-cid"
)

// maxIndexLayers bounds the lookup chain; deeper forks are flattened
const maxIndexLayers = 16

// index maps ids to positions of an append-only sequence shared by views of
// different lengths. Only the view whose length equals size may append. A
// fork starts a layer that resolves positions below base through its parent.
// Lookups must be checked against the caller's own sequence.
type index struct {
	mu sync.RWMutex

	parent *index
	base   int
	depth  int
	size   int
	own    map[cid.Cid]int
}

func newIndex(seq []cid.Cid) *index {
	x := &index{
		own:  make(map[cid.Cid]int, len(seq)),
		size: len(seq),
	}

	for i, id := range seq {
		x.own[id] = i
	}

	return x
}

// lookup returns the position of id within seq, a sequence held on x
func (x *index) lookup(seq []cid.Cid, id cid.Cid) (int, bool) {
	limit := len(seq)

	for s := x; s != nil; s = s.parent {
		s.mu.RLock()
		i, ok := s.own[id]
		s.mu.RUnlock()

		if ok {
			if i < limit && seq[i].Equals(id) {
				return i, true
			}
			return 0, false
		}

		if s.base < limit {
			limit = s.base
		}
	}

	return 0, false
}

func (x *index) isHead(n int) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return x.size == n
}

func (x *index) set(id cid.Cid, i int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.own[id] = i
	if i >= x.size {
		x.size = i + 1
	}
}

// fork returns a layer sharing the first keep entries of seq
func (x *index) fork(seq []cid.Cid, keep int) *index {
	if x.depth+1 >= maxIndexLayers {
		return newIndex(seq[:keep])
	}

	return &index{
		parent: x,
		base:   keep,
		depth:  x.depth + 1,
		size:   keep,
		own:    make(map[cid.Cid]int),
	}
}

// sharedPrefix is a lower bound on the common prefix of a and b, sequences
// held on x and y, derived from the layers alone
func sharedPrefix(x *index, a []cid.Cid, y *index, b []cid.Cid) int {
	limitA := len(a)
	for s := x; s != nil; s = s.parent {
		limitB := len(b)
		for t := y; t != nil; t = t.parent {
			if s == t {
				if limitA < limitB {
					return limitA
				}
				return limitB
			}
			if t.base < limitB {
				limitB = t.base
			}
		}

		if s.base < limitA {
			limitA = s.base
		}
	}

	return 0
}

// grow returns seq[:keep] followed by add. The backing array and x are reused
// when seq is the head of x and nothing is dropped.
func grow(x *index, seq []cid.Cid, keep int, add []cid.Cid) (*index, []cid.Cid) {
	var out []cid.Cid

	if keep == len(seq) && x.isHead(len(seq)) {
		out = append(seq, add...)
	} else {
		out = make([]cid.Cid, keep, keep+len(add))
		copy(out, seq[:keep])
		out = append(out, add...)
		x = x.fork(seq, keep)
	}

	for i, id := range add {
		x.set(id, keep+i)
	}

	return x, out
}
