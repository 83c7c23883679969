package dag

import (
	"container/heap"

	"github.com/ipfs/go-cid"
)

// isAncestor searches the past of b for a. Blocks at or below the height of
// a cannot have a in their past and are not expanded.
func isAncestor(g Graph, a, b cid.Cid) bool {
	ra, ok := g.Get(a)
	if !ok {
		return false
	}
	rb, ok := g.Get(b)
	if !ok || rb.Height <= ra.Height {
		return false
	}

	visited := map[cid.Cid]struct{}{}
	stack := append([]cid.Cid(nil), rb.Parents()...)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id.Equals(a) {
			return true
		}

		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		r, ok := g.Get(id)
		if !ok || r.Height <= ra.Height {
			continue
		}

		stack = append(stack, r.Parents()...)
	}

	return false
}

func ancestors(g Graph, id cid.Cid, limit int) ([]cid.Cid, error) {
	r, ok := g.Get(id)
	if !ok {
		return nil, ErrUnknownBlock
	}

	queue := &byHeight{}
	seen := map[cid.Cid]struct{}{}

	push := func(ids []cid.Cid) {
		for _, p := range ids {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}

			if pr, ok := g.Get(p); ok {
				heap.Push(queue, pr)
			}
		}
	}

	push(r.Parents())

	var out []cid.Cid
	for queue.Len() > 0 && (limit <= 0 || len(out) < limit) {
		next := heap.Pop(queue).(*Record)
		out = append(out, next.Hash)
		push(next.Parents())
	}

	return out, nil
}

// byHeight is a max heap of records by height, ties by lowest hash
type byHeight []*Record

func (h byHeight) Len() int { return len(h) }
func (h byHeight) Less(i, j int) bool {
	if h[i].Height != h[j].Height {
		return h[i].Height > h[j].Height
	}
	return HashLess(h[i].Hash, h[j].Hash)
}
func (h byHeight) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *byHeight) Push(x interface{}) { *h = append(*h, x.(*Record)) }
func (h *byHeight) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
