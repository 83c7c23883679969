package dag

import (
	"sort"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/tcfw/dagledger/pkg/block"
)

const (
	DefaultOrphanCapacity = 512
)

// Orphan is a block waiting for one or more unknown parents
type Orphan struct {
	Block  *block.Block
	Hash   cid.Cid
	Weight uint64

	missing map[cid.Cid]struct{}
	seq     uint64
}

// Missing returns the parents the orphan is still waiting for
func (o *Orphan) Missing() []cid.Cid {
	m := make([]cid.Cid, 0, len(o.missing))
	for p := range o.missing {
		m = append(m, p)
	}
	SortHashes(m)
	return m
}

// OrphanPool buffers blocks whose parents are unknown. Each orphan is
// indexed under every parent it is missing and is released once all of them
// have been satisfied.
type OrphanPool struct {
	mu sync.Mutex

	capacity int

	orphans  map[cid.Cid]*Orphan
	byParent map[cid.Cid]map[cid.Cid]struct{}
	seq      uint64

	onEvict func(*Orphan)
}

func NewOrphanPool(capacity int, onEvict func(*Orphan)) *OrphanPool {
	if capacity <= 0 {
		capacity = DefaultOrphanCapacity
	}

	return &OrphanPool{
		capacity: capacity,
		orphans:  make(map[cid.Cid]*Orphan),
		byParent: make(map[cid.Cid]map[cid.Cid]struct{}),
		onEvict:  onEvict,
	}
}

func (p *OrphanPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.orphans)
}

func (p *OrphanPool) Has(id cid.Cid) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.orphans[id]
	return ok
}

func (p *OrphanPool) Get(id cid.Cid) (*Orphan, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orphans[id]
	return o, ok
}

// Add buffers b under each of its missing parents. When the pool is full the
// lowest weight orphan, oldest first, is evicted to make room. The evicted
// orphans are returned. A block already buffered is ignored. onEvict is
// called with the pool locked.
func (p *OrphanPool) Add(b *block.Block, id cid.Cid, weight uint64, missing []cid.Cid) []*Orphan {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.orphans[id]; ok || len(missing) == 0 {
		return nil
	}

	var evicted []*Orphan
	for len(p.orphans) >= p.capacity {
		victim := p.victim()
		p.remove(victim)
		evicted = append(evicted, victim)

		if p.onEvict != nil {
			p.onEvict(victim)
		}
	}

	p.seq++
	o := &Orphan{
		Block:   b,
		Hash:    id,
		Weight:  weight,
		missing: make(map[cid.Cid]struct{}, len(missing)),
		seq:     p.seq,
	}

	for _, m := range missing {
		o.missing[m] = struct{}{}

		w, ok := p.byParent[m]
		if !ok {
			w = make(map[cid.Cid]struct{})
			p.byParent[m] = w
		}
		w[id] = struct{}{}
	}

	p.orphans[id] = o

	return evicted
}

func (p *OrphanPool) victim() *Orphan {
	var v *Orphan
	for _, o := range p.orphans {
		if v == nil || o.Weight < v.Weight || (o.Weight == v.Weight && o.seq < v.seq) {
			v = o
		}
	}
	return v
}

// Remove deletes a single orphan from the pool
func (p *OrphanPool) Remove(id cid.Cid) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orphans[id]
	if !ok {
		return false
	}

	p.remove(o)
	return true
}

func (p *OrphanPool) remove(o *Orphan) {
	delete(p.orphans, o.Hash)

	for m := range o.missing {
		w := p.byParent[m]
		delete(w, o.Hash)
		if len(w) == 0 {
			delete(p.byParent, m)
		}
	}
}

// Satisfy marks parent as known and returns the orphans that no longer miss
// any parent, removed from the pool in arrival order.
func (p *OrphanPool) Satisfy(parent cid.Cid) []*Orphan {
	p.mu.Lock()
	defer p.mu.Unlock()

	waiting, ok := p.byParent[parent]
	if !ok {
		return nil
	}
	delete(p.byParent, parent)

	var released []*Orphan
	for id := range waiting {
		o := p.orphans[id]
		delete(o.missing, parent)

		if len(o.missing) == 0 {
			delete(p.orphans, id)
			released = append(released, o)
		}
	}

	sort.Slice(released, func(i, j int) bool { return released[i].seq < released[j].seq })

	return released
}

// Drop removes every orphan that descends from parent, which will never be
// accepted, and returns the removed orphans.
func (p *OrphanPool) Drop(parent cid.Cid) []*Orphan {
	p.mu.Lock()
	defer p.mu.Unlock()

	var dropped []*Orphan

	queue := []cid.Cid{parent}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		waiting, ok := p.byParent[next]
		if !ok {
			continue
		}

		ids := make([]cid.Cid, 0, len(waiting))
		for id := range waiting {
			ids = append(ids, id)
		}
		SortHashes(ids)

		for _, id := range ids {
			o, ok := p.orphans[id]
			if !ok {
				continue
			}

			p.remove(o)
			dropped = append(dropped, o)
			queue = append(queue, id)
		}
	}

	return dropped
}

// MissingAncestors returns the unknown blocks that must arrive before the
// buffered block id can be released, following chains of buffered orphans.
func (p *OrphanPool) MissingAncestors(id cid.Cid) []cid.Cid {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []cid.Cid
	seen := map[cid.Cid]struct{}{}

	stack := []cid.Cid{id}
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		o, ok := p.orphans[next]
		if !ok {
			continue
		}

		for m := range o.missing {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}

			if _, ok := p.orphans[m]; ok {
				stack = append(stack, m)
			} else {
				out = append(out, m)
			}
		}
	}

	SortHashes(out)
	return out
}
