package forkchoice

import (
	"github.com/ipfs/go-cid"
	"github.com/tcfw/dagledger/pkg/trie"
)

// Canonical is the materialised canonical view: the total order dominated by
// the canonical tip and the state root after each position. Views derived
// from one another share storage; a view is never modified once built.
type Canonical struct {
	Tip   cid.Cid
	Chain []cid.Cid
	Order []cid.Cid
	Roots []cid.Cid

	excluded  []bool
	positions *index
	chainPos  *index
}

// Empty is the view before the genesis block is known
func Empty() *Canonical {
	return &Canonical{
		positions: newIndex(nil),
		chainPos:  newIndex(nil),
	}
}

// derive builds the view of p.tip on top of c. roots and excluded hold the
// materialised entries for p.add.
func (c *Canonical) derive(p *plan, roots []cid.Cid, excluded []bool) *Canonical {
	next := &Canonical{Tip: p.tip}

	inPlace := p.keep == len(c.Order) && c.positions.isHead(len(c.Order))

	next.positions, next.Order = grow(c.positions, c.Order, p.keep, p.add)
	next.chainPos, next.Chain = grow(c.chainPos, c.Chain, p.chainKeep, p.chain)

	if inPlace {
		next.Roots = append(c.Roots, roots...)
		next.excluded = append(c.excluded, excluded...)
		return next
	}

	next.Roots = make([]cid.Cid, p.keep, p.keep+len(roots))
	copy(next.Roots, c.Roots[:p.keep])
	next.Roots = append(next.Roots, roots...)

	next.excluded = make([]bool, p.keep, p.keep+len(excluded))
	copy(next.excluded, c.excluded[:p.keep])
	next.excluded = append(next.excluded, excluded...)

	return next
}

// StateRoot is the state after applying the whole order
func (c *Canonical) StateRoot() cid.Cid {
	if len(c.Roots) == 0 {
		return trie.EmptyRoot
	}
	return c.Roots[len(c.Roots)-1]
}

// Position returns the index of id in the order
func (c *Canonical) Position(id cid.Cid) (int, bool) {
	return c.positions.lookup(c.Order, id)
}

func (c *Canonical) Contains(id cid.Cid) bool {
	_, ok := c.Position(id)
	return ok
}

func (c *Canonical) chainPosition(id cid.Cid) (int, bool) {
	return c.chainPos.lookup(c.Chain, id)
}

// IsExcluded reports whether id is ordered but was skipped when materialising
// because it conflicts with the state before it
func (c *Canonical) IsExcluded(id cid.Cid) bool {
	i, ok := c.Position(id)
	return ok && c.excluded[i]
}

// RootAt is the state root after applying the order up to and including id
func (c *Canonical) RootAt(id cid.Cid) (cid.Cid, bool) {
	i, ok := c.Position(id)
	if !ok {
		return cid.Undef, false
	}
	return c.Roots[i], true
}

// Excluded returns the excluded blocks in order
func (c *Canonical) Excluded() []cid.Cid {
	var out []cid.Cid
	for i, id := range c.Order {
		if c.excluded[i] {
			out = append(out, id)
		}
	}
	return out
}

// commonPrefix is the length of the longest shared prefix of the orders of a
// and b
func commonPrefix(a, b *Canonical) int {
	i := sharedPrefix(a.positions, a.Order, b.positions, b.Order)
	for i < len(a.Order) && i < len(b.Order) && a.Order[i].Equals(b.Order[i]) {
		i++
	}
	return i
}
