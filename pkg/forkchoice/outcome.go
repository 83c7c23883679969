package forkchoice

import (
	"github.com/ipfs/go-cid"
)

type ReorgKind uint8

const (
	NoChange ReorgKind = iota
	Extend
	Reorganize
)

func (k ReorgKind) String() string {
	switch k {
	case NoChange:
		return "no_change"
	case Extend:
		return "extend"
	case Reorganize:
		return "reorganize"
	default:
		return "unknown"
	}
}

// ReorgOutcome describes how the canonical view changed
type ReorgOutcome struct {
	Kind ReorgKind

	OldTip cid.Cid
	NewTip cid.Cid

	// CommonAncestor is the last block both orders share
	CommonAncestor cid.Cid

	// RolledBack lists the blocks removed from the order, in their old order
	RolledBack []cid.Cid

	// Applied lists the blocks appended to the common prefix, in order
	Applied []cid.Cid

	// Excluded lists the applied blocks skipped for conflicting with the
	// state before them
	Excluded []cid.Cid

	StateChanged bool

	// Skipped lists heavier tips that were not adopted because the reorg
	// would exceed the maximum depth
	Skipped []cid.Cid
}

// Depth is the number of blocks rolled back
func (o ReorgOutcome) Depth() int {
	return len(o.RolledBack)
}

// Diff computes the outcome of moving the canonical view from old to next
func Diff(old, next *Canonical) ReorgOutcome {
	out := ReorgOutcome{
		OldTip:       old.Tip,
		NewTip:       next.Tip,
		StateChanged: !old.StateRoot().Equals(next.StateRoot()),
	}

	p := commonPrefix(old, next)
	if p > 0 {
		out.CommonAncestor = next.Order[p-1]
	}

	switch {
	case p == len(old.Order) && p == len(next.Order):
		out.Kind = NoChange
		return out
	case p == len(old.Order):
		out.Kind = Extend
	default:
		out.Kind = Reorganize
		out.RolledBack = append([]cid.Cid(nil), old.Order[p:]...)
	}

	out.Applied = append([]cid.Cid(nil), next.Order[p:]...)
	for _, id := range out.Applied {
		if next.IsExcluded(id) {
			out.Excluded = append(out.Excluded, id)
		}
	}

	return out
}
