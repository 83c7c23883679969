package forkchoice

import (
	"context"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/dagledger/internal/utils/logging"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/dag"
	"github.com/tcfw/dagledger/pkg/ruleerrors"
	"github.com/tcfw/dagledger/pkg/trie"
)

const (
	DefaultMaxReorgDepth = 100

	mergesetCacheSize = 1 << 12
)

var (
	ErrNoTips = errors.New("no tips")
)

// Applier replays the transactions of a block on top of a state root
type Applier interface {
	Apply(ctx context.Context, b *block.Block, root cid.Cid) (cid.Cid, error)
}

// Engine chooses the canonical tip, orders the blocks it dominates and
// materialises the resulting state.
type Engine struct {
	applier       Applier
	maxReorgDepth int

	mergesets *lru.Cache

	log *logrus.Entry
}

type Option func(*Engine)

// WithMaxReorgDepth limits how many ordered blocks a reorganisation may roll
// back. Zero is unbounded.
func WithMaxReorgDepth(n int) Option {
	return func(e *Engine) {
		e.maxReorgDepth = n
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		e.log = l
	}
}

func New(applier Applier, opts ...Option) (*Engine, error) {
	c, err := lru.New(mergesetCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating mergeset cache")
	}

	e := &Engine{
		applier:       applier,
		maxReorgDepth: DefaultMaxReorgDepth,
		mergesets:     c,
		log:           logging.Component("forkchoice"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// SetMaxReorgDepth changes the reorg policy. Not safe to call concurrently
// with other engine methods.
func (e *Engine) SetMaxReorgDepth(n int) {
	e.maxReorgDepth = n
}

func (e *Engine) MaxReorgDepth() int {
	return e.maxReorgDepth
}

// SelectedParent returns the parent with the greatest cumulative weight,
// ties broken by lowest hash
func SelectedParent(g dag.Graph, parents []cid.Cid) (*dag.Record, error) {
	var best *dag.Record

	for _, p := range parents {
		r, ok := g.Get(p)
		if !ok {
			return nil, errors.Wrapf(dag.ErrUnknownParent, "parent %s", p)
		}

		if best == nil || dag.HeavierThan(r, best) {
			best = r
		}
	}

	if best == nil {
		return nil, dag.ErrUnknownParent
	}

	return best, nil
}

// RankTips returns the tips heaviest first
func RankTips(g dag.Graph) []*dag.Record {
	tips := g.Tips()

	recs := make([]*dag.Record, 0, len(tips))
	for _, t := range tips {
		if r, ok := g.Get(t); ok {
			recs = append(recs, r)
		}
	}

	sort.Slice(recs, func(i, j int) bool { return dag.HeavierThan(recs[i], recs[j]) })

	return recs
}

// SelectTip returns the tip with the greatest cumulative weight, ties broken
// by lowest hash
func SelectTip(g dag.Graph) (cid.Cid, error) {
	ranked := RankTips(g)
	if len(ranked) == 0 {
		return cid.Undef, ErrNoTips
	}

	return ranked[0].Hash, nil
}

// plan is the order of a tip expressed against a base view: the first keep
// entries of the base order and the first chainKeep entries of its chain are
// shared, add and chain follow them.
type plan struct {
	tip cid.Cid

	chainKeep int
	chain     []cid.Cid

	keep int
	add  []cid.Cid
}

// planTip walks the selected chain of tip back to the chain of base and orders
// only the blocks beyond it. Each chain block is preceded by its mergeset:
// the blocks in its past which are not in the past of its selected parent,
// sorted by height then hash.
func (e *Engine) planTip(g dag.Graph, base *Canonical, tip cid.Cid) (*plan, error) {
	p := &plan{tip: tip}

	id := tip
	for id.Defined() {
		if i, ok := base.chainPosition(id); ok {
			p.chainKeep = i + 1
			break
		}

		r, ok := g.Get(id)
		if !ok {
			return nil, errors.Wrapf(dag.ErrUnknownBlock, "chain block %s", id)
		}

		p.chain = append(p.chain, id)
		id = r.SelectedParent
	}

	for i, j := 0, len(p.chain)-1; i < j; i, j = i+1, j-1 {
		p.chain[i], p.chain[j] = p.chain[j], p.chain[i]
	}

	forkAt := 0
	if p.chainKeep > 0 {
		i, ok := base.Position(base.Chain[p.chainKeep-1])
		if !ok {
			return nil, errors.Errorf("chain block %s missing from order", base.Chain[p.chainKeep-1])
		}
		forkAt = i + 1
	}

	local := make(map[cid.Cid]struct{})
	ordered := func(id cid.Cid) bool {
		if i, ok := base.Position(id); ok && i < forkAt {
			return true
		}
		_, ok := local[id]
		return ok
	}

	var order []cid.Cid
	for _, id := range p.chain {
		rec, ok := g.Get(id)
		if !ok {
			return nil, errors.Wrapf(dag.ErrUnknownBlock, "chain block %s", id)
		}

		ms, err := e.mergeset(g, rec, ordered)
		if err != nil {
			return nil, err
		}

		for _, m := range ms {
			local[m] = struct{}{}
			order = append(order, m)
		}

		local[id] = struct{}{}
		order = append(order, id)
	}

	k := 0
	for k < len(order) && forkAt+k < len(base.Order) && base.Order[forkAt+k].Equals(order[k]) {
		k++
	}

	p.keep = forkAt + k
	p.add = order[k:]

	return p, nil
}

// mergeset computes the mergeset of rec. ordered reports the blocks ordered
// before it, which is exactly the past of its selected parent plus the
// selected parent.
func (e *Engine) mergeset(g dag.Graph, rec *dag.Record, ordered func(cid.Cid) bool) ([]cid.Cid, error) {
	if v, ok := e.mergesets.Get(rec.Hash); ok {
		return v.([]cid.Cid), nil
	}

	var recs []*dag.Record
	visited := make(map[cid.Cid]struct{})

	stack := make([]cid.Cid, 0, len(rec.Parents()))
	for _, p := range rec.Parents() {
		if !p.Equals(rec.SelectedParent) {
			stack = append(stack, p)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if ordered(id) {
			continue
		}
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		r, ok := g.Get(id)
		if !ok {
			return nil, errors.Wrapf(dag.ErrUnknownBlock, "merged block %s", id)
		}

		recs = append(recs, r)
		stack = append(stack, r.Parents()...)
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Height != recs[j].Height {
			return recs[i].Height < recs[j].Height
		}
		return dag.HashLess(recs[i].Hash, recs[j].Hash)
	})

	ms := make([]cid.Cid, 0, len(recs))
	for _, r := range recs {
		ms = append(ms, r.Hash)
	}

	e.mergesets.Add(rec.Hash, ms)

	return ms, nil
}

// Order returns the selected chain of tip and the total order of every block
// in the past of tip, tip included
func (e *Engine) Order(g dag.Graph, tip cid.Cid) ([]cid.Cid, []cid.Cid, error) {
	p, err := e.planTip(g, Empty(), tip)
	if err != nil {
		return nil, nil, err
	}

	return p.chain, p.add, nil
}

// Materialise folds order, the total order of tip along chain, over the
// state. The prefix shared with base is not replayed.
func (e *Engine) Materialise(ctx context.Context, g dag.Graph, base *Canonical, tip cid.Cid, chain, order []cid.Cid) (*Canonical, error) {
	p := &plan{tip: tip}

	for p.chainKeep < len(base.Chain) && p.chainKeep < len(chain) && base.Chain[p.chainKeep].Equals(chain[p.chainKeep]) {
		p.chainKeep++
	}
	p.chain = chain[p.chainKeep:]

	for p.keep < len(base.Order) && p.keep < len(order) && base.Order[p.keep].Equals(order[p.keep]) {
		p.keep++
	}
	p.add = order[p.keep:]

	return e.materialise(ctx, g, base, p)
}

// Build computes the canonical view of tip from scratch
func (e *Engine) Build(ctx context.Context, g dag.Graph, tip cid.Cid) (*Canonical, error) {
	base := Empty()

	p, err := e.planTip(g, base, tip)
	if err != nil {
		return nil, err
	}

	return e.materialise(ctx, g, base, p)
}

// materialise folds the entries p adds over the state of base. A block whose
// running root equals the root it was validated against reuses its own state
// root. A block that conflicts with the running state is excluded.
func (e *Engine) materialise(ctx context.Context, g dag.Graph, base *Canonical, p *plan) (*Canonical, error) {
	roots := make([]cid.Cid, len(p.add))
	excluded := make([]bool, len(p.add))

	r := trie.EmptyRoot
	if p.keep > 0 {
		r = base.Roots[p.keep-1]
	}

	for i, id := range p.add {
		rec, ok := g.Get(id)
		if !ok {
			return nil, errors.Wrapf(dag.ErrUnknownBlock, "ordered block %s", id)
		}

		validatedOn := trie.EmptyRoot
		if !rec.IsGenesis() {
			sp, ok := g.Get(rec.SelectedParent)
			if !ok {
				return nil, errors.Wrapf(dag.ErrUnknownBlock, "selected parent %s", rec.SelectedParent)
			}
			validatedOn = sp.StateRoot
		}

		if r.Equals(validatedOn) {
			r = rec.StateRoot
		} else {
			nr, err := e.applier.Apply(ctx, rec.Block, r)
			switch {
			case err == nil:
				r = nr
			case ruleerrors.IsRuleError(err):
				excluded[i] = true
				e.log.WithError(err).WithField("block", rec.Hash).Debug("excluding conflicting block")
			default:
				return nil, errors.Wrap(err, "replaying block")
			}
		}

		roots[i] = r
	}

	return base.derive(p, roots, excluded), nil
}

// Reconsider re-evaluates the tips against the current view. Tips are tried
// heaviest first; a tip whose adoption would roll back more blocks than the
// maximum reorg depth is skipped.
func (e *Engine) Reconsider(ctx context.Context, g dag.Graph, current *Canonical) (*Canonical, ReorgOutcome, error) {
	var skipped []cid.Cid

	for _, tip := range RankTips(g) {
		if tip.Hash.Equals(current.Tip) {
			break
		}

		p, err := e.planTip(g, current, tip.Hash)
		if err != nil {
			return nil, ReorgOutcome{}, err
		}

		depth := len(current.Order) - p.keep
		if e.maxReorgDepth > 0 && depth > e.maxReorgDepth {
			e.log.WithFields(logrus.Fields{
				"tip":   tip.Hash,
				"depth": depth,
			}).Warn("skipping tip beyond max reorg depth")

			skipped = append(skipped, tip.Hash)
			continue
		}

		next, err := e.materialise(ctx, g, current, p)
		if err != nil {
			return nil, ReorgOutcome{}, err
		}

		out := Diff(current, next)
		out.Skipped = skipped

		return next, out, nil
	}

	out := Diff(current, current)
	out.Skipped = skipped

	return current, out, nil
}

// OnNewBlock re-evaluates the canonical view after id was added to g. If the
// heaviest branch containing id was skipped by the reorg depth policy the
// returned error is a ReorgDepthExceeded rule error; the returned view is
// still the one to adopt.
func (e *Engine) OnNewBlock(ctx context.Context, g dag.Graph, current *Canonical, id cid.Cid) (*Canonical, ReorgOutcome, error) {
	next, out, err := e.Reconsider(ctx, g, current)
	if err != nil {
		return nil, out, err
	}

	if next.Contains(id) {
		return next, out, nil
	}

	for _, s := range out.Skipped {
		if s.Equals(id) || g.IsAncestor(id, s) {
			return next, out, ruleerrors.Newf(ruleerrors.KindReorgDepthExceeded, "adopting %s exceeds max reorg depth %d", s, e.maxReorgDepth)
		}
	}

	return next, out, nil
}
