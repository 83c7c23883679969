package ledger

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/dagledger/internal/utils/logging"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/dag"
	"github.com/tcfw/dagledger/pkg/forkchoice"
	"github.com/tcfw/dagledger/pkg/ruleerrors"
	"github.com/tcfw/dagledger/pkg/state"
	"github.com/tcfw/dagledger/pkg/storage"
	"github.com/tcfw/dagledger/pkg/trie"
	"github.com/tcfw/dagledger/pkg/validator"
)

const (
	metaTip = "tip"
)

// Ledger accepts blocks into the DAG, keeps the canonical view and answers
// state queries. Mutations are serialised; queries run concurrently against
// the last published view.
type Ledger struct {
	writeMu sync.Mutex

	backend   storage.Backend
	nodes     *storage.NodeStore
	state     *state.State
	store     *dag.Store
	orphans   *dag.OrphanPool
	validator *validator.Validator
	fc        *forkchoice.Engine
	invalid   *lru.Cache

	genesis cid.Cid

	//writer side canonical view
	canonical *forkchoice.Canonical

	//orphans whose parents are known but could not be admitted because of a
	//storage failure
	ready []*dag.Orphan

	viewMu sync.RWMutex
	view   *view

	metrics *metrics
	log     *logrus.Entry
	closed  bool
}

type view struct {
	canonical *forkchoice.Canonical
	tips      []cid.Cid
}

// New opens the ledger. If the backend already holds blocks the DAG and the
// canonical view are restored from it, otherwise the genesis block is
// accepted.
func New(ctx context.Context, opts ...Option) (*Ledger, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	if o.genesis == nil {
		return nil, ErrNoGenesis
	}
	if o.backend == nil {
		o.backend = storage.NewMemStore()
	}
	if o.log == nil {
		o.log = logging.Component("ledger")
	}

	genesis, err := o.genesis.Hash()
	if err != nil {
		return nil, errors.Wrap(err, "hashing genesis")
	}

	nodes, err := storage.NewNodeStore(o.backend, o.nodeCacheSize)
	if err != nil {
		return nil, err
	}

	st := state.New(trie.New(nodes))

	rules := o.rules
	rules.Genesis = genesis

	v := validator.New(st,
		validator.WithRules(rules),
		validator.WithVerifier(o.verifier),
		validator.WithSealVerifier(o.sealVerifier),
	)

	fc, err := forkchoice.New(v,
		forkchoice.WithMaxReorgDepth(o.maxReorgDepth),
		forkchoice.WithLogger(o.log.WithField("component", "forkchoice")),
	)
	if err != nil {
		return nil, err
	}

	invalid, err := lru.New(invalidCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating invalid block cache")
	}

	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, errors.Wrap(err, "registering metrics")
	}

	l := &Ledger{
		backend:   o.backend,
		nodes:     nodes,
		state:     st,
		store:     dag.NewStore(o.backend),
		validator: v,
		fc:        fc,
		invalid:   invalid,
		genesis:   genesis,
		canonical: forkchoice.Empty(),
		metrics:   m,
		log:       o.log,
	}

	l.orphans = dag.NewOrphanPool(o.orphanCap, l.onEvict)

	if err := l.restore(ctx, o.genesis); err != nil {
		return nil, err
	}

	l.publish()

	return l, nil
}

func (l *Ledger) restore(ctx context.Context, genesis *block.Block) error {
	if err := l.store.Load(ctx); err != nil {
		return ruleerrors.StorageFailure(err, "loading blocks")
	}

	if l.store.Len() == 0 {
		out, err := l.submit(ctx, genesis)
		if err != nil {
			return err
		}
		if out.Status != StatusAccepted {
			return errors.Wrap(out.Reason, "accepting genesis")
		}
		return nil
	}

	if !l.store.Genesis().Equals(l.genesis) {
		return ErrGenesisMismatch
	}

	tip := cid.Undef
	d, err := l.backend.Get(storage.MetaKey(metaTip))
	switch {
	case err == nil:
		if tip, err = cid.Cast(d); err != nil {
			return errors.Wrap(err, "casting persisted tip")
		}
	case !errors.Is(err, storage.ErrNotFound):
		return ruleerrors.StorageFailure(err, "reading persisted tip")
	}

	if tip.Defined() && l.store.Has(tip) {
		c, err := l.fc.Build(ctx, l.store, tip)
		if err != nil {
			return ruleerrors.StorageFailure(err, "rebuilding canonical view")
		}
		l.canonical = c
	} else {
		c, _, err := l.fc.Reconsider(ctx, l.store, forkchoice.Empty())
		if err != nil {
			return ruleerrors.StorageFailure(err, "rebuilding canonical view")
		}
		l.canonical = c
	}

	l.log.WithFields(logrus.Fields{
		"blocks": l.store.Len(),
		"tip":    l.canonical.Tip,
	}).Info("restored ledger")

	return nil
}

func (l *Ledger) publish() {
	v := &view{
		canonical: l.canonical,
		tips:      l.store.Tips(),
	}

	l.viewMu.Lock()
	l.view = v
	l.viewMu.Unlock()
}

func (l *Ledger) current() *view {
	l.viewMu.RLock()
	defer l.viewMu.RUnlock()

	return l.view
}

func (l *Ledger) onEvict(o *dag.Orphan) {
	l.metrics.evicted.Inc()
	l.log.WithField("block", o.Hash).Warn("orphan evicted")
}

// SubmitBlock offers a block to the ledger. Validation failures are reported
// in the outcome; the returned error is only set for storage failures, in
// which case the ledger is unchanged and the submission may be retried.
func (l *Ledger) SubmitBlock(ctx context.Context, b *block.Block) (*Outcome, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	initial := l.canonical

	out, err := l.submit(ctx, b)
	if err != nil {
		l.metrics.blocks.WithLabelValues("storage_failure").Inc()
		return out, err
	}

	var skipped []cid.Cid
	if out.Status == StatusAccepted || out.Status == StatusRejected {
		skipped = out.Reorg.Skipped
	}

	queue := l.ready
	l.ready = nil
	if out.Status == StatusAccepted || (out.Status == StatusRejected && l.store.Has(out.Hash)) {
		queue = append(queue, l.orphans.Satisfy(out.Hash)...)
	}

	out.Released = l.release(ctx, queue)

	out.Reorg = forkchoice.Diff(initial, l.canonical)
	out.Reorg.Skipped = skipped

	if out.Reorg.Kind == forkchoice.Reorganize {
		l.metrics.reorgs.Inc()
		l.metrics.reorgDepth.Observe(float64(out.Reorg.Depth()))

		l.log.WithFields(logrus.Fields{
			"ancestor": out.Reorg.CommonAncestor,
			"depth":    out.Reorg.Depth(),
			"tip":      l.canonical.Tip,
		}).Info("reorganized")
	}

	l.metrics.orphans.Set(float64(l.orphans.Len()))

	l.publish()

	return out, nil
}

// release feeds released orphans back through admission until no more
// orphans become ready
func (l *Ledger) release(ctx context.Context, queue []*dag.Orphan) []Released {
	var released []Released

	for len(queue) > 0 {
		o := queue[0]
		queue = queue[1:]

		out, err := l.submit(ctx, o.Block)
		if err != nil {
			l.log.WithError(err).WithField("block", o.Hash).Error("storage failure admitting released orphan")

			l.ready = append(l.ready, o)
			l.ready = append(l.ready, queue...)
			released = append(released, Released{Hash: o.Hash, Status: StatusRejected, Reason: err})

			return released
		}

		released = append(released, Released{Hash: o.Hash, Status: out.Status, Reason: out.Reason})

		if out.Status == StatusAccepted || (out.Status == StatusRejected && l.store.Has(out.Hash)) {
			queue = append(queue, l.orphans.Satisfy(o.Hash)...)
		}
	}

	return released
}

// submit processes a single block
func (l *Ledger) submit(ctx context.Context, b *block.Block) (*Outcome, error) {
	hash, err := b.Hash()
	if err != nil {
		return l.reject(cid.Undef, ruleerrors.Wrap(ruleerrors.KindMalformed, err, "hashing block")), nil
	}

	out := &Outcome{Hash: hash}

	if l.store.Has(hash) {
		out.Status = StatusAlreadyKnown
		l.metrics.blocks.WithLabelValues(out.Status.String()).Inc()
		return out, nil
	}

	if l.orphans.Has(hash) {
		out.Status = StatusBuffered
		out.Missing = l.orphans.MissingAncestors(hash)
		l.metrics.blocks.WithLabelValues(out.Status.String()).Inc()
		return out, nil
	}

	if reason, ok := l.invalid.Get(hash); ok {
		return l.reject(hash, reason.(error)), nil
	}

	for _, p := range b.Parents() {
		if _, ok := l.invalid.Get(p); ok {
			return l.rejectPermanent(hash, ruleerrors.Newf(ruleerrors.KindInvalidAncestor, "parent %s is invalid", p)), nil
		}
	}

	weight, err := l.validator.Precheck(b)
	if err != nil {
		if ruleerrors.KindOf(err).IsPermanent() {
			return l.rejectPermanent(hash, err), nil
		}
		return l.reject(hash, err), nil
	}

	var missing []cid.Cid
	for _, p := range b.Parents() {
		if !l.store.Has(p) {
			missing = append(missing, p)
		}
	}

	if len(missing) > 0 {
		evicted := l.orphans.Add(b, hash, weight, missing)

		out.Status = StatusBuffered
		out.Missing = l.orphans.MissingAncestors(hash)
		for _, e := range evicted {
			out.Evicted = append(out.Evicted, e.Hash)
		}

		l.metrics.blocks.WithLabelValues(out.Status.String()).Inc()
		l.log.WithFields(logrus.Fields{
			"block":   hash,
			"missing": len(missing),
		}).Debug("buffered orphan")

		return out, nil
	}

	return l.admit(ctx, b, hash, weight)
}

// admit validates a block whose parents are all known, evaluates the fork
// choice with the block staged and commits both atomically.
func (l *Ledger) admit(ctx context.Context, b *block.Block, hash cid.Cid, weight uint64) (*Outcome, error) {
	rec := &dag.Record{
		Block:          b,
		Hash:           hash,
		Weight:         weight,
		SelectedParent: cid.Undef,
	}

	base := trie.EmptyRoot
	if !b.IsGenesis() {
		sp, err := forkchoice.SelectedParent(l.store, b.Parents())
		if err != nil {
			return nil, ruleerrors.StorageFailure(err, "selecting parent")
		}

		for _, p := range b.Parents() {
			pr, _ := l.store.Get(p)
			if pr.Height+1 > rec.Height {
				rec.Height = pr.Height + 1
			}
		}

		rec.SelectedParent = sp.Hash
		rec.CumulativeWeight = sp.CumulativeWeight
		base = sp.StateRoot
	}
	rec.CumulativeWeight = addWeight(rec.CumulativeWeight, weight)

	root, err := l.validator.Apply(ctx, b, base)
	if err != nil {
		if ruleerrors.IsRuleError(err) {
			return l.reject(hash, err), nil
		}
		return &Outcome{Hash: hash, Status: StatusRejected, Reason: err}, ruleerrors.StorageFailure(err, "applying block")
	}
	rec.StateRoot = root

	ids, err := block.TxIDs(b.Txs)
	if err != nil {
		return l.reject(hash, ruleerrors.Wrap(ruleerrors.KindMalformed, err, "tx ids")), nil
	}
	if rec.Bloom, err = storage.MakeBloom(ids); err != nil {
		return &Outcome{Hash: hash, Status: StatusRejected, Reason: err}, ruleerrors.StorageFailure(err, "building tx bloom")
	}

	next, reorg, fcErr := l.fc.OnNewBlock(ctx, l.store.Staged(rec), l.canonical, hash)
	if fcErr != nil && ruleerrors.KindOf(fcErr) != ruleerrors.KindReorgDepthExceeded {
		return &Outcome{Hash: hash, Status: StatusRejected, Reason: fcErr}, ruleerrors.StorageFailure(fcErr, "evaluating fork choice")
	}

	err = l.store.Insert(rec, func(batch storage.Batch) error {
		return batch.Put(storage.MetaKey(metaTip), next.Tip.Bytes())
	})
	if err != nil {
		return &Outcome{Hash: hash, Status: StatusRejected, Reason: err}, ruleerrors.StorageFailure(err, "storing block")
	}

	l.canonical = next

	out := &Outcome{Hash: hash, Status: StatusAccepted, Reorg: reorg}

	if fcErr != nil {
		//known but not canonical
		out = l.reject(hash, fcErr)
		out.Reorg = reorg
		return out, nil
	}

	l.metrics.blocks.WithLabelValues(out.Status.String()).Inc()
	l.log.WithFields(logrus.Fields{
		"block":  hash,
		"height": rec.Height,
		"weight": rec.CumulativeWeight,
	}).Debug("accepted block")

	return out, nil
}

func (l *Ledger) reject(hash cid.Cid, reason error) *Outcome {
	kind := ruleerrors.KindOf(reason)

	l.metrics.blocks.WithLabelValues(StatusRejected.String()).Inc()
	l.metrics.rejected.WithLabelValues(kind.String()).Inc()

	l.log.WithError(reason).WithFields(logrus.Fields{
		"block": hash,
		"kind":  kind,
	}).Debug("rejected block")

	return &Outcome{Hash: hash, Status: StatusRejected, Reason: reason}
}

// rejectPermanent caches the block as invalid and drops buffered descendants
func (l *Ledger) rejectPermanent(hash cid.Cid, reason error) *Outcome {
	l.invalid.Add(hash, reason)

	for _, o := range l.orphans.Drop(hash) {
		l.invalid.Add(o.Hash, ruleerrors.Newf(ruleerrors.KindInvalidAncestor, "ancestor %s is invalid", hash))
	}

	return l.reject(hash, reason)
}

func addWeight(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}
