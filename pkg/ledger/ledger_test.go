package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/dagledger/internal/testutil"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/dag"
	"github.com/tcfw/dagledger/pkg/forkchoice"
	"github.com/tcfw/dagledger/pkg/ruleerrors"
	"github.com/tcfw/dagledger/pkg/storage"
	"github.com/tcfw/dagledger/pkg/tx"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	chain *testutil.Chain

	alice *testutil.Account
	bob   *testutil.Account
	carol *testutil.Account
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		alice: testutil.NewAccount(t),
		bob:   testutil.NewAccount(t),
		carol: testutil.NewAccount(t),
	}

	f.chain = testutil.NewChain(t, map[tx.Address]uint64{
		f.alice.Address: 100,
		f.carol.Address: 100,
	})

	return f
}

func (f *fixture) open(opts ...Option) *Ledger {
	opts = append([]Option{WithGenesis(f.chain.Genesis)}, opts...)

	l, err := New(f.ctx, opts...)
	require.NoError(f.t, err)

	return l
}

func (f *fixture) submit(l *Ledger, b *block.Block) *Outcome {
	out, err := l.SubmitBlock(f.ctx, b)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) balance(l *Ledger, a *testutil.Account) uint64 {
	b, err := l.Balance(f.ctx, a.Address)
	require.NoError(f.t, err)
	return b
}

func hash(t *testing.T, b *block.Block) cid.Cid {
	return testutil.Hash(t, b)
}

func TestNewRequiresGenesis(t *testing.T) {
	_, err := New(context.Background())
	assert.ErrorIs(t, err, ErrNoGenesis)

	f := newFixture(t)
	_, err = New(f.ctx, WithGenesis(f.chain.Genesis), WithOrphanCapacity(0))
	assert.Error(t, err)
}

func TestGenesisState(t *testing.T) {
	f := newFixture(t)
	l := f.open()

	g := hash(t, f.chain.Genesis)

	assert.True(t, l.CanonicalTip().Equals(g))
	assert.Equal(t, []cid.Cid{g}, l.Tips())
	assert.Equal(t, []cid.Cid{g}, l.Order())
	assert.Equal(t, uint64(100), f.balance(l, f.alice))
	assert.Equal(t, uint64(0), f.balance(l, f.bob))

	out := f.submit(l, f.chain.Genesis)
	assert.Equal(t, StatusAlreadyKnown, out.Status)
}

func TestHeavierBranchWins(t *testing.T) {
	f := newFixture(t)
	l := f.open()
	g := f.chain.Genesis

	a := f.chain.Child(g, 10, f.alice.Transfer(t, f.bob.Address, 80, 1))
	b := f.chain.Child(g, 10, f.alice.Transfer(t, f.carol.Address, 80, 1))

	out := f.submit(l, a)
	require.Equal(t, StatusAccepted, out.Status)
	assert.Equal(t, forkchoice.Extend, out.Reorg.Kind)

	out = f.submit(l, b)
	require.Equal(t, StatusAccepted, out.Status)

	tips := []cid.Cid{hash(t, a), hash(t, b)}
	dag.SortHashes(tips)
	assert.Equal(t, tips, l.Tips())
	assert.True(t, l.CanonicalTip().Equals(tips[0]))

	c := f.chain.Child(a, 15, f.bob.Transfer(t, f.carol.Address, 5, 1))
	out = f.submit(l, c)
	require.Equal(t, StatusAccepted, out.Status)

	assert.True(t, l.CanonicalTip().Equals(hash(t, c)))
	assert.Equal(t, uint64(20), f.balance(l, f.alice))
	assert.Equal(t, uint64(75), f.balance(l, f.bob))
	assert.Equal(t, uint64(105), f.balance(l, f.carol))

	//the state along b is still queryable
	root, ok := l.StateRootOf(hash(t, b))
	require.True(t, ok)
	bal, err := l.BalanceOf(f.ctx, f.carol.Address, root)
	require.NoError(t, err)
	assert.Equal(t, uint64(180), bal)
}

func TestIdempotentSubmit(t *testing.T) {
	f := newFixture(t)
	l := f.open()

	a := f.chain.Child(f.chain.Genesis, 1, f.alice.Transfer(t, f.bob.Address, 10, 1))

	out := f.submit(l, a)
	require.Equal(t, StatusAccepted, out.Status)
	root := l.StateRoot()

	out = f.submit(l, a)
	assert.Equal(t, StatusAlreadyKnown, out.Status)
	assert.Equal(t, forkchoice.NoChange, out.Reorg.Kind)
	assert.True(t, root.Equals(l.StateRoot()))
	assert.Equal(t, uint64(10), f.balance(l, f.bob))
}

func TestDeliveryOrderIndependence(t *testing.T) {
	f := newFixture(t)
	g := f.chain.Genesis

	a1 := f.chain.Child(g, 2, f.alice.Transfer(t, f.bob.Address, 10, 1))
	b1 := f.chain.Child(g, 3, f.carol.Transfer(t, f.bob.Address, 20, 1))
	a2 := f.chain.Child(a1, 2, f.alice.Transfer(t, f.carol.Address, 5, 2))
	m := f.chain.Block([]*block.Block{a2, b1}, 4, f.bob.Transfer(t, f.alice.Address, 1, 1))

	orders := [][]*block.Block{
		{a1, b1, a2, m},
		{m, a2, b1, a1},
		{b1, m, a1, a2},
		{a2, a1, m, b1},
	}

	var (
		tip   cid.Cid
		root  cid.Cid
		order []cid.Cid
	)

	for i, blocks := range orders {
		l := f.open()
		for _, b := range blocks {
			out := f.submit(l, b)
			require.NotEqual(t, StatusRejected, out.Status, "order %d", i)
		}

		assert.Zero(t, l.orphans.Len())

		if i == 0 {
			tip, root, order = l.CanonicalTip(), l.StateRoot(), l.Order()
			assert.True(t, tip.Equals(hash(t, m)))
			continue
		}

		assert.True(t, tip.Equals(l.CanonicalTip()), "order %d", i)
		assert.True(t, root.Equals(l.StateRoot()), "order %d", i)
		assert.Equal(t, order, l.Order(), "order %d", i)
	}
}

func TestOrphanRelease(t *testing.T) {
	f := newFixture(t)
	l := f.open()
	g := f.chain.Genesis

	a1 := f.chain.Child(g, 1, f.alice.Transfer(t, f.bob.Address, 10, 1))
	a2 := f.chain.Child(a1, 1, f.alice.Transfer(t, f.bob.Address, 10, 2))
	a3 := f.chain.Child(a2, 1, f.alice.Transfer(t, f.bob.Address, 10, 3))

	out := f.submit(l, a3)
	require.Equal(t, StatusBuffered, out.Status)
	assert.Equal(t, []cid.Cid{hash(t, a2)}, out.Missing)

	out = f.submit(l, a2)
	require.Equal(t, StatusBuffered, out.Status)
	assert.True(t, l.IsOrphan(hash(t, a3)))
	assert.Equal(t, []cid.Cid{hash(t, a1)}, l.MissingAncestors(hash(t, a3)))

	out = f.submit(l, a3)
	assert.Equal(t, StatusBuffered, out.Status)

	out = f.submit(l, a1)
	require.Equal(t, StatusAccepted, out.Status)
	require.Len(t, out.Released, 2)
	assert.True(t, out.Released[0].Hash.Equals(hash(t, a2)))
	assert.True(t, out.Released[1].Hash.Equals(hash(t, a3)))
	for _, r := range out.Released {
		assert.Equal(t, StatusAccepted, r.Status)
	}

	assert.Equal(t, forkchoice.Extend, out.Reorg.Kind)
	assert.Len(t, out.Reorg.Applied, 3)
	assert.True(t, l.CanonicalTip().Equals(hash(t, a3)))
	assert.False(t, l.IsOrphan(hash(t, a3)))
	assert.Equal(t, uint64(30), f.balance(l, f.bob))
}

func TestOrphanEviction(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	l := f.open(WithOrphanCapacity(1), WithRegisterer(reg))
	g := f.chain.Genesis

	p1 := f.chain.Child(g, 1, f.alice.Transfer(t, f.bob.Address, 1, 1))
	o1 := f.chain.Child(p1, 5, f.alice.Transfer(t, f.bob.Address, 1, 2))
	p2 := f.chain.Child(g, 1, f.carol.Transfer(t, f.bob.Address, 1, 1))
	o2 := f.chain.Child(p2, 1, f.carol.Transfer(t, f.bob.Address, 1, 2))

	out := f.submit(l, o1)
	require.Equal(t, StatusBuffered, out.Status)

	out = f.submit(l, o2)
	require.Equal(t, StatusBuffered, out.Status)
	assert.Equal(t, []cid.Cid{hash(t, o1)}, out.Evicted)

	assert.False(t, l.IsOrphan(hash(t, o1)))
	assert.True(t, l.IsOrphan(hash(t, o2)))

	assert.Equal(t, float64(1), promtest.ToFloat64(l.metrics.evicted))
	assert.Equal(t, float64(1), promtest.ToFloat64(l.metrics.orphans))
	assert.Equal(t, float64(2), promtest.ToFloat64(l.metrics.blocks.WithLabelValues("buffered")))

	//the evicted block is simply unknown again
	out = f.submit(l, p1)
	assert.Equal(t, StatusAccepted, out.Status)
	assert.Empty(t, out.Released)
}

func TestInvalidBlockLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	l := f.open()
	g := f.chain.Genesis

	tipBefore, rootBefore := l.CanonicalTip(), l.StateRoot()

	//second transfer overdraws alice
	bad := f.chain.Child(g, 5,
		f.alice.Transfer(t, f.bob.Address, 60, 1),
		f.alice.Transfer(t, f.bob.Address, 60, 2),
	)

	out := f.submit(l, bad)
	require.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ruleerrors.KindStateTransitionInvalid, ruleerrors.KindOf(out.Reason))

	assert.True(t, tipBefore.Equals(l.CanonicalTip()))
	assert.True(t, rootBefore.Equals(l.StateRoot()))
	assert.Equal(t, []cid.Cid{hash(t, g)}, l.Tips())
	assert.Equal(t, uint64(0), f.balance(l, f.bob))

	_, known := l.Block(hash(t, bad))
	assert.False(t, known)
}

func TestInvalidAncestor(t *testing.T) {
	f := newFixture(t)
	l := f.open()
	g := f.chain.Genesis

	forged := f.alice.Transfer(t, f.bob.Address, 10, 1)
	forged.Amount = 90

	bad := f.chain.Child(g, 1, forged)
	child := f.chain.Child(bad, 1, f.carol.Transfer(t, f.bob.Address, 1, 1))
	grandchild := f.chain.Child(child, 1, f.carol.Transfer(t, f.bob.Address, 1, 2))

	out := f.submit(l, grandchild)
	require.Equal(t, StatusBuffered, out.Status)
	out = f.submit(l, child)
	require.Equal(t, StatusBuffered, out.Status)

	out = f.submit(l, bad)
	require.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ruleerrors.KindCryptoInvalid, ruleerrors.KindOf(out.Reason))

	assert.False(t, l.IsOrphan(hash(t, child)))
	assert.False(t, l.IsOrphan(hash(t, grandchild)))

	out = f.submit(l, child)
	require.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ruleerrors.KindInvalidAncestor, ruleerrors.KindOf(out.Reason))

	out = f.submit(l, bad)
	assert.Equal(t, ruleerrors.KindCryptoInvalid, ruleerrors.KindOf(out.Reason))
}

func TestForgedBodyDoesNotPoisonHash(t *testing.T) {
	f := newFixture(t)
	l := f.open()
	g := f.chain.Genesis

	a := f.chain.Child(g, 1, f.alice.Transfer(t, f.bob.Address, 80, 1))
	child := f.chain.Child(a, 1, f.carol.Transfer(t, f.bob.Address, 1, 1))

	out := f.submit(l, child)
	require.Equal(t, StatusBuffered, out.Status)

	forged := &block.Block{
		Header: a.Header,
		Txs:    []*tx.Tx{f.alice.Transfer(t, f.carol.Address, 80, 1)},
	}
	require.True(t, hash(t, forged).Equals(hash(t, a)))

	out = f.submit(l, forged)
	require.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ruleerrors.KindBodyMismatch, ruleerrors.KindOf(out.Reason))
	assert.False(t, ruleerrors.KindOf(out.Reason).IsPermanent())
	assert.True(t, l.IsOrphan(hash(t, child)))

	out = f.submit(l, a)
	require.Equal(t, StatusAccepted, out.Status)
	require.Len(t, out.Released, 1)
	assert.Equal(t, StatusAccepted, out.Released[0].Status)

	assert.True(t, l.CanonicalTip().Equals(hash(t, child)))
	assert.Equal(t, uint64(81), f.balance(l, f.bob))
	assert.Equal(t, uint64(99), f.balance(l, f.carol))
}

func TestStorageFailure(t *testing.T) {
	f := newFixture(t)
	backend := testutil.NewFlakyBackend(storage.NewMemStore())
	l := f.open(WithBackend(backend))
	g := f.chain.Genesis

	a := f.chain.Child(g, 1, f.alice.Transfer(t, f.bob.Address, 10, 1))
	require.Equal(t, StatusAccepted, f.submit(l, a).Status)

	tipBefore, rootBefore, tipsBefore := l.CanonicalTip(), l.StateRoot(), l.Tips()

	b := f.chain.Child(a, 1, f.alice.Transfer(t, f.bob.Address, 10, 2))

	backend.FailWrites(true)
	_, err := l.SubmitBlock(f.ctx, b)
	require.Error(t, err)
	assert.Equal(t, ruleerrors.KindStorageFailure, ruleerrors.KindOf(err))

	assert.True(t, tipBefore.Equals(l.CanonicalTip()))
	assert.True(t, rootBefore.Equals(l.StateRoot()))
	assert.Equal(t, tipsBefore, l.Tips())
	_, known := l.Block(hash(t, b))
	assert.False(t, known)

	backend.FailWrites(false)
	out := f.submit(l, b)
	assert.Equal(t, StatusAccepted, out.Status)
	assert.True(t, l.CanonicalTip().Equals(hash(t, b)))
	assert.Equal(t, uint64(20), f.balance(l, f.bob))
}

func TestStorageFailureDuringRelease(t *testing.T) {
	f := newFixture(t)
	backend := testutil.NewFlakyBackend(storage.NewMemStore())
	l := f.open(WithBackend(backend))
	g := f.chain.Genesis

	a1 := f.chain.Child(g, 1, f.alice.Transfer(t, f.bob.Address, 10, 1))
	a2 := f.chain.Child(a1, 1, f.alice.Transfer(t, f.bob.Address, 10, 2))
	a3 := f.chain.Child(a2, 1, f.alice.Transfer(t, f.bob.Address, 10, 3))

	require.Equal(t, StatusBuffered, f.submit(l, a3).Status)
	require.Equal(t, StatusBuffered, f.submit(l, a2).Status)

	//a1 commits but the released a2 can not
	backend.FailBlock(hash(t, a2))

	out := f.submit(l, a1)
	require.Equal(t, StatusAccepted, out.Status)
	require.Len(t, out.Released, 1)
	assert.True(t, out.Released[0].Hash.Equals(hash(t, a2)))
	assert.Equal(t, ruleerrors.KindStorageFailure, ruleerrors.KindOf(out.Released[0].Reason))

	assert.True(t, l.CanonicalTip().Equals(hash(t, a1)))
	assert.Equal(t, uint64(10), f.balance(l, f.bob))

	//the next submission retries the pending release
	backend.Reset()

	b := f.chain.Child(g, 1, f.carol.Transfer(t, f.bob.Address, 1, 1))
	out = f.submit(l, b)
	require.Equal(t, StatusAccepted, out.Status)
	require.Len(t, out.Released, 2)
	assert.True(t, out.Released[0].Hash.Equals(hash(t, a2)))
	assert.True(t, out.Released[1].Hash.Equals(hash(t, a3)))

	assert.True(t, l.CanonicalTip().Equals(hash(t, a3)))
	assert.Equal(t, uint64(30), f.balance(l, f.bob))
}

func TestRestart(t *testing.T) {
	f := newFixture(t)
	backend := storage.NewMemStore()
	l := f.open(WithBackend(backend))
	g := f.chain.Genesis

	a1 := f.chain.Child(g, 2, f.alice.Transfer(t, f.bob.Address, 10, 1))
	b1 := f.chain.Child(g, 3, f.carol.Transfer(t, f.bob.Address, 20, 1))
	m := f.chain.Block([]*block.Block{a1, b1}, 1, f.bob.Transfer(t, f.alice.Address, 5, 1))

	for _, b := range []*block.Block{a1, b1, m} {
		require.Equal(t, StatusAccepted, f.submit(l, b).Status)
	}

	tip, root, order := l.CanonicalTip(), l.StateRoot(), l.Order()

	reopened := f.open(WithBackend(backend))

	assert.True(t, tip.Equals(reopened.CanonicalTip()))
	assert.True(t, root.Equals(reopened.StateRoot()))
	assert.Equal(t, order, reopened.Order())
	assert.Equal(t, l.Tips(), reopened.Tips())
	assert.Equal(t, uint64(25), f.balance(reopened, f.bob))

	other := testutil.NewChain(t, nil)
	_, err := New(f.ctx, WithBackend(backend), WithGenesis(other.Genesis))
	assert.ErrorIs(t, err, ErrGenesisMismatch)
}

func TestReorgDepthExceeded(t *testing.T) {
	f := newFixture(t)
	l := f.open(WithMaxReorgDepth(1))
	g := f.chain.Genesis

	a1 := f.chain.Child(g, 1, f.alice.Transfer(t, f.bob.Address, 10, 1))
	a2 := f.chain.Child(a1, 2, f.alice.Transfer(t, f.bob.Address, 10, 2))
	b1 := f.chain.Child(g, 1, f.carol.Transfer(t, f.bob.Address, 1, 1))
	b2 := f.chain.Child(b1, 1, f.carol.Transfer(t, f.bob.Address, 1, 2))
	b3 := f.chain.Child(b2, 2, f.carol.Transfer(t, f.bob.Address, 1, 3))

	for _, b := range []*block.Block{a1, a2, b1, b2} {
		require.Equal(t, StatusAccepted, f.submit(l, b).Status)
	}
	require.True(t, l.CanonicalTip().Equals(hash(t, a2)))

	out := f.submit(l, b3)
	require.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ruleerrors.KindReorgDepthExceeded, ruleerrors.KindOf(out.Reason))
	assert.Equal(t, []cid.Cid{hash(t, b3)}, out.Reorg.Skipped)

	_, known := l.Block(hash(t, b3))
	assert.True(t, known)
	assert.True(t, l.CanonicalTip().Equals(hash(t, a2)))
	assert.Contains(t, l.Tips(), hash(t, b3))

	require.NoError(t, l.SetMaxReorgDepth(0))
	reorg, err := l.Reconsider(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, forkchoice.Reorganize, reorg.Kind)
	assert.Equal(t, 2, reorg.Depth())
	assert.True(t, l.CanonicalTip().Equals(hash(t, b3)))
	assert.Equal(t, uint64(3), f.balance(l, f.bob))
}

func TestCollectGarbage(t *testing.T) {
	f := newFixture(t)
	l := f.open()
	g := f.chain.Genesis

	a1 := f.chain.Child(g, 1, f.alice.Transfer(t, f.bob.Address, 10, 1))
	b1 := f.chain.Child(g, 2, f.carol.Transfer(t, f.bob.Address, 20, 1))
	a2 := f.chain.Child(a1, 1, f.alice.Transfer(t, f.bob.Address, 10, 2))

	blocks := []*block.Block{a1, b1, a2}
	for _, b := range blocks {
		require.Equal(t, StatusAccepted, f.submit(l, b).Status)
	}

	n, err := l.CollectGarbage(f.ctx)
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	for _, b := range blocks {
		root, ok := l.StateRootOf(hash(t, b))
		require.True(t, ok)
		_, err := l.BalanceOf(f.ctx, f.bob.Address, root)
		assert.NoError(t, err)
	}
	assert.Equal(t, uint64(20), f.balance(l, f.bob))

	n, err = l.CollectGarbage(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindTx(t *testing.T) {
	f := newFixture(t)
	l := f.open()

	transfer := f.alice.Transfer(t, f.bob.Address, 10, 1)
	a := f.chain.Child(f.chain.Genesis, 1, transfer)
	require.Equal(t, StatusAccepted, f.submit(l, a).Status)

	id, err := transfer.ID()
	require.NoError(t, err)

	loc, err := l.FindTx(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, loc.Block.Equals(hash(t, a)))
	assert.Equal(t, 1, loc.Position)
	assert.Equal(t, 0, loc.Index)
	assert.False(t, loc.Excluded)

	other, err := f.carol.Transfer(t, f.bob.Address, 1, 1).ID()
	require.NoError(t, err)
	_, err = l.FindTx(f.ctx, other)
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	l := f.open()

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err := l.SubmitBlock(f.ctx, f.chain.Genesis)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentReads(t *testing.T) {
	f := newFixture(t)
	l := f.open()

	const depth = 40

	blocks := make([]*block.Block, 0, depth)
	parent := f.chain.Genesis
	for i := 0; i < depth; i++ {
		b := f.chain.Child(parent, 1, f.chain.Coinbase(f.bob.Address, 1))
		blocks = append(blocks, b)
		parent = b
	}

	for i := depth - 1; i > 0; i-- {
		require.Equal(t, StatusBuffered, f.submit(l, blocks[i]).Status)
	}

	lookup, err := blocks[depth/2].Txs[0].ID()
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				select {
				case <-stop:
					return
				default:
				}

				root := l.StateRoot()
				_, err := l.BalanceOf(f.ctx, f.bob.Address, root)
				assert.NoError(t, err)

				assert.NotEmpty(t, l.Tips())

				order := l.Order()
				assert.NotEmpty(t, order)
				for _, id := range order {
					l.IsExcluded(id)
				}

				if _, err := l.FindTx(f.ctx, lookup); err != nil {
					assert.ErrorIs(t, err, ErrTxNotFound)
				}
			}
		}()
	}

	out, err := l.SubmitBlock(f.ctx, blocks[0])
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, out.Status)
	assert.Len(t, out.Released, depth-1)

	_, err = l.CollectGarbage(f.ctx)
	assert.NoError(t, err)

	close(stop)
	wg.Wait()

	assert.True(t, l.CanonicalTip().Equals(hash(t, blocks[depth-1])))
	assert.Len(t, l.Order(), depth+1)
	assert.Equal(t, uint64(depth), f.balance(l, f.bob))

	loc, err := l.FindTx(f.ctx, lookup)
	require.NoError(t, err)
	assert.True(t, loc.Block.Equals(hash(t, blocks[depth/2])))
}
