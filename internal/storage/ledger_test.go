package storage

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/dagledger/internal/testutil"
	"github.com/tcfw/dagledger/pkg/ledger"
	"github.com/tcfw/dagledger/pkg/tx"
)

func TestLedgerRestartOnPebble(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()

	alice, bob := testutil.NewAccount(t), testutil.NewAccount(t)
	chain := testutil.NewChain(t, map[tx.Address]uint64{alice.Address: 100})

	db, err := openPebble("ledger", fs)
	require.NoError(t, err)

	l, err := ledger.New(ctx, ledger.WithBackend(db), ledger.WithGenesis(chain.Genesis))
	require.NoError(t, err)

	a1 := chain.Child(chain.Genesis, 1, alice.Transfer(t, bob.Address, 10, 1))
	a2 := chain.Child(a1, 1, alice.Transfer(t, bob.Address, 15, 2))

	out, err := l.SubmitBlock(ctx, a1)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusAccepted, out.Status)
	out, err = l.SubmitBlock(ctx, a2)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusAccepted, out.Status)

	_, err = l.CollectGarbage(ctx)
	require.NoError(t, err)

	tip, root := l.CanonicalTip(), l.StateRoot()
	require.NoError(t, l.Close())

	db, err = openPebble("ledger", fs)
	require.NoError(t, err)

	reopened, err := ledger.New(ctx, ledger.WithBackend(db), ledger.WithGenesis(chain.Genesis))
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, tip.Equals(reopened.CanonicalTip()))
	assert.True(t, root.Equals(reopened.StateRoot()))

	bal, err := reopened.Balance(ctx, bob.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), bal)
}
