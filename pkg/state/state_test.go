package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/dagledger/pkg/storage"
	"github.com/tcfw/dagledger/pkg/trie"
	"github.com/tcfw/dagledger/pkg/tx"
)

func newTestState(t *testing.T) *State {
	nodes, err := storage.NewNodeStore(storage.NewMemStore(), 64)
	require.NoError(t, err)
	return New(trie.New(nodes))
}

func TestAccounts(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	alice := tx.AddressFromPublicKey([]byte("alice"))
	bob := tx.AddressFromPublicKey([]byte("bob"))

	acc, err := s.Account(ctx, trie.EmptyRoot, alice)
	require.NoError(t, err)
	assert.True(t, acc.IsZero())

	root, err := s.SetAccount(ctx, trie.EmptyRoot, alice, Account{Balance: 10, Nonce: 1})
	require.NoError(t, err)
	root, err = s.SetAccount(ctx, root, bob, Account{Balance: 5})
	require.NoError(t, err)

	acc, err = s.Account(ctx, root, alice)
	require.NoError(t, err)
	assert.Equal(t, Account{Balance: 10, Nonce: 1}, acc)

	supply, err := s.TotalSupply(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), supply)

	//zero accounts are removed
	root, err = s.SetAccount(ctx, root, bob, Account{})
	require.NoError(t, err)
	root, err = s.SetAccount(ctx, root, alice, Account{})
	require.NoError(t, err)
	assert.True(t, root.Equals(trie.EmptyRoot))
}
