package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/tcfw/dagledger/pkg/seal"
	"github.com/tcfw/dagledger/pkg/tx"
)

// Account is a key pair able to sign transfers
type Account struct {
	Signer  cryptography.Signer
	Address tx.Address
}

func NewAccount(t testing.TB) *Account {
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s := cryptography.NewEd25519Signer(sk)

	return &Account{
		Signer:  s,
		Address: tx.AddressFromPublicKey(s.PublicKeyBytes()),
	}
}

// Transfer creates a signed transfer with an explicit account nonce
func (a *Account) Transfer(t testing.TB, to tx.Address, amount, nonce uint64) *tx.Tx {
	txn := tx.NewTransfer(to, amount, nonce)
	require.NoError(t, txn.Sign(a.Signer))
	return txn
}

// Chain builds sealed blocks on top of a genesis block
type Chain struct {
	t testing.TB

	Info    *block.GenesisInfo
	Genesis *block.Block
	Sealer  seal.Sealer

	clock int64
}

var chainSeq int64

// NewChain creates a genesis block allocating the given amounts
func NewChain(t testing.TB, alloc map[tx.Address]uint64) *Chain {
	info := &block.GenesisInfo{
		ChainID:   "test",
		CreatedAt: atomic.AddInt64(&chainSeq, 1),
	}

	for addr, amount := range alloc {
		info.Alloc = append(info.Alloc, block.Allocation{Address: addr, Amount: amount})
	}
	sortAlloc(info.Alloc)

	g, err := info.Block()
	require.NoError(t, err)

	return &Chain{
		t:       t,
		Info:    info,
		Genesis: g,
		Sealer:  seal.Declared{},
		clock:   info.CreatedAt,
	}
}

func sortAlloc(a []block.Allocation) {
	sort.Slice(a, func(i, j int) bool { return a[i].Address.Less(a[j].Address) })
}

// Block creates a sealed block with the given parents and declared weight
func (c *Chain) Block(parents []*block.Block, weight uint64, txs ...*tx.Tx) *block.Block {
	ids := make([]cid.Cid, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, Hash(c.t, p))
	}

	c.clock++
	b, err := block.New(ids, c.clock, weight, txs)
	require.NoError(c.t, err)

	require.NoError(c.t, c.Sealer.Seal(&b.Header))

	return b
}

// Child is Block with a single parent
func (c *Chain) Child(parent *block.Block, weight uint64, txs ...*tx.Tx) *block.Block {
	return c.Block([]*block.Block{parent}, weight, txs...)
}

// Coinbase creates a distinct reward tx for miner
func (c *Chain) Coinbase(miner tx.Address, amount uint64) *tx.Tx {
	c.clock++
	return tx.NewCoinbase(miner, amount, uint64(c.clock))
}

func Hash(t testing.TB, b *block.Block) cid.Cid {
	h, err := b.Hash()
	require.NoError(t, err)
	return h
}
