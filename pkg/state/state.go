package state

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/tcfw/dagledger/pkg/trie"
	"github.com/tcfw/dagledger/pkg/tx"
	"github.com/vmihailenco/msgpack/v5"
)

// Account is the state of a single address
type Account struct {
	Balance uint64 `msgpack:"b"`
	Nonce   uint64 `msgpack:"n"`
}

func (a Account) IsZero() bool {
	return a.Balance == 0 && a.Nonce == 0
}

// AccountKey is the trie key of an address
func AccountKey(addr tx.Address) []byte {
	d := cryptography.Digest(addr[:])
	return d[:]
}

// State reads and writes accounts in versions of the account trie
type State struct {
	trie *trie.Trie
}

func New(t *trie.Trie) *State {
	return &State{trie: t}
}

func (s *State) Trie() *trie.Trie {
	return s.trie
}

// Account returns the account of addr at root. Unknown accounts are zero.
func (s *State) Account(ctx context.Context, root cid.Cid, addr tx.Address) (Account, error) {
	var acc Account

	b, err := s.trie.Get(ctx, root, AccountKey(addr))
	if err != nil {
		if errors.Is(err, trie.ErrAbsent) {
			return acc, nil
		}
		return acc, err
	}

	if err := msgpack.Unmarshal(b, &acc); err != nil {
		return acc, errors.Wrap(err, "unmarshaling account")
	}

	return acc, nil
}

func (s *State) Balance(ctx context.Context, root cid.Cid, addr tx.Address) (uint64, error) {
	acc, err := s.Account(ctx, root, addr)
	return acc.Balance, err
}

// SetAccount stores acc and returns the new root. A zero account is
// removed from the trie.
func (s *State) SetAccount(ctx context.Context, root cid.Cid, addr tx.Address, acc Account) (cid.Cid, error) {
	if acc.IsZero() {
		return s.trie.Delete(ctx, root, AccountKey(addr))
	}

	b, err := msgpack.Marshal(&acc)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "marshaling account")
	}

	return s.trie.Put(ctx, root, AccountKey(addr), b)
}

// TotalSupply sums the balances of every account at root
func (s *State) TotalSupply(ctx context.Context, root cid.Cid) (uint64, error) {
	var total uint64

	err := s.trie.Walk(ctx, root, func(_, value []byte) error {
		var acc Account
		if err := msgpack.Unmarshal(value, &acc); err != nil {
			return errors.Wrap(err, "unmarshaling account")
		}
		total += acc.Balance
		return nil
	})

	return total, err
}
