package ledger

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/ruleerrors"
	"github.com/tcfw/dagledger/pkg/state"
	"github.com/tcfw/dagledger/pkg/tx"
)

var (
	ErrTxNotFound = errors.New("transaction not found")
)

// BalanceOf returns the balance of addr in the state identified by root
func (l *Ledger) BalanceOf(ctx context.Context, addr tx.Address, root cid.Cid) (uint64, error) {
	b, err := l.state.Balance(ctx, root, addr)
	if err != nil {
		return 0, ruleerrors.StorageFailure(err, "reading balance")
	}
	return b, nil
}

// Account returns the account of addr in the state identified by root
func (l *Ledger) Account(ctx context.Context, addr tx.Address, root cid.Cid) (state.Account, error) {
	a, err := l.state.Account(ctx, root, addr)
	if err != nil {
		return state.Account{}, ruleerrors.StorageFailure(err, "reading account")
	}
	return a, nil
}

// Balance returns the balance of addr in the canonical state
func (l *Ledger) Balance(ctx context.Context, addr tx.Address) (uint64, error) {
	return l.BalanceOf(ctx, addr, l.StateRoot())
}

func (l *Ledger) CanonicalTip() cid.Cid {
	return l.current().canonical.Tip
}

// StateRoot is the state root after applying the canonical order
func (l *Ledger) StateRoot() cid.Cid {
	return l.current().canonical.StateRoot()
}

func (l *Ledger) Genesis() cid.Cid {
	return l.genesis
}

// Block returns an accepted block with its derived fields
func (l *Ledger) Block(id cid.Cid) (*block.Block, bool) {
	r, ok := l.store.Get(id)
	if !ok {
		return nil, false
	}
	return r.Block, true
}

// StateRootOf returns the state root stored with an accepted block, i.e. the
// state along its selected chain.
func (l *Ledger) StateRootOf(id cid.Cid) (cid.Cid, bool) {
	r, ok := l.store.Get(id)
	if !ok {
		return cid.Undef, false
	}
	return r.StateRoot, true
}

// Tips returns the published tip set ordered by hash
func (l *Ledger) Tips() []cid.Cid {
	tips := l.current().tips
	return append([]cid.Cid(nil), tips...)
}

// Order returns the canonical total order, genesis first
func (l *Ledger) Order() []cid.Cid {
	return append([]cid.Cid(nil), l.current().canonical.Order...)
}

// IsExcluded reports whether a block in the canonical order was skipped
// because it conflicts with earlier blocks
func (l *Ledger) IsExcluded(id cid.Cid) bool {
	return l.current().canonical.IsExcluded(id)
}

func (l *Ledger) IsOrphan(id cid.Cid) bool {
	return l.orphans.Has(id)
}

// MissingAncestors lists the unknown blocks a buffered block is waiting on
func (l *Ledger) MissingAncestors(id cid.Cid) []cid.Cid {
	return l.orphans.MissingAncestors(id)
}

// TxLocation is where a transaction sits in the canonical order
type TxLocation struct {
	Block    cid.Cid
	Position int
	Index    int
	Tx       *tx.Tx

	// Excluded is set when the containing block was merged but conflicted,
	// so the transaction had no effect on the canonical state
	Excluded bool
}

// FindTx searches the canonical order, newest first, for the transaction id.
// Block blooms are consulted before decoding transactions.
func (l *Ledger) FindTx(ctx context.Context, id cid.Cid) (*TxLocation, error) {
	c := l.current().canonical

	for i := len(c.Order) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, ok := l.store.Get(c.Order[i])
		if !ok || !r.HasTx(id) {
			continue
		}

		for j, t := range r.Block.Txs {
			tid, err := t.ID()
			if err != nil {
				return nil, errors.Wrap(err, "hashing tx")
			}

			if tid.Equals(id) {
				return &TxLocation{
					Block:    r.Hash,
					Position: i,
					Index:    j,
					Tx:       t,
					Excluded: c.IsExcluded(r.Hash),
				}, nil
			}
		}
	}

	return nil, ErrTxNotFound
}
