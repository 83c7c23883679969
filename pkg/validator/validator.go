package validator

import (
	"context"
	"math"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/tcfw/dagledger/pkg/ruleerrors"
	"github.com/tcfw/dagledger/pkg/seal"
	"github.com/tcfw/dagledger/pkg/state"
	"github.com/tcfw/dagledger/pkg/tx"
)

// Validator decides whether a block may be applied on top of a state root.
// It holds no mutable state of its own.
type Validator struct {
	state    *state.State
	verifier cryptography.Verifier
	seal     seal.Verifier
	rules    Rules
}

func New(st *state.State, opts ...Option) *Validator {
	v := &Validator{
		state:    st,
		verifier: cryptography.DefaultVerifier{},
		seal:     seal.Declared{},
		rules:    DefaultRules(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

func (v *Validator) Rules() Rules {
	return v.rules
}

// Validate runs every check and returns the state root after applying the
// block on parentRoot.
func (v *Validator) Validate(ctx context.Context, b *block.Block, parentRoot cid.Cid) (cid.Cid, error) {
	if _, err := v.Precheck(b); err != nil {
		return cid.Undef, err
	}

	return v.Apply(ctx, b, parentRoot)
}

// Precheck runs the checks that do not depend on state and returns the
// weight of the block.
func (v *Validator) Precheck(b *block.Block) (uint64, error) {
	if err := v.CheckStructure(b); err != nil {
		return 0, err
	}

	if err := v.CheckSignatures(b); err != nil {
		return 0, err
	}

	return v.CheckSeal(b)
}

// checkBody verifies the body against the header's tx root. Every later
// check reads the body, so a mismatch must be reported before them.
func checkBody(b *block.Block) error {
	for i, t := range b.Txs {
		if t == nil {
			return ruleerrors.Newf(ruleerrors.KindBodyMismatch, "tx %d missing", i)
		}
	}

	root, err := block.ComputeTxRoot(b.Txs)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindBodyMismatch, err, "computing tx root")
	}
	if !root.Equals(b.Header.TxRoot) {
		return ruleerrors.New(ruleerrors.KindBodyMismatch, "tx root mismatch")
	}

	return nil
}

func (v *Validator) CheckStructure(b *block.Block) error {
	h := &b.Header

	if h.Version != block.Version {
		return ruleerrors.Newf(ruleerrors.KindMalformed, "unsupported block version %d", h.Version)
	}

	genesis := h.IsGenesis()
	if genesis && v.rules.Genesis.Defined() {
		hash, err := h.Hash()
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindMalformed, err, "hashing header")
		}
		if !hash.Equals(v.rules.Genesis) {
			return ruleerrors.New(ruleerrors.KindMalformed, "block without parents is not the genesis block")
		}
	}

	seen := make(map[cid.Cid]struct{}, len(h.Parents))
	for _, p := range h.Parents {
		if !p.Defined() {
			return ruleerrors.New(ruleerrors.KindMalformed, "undefined parent")
		}
		if _, ok := seen[p]; ok {
			return ruleerrors.Newf(ruleerrors.KindMalformed, "duplicate parent %s", p)
		}
		seen[p] = struct{}{}
	}

	if err := checkBody(b); err != nil {
		return err
	}

	if len(b.Txs) == 0 && !genesis && !v.rules.AllowEmptyBlocks {
		return ruleerrors.New(ruleerrors.KindMalformed, "empty block")
	}

	if v.rules.MaxBlockTxs > 0 && len(b.Txs) > v.rules.MaxBlockTxs {
		return ruleerrors.Newf(ruleerrors.KindMalformed, "too many transactions %d", len(b.Txs))
	}

	if v.rules.MaxBlockSize > 0 {
		d, err := b.Marshal()
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindMalformed, err, "encoding block")
		}
		if len(d) > v.rules.MaxBlockSize {
			return ruleerrors.Newf(ruleerrors.KindMalformed, "block size %d exceeds limit", len(d))
		}
	}

	ids := make(map[cid.Cid]struct{}, len(b.Txs))
	for i, t := range b.Txs {

		if err := t.CheckFormat(); err != nil {
			return ruleerrors.Wrap(ruleerrors.KindMalformed, err, "tx format")
		}

		if err := v.checkPosition(t, i, genesis); err != nil {
			return err
		}

		id, err := t.ID()
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindMalformed, err, "tx id")
		}
		if _, ok := ids[id]; ok {
			return ruleerrors.Newf(ruleerrors.KindMalformed, "duplicate tx %s", id)
		}
		ids[id] = struct{}{}
	}

	return nil
}

func (v *Validator) checkPosition(t *tx.Tx, i int, genesis bool) error {
	switch t.Type {
	case tx.TxTypeMint:
		if !genesis {
			return ruleerrors.New(ruleerrors.KindMalformed, "mint outside genesis block")
		}
	case tx.TxTypeCoinbase:
		if genesis || i != 0 {
			return ruleerrors.New(ruleerrors.KindMalformed, "coinbase must be the first tx of a non genesis block")
		}
		if t.Amount > v.rules.BlockReward {
			return ruleerrors.Newf(ruleerrors.KindMalformed, "coinbase %d exceeds block reward", t.Amount)
		}
	case tx.TxTypeTransfer:
		if genesis {
			return ruleerrors.New(ruleerrors.KindMalformed, "transfer in genesis block")
		}
	}

	return nil
}

func (v *Validator) CheckSignatures(b *block.Block) error {
	for i, t := range b.Txs {
		ok, err := t.VerifySignature(v.verifier)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindCryptoInvalid, err, "verifying tx signature")
		}
		if !ok {
			return ruleerrors.Newf(ruleerrors.KindCryptoInvalid, "invalid signature on tx %d", i)
		}
	}

	return nil
}

// CheckSeal verifies the block seal and returns the weight it proves. The
// genesis block is configured rather than sealed.
func (v *Validator) CheckSeal(b *block.Block) (uint64, error) {
	if b.IsGenesis() {
		return b.Header.Weight, nil
	}

	w, err := v.seal.Verify(&b.Header)
	if err != nil {
		return 0, ruleerrors.Wrap(ruleerrors.KindCryptoInvalid, err, "verifying seal")
	}

	return w, nil
}

// Apply applies the transactions of b in order on top of root. Either every
// transaction applies and the new root is returned, or none does and root
// stays untouched.
func (v *Validator) Apply(ctx context.Context, b *block.Block, root cid.Cid) (cid.Cid, error) {
	var err error

	for i, t := range b.Txs {
		root, err = v.applyTx(ctx, t, root)
		if err != nil {
			if ruleerrors.IsRuleError(err) {
				return cid.Undef, errors.Wrapf(err, "tx %d", i)
			}
			return cid.Undef, errors.Wrapf(err, "applying tx %d", i)
		}
	}

	return root, nil
}

func (v *Validator) applyTx(ctx context.Context, t *tx.Tx, root cid.Cid) (cid.Cid, error) {
	if sender, ok := t.Sender(); ok {
		acc, err := v.state.Account(ctx, root, sender)
		if err != nil {
			return cid.Undef, err
		}

		if acc.Nonce == math.MaxUint64 || t.Nonce != acc.Nonce+1 {
			return cid.Undef, ruleerrors.Newf(ruleerrors.KindStateTransitionInvalid, "bad nonce %d, expected %d", t.Nonce, acc.Nonce+1)
		}
		if acc.Balance < t.Amount {
			return cid.Undef, ruleerrors.Newf(ruleerrors.KindStateTransitionInvalid, "insufficient balance %d for %d", acc.Balance, t.Amount)
		}

		acc.Balance -= t.Amount
		acc.Nonce++

		if root, err = v.state.SetAccount(ctx, root, sender, acc); err != nil {
			return cid.Undef, err
		}
	}

	acc, err := v.state.Account(ctx, root, t.To)
	if err != nil {
		return cid.Undef, err
	}

	if acc.Balance > math.MaxUint64-t.Amount {
		return cid.Undef, ruleerrors.New(ruleerrors.KindStateTransitionInvalid, "balance overflow")
	}
	acc.Balance += t.Amount

	return v.state.SetAccount(ctx, root, t.To, acc)
}
