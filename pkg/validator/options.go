package validator

import (
	"github.com/ipfs/go-cid"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/tcfw/dagledger/pkg/seal"
)

const (
	DefaultMaxBlockTxs  = 1000
	DefaultMaxBlockSize = 1 << 20
	DefaultBlockReward  = 50
)

// Rules are the structural limits a block must respect
type Rules struct {
	MaxBlockTxs      int
	MaxBlockSize     int
	AllowEmptyBlocks bool
	BlockReward      uint64

	// Genesis is the only block allowed without parents. Undefined accepts
	// any genesis block.
	Genesis cid.Cid
}

func DefaultRules() Rules {
	return Rules{
		MaxBlockTxs:  DefaultMaxBlockTxs,
		MaxBlockSize: DefaultMaxBlockSize,
		BlockReward:  DefaultBlockReward,
		Genesis:      cid.Undef,
	}
}

type Option func(*Validator)

func WithRules(r Rules) Option {
	return func(v *Validator) {
		v.rules = r
	}
}

func WithVerifier(cv cryptography.Verifier) Option {
	return func(v *Validator) {
		v.verifier = cv
	}
}

func WithSealVerifier(sv seal.Verifier) Option {
	return func(v *Validator) {
		v.seal = sv
	}
}
