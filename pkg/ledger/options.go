package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/tcfw/dagledger/pkg/dag"
	"github.com/tcfw/dagledger/pkg/forkchoice"
	"github.com/tcfw/dagledger/pkg/seal"
	"github.com/tcfw/dagledger/pkg/storage"
	"github.com/tcfw/dagledger/pkg/validator"
)

const (
	invalidCacheSize = 1 << 12
)

type options struct {
	backend       storage.Backend
	genesis       *block.Block
	log           *logrus.Entry
	sealVerifier  seal.Verifier
	verifier      cryptography.Verifier
	maxReorgDepth int
	orphanCap     int
	nodeCacheSize int
	rules         validator.Rules
	registerer    prometheus.Registerer
}

func defaultOptions() options {
	return options{
		sealVerifier:  seal.Declared{},
		verifier:      cryptography.DefaultVerifier{},
		maxReorgDepth: forkchoice.DefaultMaxReorgDepth,
		orphanCap:     dag.DefaultOrphanCapacity,
		nodeCacheSize: storage.DefaultNodeCacheSize,
		rules:         validator.DefaultRules(),
	}
}

type Option func(*options) error

// WithBackend sets the persistence backend. Defaults to an in memory store.
func WithBackend(b storage.Backend) Option {
	return func(o *options) error {
		o.backend = b
		return nil
	}
}

// WithGenesis sets the genesis block of the chain. Required.
func WithGenesis(g *block.Block) Option {
	return func(o *options) error {
		o.genesis = g
		return nil
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(o *options) error {
		o.log = l
		return nil
	}
}

func WithSealVerifier(v seal.Verifier) Option {
	return func(o *options) error {
		o.sealVerifier = v
		return nil
	}
}

func WithVerifier(v cryptography.Verifier) Option {
	return func(o *options) error {
		o.verifier = v
		return nil
	}
}

// WithMaxReorgDepth limits how many canonical blocks a reorganisation may
// roll back. Zero is unbounded.
func WithMaxReorgDepth(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return errInvalidOption("max reorg depth must not be negative")
		}
		o.maxReorgDepth = n
		return nil
	}
}

func WithOrphanCapacity(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errInvalidOption("orphan capacity must be positive")
		}
		o.orphanCap = n
		return nil
	}
}

func WithNodeCacheSize(n int) Option {
	return func(o *options) error {
		o.nodeCacheSize = n
		return nil
	}
}

// WithRules sets the structural block limits. The genesis rule is always
// taken from the genesis block.
func WithRules(r validator.Rules) Option {
	return func(o *options) error {
		o.rules = r
		return nil
	}
}

// WithRegisterer registers the ledger metrics with r
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = r
		return nil
	}
}
