package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/tcfw/dagledger/pkg/dag"
	"github.com/tcfw/dagledger/pkg/forkchoice"
	"github.com/tcfw/dagledger/pkg/storage"
	"github.com/tcfw/dagledger/pkg/validator"
)

type Ledger struct {
	MaxReorgDepth  int
	OrphanCapacity int
	NodeCacheSize  int
	Rules          validator.Rules
}

const (
	Cfg_ledger_maxReorgDepth    = "ledger.maxReorgDepth"
	Cfg_ledger_orphanCapacity   = "ledger.orphanCapacity"
	Cfg_ledger_nodeCacheSize    = "ledger.nodeCacheSize"
	Cfg_ledger_maxBlockTxs      = "ledger.maxBlockTxs"
	Cfg_ledger_maxBlockSize     = "ledger.maxBlockSize"
	Cfg_ledger_allowEmptyBlocks = "ledger.allowEmptyBlocks"
	Cfg_ledger_blockReward      = "ledger.blockReward"
)

var (
	ledgerDefaults = map[string]interface{}{
		Cfg_ledger_maxReorgDepth:    forkchoice.DefaultMaxReorgDepth,
		Cfg_ledger_orphanCapacity:   dag.DefaultOrphanCapacity,
		Cfg_ledger_nodeCacheSize:    storage.DefaultNodeCacheSize,
		Cfg_ledger_maxBlockTxs:      validator.DefaultMaxBlockTxs,
		Cfg_ledger_maxBlockSize:     validator.DefaultMaxBlockSize,
		Cfg_ledger_allowEmptyBlocks: false,
		Cfg_ledger_blockReward:      validator.DefaultBlockReward,
	}
)

func init() {
	for k, v := range ledgerDefaults {
		viper.SetDefault(k, v)
	}
}

func buildLedgerConfig() (*Ledger, error) {
	c := &Ledger{}

	c.MaxReorgDepth = viper.GetInt(Cfg_ledger_maxReorgDepth)
	c.OrphanCapacity = viper.GetInt(Cfg_ledger_orphanCapacity)
	c.NodeCacheSize = viper.GetInt(Cfg_ledger_nodeCacheSize)

	c.Rules = validator.DefaultRules()
	c.Rules.MaxBlockTxs = viper.GetInt(Cfg_ledger_maxBlockTxs)
	c.Rules.MaxBlockSize = viper.GetInt(Cfg_ledger_maxBlockSize)
	c.Rules.AllowEmptyBlocks = viper.GetBool(Cfg_ledger_allowEmptyBlocks)
	c.Rules.BlockReward = viper.GetUint64(Cfg_ledger_blockReward)

	if c.MaxReorgDepth < 0 {
		return nil, errors.Errorf("%s must not be negative", Cfg_ledger_maxReorgDepth)
	}
	if c.OrphanCapacity <= 0 {
		return nil, errors.Errorf("%s must be positive", Cfg_ledger_orphanCapacity)
	}
	if c.Rules.MaxBlockTxs <= 0 || c.Rules.MaxBlockSize <= 0 {
		return nil, errors.New("block limits must be positive")
	}

	return c, nil
}
