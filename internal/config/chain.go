package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/tx"
	"gopkg.in/yaml.v3"
)

type Chain struct {
	Genesis *block.GenesisInfo
}

const (
	Cfg_chain_genesisInfo = "chain.genesis"
	Cfg_chain_genesisFile = "chain.genesisFile"
)

var (
	ErrNoGenesis = errors.New("one of chain.genesis or chain.genesisFile is required")
)

func buildChainConfig() (*Chain, error) {
	c := &Chain{}

	var err error

	if gcfg := viper.GetString(Cfg_chain_genesisInfo); gcfg != "" {
		c.Genesis, err = block.DecodeGenesis(gcfg)
		if err != nil {
			return nil, errors.Wrap(err, "decoding genesis info")
		}
		return c, nil
	}

	if f := viper.GetString(Cfg_chain_genesisFile); f != "" {
		c.Genesis, err = LoadGenesisFile(f)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	return nil, ErrNoGenesis
}

// GenesisFile is the yaml form of the genesis info
type GenesisFile struct {
	ChainID   string `yaml:"chainId"`
	CreatedAt int64  `yaml:"createdAt"`
	Alloc     []struct {
		Address string `yaml:"address"`
		Amount  uint64 `yaml:"amount"`
	} `yaml:"alloc"`
}

func LoadGenesisFile(path string) (*block.GenesisInfo, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading genesis file")
	}

	return ParseGenesis(d)
}

// ParseGenesis parses a yaml genesis description. Allocations keep the order
// of the file.
func ParseGenesis(d []byte) (*block.GenesisInfo, error) {
	gf := &GenesisFile{}
	if err := yaml.Unmarshal(d, gf); err != nil {
		return nil, errors.Wrap(err, "parsing genesis yaml")
	}

	if gf.ChainID == "" {
		return nil, errors.New("genesis chainId is required")
	}

	g := &block.GenesisInfo{
		ChainID:   gf.ChainID,
		CreatedAt: gf.CreatedAt,
	}

	seen := make(map[tx.Address]struct{}, len(gf.Alloc))
	for i, a := range gf.Alloc {
		addr, err := tx.ParseAddress(a.Address)
		if err != nil {
			return nil, errors.Wrapf(err, "alloc %d", i)
		}
		if _, ok := seen[addr]; ok {
			return nil, errors.Errorf("alloc %d: duplicate address %s", i, a.Address)
		}
		seen[addr] = struct{}{}

		g.Alloc = append(g.Alloc, block.Allocation{Address: addr, Amount: a.Amount})
	}

	return g, nil
}
