package block

import (
	"encoding/base64"

	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/tx"
	"github.com/vmihailenco/msgpack/v5"
)

type Allocation struct {
	Address tx.Address `msgpack:"a"`
	Amount  uint64     `msgpack:"v"`
}

// GenesisInfo describes the root block of a chain
type GenesisInfo struct {
	ChainID   string       `msgpack:"c"`
	CreatedAt int64        `msgpack:"t"`
	Alloc     []Allocation `msgpack:"a"`
}

// Block builds the genesis block. Every allocation becomes a mint
// transaction, in listed order.
func (g *GenesisInfo) Block() (*Block, error) {
	if g.ChainID == "" {
		return nil, errors.New("genesis requires a chain id")
	}

	txs := make([]*tx.Tx, 0, len(g.Alloc))
	for _, a := range g.Alloc {
		if a.Amount == 0 {
			continue
		}
		txs = append(txs, tx.NewMint(a.Address, a.Amount))
	}

	b, err := New(nil, g.CreatedAt, 0, txs)
	if err != nil {
		return nil, err
	}
	b.Header.Extra = []byte(g.ChainID)

	return b, nil
}

func (g *GenesisInfo) Encode() (string, error) {
	b, err := msgpack.Marshal(g)
	if err != nil {
		return "", errors.Wrap(err, "marshaling genesis")
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeGenesis(s string) (*GenesisInfo, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decoding genesis")
	}

	g := &GenesisInfo{}
	if err := msgpack.Unmarshal(b, g); err != nil {
		return nil, errors.Wrap(err, "unmarshaling genesis")
	}

	return g, nil
}
