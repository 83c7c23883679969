package block

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/tcfw/dagledger/pkg/tx"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	Version uint32 = 1
)

// Seal is the proof attached by the block producer. Its meaning depends on
// the seal engine in use.
type Seal struct {
	Nonce     uint64 `msgpack:"n"`
	Signer    []byte `msgpack:"w,omitempty"`
	Signature []byte `msgpack:"s,omitempty"`
}

type Header struct {
	Version   uint32    `msgpack:"v"`
	Parents   []cid.Cid `msgpack:"p,omitempty"`
	CreatedAt int64     `msgpack:"t"`
	TxRoot    cid.Cid   `msgpack:"x"`
	Weight    uint64    `msgpack:"W"`
	Extra     []byte    `msgpack:"e,omitempty"`
	Seal      Seal      `msgpack:"s"`
}

type Block struct {
	Header Header   `msgpack:"h"`
	Txs    []*tx.Tx `msgpack:"txs,omitempty"`
}

// New creates an unsealed block over txs
func New(parents []cid.Cid, createdAt int64, weight uint64, txs []*tx.Tx) (*Block, error) {
	root, err := ComputeTxRoot(txs)
	if err != nil {
		return nil, err
	}

	return &Block{
		Header: Header{
			Version:   Version,
			Parents:   append([]cid.Cid(nil), parents...),
			CreatedAt: createdAt,
			TxRoot:    root,
			Weight:    weight,
		},
		Txs: txs,
	}, nil
}

func (h *Header) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(h)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling header")
	}

	return b, nil
}

// Hash is the block identity. The header commits to the body through TxRoot.
func (h *Header) Hash() (cid.Cid, error) {
	b, err := h.Marshal()
	if err != nil {
		return cid.Undef, err
	}

	return cryptography.ContentID(b)
}

// SealingBytes is the header encoding without the seal signature
func (h *Header) SealingBytes() ([]byte, error) {
	c := *h
	c.Seal.Signature = nil

	return c.Marshal()
}

func (h *Header) IsGenesis() bool {
	return len(h.Parents) == 0
}

func (b *Block) Hash() (cid.Cid, error) {
	return b.Header.Hash()
}

func (b *Block) Parents() []cid.Cid {
	return b.Header.Parents
}

func (b *Block) IsGenesis() bool {
	return b.Header.IsGenesis()
}

func (b *Block) Marshal() ([]byte, error) {
	d, err := msgpack.Marshal(b)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling block")
	}

	return d, nil
}

func (b *Block) Unmarshal(d []byte) error {
	if err := msgpack.Unmarshal(d, b); err != nil {
		return errors.Wrap(err, "unmarshaling block")
	}

	return nil
}

// TxIDs returns the ids of the block transactions in listed order
func TxIDs(txs []*tx.Tx) ([]cid.Cid, error) {
	ids := make([]cid.Cid, 0, len(txs))

	for i, t := range txs {
		id, err := t.ID()
		if err != nil {
			return nil, errors.Wrapf(err, "tx %d", i)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// ComputeTxRoot commits to the transactions and their order
func ComputeTxRoot(txs []*tx.Tx) (cid.Cid, error) {
	ids, err := TxIDs(txs)
	if err != nil {
		return cid.Undef, err
	}

	raw := make([][]byte, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.Bytes())
	}

	b, err := msgpack.Marshal(raw)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "marshaling tx ids")
	}

	return cryptography.ContentID(b)
}
