package tx

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	Version1 uint8 = 1
)

type TxType int8

const (
	// TxTypeTransfer moves funds from the signing account to another account
	TxTypeTransfer TxType = iota + 1
	// TxTypeCoinbase credits the block reward. Unsigned.
	TxTypeCoinbase
	// TxTypeMint credits the initial allocation. Only valid in the genesis block.
	TxTypeMint
)

func (t TxType) String() string {
	switch t {
	case TxTypeTransfer:
		return "transfer"
	case TxTypeCoinbase:
		return "coinbase"
	case TxTypeMint:
		return "mint"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownType      = errors.New("unknown tx type")
	ErrUnsupportedVer   = errors.New("unsupported tx version")
	ErrZeroAmount       = errors.New("zero amount")
	ErrMissingSignature = errors.New("missing signature")
	ErrUnexpectedSigner = errors.New("unsigned tx type carries signer")
	ErrSelfTransfer     = errors.New("transfer to self")
)

type Tx struct {
	Version   uint8                `msgpack:"v"`
	Type      TxType               `msgpack:"T"`
	KeyType   cryptography.KeyType `msgpack:"kt,omitempty"`
	From      []byte               `msgpack:"f,omitempty"`
	To        Address              `msgpack:"to"`
	Amount    uint64               `msgpack:"a"`
	Nonce     uint64               `msgpack:"n"`
	Signature []byte               `msgpack:"s,omitempty"`
}

func NewTransfer(to Address, amount, nonce uint64) *Tx {
	return &Tx{
		Version: Version1,
		Type:    TxTypeTransfer,
		To:      to,
		Amount:  amount,
		Nonce:   nonce,
	}
}

// NewCoinbase creates a reward payment. The nonce only serves to make
// otherwise identical rewards distinct.
func NewCoinbase(to Address, amount, nonce uint64) *Tx {
	return &Tx{
		Version: Version1,
		Type:    TxTypeCoinbase,
		To:      to,
		Amount:  amount,
		Nonce:   nonce,
	}
}

func NewMint(to Address, amount uint64) *Tx {
	return &Tx{
		Version: Version1,
		Type:    TxTypeMint,
		To:      to,
		Amount:  amount,
	}
}

func (t *Tx) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "mashaling tx")
	}

	return b, nil
}

func (t *Tx) Unmarshal(b []byte) error {
	if err := msgpack.Unmarshal(b, t); err != nil {
		return errors.Wrap(err, "unmarshaling tx")
	}

	switch t.Type {
	case TxTypeTransfer, TxTypeCoinbase, TxTypeMint:
	default:
		return ErrUnknownType
	}

	return nil
}

// SigningBytes is the encoding of the tx without its signature
func (t *Tx) SigningBytes() ([]byte, error) {
	c := *t
	c.Signature = nil

	return c.Marshal()
}

// ID is the content id of the full encoding, signature included
func (t *Tx) ID() (cid.Cid, error) {
	b, err := t.Marshal()
	if err != nil {
		return cid.Undef, err
	}

	return cryptography.ContentID(b)
}

// Sign sets the sender to the signers public key and signs the tx
func (t *Tx) Sign(s cryptography.Signer) error {
	t.KeyType = s.KeyType()
	t.From = s.PublicKeyBytes()

	msg, err := t.SigningBytes()
	if err != nil {
		return err
	}

	sig, err := s.SignMessage(msg)
	if err != nil {
		return errors.Wrap(err, "signing tx")
	}

	t.Signature = sig
	return nil
}

// Sender returns the debited account. Only transfers have a sender.
func (t *Tx) Sender() (Address, bool) {
	if t.Type != TxTypeTransfer {
		return Address{}, false
	}

	return AddressFromPublicKey(t.From), true
}

// CheckFormat performs stateless checks of the tx fields
func (t *Tx) CheckFormat() error {
	if t.Version != Version1 {
		return ErrUnsupportedVer
	}

	if t.Amount == 0 {
		return ErrZeroAmount
	}

	switch t.Type {
	case TxTypeTransfer:
		if len(t.From) == 0 || len(t.Signature) == 0 {
			return ErrMissingSignature
		}
		if AddressFromPublicKey(t.From) == t.To {
			return ErrSelfTransfer
		}
	case TxTypeCoinbase, TxTypeMint:
		if len(t.From) != 0 || len(t.Signature) != 0 || t.KeyType != 0 {
			return ErrUnexpectedSigner
		}
	default:
		return ErrUnknownType
	}

	return nil
}

// VerifySignature checks the signature of a transfer. Unsigned tx types
// always verify.
func (t *Tx) VerifySignature(v cryptography.Verifier) (bool, error) {
	if t.Type != TxTypeTransfer {
		return true, nil
	}

	msg, err := t.SigningBytes()
	if err != nil {
		return false, err
	}

	return v.VerifySignature(t.KeyType, t.From, msg, t.Signature)
}
