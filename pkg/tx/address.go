package tx

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/cryptography"
)

const (
	AddressLength = 20
)

// Address identifies an account. It is derived from the account holders
// public key.
type Address [AddressLength]byte

func AddressFromPublicKey(pk []byte) Address {
	dig := cryptography.Digest(pk)

	var a Address
	copy(a[:], dig[len(dig)-AddressLength:])
	return a
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Less(b Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// String returns the multibase (base58btc) text form of the address
func (a Address) String() string {
	s, err := cryptography.EncodeMultibase(a[:])
	if err != nil {
		//base58btc encoding of fixed size bytes does not fail
		panic(err)
	}
	return s
}

func ParseAddress(s string) (Address, error) {
	var a Address

	d, err := cryptography.DecodeMultibase(s)
	if err != nil {
		return a, err
	}

	if len(d) != AddressLength {
		return a, errors.Errorf("invalid address length %d", len(d))
	}

	copy(a[:], d)
	return a, nil
}
