package seal

import (
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/cryptography"
)

// Authority accepts blocks signed by one of a fixed set of BLS keys. Each
// authority contributes its configured weight.
type Authority struct {
	signers map[string]authority
}

type authority struct {
	key    *cryptography.Bls12381PublicKey
	weight uint64
}

func NewAuthority() *Authority {
	return &Authority{signers: make(map[string]authority)}
}

// Add registers the public key of an authority with the weight its blocks carry
func (a *Authority) Add(pk *cryptography.Bls12381PublicKey, weight uint64) error {
	if weight == 0 {
		return ErrZeroWeight
	}

	b, err := pk.Bytes()
	if err != nil {
		return errors.Wrap(err, "marshaling authority key")
	}

	a.signers[string(b)] = authority{key: pk, weight: weight}
	return nil
}

func (a *Authority) Len() int {
	return len(a.signers)
}

func (a *Authority) Verify(h *block.Header) (uint64, error) {
	s, ok := a.signers[string(h.Seal.Signer)]
	if !ok {
		return 0, ErrUnknownSigner
	}

	if h.Weight != s.weight {
		return 0, ErrWeightMismatch
	}

	msg, err := h.SealingBytes()
	if err != nil {
		return 0, err
	}

	ok, err = s.key.Verify(h.Seal.Signature, msg)
	if err != nil {
		return 0, errors.Wrap(err, "verifying seal")
	}
	if !ok {
		return 0, ErrBadSignature
	}

	return s.weight, nil
}

// AuthoritySealer signs headers as a single authority
type AuthoritySealer struct {
	Key    *cryptography.Bls12381PrivateKey
	Weight uint64
}

func (s *AuthoritySealer) Seal(h *block.Header) error {
	pk, err := s.Key.Public().Bytes()
	if err != nil {
		return errors.Wrap(err, "marshaling authority key")
	}

	h.Weight = s.Weight
	h.Seal.Signer = pk

	msg, err := h.SealingBytes()
	if err != nil {
		return err
	}

	sig, err := s.Key.Sign(msg)
	if err != nil {
		return errors.Wrap(err, "signing seal")
	}

	h.Seal.Signature = sig
	return nil
}
