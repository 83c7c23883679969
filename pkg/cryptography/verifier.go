package cryptography

import (
	"crypto/ed25519"

	"github.com/pkg/errors"
)

type KeyType uint8

const (
	KeyTypeEd25519 KeyType = iota + 1
	KeyTypeSecp256k1
)

func (k KeyType) String() string {
	switch k {
	case KeyTypeEd25519:
		return "ed25519"
	case KeyTypeSecp256k1:
		return "secp256k1"
	default:
		return "unknown"
	}
}

// Verifier checks a signature over msg against the claimed public key
type Verifier interface {
	VerifySignature(kt KeyType, publicKey, msg, signature []byte) (bool, error)
}

var (
	_ Verifier = DefaultVerifier{}

	ErrUnknownKeyType = errors.New("unknown key type")
)

// DefaultVerifier verifies ed25519 and secp256k1 signatures
type DefaultVerifier struct{}

func (DefaultVerifier) VerifySignature(kt KeyType, publicKey, msg, signature []byte) (bool, error) {
	switch kt {
	case KeyTypeEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return false, errors.Errorf("invalid ed25519 public key length %d", len(publicKey))
		}
		return ed25519.Verify(ed25519.PublicKey(publicKey), msg, signature), nil
	case KeyTypeSecp256k1:
		pub, err := NewSecp256k1PublicKey(publicKey)
		if err != nil {
			return false, err
		}
		return pub.Verify(signature, msg)
	default:
		return false, ErrUnknownKeyType
	}
}

// Signer produces signatures for the public key it exposes
type Signer interface {
	KeyType() KeyType
	PublicKeyBytes() []byte
	SignMessage(msg []byte) ([]byte, error)
}

type Ed25519Signer struct {
	ed25519.PrivateKey
}

func NewEd25519Signer(sk ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{sk}
}

func (s *Ed25519Signer) KeyType() KeyType { return KeyTypeEd25519 }

func (s *Ed25519Signer) PublicKeyBytes() []byte {
	return []byte(s.PrivateKey.Public().(ed25519.PublicKey))
}

func (s *Ed25519Signer) SignMessage(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.PrivateKey, msg), nil
}
