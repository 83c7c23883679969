package cryptography

import (
	"crypto/ecdsa"
	"crypto/rand"

	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const secp256k1SigLen = 64

type Secp256k1PrivateKey struct {
	*ecdsa.PrivateKey
}

func NewEcdsaSecp256k1PrivateKey() (*Secp256k1PrivateKey, error) {
	pk, err := ecdsa.GenerateKey(ethCrypto.S256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating ecdsa key")
	}

	return &Secp256k1PrivateKey{pk}, nil
}

func (p *Secp256k1PrivateKey) Bytes() ([]byte, error) {
	return ethCrypto.FromECDSA(p.PrivateKey), nil
}

func (p *Secp256k1PrivateKey) KeyType() KeyType { return KeyTypeSecp256k1 }

func (p *Secp256k1PrivateKey) PublicKeyBytes() []byte {
	return ethCrypto.FromECDSAPub(&p.PrivateKey.PublicKey)
}

// SignMessage signs the SHA3-256 digest of msg. The recovery id is kept
// so the signature stays compatible with public key recovery.
func (p *Secp256k1PrivateKey) SignMessage(msg []byte) ([]byte, error) {
	dig := Digest(msg)
	return ethCrypto.Sign(dig[:], p.PrivateKey)
}

func NewSecp256k1PublicKey(d []byte) (*Secp256k1PublicKey, error) {
	pub, err := ethCrypto.UnmarshalPubkey(d)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling ecdsa pub key")
	}

	return &Secp256k1PublicKey{*pub}, nil
}

type Secp256k1PublicKey struct {
	ecdsa.PublicKey
}

func (p *Secp256k1PublicKey) Bytes() ([]byte, error) {
	return ethCrypto.FromECDSAPub(&p.PublicKey), nil
}

func (p *Secp256k1PublicKey) Verify(sig, msg []byte) (bool, error) {
	if len(sig) < secp256k1SigLen {
		return false, nil
	}

	dig := Digest(msg)

	return ethCrypto.VerifySignature(
		ethCrypto.FromECDSAPub(&p.PublicKey),
		dig[:],
		sig[:secp256k1SigLen],
	), nil
}
