package cryptography

import (
	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
	sig "github.com/drand/kyber/sign/bls"
	"github.com/drand/kyber/util/random"
	"github.com/pkg/errors"
)

var (
	pairing = bls.NewBLS12381Suite()

	// signatures on G1, public keys on G2
	blsScheme = sig.NewSchemeOnG1(pairing)
)

func NewBls12381PrivateKey() *Bls12381PrivateKey {
	sk, _ := blsScheme.NewKeyPair(random.New())
	return &Bls12381PrivateKey{sk}
}

type Bls12381PrivateKey struct {
	sk kyber.Scalar
}

func (b *Bls12381PrivateKey) Sign(msg []byte) ([]byte, error) {
	return blsScheme.Sign(b.sk, msg)
}

func (b *Bls12381PrivateKey) Public() *Bls12381PublicKey {
	pk := pairing.G2().Point().Mul(b.sk, nil)
	return &Bls12381PublicKey{pk}
}

func (b *Bls12381PrivateKey) Equal(o *Bls12381PrivateKey) bool {
	return b.sk.Equal(o.sk)
}

type Bls12381PublicKey struct {
	kyber.Point
}

func NewBls12381PublicKey(d []byte) (*Bls12381PublicKey, error) {
	p := pairing.G2().Point()
	if err := p.UnmarshalBinary(d); err != nil {
		return nil, errors.Wrap(err, "unmarshalling bls public key")
	}

	return &Bls12381PublicKey{p}, nil
}

func (b *Bls12381PublicKey) Bytes() ([]byte, error) {
	return b.Point.MarshalBinary()
}

func (b *Bls12381PublicKey) Verify(signature, msg []byte) (bool, error) {
	if err := blsScheme.Verify(b.Point, msg, signature); err != nil {
		return false, nil
	}

	return true, nil
}
