package cryptography

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyBls12381(t *testing.T) {
	sk := NewBls12381PrivateKey()
	pk := sk.Public()

	pkb, err := pk.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	pkmb, err := EncodeMultibase(pkb)
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("abc")

	sig, err := sk.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := DecodeMultibase(pkmb)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := NewBls12381PublicKey(raw)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := decoded.Verify(sig, msg)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, _ = decoded.Verify(sig, []byte("abd"))
	assert.False(t, ok)
}
