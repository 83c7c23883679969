package tx

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/dagledger/pkg/cryptography"
)

func newSigner(t *testing.T) *cryptography.Ed25519Signer {
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return cryptography.NewEd25519Signer(sk)
}

func TestMarshal(t *testing.T) {
	tx := NewTransfer(Address{1, 2, 3}, 10, 1)
	require.NoError(t, tx.Sign(newSigner(t)))

	b, err := tx.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	txRB := &Tx{}

	if err := txRB.Unmarshal(b); err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, tx, txRB)
}

func TestUnmarshalUnknownType(t *testing.T) {
	tx := &Tx{Version: Version1, Type: 42, Amount: 1}
	b, err := tx.Marshal()
	require.NoError(t, err)

	assert.ErrorIs(t, (&Tx{}).Unmarshal(b), ErrUnknownType)
}

func TestSignAndVerify(t *testing.T) {
	s := newSigner(t)

	tx := NewTransfer(Address{9}, 5, 1)
	require.NoError(t, tx.Sign(s))

	ok, err := tx.VerifySignature(cryptography.DefaultVerifier{})
	require.NoError(t, err)
	assert.True(t, ok)

	sender, isTransfer := tx.Sender()
	assert.True(t, isTransfer)
	assert.Equal(t, AddressFromPublicKey(s.PublicKeyBytes()), sender)

	//tampering with any signed field breaks the signature
	tx.Amount = 6
	ok, err = tx.VerifySignature(cryptography.DefaultVerifier{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignSecp256k1(t *testing.T) {
	sk, err := cryptography.NewEcdsaSecp256k1PrivateKey()
	require.NoError(t, err)

	tx := NewTransfer(Address{9}, 5, 1)
	require.NoError(t, tx.Sign(sk))

	ok, err := tx.VerifySignature(cryptography.DefaultVerifier{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIDCoversSignature(t *testing.T) {
	a := NewTransfer(Address{9}, 5, 1)
	require.NoError(t, a.Sign(newSigner(t)))

	b := NewTransfer(Address{9}, 5, 1)
	require.NoError(t, b.Sign(newSigner(t)))

	ida, err := a.ID()
	require.NoError(t, err)
	idb, err := b.ID()
	require.NoError(t, err)

	assert.False(t, ida.Equals(idb))

	again, err := a.ID()
	require.NoError(t, err)
	assert.True(t, ida.Equals(again))
}

func TestCheckFormat(t *testing.T) {
	s := newSigner(t)
	self := AddressFromPublicKey(s.PublicKeyBytes())

	signed := func(tx *Tx) *Tx {
		require.NoError(t, tx.Sign(s))
		return tx
	}

	tests := []struct {
		name string
		tx   *Tx
		err  error
	}{
		{"transfer", signed(NewTransfer(Address{1}, 1, 1)), nil},
		{"unsigned transfer", NewTransfer(Address{1}, 1, 1), ErrMissingSignature},
		{"zero amount", signed(NewTransfer(Address{1}, 0, 1)), ErrZeroAmount},
		{"self transfer", signed(NewTransfer(self, 1, 1)), ErrSelfTransfer},
		{"coinbase", NewCoinbase(Address{1}, 50, 0), nil},
		{"signed coinbase", signed(NewCoinbase(Address{1}, 50, 0)), ErrUnexpectedSigner},
		{"mint", NewMint(Address{1}, 100), nil},
		{"bad version", &Tx{Version: 9, Type: TxTypeMint, Amount: 1}, ErrUnsupportedVer},
		{"bad type", &Tx{Version: Version1, Type: 9, Amount: 1}, ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.CheckFormat()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestAddressText(t *testing.T) {
	a := AddressFromPublicKey([]byte("some public key"))

	s := a.String()
	assert.Equal(t, byte('z'), s[0])

	b, err := ParseAddress(s)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = ParseAddress("zabc")
	assert.Error(t, err)
}
