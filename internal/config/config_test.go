package config

import (
	"fmt"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/tcfw/dagledger/pkg/seal"
	"github.com/tcfw/dagledger/pkg/tx"
)

func testAddress(b byte) tx.Address {
	var a tx.Address
	a[0] = b
	return a
}

func TestParseGenesis(t *testing.T) {
	a1, a2 := testAddress(1), testAddress(2)

	d := fmt.Sprintf(`
chainId: dev
createdAt: 1660000000
alloc:
  - address: %s
    amount: 100
  - address: %s
    amount: 50
`, a2, a1)

	g, err := ParseGenesis([]byte(d))
	require.NoError(t, err)

	assert.Equal(t, "dev", g.ChainID)
	assert.Equal(t, int64(1660000000), g.CreatedAt)
	assert.Equal(t, []block.Allocation{{Address: a2, Amount: 100}, {Address: a1, Amount: 50}}, g.Alloc)
}

func TestParseGenesisErrors(t *testing.T) {
	a := testAddress(1)

	tests := map[string]string{
		"no chain id": "createdAt: 1\n",
		"bad address": "chainId: x\nalloc:\n  - address: nope\n    amount: 1\n",
		"duplicate":   fmt.Sprintf("chainId: x\nalloc:\n  - address: %s\n    amount: 1\n  - address: %s\n    amount: 2\n", a, a),
		"not yaml":    "chainId: [",
	}

	for name, d := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGenesis([]byte(d))
			assert.Error(t, err)
		})
	}
}

func TestSealVerifier(t *testing.T) {
	v, err := (&Seal{Engine: SealDeclared}).Verifier()
	require.NoError(t, err)
	assert.Equal(t, seal.Declared{}, v)

	v, err = (&Seal{Engine: SealWork}).Verifier()
	require.NoError(t, err)
	assert.Equal(t, seal.Work{}, v)

	_, err = (&Seal{Engine: "vote"}).Verifier()
	assert.Error(t, err)

	_, err = (&Seal{Engine: SealAuthority}).Verifier()
	assert.Error(t, err)

	pk, err := cryptography.NewBls12381PrivateKey().Public().Bytes()
	require.NoError(t, err)
	key, err := cryptography.EncodeMultibase(pk)
	require.NoError(t, err)

	v, err = (&Seal{Engine: SealAuthority, Authorities: []Authority{{Key: key, Weight: 3}}}).Verifier()
	require.NoError(t, err)
	assert.Equal(t, 1, v.(*seal.Authority).Len())
}

func TestBuild(t *testing.T) {
	t.Cleanup(func() {
		viper.Set(Cfg_chain_genesisInfo, "")
		for _, k := range []string{Cfg_ledger_maxReorgDepth, Cfg_ledger_orphanCapacity} {
			viper.Set(k, ledgerDefaults[k])
		}
	})

	g := &block.GenesisInfo{ChainID: "dev", Alloc: []block.Allocation{{Address: testAddress(1), Amount: 10}}}
	enc, err := g.Encode()
	require.NoError(t, err)

	viper.Set(Cfg_chain_genesisInfo, enc)
	viper.Set(Cfg_ledger_maxReorgDepth, 7)

	c, err := build()
	require.NoError(t, err)

	assert.Equal(t, g, c.Chain().Genesis)
	assert.Equal(t, 7, c.Ledger().MaxReorgDepth)
	assert.Equal(t, 512, c.Ledger().OrphanCapacity)
	assert.Equal(t, uint64(50), c.Ledger().Rules.BlockReward)
	assert.Equal(t, SealDeclared, c.Seal().Engine)

	viper.Set(Cfg_ledger_orphanCapacity, 0)
	_, err = build()
	assert.Error(t, err)
}
