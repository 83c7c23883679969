package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	m := NewMemStore()

	key := TypedKey(KeyMeta, []byte("a"))

	_, err := m.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Put(key, []byte{1, 2, 3}))

	v, err := m.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v)

	//returned values are copies
	v[0] = 9
	v2, _ := m.Get(key)
	assert.Equal(t, byte(1), v2[0])

	require.NoError(t, m.Delete(key))
	has, err := m.Has(key)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemStoreBatch(t *testing.T) {
	m := NewMemStore()

	b := m.NewBatch()
	require.NoError(t, b.Put(MetaKey("x"), []byte("1")))
	require.NoError(t, b.Put(MetaKey("y"), []byte("2")))

	has, _ := m.Has(MetaKey("x"))
	assert.False(t, has, "batch writes must not be visible before commit")

	require.NoError(t, b.Commit())

	has, _ = m.Has(MetaKey("x"))
	assert.True(t, has)
	assert.Equal(t, 2, m.Len())
}

func TestMemStoreIterate(t *testing.T) {
	m := NewMemStore()

	require.NoError(t, m.Put(TypedKey(KeyBlock, []byte("b")), []byte("2")))
	require.NoError(t, m.Put(TypedKey(KeyBlock, []byte("a")), []byte("1")))
	require.NoError(t, m.Put(TypedKey(KeyMeta, []byte("c")), []byte("3")))

	var seen []string
	err := m.Iterate(Prefix(KeyBlock), func(_, value []byte) error {
		seen = append(seen, string(value))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, seen)
}

func TestMemStoreClosed(t *testing.T) {
	m := NewMemStore()
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Put([]byte("k"), nil), ErrClosed)
	assert.ErrorIs(t, m.NewBatch().Commit(), ErrClosed)
}

func TestTypedKey(t *testing.T) {
	assert.Equal(t, []byte{byte(KeyMeta), 'a', ':', 'b'}, TypedKey(KeyMeta, []byte("a"), []byte("b")))
	assert.Equal(t, []byte{byte(KeyMeta)}, TypedKey(KeyMeta))
}
