package storage

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

const (
	tableSep byte = ':'
)

type KeyType byte

const (
	KeyNode KeyType = iota + 1
	KeyBlock
	KeyMeta
)

// TypedKey builds a key of the given table, parts separated by tableSep
func TypedKey(kType KeyType, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p) + 1 //add sep as well
	}

	k := make([]byte, 0, n)
	k = append(k, byte(kType))
	for _, p := range parts {
		k = append(k, p...)
		k = append(k, tableSep)
	}

	if len(parts) == 0 {
		return k
	}

	return k[:len(k)-1]
}

// Prefix returns the key prefix shared by every key of the table
func Prefix(kType KeyType) []byte {
	return []byte{byte(kType)}
}

func NodeKey(id cid.Cid) []byte {
	return TypedKey(KeyNode, id.Bytes())
}

func BlockKey(id cid.Cid) []byte {
	return TypedKey(KeyBlock, id.Bytes())
}

func MetaKey(name string) []byte {
	return TypedKey(KeyMeta, []byte(name))
}

// KeyID extracts the cid stored in a single part typed key
func KeyID(key []byte) (cid.Cid, error) {
	if len(key) < 2 {
		return cid.Undef, errors.New("key too short")
	}

	id, err := cid.Cast(key[1:])
	if err != nil {
		return cid.Undef, errors.Wrap(err, "casting key cid")
	}

	return id, nil
}
