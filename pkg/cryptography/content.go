package cryptography

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

const (
	// ContentCodec is the cid codec used for every content addressed object
	ContentCodec = cid.Raw

	contentHash = multihash.SHA3_256
)

// ContentID hashes the given bytes into a content identifier. Identical
// content always maps to the same identifier.
func ContentID(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, contentHash, -1)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "hashing content")
	}

	return cid.NewCidV1(ContentCodec, mh), nil
}

// MustContentID is ContentID for callers hashing fixed, known good input
func MustContentID(data []byte) cid.Cid {
	id, err := ContentID(data)
	if err != nil {
		panic(err)
	}
	return id
}

// Digest is the plain SHA3-256 digest used for signing, addresses and keys
func Digest(data []byte) [32]byte {
	return sha3.Sum256(data)
}
