package storage

import (
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/ipfs/go-cid"
)

const falsePositive = 0.01

// MakeBloom encodes a filter over the tx ids of a block, sized for ids
func MakeBloom(ids []cid.Cid) ([]byte, error) {
	n := uint(len(ids))
	if n == 0 {
		n = 1
	}

	b := bloom.NewWithEstimates(n, falsePositive)

	for _, id := range ids {
		b.Add(id.Bytes())
	}

	return b.GobEncode()
}

// BloomContains tests an encoded filter. Filter parameters travel with the
// encoding.
func BloomContains(b []byte, id cid.Cid) (bool, error) {
	var f bloom.BloomFilter

	if err := f.GobDecode(b); err != nil {
		return false, err
	}

	return f.Test(id.Bytes()), nil
}
