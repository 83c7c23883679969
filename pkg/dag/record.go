package dag

import (
	"bytes"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/storage"
	"github.com/vmihailenco/msgpack/v5"
)

// Record is an accepted block together with the fields derived at
// acceptance. Records are immutable once inserted.
type Record struct {
	Block *block.Block
	Hash  cid.Cid

	Height           uint64
	Weight           uint64
	CumulativeWeight uint64

	// SelectedParent is cid.Undef for the genesis block
	SelectedParent cid.Cid

	// StateRoot is the state after applying the block on top of the state
	// root of its selected parent
	StateRoot cid.Cid

	Bloom []byte
}

func (r *Record) Parents() []cid.Cid {
	return r.Block.Header.Parents
}

func (r *Record) IsGenesis() bool {
	return r.Block.IsGenesis()
}

// HasTx checks the block bloom filter. False positives are possible.
func (r *Record) HasTx(id cid.Cid) bool {
	if len(r.Bloom) == 0 {
		return false
	}

	ok, err := storage.BloomContains(r.Bloom, id)
	return err == nil && ok
}

type storedRecord struct {
	Block            *block.Block `msgpack:"b"`
	Height           uint64       `msgpack:"h"`
	Weight           uint64       `msgpack:"w"`
	CumulativeWeight uint64       `msgpack:"cw"`
	SelectedParent   []byte       `msgpack:"sp,omitempty"`
	StateRoot        []byte       `msgpack:"r"`
	Bloom            []byte       `msgpack:"f,omitempty"`
}

func (r *Record) marshal() ([]byte, error) {
	sr := &storedRecord{
		Block:            r.Block,
		Height:           r.Height,
		Weight:           r.Weight,
		CumulativeWeight: r.CumulativeWeight,
		StateRoot:        r.StateRoot.Bytes(),
		Bloom:            r.Bloom,
	}
	if r.SelectedParent.Defined() {
		sr.SelectedParent = r.SelectedParent.Bytes()
	}

	b, err := msgpack.Marshal(sr)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling block record")
	}

	return b, nil
}

func unmarshalRecord(b []byte) (*Record, error) {
	sr := &storedRecord{}
	if err := msgpack.Unmarshal(b, sr); err != nil {
		return nil, errors.Wrap(err, "unmarshaling block record")
	}

	if sr.Block == nil {
		return nil, errors.New("block record without block")
	}

	hash, err := sr.Block.Hash()
	if err != nil {
		return nil, err
	}

	root, err := cid.Cast(sr.StateRoot)
	if err != nil {
		return nil, errors.Wrap(err, "casting state root")
	}

	r := &Record{
		Block:            sr.Block,
		Hash:             hash,
		Height:           sr.Height,
		Weight:           sr.Weight,
		CumulativeWeight: sr.CumulativeWeight,
		SelectedParent:   cid.Undef,
		StateRoot:        root,
		Bloom:            sr.Bloom,
	}

	if len(sr.SelectedParent) > 0 {
		if r.SelectedParent, err = cid.Cast(sr.SelectedParent); err != nil {
			return nil, errors.Wrap(err, "casting selected parent")
		}
	}

	return r, nil
}

// HashLess orders block hashes for deterministic tie breaks
func HashLess(a, b cid.Cid) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

// SortHashes sorts ids in place by HashLess
func SortHashes(ids []cid.Cid) {
	sort.Slice(ids, func(i, j int) bool { return HashLess(ids[i], ids[j]) })
}

// HeavierThan reports whether a ranks before b when choosing between
// competing blocks: greater cumulative weight first, then lowest hash.
func HeavierThan(a, b *Record) bool {
	if a.CumulativeWeight != b.CumulativeWeight {
		return a.CumulativeWeight > b.CumulativeWeight
	}
	return HashLess(a.Hash, b.Hash)
}
