package dag

import (
	"context"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/storage"
)

var (
	ErrUnknownBlock  = errors.New("unknown block")
	ErrUnknownParent = errors.New("unknown parent")
	ErrAlreadyKnown  = errors.New("block already known")
	ErrSecondGenesis = errors.New("genesis already set")
)

// Graph is a read only view of the accepted blocks
type Graph interface {
	Get(id cid.Cid) (*Record, bool)
	Has(id cid.Cid) bool
	Children(id cid.Cid) []cid.Cid
	Tips() []cid.Cid
	Genesis() cid.Cid
	IsAncestor(a, b cid.Cid) bool
}

// Store holds every accepted block record keyed by hash with parent to
// child adjacency and the current tip set.
type Store struct {
	mu sync.RWMutex

	backend storage.Backend

	records  map[cid.Cid]*Record
	children map[cid.Cid][]cid.Cid
	tips     map[cid.Cid]struct{}
	genesis  cid.Cid
}

var _ Graph = (*Store)(nil)

func NewStore(backend storage.Backend) *Store {
	return &Store{
		backend:  backend,
		records:  make(map[cid.Cid]*Record),
		children: make(map[cid.Cid][]cid.Cid),
		tips:     make(map[cid.Cid]struct{}),
		genesis:  cid.Undef,
	}
}

// Insert persists rec, together with any extra writes, in a single batch and
// only then adds it to the in memory graph. On error the graph is unchanged.
func (s *Store) Insert(rec *Record, extra func(storage.Batch) error) error {
	s.mu.RLock()
	err := s.checkInsert(rec)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	d, err := rec.marshal()
	if err != nil {
		return err
	}

	batch := s.backend.NewBatch()
	defer batch.Close()

	if err := batch.Put(storage.BlockKey(rec.Hash), d); err != nil {
		return errors.Wrap(err, "staging block record")
	}

	if extra != nil {
		if err := extra(batch); err != nil {
			return err
		}
	}

	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "committing block record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.link(rec)

	return nil
}

func (s *Store) checkInsert(rec *Record) error {
	if _, ok := s.records[rec.Hash]; ok {
		return ErrAlreadyKnown
	}

	if rec.IsGenesis() {
		if s.genesis.Defined() {
			return ErrSecondGenesis
		}
		return nil
	}

	for _, p := range rec.Parents() {
		if _, ok := s.records[p]; !ok {
			return errors.Wrapf(ErrUnknownParent, "parent %s", p)
		}
	}

	return nil
}

// link adds rec to the in memory indices. Callers hold the write lock.
func (s *Store) link(rec *Record) {
	s.records[rec.Hash] = rec

	if rec.IsGenesis() {
		s.genesis = rec.Hash
	}

	for _, p := range rec.Parents() {
		s.children[p] = append(s.children[p], rec.Hash)
		delete(s.tips, p)
	}

	if len(s.children[rec.Hash]) == 0 {
		s.tips[rec.Hash] = struct{}{}
	}
}

// Load rebuilds the graph from the records in the backend
func (s *Store) Load(ctx context.Context) error {
	var recs []*Record

	err := s.backend.Iterate(storage.Prefix(storage.KeyBlock), func(_, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := unmarshalRecord(value)
		if err != nil {
			return err
		}

		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "loading block records")
	}

	//parents always have a lower height than their children
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Height != recs[j].Height {
			return recs[i].Height < recs[j].Height
		}
		return HashLess(recs[i].Hash, recs[j].Hash)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		if err := s.checkInsert(rec); err != nil {
			return errors.Wrapf(err, "loading block %s", rec.Hash)
		}
		s.link(rec)
	}

	return nil
}

func (s *Store) Get(id cid.Cid) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	return r, ok
}

func (s *Store) Has(id cid.Cid) bool {
	_, ok := s.Get(id)
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

func (s *Store) Genesis() cid.Cid {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.genesis
}

// Tips returns the blocks without children, sorted by hash
func (s *Store) Tips() []cid.Cid {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tips := make([]cid.Cid, 0, len(s.tips))
	for t := range s.tips {
		tips = append(tips, t)
	}
	SortHashes(tips)

	return tips
}

// Range calls fn for every accepted block until fn returns false. fn must
// not call back into the store.
func (s *Store) Range(fn func(*Record) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if !fn(r) {
			return
		}
	}
}

func (s *Store) Parents(id cid.Cid) ([]cid.Cid, error) {
	r, ok := s.Get(id)
	if !ok {
		return nil, ErrUnknownBlock
	}

	return append([]cid.Cid(nil), r.Parents()...), nil
}

func (s *Store) Children(id cid.Cid) []cid.Cid {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]cid.Cid(nil), s.children[id]...)
}

// Ancestors returns up to limit ancestors of id, nearest (highest) first.
// A limit of zero returns every ancestor.
func (s *Store) Ancestors(id cid.Cid, limit int) ([]cid.Cid, error) {
	return ancestors(s, id, limit)
}

// IsAncestor reports whether a is a strict ancestor of b
func (s *Store) IsAncestor(a, b cid.Cid) bool {
	return isAncestor(s, a, b)
}

// Staged returns a view of the store as if rec had been inserted
func (s *Store) Staged(rec *Record) Graph {
	return &staged{base: s, rec: rec}
}

type staged struct {
	base *Store
	rec  *Record
}

func (g *staged) Get(id cid.Cid) (*Record, bool) {
	if id.Equals(g.rec.Hash) {
		return g.rec, true
	}
	return g.base.Get(id)
}

func (g *staged) Has(id cid.Cid) bool {
	_, ok := g.Get(id)
	return ok
}

func (g *staged) Children(id cid.Cid) []cid.Cid {
	c := g.base.Children(id)
	for _, p := range g.rec.Parents() {
		if p.Equals(id) {
			c = append(c, g.rec.Hash)
			break
		}
	}
	return c
}

func (g *staged) Tips() []cid.Cid {
	tips := []cid.Cid{g.rec.Hash}

outer:
	for _, t := range g.base.Tips() {
		for _, p := range g.rec.Parents() {
			if p.Equals(t) {
				continue outer
			}
		}
		tips = append(tips, t)
	}

	SortHashes(tips)
	return tips
}

func (g *staged) Genesis() cid.Cid {
	if g.rec.IsGenesis() {
		return g.rec.Hash
	}
	return g.base.Genesis()
}

func (g *staged) IsAncestor(a, b cid.Cid) bool {
	return isAncestor(g, a, b)
}
