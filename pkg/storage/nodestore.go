package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/cryptography"
)

const (
	DefaultNodeCacheSize = 1 << 16
)

// NodeStore is content addressed storage of immutable objects (trie nodes).
// Objects are written through to the backend before Put returns and the
// most recently used ones are kept in memory.
type NodeStore struct {
	backend Backend
	cache   *lru.Cache
}

func NewNodeStore(backend Backend, cacheSize int) (*NodeStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultNodeCacheSize
	}

	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating node cache")
	}

	return &NodeStore{backend: backend, cache: c}, nil
}

// Put stores data and returns its content id. Storing identical content
// again returns the same id without writing it a second time.
func (s *NodeStore) Put(_ context.Context, data []byte) (cid.Cid, error) {
	id, err := cryptography.ContentID(data)
	if err != nil {
		return cid.Undef, err
	}

	if s.cache.Contains(id) {
		return id, nil
	}

	key := NodeKey(id)

	has, err := s.backend.Has(key)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "checking node existence")
	}

	d := append([]byte(nil), data...)

	if !has {
		if err := s.backend.Put(key, d); err != nil {
			return cid.Undef, errors.Wrap(err, "writing node")
		}
	}

	s.cache.Add(id, d)

	return id, nil
}

func (s *NodeStore) Get(_ context.Context, id cid.Cid) ([]byte, error) {
	if v, ok := s.cache.Get(id); ok {
		return v.([]byte), nil
	}

	d, err := s.backend.Get(NodeKey(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "reading node")
	}

	s.cache.Add(id, d)

	return d, nil
}

func (s *NodeStore) Has(_ context.Context, id cid.Cid) (bool, error) {
	if s.cache.Contains(id) {
		return true, nil
	}

	return s.backend.Has(NodeKey(id))
}

// Delete removes a node. Only used by garbage collection.
func (s *NodeStore) Delete(_ context.Context, id cid.Cid) error {
	s.cache.Remove(id)

	if err := s.backend.Delete(NodeKey(id)); err != nil {
		return errors.Wrap(err, "deleting node")
	}

	return nil
}

// ForEach calls fn with the id of every stored node
func (s *NodeStore) ForEach(ctx context.Context, fn func(cid.Cid) error) error {
	return s.backend.Iterate(Prefix(KeyNode), func(key, _ []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := KeyID(key)
		if err != nil {
			return err
		}

		return fn(id)
	})
}
