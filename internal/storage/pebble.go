package storage

import (
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"

	"github.com/tcfw/dagledger/internal/utils/logging"
	"github.com/tcfw/dagledger/pkg/storage"
)

var (
	_ storage.Backend = (*PebbleStore)(nil)
)

const (
	cacheSize = 1 << 20 * 100
)

var (
	syncWrites = &pebble.WriteOptions{Sync: true}
)

// PebbleStore is a storage.Backend on a pebble database. Every write is
// synced before returning.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens or creates the database at path
func NewPebbleStore(path string) (*PebbleStore, error) {
	return openPebble(path, nil)
}

// NewMemPebbleStore opens a pebble database on an in memory filesystem
func NewMemPebbleStore() (*PebbleStore, error) {
	return openPebble("mem", vfs.NewMem())
}

func openPebble(path string, fs vfs.FS) (*PebbleStore, error) {
	c := pebble.NewCache(cacheSize)
	tc := pebble.NewTableCache(c, 16, 100)
	defer tc.Unref()
	defer c.Unref()

	db, err := pebble.Open(path, &pebble.Options{Cache: c, TableCache: tc, FS: fs})
	if err != nil {
		return nil, errors.Wrap(err, "opening pebble")
	}

	logging.WithField("path", path).Debug("opened pebble store")

	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Get(key []byte) ([]byte, error) {
	d, done, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "pebble get")
	}
	defer done.Close()

	return append([]byte(nil), d...), nil
}

func (s *PebbleStore) Has(key []byte) (bool, error) {
	_, done, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "pebble get")
	}
	done.Close()

	return true, nil
}

func (s *PebbleStore) Put(key, value []byte) error {
	return errors.Wrap(s.db.Set(key, value, syncWrites), "pebble set")
}

func (s *PebbleStore) Delete(key []byte) error {
	return errors.Wrap(s.db.Delete(key, syncWrites), "pebble delete")
}

// Iterate visits every key with the given prefix in key order
func (s *PebbleStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)

		if err := fn(k, v); err != nil {
			return err
		}
	}

	return errors.Wrap(iter.Error(), "pebble iterate")
}

// upperBound is the smallest key greater than every key with the prefix
func upperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		ub[i]++
		if ub[i] != 0 {
			return ub[:i+1]
		}
	}

	return nil
}

func (s *PebbleStore) NewBatch() storage.Batch {
	return &pebbleBatch{b: s.db.NewBatch()}
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

type pebbleBatch struct {
	b *pebble.Batch
}

func (b *pebbleBatch) Put(key, value []byte) error {
	return b.b.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	return b.b.Delete(key, nil)
}

func (b *pebbleBatch) Commit() error {
	return errors.Wrap(b.b.Commit(syncWrites), "pebble commit")
}

func (b *pebbleBatch) Close() error {
	return b.b.Close()
}
