package testutil

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/ipfs/go-cid"

	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/storage"
)

var ErrInjected = errors.New("injected storage failure")

// FlakyBackend wraps a backend and fails every write while failing is set
type FlakyBackend struct {
	storage.Backend

	failing int32

	mu      sync.Mutex
	blocked [][]byte
}

func NewFlakyBackend(b storage.Backend) *FlakyBackend {
	return &FlakyBackend{Backend: b}
}

func (f *FlakyBackend) FailWrites(fail bool) {
	var v int32
	if fail {
		v = 1
	}
	atomic.StoreInt32(&f.failing, v)
}

// FailBlock makes every batch that writes the record of id fail to commit
func (f *FlakyBackend) FailBlock(id cid.Cid) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.blocked = append(f.blocked, storage.BlockKey(id))
}

// Reset clears every injected failure
func (f *FlakyBackend) Reset() {
	f.FailWrites(false)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.blocked = nil
}

func (f *FlakyBackend) isBlocked(key []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, k := range f.blocked {
		if bytes.Equal(k, key) {
			return true
		}
	}
	return false
}

func (f *FlakyBackend) isFailing() bool {
	return atomic.LoadInt32(&f.failing) == 1
}

func (f *FlakyBackend) Put(key, value []byte) error {
	if f.isFailing() {
		return ErrInjected
	}
	return f.Backend.Put(key, value)
}

func (f *FlakyBackend) Delete(key []byte) error {
	if f.isFailing() {
		return ErrInjected
	}
	return f.Backend.Delete(key)
}

func (f *FlakyBackend) NewBatch() storage.Batch {
	return &flakyBatch{Batch: f.Backend.NewBatch(), f: f}
}

type flakyBatch struct {
	storage.Batch
	f *FlakyBackend

	blocked bool
}

func (b *flakyBatch) Put(key, value []byte) error {
	if b.f.isBlocked(key) {
		b.blocked = true
	}
	return b.Batch.Put(key, value)
}

func (b *flakyBatch) Commit() error {
	if b.blocked || b.f.isFailing() {
		return ErrInjected
	}
	return b.Batch.Commit()
}
