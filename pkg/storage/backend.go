//go:generate go run github.com/vektra/mockery/v2 --name Backend

package storage

// Backend is the durable key-value persistence the ledger is built on.
// Implementations must make a successful Put or Batch.Commit durable before
// returning, and must return ErrNotFound for unknown keys.
type Backend interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	NewBatch() Batch

	// Iterate calls fn for every key with the given prefix in key order.
	// Returning an error from fn stops the iteration.
	Iterate(prefix []byte, fn func(key, value []byte) error) error

	Close() error
}

// Batch groups writes that must become visible atomically
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Close() error
}
