// Package storage provides database abstractions.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch buffers writes and applies them together on Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	// Commit applies all buffered writes. Either every write lands or none do.
	Commit() error
}

// Batcher is implemented by databases that support atomic batches.
type Batcher interface {
	NewBatch() Batch
}

// batchOp is a single buffered write. A nil value means delete.
type batchOp struct {
	key   []byte
	value []byte
}

func newPutOp(key, value []byte) batchOp {
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	return batchOp{key: k, value: v}
}

func newDeleteOp(key []byte) batchOp {
	k := make([]byte, len(key))
	copy(k, key)
	return batchOp{key: k}
}
