// Package rawdb provides the durable key-value storage behind sealbid's bid
// secrets and transaction artifacts, plus the accessor functions that lay
// records out under distinct key prefixes.
package rawdb

import "errors"

var (
	// ErrNotFound is returned when a key is absent.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")
)

// KeyValueReader wraps the Has and Get methods of a backing data store.
type KeyValueReader interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the Put and Delete methods of a backing data store.
type KeyValueWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Iterator iterates over key/value pairs in ascending key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// Iteratee wraps the NewIterator method of a backing data store.
type Iteratee interface {
	NewIterator(prefix []byte) Iterator
}

// Database is the full interface combining all capabilities. A Put that
// returns nil must survive a process crash in durable implementations.
type Database interface {
	KeyValueReader
	KeyValueWriter
	Iteratee
	Close() error
}
