package db

// KVStore is the key-value storage the auditor persists its scheduler
// snapshot into.
type KVStore interface {
	Reader
	Writer
	Delete(key []byte) error
	NewBatch() Batch
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch groups writes and deletes that become visible together on Commit.
// A batch can be committed once; Close releases it and is a no-op after Commit.
type Batch interface {
	Writer
	Delete(key []byte) error
	DeleteRange(start, end []byte) error
	Commit() error
	Close() error
}

// Iterator walks the keys of a [start, end) range in ascending order.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}
