// Copyright 2025 Certen Protocol
//
// Package kvstore is the transactional KV layer (spec §4.2): an ordered
// byte-keyed map with a transaction manager providing per-update-key
// serialization and snapshot-isolated reads, backed by CometBFT's dbm.DB
// the same way pkg/kvdb.KVAdapter backs pkg/ledger.LedgerStore in the
// teacher repo.

package kvstore

// KV is the ordered byte-to-byte map every transaction ultimately reads
// from and writes to.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Remove(key []byte) error
	// Iterator returns an ordered iterator over [start, end). A nil end
	// means "no upper bound".
	Iterator(start, end []byte) (Iterator, error)
}

// Iterator walks a KV's keys in ascending order.
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Close() error
}
