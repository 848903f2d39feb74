// Copyright 2025 Certen Protocol
//
// Adapter wrapping CometBFT's dbm.DB to implement KV, generalizing
// pkg/kvdb.KVAdapter from the teacher repo to also expose Remove and
// ordered iteration.

package kvstore

import (
	dbm "github.com/cometbft/cometbft-db"
)

// DBAdapter wraps a CometBFT dbm.DB and exposes the KV interface.
type DBAdapter struct {
	db dbm.DB
}

// NewDBAdapter wraps db as a KV.
func NewDBAdapter(db dbm.DB) *DBAdapter {
	return &DBAdapter{db: db}
}

// Get implements KV.
func (a *DBAdapter) Get(key []byte) ([]byte, error) {
	v, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Set implements KV, writing durably (SetSync) since this store backs
// consensus-critical client/consensus state.
func (a *DBAdapter) Set(key, value []byte) error {
	return a.db.SetSync(key, value)
}

// Remove implements KV.
func (a *DBAdapter) Remove(key []byte) error {
	return a.db.DeleteSync(key)
}

// Iterator implements KV.
func (a *DBAdapter) Iterator(start, end []byte) (Iterator, error) {
	it, err := a.db.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	return &dbIterator{it: it}, nil
}

type dbIterator struct {
	it dbm.Iterator
}

func (i *dbIterator) Valid() bool   { return i.it.Valid() }
func (i *dbIterator) Next()         { i.it.Next() }
func (i *dbIterator) Key() []byte   { return i.it.Key() }
func (i *dbIterator) Value() []byte { return i.it.Value() }
func (i *dbIterator) Close() error  { return i.it.Close() }
