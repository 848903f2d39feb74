// Copyright 2025 Certen Protocol

package kvstore

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// TxID is a monotonically increasing transaction identifier.
type TxID uint64

type txPhase int

const (
	phaseCreated txPhase = iota
	phasePrepared
	phaseBegun
	phaseCommitted
	phaseRolledBack
)

// Tx is a handle returned by Manager.CreateTransaction. Read transactions
// (UpdateKey == nil) may run concurrently with anything; update
// transactions are serialized against every other update transaction
// sharing the same UpdateKey.
type Tx struct {
	id        TxID
	updateKey []byte

	manager *Manager

	mu       sync.Mutex
	phase    txPhase
	writes   map[string][]byte
	removed  map[string]bool
	snapshot []kvPair
}

// kvPair is one entry of a point-in-time copy of the store, captured at
// Begin and kept sorted ascending by key.
type kvPair struct {
	key   []byte
	value []byte
}

// ID returns the transaction's TxID.
func (t *Tx) ID() TxID {
	return t.id
}

// IsUpdate reports whether t is an update transaction (as opposed to a
// read-only transaction running against a snapshot).
func (t *Tx) IsUpdate() bool {
	return t.updateKey != nil
}

// Manager is the transaction manager described in spec §4.2: it allocates
// TxIDs, serializes update transactions per update key, and applies or
// discards each transaction's buffered writes atomically.
type Manager struct {
	kv KV

	nextID uint64

	keyMu    sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewManager constructs a Manager backed by kv.
func NewManager(kv KV) *Manager {
	return &Manager{
		kv:       kv,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// CreateTransaction allocates a new Tx. A non-nil, non-empty updateKey
// makes it an update transaction; a nil updateKey makes it a read
// transaction. A non-nil, empty updateKey is rejected.
func (m *Manager) CreateTransaction(updateKey []byte) (*Tx, error) {
	if updateKey != nil && len(updateKey) == 0 {
		return nil, ErrInvalidUpdateKeyLength
	}
	id := TxID(atomic.AddUint64(&m.nextID, 1))
	var key []byte
	if updateKey != nil {
		key = append([]byte(nil), updateKey...)
	}
	return &Tx{
		id:        id,
		updateKey: key,
		manager:   m,
		phase:     phaseCreated,
		writes:    make(map[string][]byte),
		removed:   make(map[string]bool),
	}, nil
}

func (m *Manager) lockFor(updateKey []byte) *sync.Mutex {
	m.keyMu.Lock()
	defer m.keyMu.Unlock()
	k := string(updateKey)
	l, ok := m.keyLocks[k]
	if !ok {
		l = &sync.Mutex{}
		m.keyLocks[k] = l
	}
	return l
}

// Prepare acquires the per-update-key mutex for update transactions
// (blocking until any in-flight transaction on the same key commits or
// rolls back) and marks t schedulable. Read transactions return
// immediately since they never hold an update-key mutex.
func (m *Manager) Prepare(t *Tx) error {
	t.mu.Lock()
	if t.phase != phaseCreated {
		t.mu.Unlock()
		return fmt.Errorf("%w: tx %d", ErrAlreadyPrepared, t.id)
	}
	t.mu.Unlock()

	if t.IsUpdate() {
		t.manager.lockFor(t.updateKey).Lock()
	}

	t.mu.Lock()
	t.phase = phasePrepared
	t.mu.Unlock()
	return nil
}

// Begin opens the transaction against a snapshot of the store as of this
// call: a full copy of the store is captured right here, before Begin
// returns, and every subsequent Get/Iterator on t reads only from that copy
// plus this transaction's own buffered writes — concurrent commits by other
// transactions are invisible to t for its whole lifetime.
func (m *Manager) Begin(t *Tx) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != phasePrepared {
		return fmt.Errorf("%w: tx %d", ErrNotPrepared, t.id)
	}
	snapshot, err := captureSnapshot(t.manager.kv)
	if err != nil {
		return fmt.Errorf("kvstore: capture snapshot: %w", err)
	}
	t.snapshot = snapshot
	t.phase = phaseBegun
	return nil
}

// captureSnapshot copies every key/value pair in kv into a slice ordered
// ascending by key, matching the order its Iterator already yields.
func captureSnapshot(kv KV) ([]kvPair, error) {
	it, err := kv.Iterator(nil, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var snapshot []kvPair
	for it.Valid() {
		snapshot = append(snapshot, kvPair{
			key:   append([]byte(nil), it.Key()...),
			value: append([]byte(nil), it.Value()...),
		})
		it.Next()
	}
	return snapshot, nil
}

// snapshotGet looks key up in t's Begin-time snapshot via binary search.
func (t *Tx) snapshotGet(key []byte) []byte {
	i := sort.Search(len(t.snapshot), func(i int) bool {
		return bytes.Compare(t.snapshot[i].key, key) >= 0
	})
	if i < len(t.snapshot) && bytes.Equal(t.snapshot[i].key, key) {
		return t.snapshot[i].value
	}
	return nil
}

// Get reads key, observing t's own uncommitted writes/removes first and
// falling back to t's Begin-time snapshot — never the live store.
func (t *Tx) Get(key []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != phaseBegun {
		return nil, fmt.Errorf("%w: tx %d", ErrNotBegun, t.id)
	}
	sk := string(key)
	if t.removed[sk] {
		return nil, nil
	}
	if v, ok := t.writes[sk]; ok {
		return v, nil
	}
	return t.snapshotGet(key), nil
}

// Iterator returns an ordered iterator over keys sharing prefix, scoped to
// t's Begin-time snapshot. It does not merge in this transaction's own
// uncommitted writes, since no caller needs a prefix scan over keys it is
// itself writing within the same transaction.
func (t *Tx) Iterator(prefix []byte) (Iterator, error) {
	t.mu.Lock()
	phase := t.phase
	snapshot := t.snapshot
	t.mu.Unlock()
	if phase != phaseBegun {
		return nil, fmt.Errorf("%w: tx %d", ErrNotBegun, t.id)
	}
	start := sort.Search(len(snapshot), func(i int) bool {
		return bytes.Compare(snapshot[i].key, prefix) >= 0
	})
	end := start
	for end < len(snapshot) && bytes.HasPrefix(snapshot[end].key, prefix) {
		end++
	}
	return &snapshotIterator{pairs: snapshot[start:end]}, nil
}

// snapshotIterator walks a Tx's captured snapshot slice. Valid() reports
// true immediately on construction, pointing at the first entry, matching
// DBAdapter's dbIterator (a freshly opened dbm.Iterator is already
// positioned at its first key).
type snapshotIterator struct {
	pairs []kvPair
	idx   int
}

func (i *snapshotIterator) Valid() bool   { return i.idx < len(i.pairs) }
func (i *snapshotIterator) Next()         { i.idx++ }
func (i *snapshotIterator) Key() []byte   { return i.pairs[i.idx].key }
func (i *snapshotIterator) Value() []byte { return i.pairs[i.idx].value }
func (i *snapshotIterator) Close() error  { return nil }

// Set buffers a write, visible to this transaction's own subsequent reads
// but not applied to the store until Commit.
func (t *Tx) Set(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.IsUpdate() {
		return ErrReadOnlyTransaction
	}
	if t.phase != phaseBegun {
		return fmt.Errorf("%w: tx %d", ErrNotBegun, t.id)
	}
	sk := string(key)
	delete(t.removed, sk)
	t.writes[sk] = append([]byte(nil), value...)
	return nil
}

// Remove buffers a deletion, same visibility rules as Set.
func (t *Tx) Remove(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.IsUpdate() {
		return ErrReadOnlyTransaction
	}
	if t.phase != phaseBegun {
		return fmt.Errorf("%w: tx %d", ErrNotBegun, t.id)
	}
	sk := string(key)
	delete(t.writes, sk)
	t.removed[sk] = true
	return nil
}

// Commit applies t's buffered writes/removes to the store and releases its
// update-key mutex. Committing twice, or committing before Begin, fails
// with ErrCommitTx.
func (m *Manager) Commit(t *Tx) error {
	t.mu.Lock()
	if t.phase != phaseBegun {
		phase := t.phase
		t.mu.Unlock()
		if phase == phaseCommitted || phase == phaseRolledBack {
			return fmt.Errorf("%w: tx %d already finalized", ErrCommitTx, t.id)
		}
		return fmt.Errorf("%w: tx %d not begun", ErrCommitTx, t.id)
	}
	writes := t.writes
	removed := t.removed
	t.mu.Unlock()

	for k, v := range writes {
		if err := m.kv.Set([]byte(k), v); err != nil {
			return fmt.Errorf("%w: %v", ErrCommitTx, err)
		}
	}
	for k := range removed {
		if err := m.kv.Remove([]byte(k)); err != nil {
			return fmt.Errorf("%w: %v", ErrCommitTx, err)
		}
	}

	t.mu.Lock()
	t.phase = phaseCommitted
	t.mu.Unlock()

	if t.IsUpdate() {
		m.lockFor(t.updateKey).Unlock()
	}
	return nil
}

// Rollback discards t's buffered writes and releases its update-key mutex.
func (m *Manager) Rollback(t *Tx) error {
	t.mu.Lock()
	if t.phase != phaseBegun && t.phase != phasePrepared {
		phase := t.phase
		t.mu.Unlock()
		if phase == phaseCommitted || phase == phaseRolledBack {
			return fmt.Errorf("%w: tx %d already finalized", ErrCommitTx, t.id)
		}
		return nil
	}
	t.phase = phaseRolledBack
	t.mu.Unlock()

	if t.IsUpdate() {
		m.lockFor(t.updateKey).Unlock()
	}
	return nil
}
