// Copyright 2025 Certen Protocol

package kvstore

import (
	"errors"
	"sync"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(NewDBAdapter(dbm.NewMemDB()))
}

func TestUpdateTransactionCommitVisible(t *testing.T) {
	m := newTestManager(t)

	tx, err := m.CreateTransaction([]byte("client-1"))
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if err := m.Prepare(tx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := m.Begin(tx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Commit(tx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	readTx, err := m.CreateTransaction(nil)
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if err := m.Prepare(readTx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := m.Begin(readTx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	v, err := readTx.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(v) != "v" {
		t.Fatalf("Get() = %q, want %q", v, "v")
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	m := newTestManager(t)

	tx, err := m.CreateTransaction([]byte("client-1"))
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if err := m.Prepare(tx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := m.Begin(tx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Rollback(tx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	readTx, _ := m.CreateTransaction(nil)
	_ = m.Prepare(readTx)
	_ = m.Begin(readTx)
	v, err := readTx.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v != nil {
		t.Fatalf("Get() = %q, want nil after rollback", v)
	}
}

func TestDoubleCommitFails(t *testing.T) {
	m := newTestManager(t)
	tx, _ := m.CreateTransaction([]byte("client-1"))
	_ = m.Prepare(tx)
	_ = m.Begin(tx)
	if err := m.Commit(tx); err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}
	if err := m.Commit(tx); !errors.Is(err, ErrCommitTx) {
		t.Fatalf("second Commit() error = %v, want ErrCommitTx", err)
	}
}

func TestCommitBeforeBeginFails(t *testing.T) {
	m := newTestManager(t)
	tx, _ := m.CreateTransaction([]byte("client-1"))
	_ = m.Prepare(tx)
	if err := m.Commit(tx); !errors.Is(err, ErrCommitTx) {
		t.Fatalf("Commit() error = %v, want ErrCommitTx", err)
	}
}

func TestInvalidUpdateKeyLength(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateTransaction([]byte{}); err != ErrInvalidUpdateKeyLength {
		t.Fatalf("CreateTransaction() error = %v, want ErrInvalidUpdateKeyLength", err)
	}
}

func TestUpdateTransactionsSerializeBySameKey(t *testing.T) {
	m := newTestManager(t)

	tx1, _ := m.CreateTransaction([]byte("client-1"))
	if err := m.Prepare(tx1); err != nil {
		t.Fatalf("Prepare(tx1) error = %v", err)
	}
	if err := m.Begin(tx1); err != nil {
		t.Fatalf("Begin(tx1) error = %v", err)
	}

	tx2, _ := m.CreateTransaction([]byte("client-1"))

	var wg sync.WaitGroup
	prepared := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Prepare(tx2); err != nil {
			t.Errorf("Prepare(tx2) error = %v", err)
		}
		close(prepared)
	}()

	select {
	case <-prepared:
		t.Fatalf("tx2 prepared before tx1 committed")
	case <-time.After(50 * time.Millisecond):
	}

	if err := m.Commit(tx1); err != nil {
		t.Fatalf("Commit(tx1) error = %v", err)
	}

	wg.Wait()
	if err := m.Begin(tx2); err != nil {
		t.Fatalf("Begin(tx2) error = %v", err)
	}
	if err := m.Commit(tx2); err != nil {
		t.Fatalf("Commit(tx2) error = %v", err)
	}
}

func TestReadTransactionSnapshotIsolatedFromConcurrentCommit(t *testing.T) {
	m := newTestManager(t)

	seed, _ := m.CreateTransaction([]byte("client-1"))
	_ = m.Prepare(seed)
	_ = m.Begin(seed)
	if err := seed.Set([]byte("k"), []byte("before")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Commit(seed); err != nil {
		t.Fatalf("Commit(seed) error = %v", err)
	}

	reader, err := m.CreateTransaction(nil)
	if err != nil {
		t.Fatalf("CreateTransaction(reader) error = %v", err)
	}
	if err := m.Prepare(reader); err != nil {
		t.Fatalf("Prepare(reader) error = %v", err)
	}
	if err := m.Begin(reader); err != nil {
		t.Fatalf("Begin(reader) error = %v", err)
	}

	writer, _ := m.CreateTransaction([]byte("client-1"))
	if err := m.Prepare(writer); err != nil {
		t.Fatalf("Prepare(writer) error = %v", err)
	}
	if err := m.Begin(writer); err != nil {
		t.Fatalf("Begin(writer) error = %v", err)
	}
	if err := writer.Set([]byte("k"), []byte("after")); err != nil {
		t.Fatalf("Set(writer) error = %v", err)
	}
	if err := m.Commit(writer); err != nil {
		t.Fatalf("Commit(writer) error = %v", err)
	}

	v, err := reader.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get(reader) error = %v", err)
	}
	if string(v) != "before" {
		t.Fatalf("Get(reader) = %q, want %q (snapshot isolation violated by writer's later commit)", v, "before")
	}

	fresh, _ := m.CreateTransaction(nil)
	_ = m.Prepare(fresh)
	_ = m.Begin(fresh)
	v2, err := fresh.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get(fresh) error = %v", err)
	}
	if string(v2) != "after" {
		t.Fatalf("Get(fresh) = %q, want %q", v2, "after")
	}
}

func TestIteratorScopedToSnapshot(t *testing.T) {
	m := newTestManager(t)

	seed, _ := m.CreateTransaction([]byte("client-1"))
	_ = m.Prepare(seed)
	_ = m.Begin(seed)
	if err := seed.Set([]byte("prefix/a"), []byte("1")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Commit(seed); err != nil {
		t.Fatalf("Commit(seed) error = %v", err)
	}

	reader, _ := m.CreateTransaction(nil)
	_ = m.Prepare(reader)
	if err := m.Begin(reader); err != nil {
		t.Fatalf("Begin(reader) error = %v", err)
	}

	writer, _ := m.CreateTransaction([]byte("client-1"))
	_ = m.Prepare(writer)
	_ = m.Begin(writer)
	if err := writer.Set([]byte("prefix/b"), []byte("2")); err != nil {
		t.Fatalf("Set(writer) error = %v", err)
	}
	if err := m.Commit(writer); err != nil {
		t.Fatalf("Commit(writer) error = %v", err)
	}

	it, err := reader.Iterator([]byte("prefix/"))
	if err != nil {
		t.Fatalf("Iterator() error = %v", err)
	}
	defer it.Close()

	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if len(keys) != 1 || keys[0] != "prefix/a" {
		t.Fatalf("Iterator() keys = %v, want [prefix/a] (writer's later commit must not appear)", keys)
	}
}

func TestReadTransactionsRunConcurrently(t *testing.T) {
	m := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := m.CreateTransaction(nil)
			if err != nil {
				t.Errorf("CreateTransaction() error = %v", err)
				return
			}
			if err := m.Prepare(tx); err != nil {
				t.Errorf("Prepare() error = %v", err)
				return
			}
			if err := m.Begin(tx); err != nil {
				t.Errorf("Begin() error = %v", err)
				return
			}
			if _, err := tx.Get([]byte("missing")); err != nil {
				t.Errorf("Get() error = %v", err)
			}
		}()
	}
	wg.Wait()
}
