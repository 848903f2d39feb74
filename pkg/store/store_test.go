// Copyright 2025 Certen Protocol

package store

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/sbx-labs/lcp-enclave/pkg/kvstore"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

func newTestStore(t *testing.T) (*kvstore.Manager, *Store, *kvstore.Tx) {
	t.Helper()
	m := kvstore.NewManager(kvstore.NewDBAdapter(dbm.NewMemDB()))
	tx, err := m.CreateTransaction([]byte("client"))
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if err := m.Prepare(tx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := m.Begin(tx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	return m, New(tx, lcptypes.NewTime(1000)), tx
}

func TestClientStateRoundTrip(t *testing.T) {
	m, s, tx := newTestStore(t)

	id, err := s.AllocateClientID("mock")
	if err != nil {
		t.Fatalf("AllocateClientID() error = %v", err)
	}
	if id != "mock-0" {
		t.Fatalf("AllocateClientID() = %s, want mock-0", id)
	}

	want := ClientState{
		ClientType:   "mock",
		LatestHeight: lcptypes.NewHeight(0, 10),
		Frozen:       false,
		Data:         lcptypes.NewAny("/mock.ClientState", []byte("client-state-bytes")),
	}
	if err := s.SetClientState(id, want); err != nil {
		t.Fatalf("SetClientState() error = %v", err)
	}
	if err := m.Commit(tx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	rtx, err := m.CreateTransaction([]byte("client"))
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if err := m.Prepare(rtx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := m.Begin(rtx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	s = New(rtx, lcptypes.NewTime(1000))

	got, err := s.ClientState(id)
	if err != nil {
		t.Fatalf("ClientState() error = %v", err)
	}
	if got.ClientType != want.ClientType || !got.LatestHeight.Equal(want.LatestHeight) ||
		got.Frozen != want.Frozen || !got.Data.Equal(want.Data) {
		t.Fatalf("ClientState() = %+v, want %+v", got, want)
	}
}

func TestClientStateNotFound(t *testing.T) {
	_, s, _ := newTestStore(t)
	if _, err := s.ClientState("mock-0"); err != ErrClientStateNotFound {
		t.Fatalf("ClientState() error = %v, want ErrClientStateNotFound", err)
	}
}

func TestNextPrevConsensusState(t *testing.T) {
	m, s, tx := newTestStore(t)
	id := lcptypes.ClientID("mock-0")

	heights := []lcptypes.Height{
		lcptypes.NewHeight(0, 5),
		lcptypes.NewHeight(0, 10),
		lcptypes.NewHeight(0, 15),
	}
	for _, h := range heights {
		cons := ConsensusState{
			Timestamp: lcptypes.NewTime(int64(h.RevisionHeight) * 1000),
			Root:      []byte("root"),
			Data:      lcptypes.NewAny("/mock.ConsensusState", []byte("cs")),
		}
		if err := s.SetConsensusState(id, h, cons); err != nil {
			t.Fatalf("SetConsensusState() error = %v", err)
		}
	}
	if err := m.Commit(tx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	rtx, err := m.CreateTransaction([]byte("client"))
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if err := m.Prepare(rtx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := m.Begin(rtx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	s = New(rtx, lcptypes.NewTime(1000))

	nextHeight, _, err := s.NextConsensusState(id, lcptypes.NewHeight(0, 5))
	if err != nil {
		t.Fatalf("NextConsensusState() error = %v", err)
	}
	if !nextHeight.Equal(lcptypes.NewHeight(0, 10)) {
		t.Fatalf("NextConsensusState() = %s, want 0-10", nextHeight)
	}

	prevHeight, _, err := s.PrevConsensusState(id, lcptypes.NewHeight(0, 15))
	if err != nil {
		t.Fatalf("PrevConsensusState() error = %v", err)
	}
	if !prevHeight.Equal(lcptypes.NewHeight(0, 10)) {
		t.Fatalf("PrevConsensusState() = %s, want 0-10", prevHeight)
	}

	if _, _, err := s.NextConsensusState(id, lcptypes.NewHeight(0, 15)); err != ErrConsensusStateNotFound {
		t.Fatalf("NextConsensusState() error = %v, want ErrConsensusStateNotFound", err)
	}
}
