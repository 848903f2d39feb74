// Copyright 2025 Certen Protocol

package mock

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/sbx-labs/lcp-enclave/pkg/kvstore"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient"
	"github.com/sbx-labs/lcp-enclave/pkg/store"
)

func newTestStore(t *testing.T, now lcptypes.Time) (*kvstore.Manager, *store.Store, *kvstore.Tx) {
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
	return m, store.New(tx, now), tx
}

func TestCreateClientAndUpdate(t *testing.T) {
	c := New()
	m, s, tx := newTestStore(t, lcptypes.NewTime(1000))

	var appHash [32]byte
	appHash[0] = 0x01
	anyClientState := EncodeClientState(ClientState{LatestHeight: lcptypes.NewHeight(0, 1)})
	anyConsensusState := EncodeConsensusState(ConsensusState{Timestamp: lcptypes.NewTime(1000), AppHash: appHash})

	result, err := c.CreateClient(s, anyClientState, anyConsensusState)
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if !result.Height.Equal(lcptypes.NewHeight(0, 1)) {
		t.Fatalf("CreateClient() height = %s, want 0-1", result.Height)
	}

	clientID, err := s.AllocateClientID(c.ClientType())
	if err != nil {
		t.Fatalf("AllocateClientID() error = %v", err)
	}
	if err := s.SetClientState(clientID, result.ClientState); err != nil {
		t.Fatalf("SetClientState() error = %v", err)
	}
	if err := s.SetConsensusState(clientID, result.Height, result.ConsensusState); err != nil {
		t.Fatalf("SetConsensusState() error = %v", err)
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
	s = store.New(rtx, lcptypes.NewTime(1000))

	var newAppHash [32]byte
	newAppHash[0] = 0x02
	header := EncodeHeader(Header{Height: lcptypes.NewHeight(0, 2), Timestamp: lcptypes.NewTime(2000), AppHash: newAppHash})

	updateResult, err := c.UpdateClient(s, clientID, header)
	if err != nil {
		t.Fatalf("UpdateClient() error = %v", err)
	}
	if updateResult.Kind != lightclient.UpdateClientResultUpdateState {
		t.Fatalf("UpdateClient() kind = %v, want UpdateState", updateResult.Kind)
	}
	if !updateResult.Height.Equal(lcptypes.NewHeight(0, 2)) {
		t.Fatalf("UpdateClient() height = %s, want 0-2", updateResult.Height)
	}
	if !updateResult.UpdateMessage.HasPrevState {
		t.Fatalf("UpdateClient() message has no prev state")
	}
}

func TestUpdateClientRejectsNonAdvancing(t *testing.T) {
	c := New()
	m, s, tx := newTestStore(t, lcptypes.NewTime(1000))

	anyClientState := EncodeClientState(ClientState{LatestHeight: lcptypes.NewHeight(0, 5)})
	anyConsensusState := EncodeConsensusState(ConsensusState{Timestamp: lcptypes.NewTime(1000)})
	result, err := c.CreateClient(s, anyClientState, anyConsensusState)
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	clientID, _ := s.AllocateClientID(c.ClientType())
	_ = s.SetClientState(clientID, result.ClientState)
	_ = s.SetConsensusState(clientID, result.Height, result.ConsensusState)
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
	s = store.New(rtx, lcptypes.NewTime(1000))

	header := EncodeHeader(Header{Height: lcptypes.NewHeight(0, 5), Timestamp: lcptypes.NewTime(1500)})
	if _, err := c.UpdateClient(s, clientID, header); err == nil {
		t.Fatalf("UpdateClient() with non-advancing height succeeded, want error")
	}
}
