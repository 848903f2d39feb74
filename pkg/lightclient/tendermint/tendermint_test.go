package tendermint

import (
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/sbx-labs/lcp-enclave/pkg/kvstore"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/store"
)

const testChainID = "lcp-testchain"

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

func TestCodecClientStateRoundTrip(t *testing.T) {
	cs := ClientState{
		ChainID:        testChainID,
		TrustLevel:     DefaultTrustLevel,
		TrustingPeriod: lcptypes.NewDuration(int64(48 * time.Hour)),
		MaxClockDrift:  lcptypes.NewDuration(int64(10 * time.Second)),
		LatestHeight:   lcptypes.NewHeight(0, 100),
		Frozen:         false,
	}
	any := EncodeClientState(cs)
	got, err := DecodeClientState(any)
	if err != nil {
		t.Fatalf("DecodeClientState() error = %v", err)
	}
	if got.ChainID != cs.ChainID || !got.LatestHeight.Equal(cs.LatestHeight) {
		t.Fatalf("DecodeClientState() = %+v, want %+v", got, cs)
	}
	if got.TrustLevel != cs.TrustLevel {
		t.Fatalf("DecodeClientState() trust level = %+v, want %+v", got.TrustLevel, cs.TrustLevel)
	}
}

func TestCodecConsensusStateRoundTrip(t *testing.T) {
	cons := ConsensusState{
		Timestamp:          lcptypes.NewTime(1000),
		Root:               []byte{0x01, 0x02, 0x03},
		NextValidatorsHash: []byte{0xAA, 0xBB},
	}
	any := EncodeConsensusState(cons)
	got, err := DecodeConsensusState(any)
	if err != nil {
		t.Fatalf("DecodeConsensusState() error = %v", err)
	}
	if string(got.Root) != string(cons.Root) || string(got.NextValidatorsHash) != string(cons.NextValidatorsHash) {
		t.Fatalf("DecodeConsensusState() = %+v, want %+v", got, cons)
	}
}

func TestCreateClientRejectsFrozen(t *testing.T) {
	c := New()
	_, s, _ := newTestStore(t, lcptypes.NewTime(1000))
	cs := ClientState{ChainID: testChainID, TrustLevel: DefaultTrustLevel, LatestHeight: lcptypes.NewHeight(0, 1), Frozen: true}
	cons := ConsensusState{Timestamp: lcptypes.NewTime(1000)}
	if _, err := c.CreateClient(s, EncodeClientState(cs), EncodeConsensusState(cons)); err == nil {
		t.Fatalf("CreateClient() with frozen state succeeded, want error")
	}
}

func TestCreateClientAcceptsValidState(t *testing.T) {
	c := New()
	_, s, _ := newTestStore(t, lcptypes.NewTime(1000))
	cs := ClientState{ChainID: testChainID, TrustLevel: DefaultTrustLevel, LatestHeight: lcptypes.NewHeight(0, 1)}
	cons := ConsensusState{Timestamp: lcptypes.NewTime(1000), Root: []byte{0x01}, NextValidatorsHash: []byte{0x02}}
	result, err := c.CreateClient(s, EncodeClientState(cs), EncodeConsensusState(cons))
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if !result.Height.Equal(lcptypes.NewHeight(0, 1)) {
		t.Fatalf("CreateClient() height = %s, want 0-1", result.Height)
	}
	if result.Message.HasPrevState {
		t.Fatalf("CreateClient() message has prev state, want none")
	}
}

func TestUpdateClientRejectsOnFrozenClient(t *testing.T) {
	c := New()
	m, s, tx := newTestStore(t, lcptypes.NewTime(1000))

	cs := ClientState{ChainID: testChainID, TrustLevel: DefaultTrustLevel, LatestHeight: lcptypes.NewHeight(0, 1)}
	cons := ConsensusState{Timestamp: lcptypes.NewTime(1000), Root: []byte{0x01}, NextValidatorsHash: []byte{0x02}}
	result, err := c.CreateClient(s, EncodeClientState(cs), EncodeConsensusState(cons))
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	clientID, _ := s.AllocateClientID(c.ClientType())
	_ = s.SetClientType(clientID, c.ClientType())

	// Overwrite with an already-frozen client state, as if a prior
	// misbehaviour submission had already frozen this client.
	frozenState := result.ClientState
	frozenState.Frozen = true
	frozenState.Data = EncodeClientState(ClientState{ChainID: testChainID, TrustLevel: DefaultTrustLevel, LatestHeight: cs.LatestHeight, Frozen: true})
	if err := s.SetClientState(clientID, frozenState); err != nil {
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

	// The frozen check happens before the header is even decoded, so an
	// empty placeholder Any is enough to exercise the rejection path.
	placeholder := lcptypes.NewAny(headerTypeURL, nil)
	if _, err := c.UpdateClient(s, clientID, placeholder); err == nil {
		t.Fatalf("UpdateClient() on frozen client succeeded, want error")
	}
}
