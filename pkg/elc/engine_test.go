package elc

import (
	"errors"
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/sbx-labs/lcp-enclave/pkg/commitment"
	"github.com/sbx-labs/lcp-enclave/pkg/ecrypto"
	"github.com/sbx-labs/lcp-enclave/pkg/kvstore"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient/mock"
)

// singleKeyProvider is a trivial KeyProvider that hands back one fixed
// enclave key regardless of the requested signer, standing in for the
// attestation layer's key manager in engine tests.
type singleKeyProvider struct {
	key *ecrypto.EnclaveKey
}

func (p singleKeyProvider) Key(lcptypes.Address) (*ecrypto.EnclaveKey, error) {
	return p.key, nil
}

func newTestEngine(t *testing.T) (*Engine, lcptypes.Address) {
	t.Helper()
	key, err := ecrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	addr, err := key.Address()
	if err != nil {
		t.Fatalf("Address() error = %v", err)
	}
	manager := kvstore.NewManager(kvstore.NewDBAdapter(dbm.NewMemDB()))
	registry := lightclient.NewRegistry()
	registry.Register(mock.New())
	engine := NewEngine(manager, registry, singleKeyProvider{key: key})
	return engine, addr
}

func mockClientStateAny(height lcptypes.Height) lcptypes.Any {
	return mock.EncodeClientState(mock.ClientState{LatestHeight: height})
}

func mockConsensusStateAny(ts lcptypes.Time, appHash byte) lcptypes.Any {
	var hash [32]byte
	hash[0] = appHash
	return mock.EncodeConsensusState(mock.ConsensusState{Timestamp: ts, AppHash: hash})
}

func TestInitClientThenUpdateClient(t *testing.T) {
	engine, signer := newTestEngine(t)

	initResult, err := engine.InitClient(InitClientCommand{
		ClientType:        mock.ClientType,
		AnyClientState:    mockClientStateAny(lcptypes.NewHeight(0, 1)),
		AnyConsensusState: mockConsensusStateAny(lcptypes.NewTime(1000), 0x01),
		CurrentTimestamp:  lcptypes.NewTime(1000),
		Signer:            signer,
	})
	if err != nil {
		t.Fatalf("InitClient() error = %v", err)
	}
	if initResult.ClientID.String() != "mock-0" {
		t.Fatalf("InitClient() client id = %s, want mock-0", initResult.ClientID)
	}

	proof := lcptypes.CommitmentProof{Message: initResult.ProxyMessageBytes, Signer: initResult.Signer, Signature: initResult.Signature}
	decoded, err := commitment.Verify(proof)
	if err != nil {
		t.Fatalf("commitment.Verify(init proof) error = %v", err)
	}
	if decoded.UpdateState.HasPrevState {
		t.Fatalf("InitClient() proxy message has prev state, want none")
	}

	header := mock.EncodeHeader(mock.Header{Height: lcptypes.NewHeight(0, 2), Timestamp: lcptypes.NewTime(2000), AppHash: [32]byte{0x02}})
	updateResult, err := engine.UpdateClient(UpdateClientCommand{
		ClientID:         initResult.ClientID,
		AnyHeader:        header,
		CurrentTimestamp: lcptypes.NewTime(2000),
		Signer:           signer,
	})
	if err != nil {
		t.Fatalf("UpdateClient() error = %v", err)
	}

	proof = lcptypes.CommitmentProof{Message: updateResult.ProxyMessageBytes, Signer: updateResult.Signer, Signature: updateResult.Signature}
	decoded, err = commitment.Verify(proof)
	if err != nil {
		t.Fatalf("commitment.Verify(update proof) error = %v", err)
	}
	if !decoded.UpdateState.HasPrevState {
		t.Fatalf("UpdateClient() proxy message has no prev state, want one")
	}
	if !decoded.UpdateState.PostHeight.Equal(lcptypes.NewHeight(0, 2)) {
		t.Fatalf("UpdateClient() post height = %s, want 0-2", decoded.UpdateState.PostHeight)
	}

	queryResult, err := engine.QueryClient(QueryClientCommand{ClientID: initResult.ClientID})
	if err != nil {
		t.Fatalf("QueryClient() error = %v", err)
	}
	if !queryResult.Found {
		t.Fatalf("QueryClient() found = false, want true")
	}
	cs, err := mock.DecodeClientState(queryResult.AnyClientState)
	if err != nil {
		t.Fatalf("DecodeClientState() error = %v", err)
	}
	if !cs.LatestHeight.Equal(lcptypes.NewHeight(0, 2)) {
		t.Fatalf("QueryClient() latest height = %s, want 0-2", cs.LatestHeight)
	}
}

func TestUpdateClientRejectsStaleHeader(t *testing.T) {
	engine, signer := newTestEngine(t)

	initResult, err := engine.InitClient(InitClientCommand{
		ClientType:        mock.ClientType,
		AnyClientState:    mockClientStateAny(lcptypes.NewHeight(0, 5)),
		AnyConsensusState: mockConsensusStateAny(lcptypes.NewTime(1000), 0x01),
		CurrentTimestamp:  lcptypes.NewTime(1000),
		Signer:            signer,
	})
	if err != nil {
		t.Fatalf("InitClient() error = %v", err)
	}

	header := mock.EncodeHeader(mock.Header{Height: lcptypes.NewHeight(0, 5), Timestamp: lcptypes.NewTime(1500)})
	_, err = engine.UpdateClient(UpdateClientCommand{
		ClientID:         initResult.ClientID,
		AnyHeader:        header,
		CurrentTimestamp: lcptypes.NewTime(1500),
		Signer:           signer,
	})
	if !errors.Is(err, ErrLightClient) {
		t.Fatalf("UpdateClient() with stale header error = %v, want wrapped ErrLightClient", err)
	}
}

func TestUpdateClientFreezesOnMisbehaviour(t *testing.T) {
	engine, signer := newTestEngine(t)

	initResult, err := engine.InitClient(InitClientCommand{
		ClientType:        mock.ClientType,
		AnyClientState:    mockClientStateAny(lcptypes.NewHeight(0, 1)),
		AnyConsensusState: mockConsensusStateAny(lcptypes.NewTime(1000), 0x01),
		CurrentTimestamp:  lcptypes.NewTime(1000),
		Signer:            signer,
	})
	if err != nil {
		t.Fatalf("InitClient() error = %v", err)
	}

	misbehaviour := mock.EncodeMisbehaviour(mock.Misbehaviour{
		Height:   lcptypes.NewHeight(0, 1),
		AppHash1: [32]byte{0x01},
		AppHash2: [32]byte{0x99},
	})
	updateResult, err := engine.UpdateClient(UpdateClientCommand{
		ClientID:         initResult.ClientID,
		AnyHeader:        misbehaviour,
		CurrentTimestamp: lcptypes.NewTime(1100),
		Signer:           signer,
	})
	if err != nil {
		t.Fatalf("UpdateClient() with misbehaviour error = %v", err)
	}

	proof := lcptypes.CommitmentProof{Message: updateResult.ProxyMessageBytes, Signer: updateResult.Signer, Signature: updateResult.Signature}
	decoded, err := commitment.Verify(proof)
	if err != nil {
		t.Fatalf("commitment.Verify() error = %v", err)
	}
	if decoded.Kind != lcptypes.ProxyMessageKindMisbehaviour {
		t.Fatalf("UpdateClient() kind = %v, want Misbehaviour", decoded.Kind)
	}

	queryResult, err := engine.QueryClient(QueryClientCommand{ClientID: initResult.ClientID})
	if err != nil {
		t.Fatalf("QueryClient() error = %v", err)
	}
	cs, err := mock.DecodeClientState(queryResult.AnyClientState)
	if err != nil {
		t.Fatalf("DecodeClientState() error = %v", err)
	}
	if !cs.Frozen {
		t.Fatalf("QueryClient() after misbehaviour frozen = false, want true")
	}

	header := mock.EncodeHeader(mock.Header{Height: lcptypes.NewHeight(0, 2), Timestamp: lcptypes.NewTime(2000)})
	_, err = engine.UpdateClient(UpdateClientCommand{
		ClientID:         initResult.ClientID,
		AnyHeader:        header,
		CurrentTimestamp: lcptypes.NewTime(2000),
		Signer:           signer,
	})
	if !errors.Is(err, lightclient.ErrClientFrozen) {
		t.Fatalf("UpdateClient() on frozen client error = %v, want ErrClientFrozen", err)
	}
}

func TestAggregateMessages(t *testing.T) {
	engine, signer := newTestEngine(t)

	initResult, err := engine.InitClient(InitClientCommand{
		ClientType:        mock.ClientType,
		AnyClientState:    mockClientStateAny(lcptypes.NewHeight(0, 1)),
		AnyConsensusState: mockConsensusStateAny(lcptypes.NewTime(1000), 0x01),
		CurrentTimestamp:  lcptypes.NewTime(1000),
		Signer:            signer,
	})
	if err != nil {
		t.Fatalf("InitClient() error = %v", err)
	}

	header2 := mock.EncodeHeader(mock.Header{Height: lcptypes.NewHeight(0, 2), Timestamp: lcptypes.NewTime(2000), AppHash: [32]byte{0x02}})
	update1, err := engine.UpdateClient(UpdateClientCommand{ClientID: initResult.ClientID, AnyHeader: header2, CurrentTimestamp: lcptypes.NewTime(2000), Signer: signer})
	if err != nil {
		t.Fatalf("UpdateClient() #1 error = %v", err)
	}
	header3 := mock.EncodeHeader(mock.Header{Height: lcptypes.NewHeight(0, 3), Timestamp: lcptypes.NewTime(3000), AppHash: [32]byte{0x03}})
	update2, err := engine.UpdateClient(UpdateClientCommand{ClientID: initResult.ClientID, AnyHeader: header3, CurrentTimestamp: lcptypes.NewTime(3000), Signer: signer})
	if err != nil {
		t.Fatalf("UpdateClient() #2 error = %v", err)
	}

	aggResult, err := engine.AggregateMessages(AggregateMessagesCommand{
		Messages:         [][]byte{update1.ProxyMessageBytes, update2.ProxyMessageBytes},
		Signatures:       [][ecrypto.SignatureLength]byte{update1.Signature, update2.Signature},
		CurrentTimestamp: lcptypes.NewTime(3000),
		Signer:           signer,
	})
	if err != nil {
		t.Fatalf("AggregateMessages() error = %v", err)
	}

	proof := lcptypes.CommitmentProof{Message: aggResult.ProxyMessageBytes, Signer: aggResult.Signer, Signature: aggResult.Signature}
	decoded, err := commitment.Verify(proof)
	if err != nil {
		t.Fatalf("commitment.Verify() error = %v", err)
	}
	if !decoded.UpdateState.PrevHeight.Equal(lcptypes.NewHeight(0, 1)) {
		t.Fatalf("AggregateMessages() prev height = %s, want 0-1", decoded.UpdateState.PrevHeight)
	}
	if !decoded.UpdateState.PostHeight.Equal(lcptypes.NewHeight(0, 3)) {
		t.Fatalf("AggregateMessages() post height = %s, want 0-3", decoded.UpdateState.PostHeight)
	}
}

func TestAggregateMessagesRejectsEmpty(t *testing.T) {
	engine, signer := newTestEngine(t)
	_, err := engine.AggregateMessages(AggregateMessagesCommand{Signer: signer})
	if !errors.Is(err, ErrEmptyAggregate) {
		t.Fatalf("AggregateMessages() with no messages error = %v, want ErrEmptyAggregate", err)
	}
}
