package elc

import (
	"fmt"

	"github.com/sbx-labs/lcp-enclave/pkg/commitment"
	"github.com/sbx-labs/lcp-enclave/pkg/ecrypto"
	"github.com/sbx-labs/lcp-enclave/pkg/kvstore"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient"
	"github.com/sbx-labs/lcp-enclave/pkg/store"
)

// KeyProvider resolves the enclave key a command's Signer address names.
// Implemented by the key manager (L6); engine tests may supply a trivial
// single-key stand-in.
type KeyProvider interface {
	Key(signer lcptypes.Address) (*ecrypto.EnclaveKey, error)
}

// Engine is the ELC state-transition core. It owns no state of its own
// beyond its collaborators: every command's actual state lives in the
// kvstore.Manager's backing store.
type Engine struct {
	manager  *kvstore.Manager
	registry *lightclient.Registry
	keys     KeyProvider
}

// NewEngine constructs an Engine over manager's store, dispatching to
// implementations registered in registry and signing with keys resolved
// through keys.
func NewEngine(manager *kvstore.Manager, registry *lightclient.Registry, keys KeyProvider) *Engine {
	return &Engine{manager: manager, registry: registry, keys: keys}
}

// proxyResult is the common {message, signer, signature} shape every
// mutating command returns (spec §4.5 step 8).
type proxyResult struct {
	ProxyMessageBytes []byte
	Signer            lcptypes.Address
	Signature         [ecrypto.SignatureLength]byte
}

func (e *Engine) sign(signer lcptypes.Address, msg lcptypes.ProxyMessage) (proxyResult, error) {
	key, err := e.keys.Key(signer)
	if err != nil {
		return proxyResult{}, err
	}
	proof, err := commitment.Prove(key, msg)
	if err != nil {
		return proxyResult{}, err
	}
	return proxyResult{ProxyMessageBytes: proof.Message, Signer: proof.Signer, Signature: proof.Signature}, nil
}

// beginUpdate opens and prepares an update transaction keyed by updateKey,
// returning a store.Store bound to it and stamped with currentTimestamp
// (spec §4.5 steps 1-2).
func (e *Engine) beginUpdate(updateKey []byte, currentTimestamp lcptypes.Time) (*kvstore.Tx, *store.Store, error) {
	tx, err := e.manager.CreateTransaction(updateKey)
	if err != nil {
		return nil, nil, err
	}
	if err := e.manager.Prepare(tx); err != nil {
		return nil, nil, err
	}
	if err := e.manager.Begin(tx); err != nil {
		return nil, nil, err
	}
	return tx, store.New(tx, currentTimestamp), nil
}

// beginRead opens a read-only transaction (no update key) for QueryClient.
func (e *Engine) beginRead(currentTimestamp lcptypes.Time) (*kvstore.Tx, *store.Store, error) {
	tx, err := e.manager.CreateTransaction(nil)
	if err != nil {
		return nil, nil, err
	}
	if err := e.manager.Prepare(tx); err != nil {
		return nil, nil, err
	}
	if err := e.manager.Begin(tx); err != nil {
		return nil, nil, err
	}
	return tx, store.New(tx, currentTimestamp), nil
}

func (e *Engine) rollback(tx *kvstore.Tx) {
	_ = e.manager.Rollback(tx)
}

// InitClientCommand creates a new client instance from a freshly supplied
// (client-state, consensus-state) pair.
type InitClientCommand struct {
	ClientType        string
	AnyClientState    lcptypes.Any
	AnyConsensusState lcptypes.Any
	CurrentTimestamp  lcptypes.Time
	Signer            lcptypes.Address
}

// InitClientResult is InitClient's return value.
type InitClientResult struct {
	ClientID          lcptypes.ClientID
	ProxyMessageBytes []byte
	Signer            lcptypes.Address
	Signature         [ecrypto.SignatureLength]byte
}

// InitClient implements spec §4.5's InitClient command.
func (e *Engine) InitClient(cmd InitClientCommand) (InitClientResult, error) {
	impl, err := e.registry.Get(cmd.ClientType)
	if err != nil {
		return InitClientResult{}, err
	}

	tx, s, err := e.beginUpdate([]byte(cmd.ClientType), cmd.CurrentTimestamp)
	if err != nil {
		return InitClientResult{}, err
	}

	result, err := impl.CreateClient(s, cmd.AnyClientState, cmd.AnyConsensusState)
	if err != nil {
		e.rollback(tx)
		return InitClientResult{}, wrapLightClientError(err)
	}

	clientID, err := s.AllocateClientID(cmd.ClientType)
	if err != nil {
		e.rollback(tx)
		return InitClientResult{}, err
	}
	if err := s.SetClientType(clientID, cmd.ClientType); err != nil {
		e.rollback(tx)
		return InitClientResult{}, err
	}
	if err := s.SetClientState(clientID, result.ClientState); err != nil {
		e.rollback(tx)
		return InitClientResult{}, err
	}
	if err := s.SetConsensusState(clientID, result.Height, result.ConsensusState); err != nil {
		e.rollback(tx)
		return InitClientResult{}, err
	}

	msg := lcptypes.ProxyMessage{Kind: lcptypes.ProxyMessageKindUpdateState, UpdateState: &result.Message}
	signed, err := e.sign(cmd.Signer, msg)
	if err != nil {
		e.rollback(tx)
		return InitClientResult{}, err
	}

	if err := e.manager.Commit(tx); err != nil {
		return InitClientResult{}, err
	}
	return InitClientResult{
		ClientID:          clientID,
		ProxyMessageBytes: signed.ProxyMessageBytes,
		Signer:            signed.Signer,
		Signature:         signed.Signature,
	}, nil
}

// UpdateClientCommand submits a header or misbehaviour evidence against an
// existing client.
type UpdateClientCommand struct {
	ClientID         lcptypes.ClientID
	AnyHeader        lcptypes.Any
	CurrentTimestamp lcptypes.Time
	Signer           lcptypes.Address
}

// UpdateClientResult is UpdateClient's return value.
type UpdateClientResult struct {
	ProxyMessageBytes []byte
	Signer            lcptypes.Address
	Signature         [ecrypto.SignatureLength]byte
}

// UpdateClient implements spec §4.5's UpdateClient command.
func (e *Engine) UpdateClient(cmd UpdateClientCommand) (UpdateClientResult, error) {
	clientType, err := cmd.ClientID.ClientType()
	if err != nil {
		return UpdateClientResult{}, err
	}
	impl, err := e.registry.Get(clientType)
	if err != nil {
		return UpdateClientResult{}, err
	}

	tx, s, err := e.beginUpdate([]byte(cmd.ClientID), cmd.CurrentTimestamp)
	if err != nil {
		return UpdateClientResult{}, err
	}

	preState, err := s.ClientState(cmd.ClientID)
	if err != nil {
		e.rollback(tx)
		return UpdateClientResult{}, err
	}

	result, err := impl.UpdateClient(s, cmd.ClientID, cmd.AnyHeader)
	if err != nil {
		e.rollback(tx)
		return UpdateClientResult{}, wrapLightClientError(err)
	}

	var msg lcptypes.ProxyMessage
	switch result.Kind {
	case lightclient.UpdateClientResultUpdateState:
		if !result.Height.GT(preState.LatestHeight) {
			e.rollback(tx)
			return UpdateClientResult{}, ErrNonAdvancingUpdate
		}
		if err := s.SetClientState(cmd.ClientID, result.NewClientState); err != nil {
			e.rollback(tx)
			return UpdateClientResult{}, err
		}
		if err := s.SetConsensusState(cmd.ClientID, result.Height, result.NewConsensusState); err != nil {
			e.rollback(tx)
			return UpdateClientResult{}, err
		}
		msg = lcptypes.ProxyMessage{Kind: lcptypes.ProxyMessageKindUpdateState, UpdateState: &result.UpdateMessage}
	case lightclient.UpdateClientResultMisbehaviour:
		if err := s.SetClientState(cmd.ClientID, result.FrozenClientState); err != nil {
			e.rollback(tx)
			return UpdateClientResult{}, err
		}
		msg = lcptypes.ProxyMessage{Kind: lcptypes.ProxyMessageKindMisbehaviour, Misbehaviour: &result.MisbehaviourMessage}
	default:
		e.rollback(tx)
		return UpdateClientResult{}, fmt.Errorf("elc: unexpected update client result kind %d", result.Kind)
	}

	signed, err := e.sign(cmd.Signer, msg)
	if err != nil {
		e.rollback(tx)
		return UpdateClientResult{}, err
	}
	if err := e.manager.Commit(tx); err != nil {
		return UpdateClientResult{}, err
	}
	return UpdateClientResult{ProxyMessageBytes: signed.ProxyMessageBytes, Signer: signed.Signer, Signature: signed.Signature}, nil
}

// VerifyMembershipCommand requests a signed membership proof.
type VerifyMembershipCommand struct {
	ClientID         lcptypes.ClientID
	Prefix           []byte
	Path             string
	Value            [32]byte
	ProofHeight      lcptypes.Height
	Proof            []byte
	CurrentTimestamp lcptypes.Time
	Signer           lcptypes.Address
}

// VerifyMembershipResult is VerifyMembership's return value.
type VerifyMembershipResult struct {
	ProxyMessageBytes []byte
	Signer            lcptypes.Address
	Signature         [ecrypto.SignatureLength]byte
}

// VerifyMembership implements spec §4.5/§4.4's VerifyMembership command.
// It is read-only with respect to the commitment tree, but still runs
// inside an update transaction keyed by client id so its signing step is
// serialised against concurrent UpdateClient calls on the same client.
func (e *Engine) VerifyMembership(cmd VerifyMembershipCommand) (VerifyMembershipResult, error) {
	clientType, err := cmd.ClientID.ClientType()
	if err != nil {
		return VerifyMembershipResult{}, err
	}
	impl, err := e.registry.Get(clientType)
	if err != nil {
		return VerifyMembershipResult{}, err
	}

	tx, s, err := e.beginUpdate([]byte(cmd.ClientID), cmd.CurrentTimestamp)
	if err != nil {
		return VerifyMembershipResult{}, err
	}

	vm, err := impl.VerifyMembership(s, cmd.ClientID, cmd.Prefix, cmd.Path, cmd.Value, cmd.ProofHeight, cmd.Proof)
	if err != nil {
		e.rollback(tx)
		return VerifyMembershipResult{}, wrapLightClientError(err)
	}

	msg := lcptypes.ProxyMessage{Kind: lcptypes.ProxyMessageKindVerifyMembership, VerifyMembership: &vm}
	signed, err := e.sign(cmd.Signer, msg)
	if err != nil {
		e.rollback(tx)
		return VerifyMembershipResult{}, err
	}
	if err := e.manager.Commit(tx); err != nil {
		return VerifyMembershipResult{}, err
	}
	return VerifyMembershipResult{ProxyMessageBytes: signed.ProxyMessageBytes, Signer: signed.Signer, Signature: signed.Signature}, nil
}

// VerifyNonMembershipCommand requests a signed non-membership proof.
type VerifyNonMembershipCommand struct {
	ClientID         lcptypes.ClientID
	Prefix           []byte
	Path             string
	ProofHeight      lcptypes.Height
	Proof            []byte
	CurrentTimestamp lcptypes.Time
	Signer           lcptypes.Address
}

// VerifyNonMembershipResult is VerifyNonMembership's return value.
type VerifyNonMembershipResult struct {
	ProxyMessageBytes []byte
	Signer            lcptypes.Address
	Signature         [ecrypto.SignatureLength]byte
}

// VerifyNonMembership implements spec §4.5/§4.4's VerifyNonMembership command.
func (e *Engine) VerifyNonMembership(cmd VerifyNonMembershipCommand) (VerifyNonMembershipResult, error) {
	clientType, err := cmd.ClientID.ClientType()
	if err != nil {
		return VerifyNonMembershipResult{}, err
	}
	impl, err := e.registry.Get(clientType)
	if err != nil {
		return VerifyNonMembershipResult{}, err
	}

	tx, s, err := e.beginUpdate([]byte(cmd.ClientID), cmd.CurrentTimestamp)
	if err != nil {
		return VerifyNonMembershipResult{}, err
	}

	vn, err := impl.VerifyNonMembership(s, cmd.ClientID, cmd.Prefix, cmd.Path, cmd.ProofHeight, cmd.Proof)
	if err != nil {
		e.rollback(tx)
		return VerifyNonMembershipResult{}, wrapLightClientError(err)
	}

	msg := lcptypes.ProxyMessage{Kind: lcptypes.ProxyMessageKindVerifyNonMembership, VerifyNonMembership: &vn}
	signed, err := e.sign(cmd.Signer, msg)
	if err != nil {
		e.rollback(tx)
		return VerifyNonMembershipResult{}, err
	}
	if err := e.manager.Commit(tx); err != nil {
		return VerifyNonMembershipResult{}, err
	}
	return VerifyNonMembershipResult{ProxyMessageBytes: signed.ProxyMessageBytes, Signer: signed.Signer, Signature: signed.Signature}, nil
}

// QueryClientCommand looks up a client's currently stored states.
type QueryClientCommand struct {
	ClientID lcptypes.ClientID
}

// QueryClientResult is QueryClient's return value.
type QueryClientResult struct {
	Found             bool
	AnyClientState    lcptypes.Any
	AnyConsensusState lcptypes.Any
}

// QueryClient implements spec §4.5/§6's read-only QueryClient command.
func (e *Engine) QueryClient(cmd QueryClientCommand) (QueryClientResult, error) {
	tx, s, err := e.beginRead(lcptypes.Time{})
	if err != nil {
		return QueryClientResult{}, err
	}
	defer e.rollback(tx)

	cs, err := s.ClientState(cmd.ClientID)
	if err != nil {
		if err == store.ErrClientStateNotFound {
			return QueryClientResult{Found: false}, nil
		}
		return QueryClientResult{}, err
	}
	cons, err := s.ConsensusState(cmd.ClientID, cs.LatestHeight)
	if err != nil {
		return QueryClientResult{}, err
	}
	return QueryClientResult{Found: true, AnyClientState: cs.Data, AnyConsensusState: cons.Data}, nil
}

// AggregateMessagesCommand verifies a batch of previously signed UpdateState
// proxy messages and re-signs a single UpdateState spanning their combined
// effect (spec §6).
type AggregateMessagesCommand struct {
	Messages         [][]byte
	Signatures       [][ecrypto.SignatureLength]byte
	CurrentTimestamp lcptypes.Time
	Signer           lcptypes.Address
}

// AggregateMessagesResult is AggregateMessages's return value.
type AggregateMessagesResult struct {
	ProxyMessageBytes []byte
	Signer            lcptypes.Address
	Signature         [ecrypto.SignatureLength]byte
}

// AggregateMessages implements spec §6's AggregateMessages command: each
// sub-message's signature is verified, then a single UpdateState spanning
// from the earliest prev_* to the latest post_* is constructed and re-signed.
func (e *Engine) AggregateMessages(cmd AggregateMessagesCommand) (AggregateMessagesResult, error) {
	if len(cmd.Messages) == 0 || len(cmd.Messages) != len(cmd.Signatures) {
		return AggregateMessagesResult{}, ErrEmptyAggregate
	}

	var earliest, latest *lcptypes.UpdateState
	var emitted []lcptypes.HeightAny
	for i, raw := range cmd.Messages {
		proof := lcptypes.CommitmentProof{Message: raw, Signer: cmd.Signer, Signature: cmd.Signatures[i]}
		decoded, err := commitment.Verify(proof)
		if err != nil {
			return AggregateMessagesResult{}, err
		}
		if decoded.Kind != lcptypes.ProxyMessageKindUpdateState || decoded.UpdateState == nil {
			return AggregateMessagesResult{}, ErrMessageKindMismatch
		}
		us := decoded.UpdateState
		if earliest == nil || us.PrevHeight.LT(earliest.PrevHeight) {
			earliest = us
		}
		if latest == nil || us.PostHeight.GT(latest.PostHeight) {
			latest = us
		}
		emitted = append(emitted, us.EmittedStates...)
	}

	aggregated := lcptypes.UpdateState{
		PrevHeight:    earliest.PrevHeight,
		PrevStateID:   earliest.PrevStateID,
		HasPrevState:  earliest.HasPrevState,
		PostHeight:    latest.PostHeight,
		PostStateID:   latest.PostStateID,
		Timestamp:     latest.Timestamp,
		Context:       latest.Context,
		EmittedStates: emitted,
	}

	msg := lcptypes.ProxyMessage{Kind: lcptypes.ProxyMessageKindUpdateState, UpdateState: &aggregated}
	signed, err := e.sign(cmd.Signer, msg)
	if err != nil {
		return AggregateMessagesResult{}, err
	}
	return AggregateMessagesResult{ProxyMessageBytes: signed.ProxyMessageBytes, Signer: signed.Signer, Signature: signed.Signature}, nil
}
