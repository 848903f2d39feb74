// Copyright 2025 Certen Protocol
//
// Package lightclient is the light-client interface and registry (spec
// §4.4): a pluggable Implementation contract plus a type-URL-keyed
// Registry, generalized from pkg/strategy.Registry and
// pkg/chain/strategy.Strategy's one-interface-per-concern, lookup-by-key
// pattern in the teacher repo.

package lightclient

import (
	"fmt"
	"sync"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/store"
)

// ErrUnexpectedClientType is returned by Registry.Get for an unregistered
// client type.
var ErrUnexpectedClientType = fmt.Errorf("lightclient: unexpected client type")

// ErrHeaderVerificationFailure wraps a header or misbehaviour check that an
// Implementation's rules reject.
var ErrHeaderVerificationFailure = fmt.Errorf("lightclient: header verification failure")

// ErrClientFrozen is returned by UpdateClient when the targeted client is
// already frozen (spec invariant 3).
var ErrClientFrozen = fmt.Errorf("lightclient: client frozen")

// CreateClientResult is returned by Implementation.CreateClient.
type CreateClientResult struct {
	ClientState    store.ClientState
	ConsensusState store.ConsensusState
	Height         lcptypes.Height
	Timestamp      lcptypes.Time
	Message        lcptypes.UpdateState
}

// UpdateClientResultKind discriminates UpdateClientResult.
type UpdateClientResultKind uint8

const (
	UpdateClientResultUpdateState UpdateClientResultKind = iota + 1
	UpdateClientResultMisbehaviour
)

// UpdateClientResult is returned by Implementation.UpdateClient: either a
// successful state transition, or a detected misbehaviour that freezes the
// client.
type UpdateClientResult struct {
	Kind UpdateClientResultKind

	// Populated when Kind == UpdateClientResultUpdateState.
	NewClientState    store.ClientState
	NewConsensusState store.ConsensusState
	Height            lcptypes.Height
	Timestamp         lcptypes.Time
	UpdateMessage     lcptypes.UpdateState

	// Populated when Kind == UpdateClientResultMisbehaviour.
	FrozenClientState   store.ClientState
	MisbehaviourMessage lcptypes.Misbehaviour
}

// Implementation is a pluggable light-client verification predicate (spec
// §4.4). Every method is pure given its reader argument: all state lives in
// the store, not in the Implementation value.
type Implementation interface {
	// ClientType returns the client type the Registry keys this
	// Implementation by, e.g. "07-tendermint" or "mock".
	ClientType() string

	// CreateClient validates and normalises a freshly supplied
	// (client-state, consensus-state) pair.
	CreateClient(reader store.Reader, anyClientState, anyConsensusState lcptypes.Any) (CreateClientResult, error)

	// UpdateClient validates a header or misbehaviour evidence against the
	// client's currently trusted state.
	UpdateClient(reader store.Reader, clientID lcptypes.ClientID, anyHeaderOrMisbehaviour lcptypes.Any) (UpdateClientResult, error)

	// VerifyMembership checks a membership proof against the commitment
	// root at proofHeight.
	VerifyMembership(reader store.Reader, clientID lcptypes.ClientID, prefix []byte, path string, value [32]byte, proofHeight lcptypes.Height, proof []byte) (lcptypes.VerifyMembership, error)

	// VerifyNonMembership checks a non-membership proof against the
	// commitment root at proofHeight.
	VerifyNonMembership(reader store.Reader, clientID lcptypes.ClientID, prefix []byte, path string, proofHeight lcptypes.Height, proof []byte) (lcptypes.VerifyNonMembership, error)
}

// Registry maps client types to Implementations. Registration is
// a one-time operation at process startup; lookup is infallible for
// registered URLs.
type Registry struct {
	mu    sync.RWMutex
	impls map[string]Implementation
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{impls: make(map[string]Implementation)}
}

// Register binds clientType to impl. Registering the same type twice
// panics, since registration is meant to happen once at startup wiring
// time and a silent overwrite would hide a configuration bug.
func (r *Registry) Register(impl Implementation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clientType := impl.ClientType()
	if _, exists := r.impls[clientType]; exists {
		panic(fmt.Sprintf("lightclient: client type %q already registered", clientType))
	}
	r.impls[clientType] = impl
}

// Get looks up the Implementation registered for clientType.
func (r *Registry) Get(clientType string) (Implementation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.impls[clientType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedClientType, clientType)
	}
	return impl, nil
}
