// Copyright 2025 Certen Protocol
//
// Package mock implements lightclient.Implementation for a deterministic,
// app-hash-keyed test client with no trusting period — grounded on
// original_source/modules/mock-lc/src/client.rs's MockLightClient, whose
// header and client-state shapes (height, timestamp, no validator set) this
// package ports to the typed-path store layer instead of ibc-rs's keeper.

package mock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient"
	"github.com/sbx-labs/lcp-enclave/pkg/store"
)

// ClientType is the client type this implementation registers under.
const ClientType = "mock"

const (
	clientStateTypeURL    = "/lcp.mock.ClientState"
	consensusStateTypeURL = "/lcp.mock.ConsensusState"
	headerTypeURL         = "/lcp.mock.Header"
	misbehaviourTypeURL   = "/lcp.mock.Misbehaviour"
	appHashLength         = 32
)

// ErrInvalidData is returned when an Any's Value does not decode to the
// expected fixed-width layout for its TypeURL.
var ErrInvalidData = errors.New("mock: invalid data")

// ClientState is the mock client's trust parameters: just a latest height
// and a frozen flag, no validator set.
type ClientState struct {
	LatestHeight lcptypes.Height
	Frozen       bool
}

// EncodeClientState serializes a ClientState.
func EncodeClientState(cs ClientState) lcptypes.Any {
	buf := make([]byte, 17)
	binary.BigEndian.PutUint64(buf[0:8], cs.LatestHeight.RevisionNumber)
	binary.BigEndian.PutUint64(buf[8:16], cs.LatestHeight.RevisionHeight)
	if cs.Frozen {
		buf[16] = 1
	}
	return lcptypes.NewAny(clientStateTypeURL, buf)
}

// DecodeClientState is the inverse of EncodeClientState.
func DecodeClientState(a lcptypes.Any) (ClientState, error) {
	if a.TypeURL != clientStateTypeURL || len(a.Value) != 17 {
		return ClientState{}, fmt.Errorf("%w: client state", ErrInvalidData)
	}
	return ClientState{
		LatestHeight: lcptypes.NewHeight(binary.BigEndian.Uint64(a.Value[0:8]), binary.BigEndian.Uint64(a.Value[8:16])),
		Frozen:       a.Value[16] != 0,
	}, nil
}

// ConsensusState is the mock client's per-height state: a timestamp and a
// dummy 32-byte app hash standing in for a commitment root.
type ConsensusState struct {
	Timestamp lcptypes.Time
	AppHash   [appHashLength]byte
}

// EncodeConsensusState serializes a ConsensusState.
func EncodeConsensusState(cons ConsensusState) lcptypes.Any {
	buf := make([]byte, 8+appHashLength)
	binary.BigEndian.PutUint64(buf[0:8], uint64(cons.Timestamp.UnixNano))
	copy(buf[8:], cons.AppHash[:])
	return lcptypes.NewAny(consensusStateTypeURL, buf)
}

// DecodeConsensusState is the inverse of EncodeConsensusState.
func DecodeConsensusState(a lcptypes.Any) (ConsensusState, error) {
	if a.TypeURL != consensusStateTypeURL || len(a.Value) != 8+appHashLength {
		return ConsensusState{}, fmt.Errorf("%w: consensus state", ErrInvalidData)
	}
	var cons ConsensusState
	cons.Timestamp = lcptypes.NewTime(int64(binary.BigEndian.Uint64(a.Value[0:8])))
	copy(cons.AppHash[:], a.Value[8:])
	return cons, nil
}

// Header advances a mock client to a new height with a new app hash.
type Header struct {
	Height    lcptypes.Height
	Timestamp lcptypes.Time
	AppHash   [appHashLength]byte
}

// EncodeHeader serializes a Header.
func EncodeHeader(h Header) lcptypes.Any {
	buf := make([]byte, 24+appHashLength)
	binary.BigEndian.PutUint64(buf[0:8], h.Height.RevisionNumber)
	binary.BigEndian.PutUint64(buf[8:16], h.Height.RevisionHeight)
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.Timestamp.UnixNano))
	copy(buf[24:], h.AppHash[:])
	return lcptypes.NewAny(headerTypeURL, buf)
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(a lcptypes.Any) (Header, error) {
	if a.TypeURL != headerTypeURL || len(a.Value) != 24+appHashLength {
		return Header{}, fmt.Errorf("%w: header", ErrInvalidData)
	}
	var h Header
	h.Height = lcptypes.NewHeight(binary.BigEndian.Uint64(a.Value[0:8]), binary.BigEndian.Uint64(a.Value[8:16]))
	h.Timestamp = lcptypes.NewTime(int64(binary.BigEndian.Uint64(a.Value[16:24])))
	copy(h.AppHash[:], a.Value[24:])
	return h, nil
}

// Misbehaviour evidences two distinct app hashes claimed for the same
// height — the mock client's only detectable fault, since it has no
// validator set to misreport against.
type Misbehaviour struct {
	Height   lcptypes.Height
	AppHash1 [appHashLength]byte
	AppHash2 [appHashLength]byte
}

// EncodeMisbehaviour serializes a Misbehaviour.
func EncodeMisbehaviour(m Misbehaviour) lcptypes.Any {
	buf := make([]byte, 16+2*appHashLength)
	binary.BigEndian.PutUint64(buf[0:8], m.Height.RevisionNumber)
	binary.BigEndian.PutUint64(buf[8:16], m.Height.RevisionHeight)
	copy(buf[16:16+appHashLength], m.AppHash1[:])
	copy(buf[16+appHashLength:], m.AppHash2[:])
	return lcptypes.NewAny(misbehaviourTypeURL, buf)
}

// DecodeMisbehaviour is the inverse of EncodeMisbehaviour.
func DecodeMisbehaviour(a lcptypes.Any) (Misbehaviour, error) {
	if a.TypeURL != misbehaviourTypeURL || len(a.Value) != 16+2*appHashLength {
		return Misbehaviour{}, fmt.Errorf("%w: misbehaviour", ErrInvalidData)
	}
	var m Misbehaviour
	m.Height = lcptypes.NewHeight(binary.BigEndian.Uint64(a.Value[0:8]), binary.BigEndian.Uint64(a.Value[8:16]))
	copy(m.AppHash1[:], a.Value[16:16+appHashLength])
	copy(m.AppHash2[:], a.Value[16+appHashLength:])
	return m, nil
}

// LightClient is the mock lightclient.Implementation.
type LightClient struct{}

// New constructs a mock LightClient.
func New() *LightClient {
	return &LightClient{}
}

var _ lightclient.Implementation = (*LightClient)(nil)

// ClientType implements lightclient.Implementation.
func (c *LightClient) ClientType() string {
	return ClientType
}

// CreateClient implements lightclient.Implementation.
func (c *LightClient) CreateClient(_ store.Reader, anyClientState, anyConsensusState lcptypes.Any) (lightclient.CreateClientResult, error) {
	cs, err := DecodeClientState(anyClientState)
	if err != nil {
		return lightclient.CreateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}
	cons, err := DecodeConsensusState(anyConsensusState)
	if err != nil {
		return lightclient.CreateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}

	stateID := lcptypes.ComputeStateID(anyClientState, anyConsensusState)

	return lightclient.CreateClientResult{
		ClientState: store.ClientState{
			ClientType:   ClientType,
			LatestHeight: cs.LatestHeight,
			Frozen:       cs.Frozen,
			Data:         anyClientState,
		},
		ConsensusState: store.ConsensusState{
			Timestamp: cons.Timestamp,
			Root:      append([]byte(nil), cons.AppHash[:]...),
			Data:      anyConsensusState,
		},
		Height:    cs.LatestHeight,
		Timestamp: cons.Timestamp,
		Message: lcptypes.UpdateState{
			HasPrevState:  false,
			PostHeight:    cs.LatestHeight,
			PostStateID:   stateID,
			Timestamp:     cons.Timestamp,
			Context:       lcptypes.EmptyValidationContext(),
			EmittedStates: []lcptypes.HeightAny{{Height: cs.LatestHeight, State: anyClientState}},
		},
	}, nil
}

// UpdateClient implements lightclient.Implementation.
func (c *LightClient) UpdateClient(reader store.Reader, clientID lcptypes.ClientID, anyHeaderOrMisbehaviour lcptypes.Any) (lightclient.UpdateClientResult, error) {
	clientState, err := reader.ClientState(clientID)
	if err != nil {
		return lightclient.UpdateClientResult{}, err
	}
	if clientState.Frozen {
		return lightclient.UpdateClientResult{}, lightclient.ErrClientFrozen
	}

	if anyHeaderOrMisbehaviour.TypeURL == misbehaviourTypeURL {
		return c.updateWithMisbehaviour(reader, clientID, clientState, anyHeaderOrMisbehaviour)
	}
	return c.updateWithHeader(reader, clientID, clientState, anyHeaderOrMisbehaviour)
}

func (c *LightClient) updateWithHeader(reader store.Reader, clientID lcptypes.ClientID, clientState store.ClientState, anyHeader lcptypes.Any) (lightclient.UpdateClientResult, error) {
	header, err := DecodeHeader(anyHeader)
	if err != nil {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}
	if !header.Height.GT(clientState.LatestHeight) {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: header height %s does not advance beyond %s", lightclient.ErrHeaderVerificationFailure, header.Height, clientState.LatestHeight)
	}

	prevConsensus, err := reader.ConsensusState(clientID, clientState.LatestHeight)
	if err != nil {
		return lightclient.UpdateClientResult{}, err
	}
	prevStateID := store.StateID(clientState, prevConsensus)

	newClientState := ClientState{LatestHeight: header.Height, Frozen: false}
	anyNewClientState := EncodeClientState(newClientState)
	newConsensus := ConsensusState{Timestamp: header.Timestamp, AppHash: header.AppHash}
	anyNewConsensus := EncodeConsensusState(newConsensus)
	newStateID := lcptypes.ComputeStateID(anyNewClientState, anyNewConsensus)

	return lightclient.UpdateClientResult{
		Kind: lightclient.UpdateClientResultUpdateState,
		NewClientState: store.ClientState{
			ClientType:   ClientType,
			LatestHeight: header.Height,
			Frozen:       false,
			Data:         anyNewClientState,
		},
		NewConsensusState: store.ConsensusState{
			Timestamp: header.Timestamp,
			Root:      append([]byte(nil), header.AppHash[:]...),
			Data:      anyNewConsensus,
		},
		Height:    header.Height,
		Timestamp: header.Timestamp,
		UpdateMessage: lcptypes.UpdateState{
			HasPrevState: true,
			PrevHeight:   clientState.LatestHeight,
			PrevStateID:  prevStateID,
			PostHeight:   header.Height,
			PostStateID:  newStateID,
			Timestamp:    header.Timestamp,
			Context:      lcptypes.EmptyValidationContext(),
		},
	}, nil
}

func (c *LightClient) updateWithMisbehaviour(reader store.Reader, clientID lcptypes.ClientID, clientState store.ClientState, anyMisbehaviour lcptypes.Any) (lightclient.UpdateClientResult, error) {
	m, err := DecodeMisbehaviour(anyMisbehaviour)
	if err != nil {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}
	if bytes.Equal(m.AppHash1[:], m.AppHash2[:]) {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: misbehaviour app hashes are identical", lightclient.ErrHeaderVerificationFailure)
	}

	existing, err := reader.ConsensusState(clientID, m.Height)
	if err != nil {
		return lightclient.UpdateClientResult{}, err
	}
	if !bytes.Equal(existing.Root, m.AppHash1[:]) && !bytes.Equal(existing.Root, m.AppHash2[:]) {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: neither claimed app hash matches stored consensus state at %s", lightclient.ErrHeaderVerificationFailure, m.Height)
	}

	frozenState := ClientState{LatestHeight: clientState.LatestHeight, Frozen: true}
	anyFrozenState := EncodeClientState(frozenState)

	prevStateID := store.StateID(clientState, existing)

	return lightclient.UpdateClientResult{
		Kind: lightclient.UpdateClientResultMisbehaviour,
		FrozenClientState: store.ClientState{
			ClientType:   ClientType,
			LatestHeight: clientState.LatestHeight,
			Frozen:       true,
			Data:         anyFrozenState,
		},
		MisbehaviourMessage: lcptypes.Misbehaviour{
			PrevStates:    []lcptypes.HeightStateID{{Height: m.Height, StateID: prevStateID}},
			Context:       lcptypes.EmptyValidationContext(),
			ClientMessage: anyMisbehaviour,
		},
	}, nil
}

// VerifyMembership implements lightclient.Implementation.
func (c *LightClient) VerifyMembership(reader store.Reader, clientID lcptypes.ClientID, prefix []byte, path string, value [32]byte, proofHeight lcptypes.Height, proof []byte) (lcptypes.VerifyMembership, error) {
	clientState, cons, err := c.loadForVerification(reader, clientID, proofHeight)
	if err != nil {
		return lcptypes.VerifyMembership{}, err
	}
	if !bytes.Equal(proof, cons.Root) {
		return lcptypes.VerifyMembership{}, fmt.Errorf("%w: membership proof does not match stored root", lightclient.ErrHeaderVerificationFailure)
	}
	return lcptypes.VerifyMembership{
		Prefix:   prefix,
		Path:     path,
		Value:    value,
		HasValue: true,
		Height:   proofHeight,
		StateID:  store.StateID(clientState, cons),
	}, nil
}

// VerifyNonMembership implements lightclient.Implementation.
func (c *LightClient) VerifyNonMembership(reader store.Reader, clientID lcptypes.ClientID, prefix []byte, path string, proofHeight lcptypes.Height, proof []byte) (lcptypes.VerifyNonMembership, error) {
	clientState, cons, err := c.loadForVerification(reader, clientID, proofHeight)
	if err != nil {
		return lcptypes.VerifyNonMembership{}, err
	}
	if !bytes.Equal(proof, cons.Root) {
		return lcptypes.VerifyNonMembership{}, fmt.Errorf("%w: non-membership proof does not match stored root", lightclient.ErrHeaderVerificationFailure)
	}
	return lcptypes.VerifyNonMembership{
		Prefix:  prefix,
		Path:    path,
		Height:  proofHeight,
		StateID: store.StateID(clientState, cons),
	}, nil
}

func (c *LightClient) loadForVerification(reader store.Reader, clientID lcptypes.ClientID, proofHeight lcptypes.Height) (store.ClientState, store.ConsensusState, error) {
	clientState, err := reader.ClientState(clientID)
	if err != nil {
		return store.ClientState{}, store.ConsensusState{}, err
	}
	if clientState.Frozen {
		return store.ClientState{}, store.ConsensusState{}, lightclient.ErrClientFrozen
	}
	cons, err := reader.ConsensusState(clientID, proofHeight)
	if err != nil {
		return store.ClientState{}, store.ConsensusState{}, err
	}
	return clientState, cons, nil
}
