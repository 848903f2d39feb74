// Copyright 2025 Certen Protocol
//
// Package tendermint implements lightclient.Implementation against CometBFT
// signed headers and validator sets (spec §4.4's "at least Tendermint"
// requirement). It generalises pkg/consensus/bft_integration.go's use of
// github.com/cometbft/cometbft/types (cmttypes.SignedHeader, ValidatorSet,
// Commit) from running a consensus node to verifying one's headers offline:
// the trusted-validator-set-bridging and light-client-style commit checks
// follow the same cmttypes API the teacher already imports, applied the way
// ibc-go's 07-tendermint client applies it.
package tendermint

import (
	"bytes"
	"fmt"

	cmtmath "github.com/cometbft/cometbft/libs/math"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient"
	"github.com/sbx-labs/lcp-enclave/pkg/store"
)

// ClientType is the client type this implementation registers under,
// matching the ibc-go convention of naming Tendermint clients "07-tendermint".
const ClientType = "07-tendermint"

const (
	clientStateTypeURL    = "/lcp.tendermint.ClientState"
	consensusStateTypeURL = "/lcp.tendermint.ConsensusState"
	headerTypeURL         = "/lcp.tendermint.Header"
	misbehaviourTypeURL   = "/lcp.tendermint.Misbehaviour"
)

// DefaultTrustLevel is the default fraction of voting power a header's
// commit must carry for trusting-period ("non-adjacent") updates, matching
// ibc-go's 07-tendermint default of 1/3.
var DefaultTrustLevel = cmtmath.Fraction{Numerator: 1, Denominator: 3}

// ClientState is the Tendermint client's trust parameters.
type ClientState struct {
	ChainID        string
	TrustLevel     cmtmath.Fraction
	TrustingPeriod lcptypes.Duration
	MaxClockDrift  lcptypes.Duration
	LatestHeight   lcptypes.Height
	Frozen         bool
	FrozenHeight   lcptypes.Height
}

// ConsensusState is the Tendermint client's per-height trusted state: the
// header timestamp, the commitment root (app hash), and the hash of the
// validator set expected to sign the *next* height's header — the value
// every subsequent UpdateClient call bridges trust through.
type ConsensusState struct {
	Timestamp          lcptypes.Time
	Root               []byte
	NextValidatorsHash []byte
}

// Header carries a new signed header plus the validator set that produced
// it, together with the height/validator-set of the already-trusted state
// the client bridges trust from.
type Header struct {
	SignedHeader      *cmttypes.SignedHeader
	ValidatorSet      *cmttypes.ValidatorSet
	TrustedHeight     lcptypes.Height
	TrustedValidators *cmttypes.ValidatorSet
}

// Misbehaviour evidences two signed headers at the same height with
// different hashes, each independently valid against its accompanying
// validator set — a fork in the counterparty chain's history.
type Misbehaviour struct {
	Header1 Header
	Header2 Header
}

// ErrInvalidHeader is returned when a header or misbehaviour submission
// fails CometBFT's own structural or commit validation.
var ErrInvalidHeader = fmt.Errorf("tendermint: invalid header")

// ErrValidatorSetMismatch is returned when a header's claimed validator set
// does not hash to the value the trusted consensus state committed to.
var ErrValidatorSetMismatch = fmt.Errorf("tendermint: validator set does not match trusted hash")

// ErrNotMisbehaviour is returned when Misbehaviour evidence does not
// actually evidence conflicting headers.
var ErrNotMisbehaviour = fmt.Errorf("tendermint: not misbehaviour")

// LightClient is the CometBFT lightclient.Implementation.
type LightClient struct{}

// New constructs a Tendermint LightClient.
func New() *LightClient {
	return &LightClient{}
}

var _ lightclient.Implementation = (*LightClient)(nil)

// ClientType implements lightclient.Implementation.
func (c *LightClient) ClientType() string {
	return ClientType
}

// CreateClient implements lightclient.Implementation: it trusts the
// submitted (client-state, consensus-state) pair outright, the same way
// ibc-go's 07-tendermint CreateClient does — the initial trust anchor is a
// governance/operator decision, not something this layer can verify.
func (c *LightClient) CreateClient(_ store.Reader, anyClientState, anyConsensusState lcptypes.Any) (lightclient.CreateClientResult, error) {
	cs, err := DecodeClientState(anyClientState)
	if err != nil {
		return lightclient.CreateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}
	cons, err := DecodeConsensusState(anyConsensusState)
	if err != nil {
		return lightclient.CreateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}
	if cs.Frozen {
		return lightclient.CreateClientResult{}, fmt.Errorf("%w: cannot initialize a client already frozen", lightclient.ErrHeaderVerificationFailure)
	}

	stateID := lcptypes.ComputeStateID(anyClientState, anyConsensusState)
	return lightclient.CreateClientResult{
		ClientState: store.ClientState{
			ClientType:   ClientType,
			LatestHeight: cs.LatestHeight,
			Frozen:       false,
			Data:         anyClientState,
		},
		ConsensusState: store.ConsensusState{
			Timestamp: cons.Timestamp,
			Root:      append([]byte(nil), cons.Root...),
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
	cs, err := DecodeClientState(clientState.Data)
	if err != nil {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}

	if anyHeaderOrMisbehaviour.TypeURL == misbehaviourTypeURL {
		return c.updateWithMisbehaviour(reader, clientID, clientState, cs, anyHeaderOrMisbehaviour)
	}
	return c.updateWithHeader(reader, clientID, clientState, cs, anyHeaderOrMisbehaviour)
}

func (c *LightClient) updateWithHeader(reader store.Reader, clientID lcptypes.ClientID, clientState store.ClientState, cs ClientState, anyHeader lcptypes.Any) (lightclient.UpdateClientResult, error) {
	header, err := DecodeHeader(anyHeader)
	if err != nil {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}
	newHeight := lcptypes.NewHeight(clientState.LatestHeight.RevisionNumber, uint64(header.SignedHeader.Height))
	if !newHeight.GT(clientState.LatestHeight) {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: header height %s does not advance beyond %s", lightclient.ErrHeaderVerificationFailure, newHeight, clientState.LatestHeight)
	}

	trustedConsensus, err := reader.ConsensusState(clientID, header.TrustedHeight)
	if err != nil {
		return lightclient.UpdateClientResult{}, err
	}
	trustedCons, err := DecodeConsensusState(trustedConsensus.Data)
	if err != nil {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}

	if header.TrustedValidators == nil || !bytes.Equal(header.TrustedValidators.Hash(), trustedCons.NextValidatorsHash) {
		return lightclient.UpdateClientResult{}, ErrValidatorSetMismatch
	}

	if err := header.SignedHeader.ValidateBasic(cs.ChainID); err != nil {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if !bytes.Equal(header.SignedHeader.ValidatorsHash, header.ValidatorSet.Hash()) {
		return lightclient.UpdateClientResult{}, ErrValidatorSetMismatch
	}

	if header.TrustedHeight.Equal(clientState.LatestHeight) {
		// Adjacent update: the new header's commit must carry the trusted
		// validator set's full +2/3 voting power.
		if err := header.TrustedValidators.VerifyCommitLight(cs.ChainID, header.SignedHeader.Commit.BlockID, header.SignedHeader.Height, header.SignedHeader.Commit); err != nil {
			return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
	} else {
		// Non-adjacent ("trusting period") update: only TrustLevel of the
		// trusted validator set's voting power needs to have signed.
		if err := header.TrustedValidators.VerifyCommitLightTrusting(cs.ChainID, header.SignedHeader.Commit, cs.TrustLevel); err != nil {
			return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
	}
	// The new header's own validator set must also carry the full quorum
	// over its own commit, independent of the trusted-set bridging above.
	if err := header.ValidatorSet.VerifyCommitLight(cs.ChainID, header.SignedHeader.Commit.BlockID, header.SignedHeader.Height, header.SignedHeader.Commit); err != nil {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	headerTimestamp := lcptypes.NewTime(header.SignedHeader.Time.UnixNano())
	newClientState := ClientState{
		ChainID:        cs.ChainID,
		TrustLevel:     cs.TrustLevel,
		TrustingPeriod: cs.TrustingPeriod,
		MaxClockDrift:  cs.MaxClockDrift,
		LatestHeight:   newHeight,
		Frozen:         false,
	}
	anyNewClientState := EncodeClientState(newClientState)
	newConsensus := ConsensusState{
		Timestamp:          headerTimestamp,
		Root:               append([]byte(nil), header.SignedHeader.AppHash...),
		NextValidatorsHash: append([]byte(nil), header.SignedHeader.NextValidatorsHash...),
	}
	anyNewConsensus := EncodeConsensusState(newConsensus)
	newStateID := lcptypes.ComputeStateID(anyNewClientState, anyNewConsensus)
	prevStateID := lcptypes.ComputeStateID(clientState.Data, trustedConsensus.Data)

	validationContext := lcptypes.NewWithinTrustingPeriodContext(cs.TrustingPeriod, cs.MaxClockDrift, headerTimestamp, trustedCons.Timestamp)

	return lightclient.UpdateClientResult{
		Kind: lightclient.UpdateClientResultUpdateState,
		NewClientState: store.ClientState{
			ClientType:   ClientType,
			LatestHeight: newHeight,
			Frozen:       false,
			Data:         anyNewClientState,
		},
		NewConsensusState: store.ConsensusState{
			Timestamp: headerTimestamp,
			Root:      append([]byte(nil), header.SignedHeader.AppHash...),
			Data:      anyNewConsensus,
		},
		Height:    newHeight,
		Timestamp: headerTimestamp,
		UpdateMessage: lcptypes.UpdateState{
			HasPrevState: true,
			PrevHeight:   header.TrustedHeight,
			PrevStateID:  prevStateID,
			PostHeight:   newHeight,
			PostStateID:  newStateID,
			Timestamp:    headerTimestamp,
			Context:      validationContext,
		},
	}, nil
}

func (c *LightClient) updateWithMisbehaviour(reader store.Reader, clientID lcptypes.ClientID, clientState store.ClientState, cs ClientState, anyMisbehaviour lcptypes.Any) (lightclient.UpdateClientResult, error) {
	m, err := DecodeMisbehaviour(anyMisbehaviour)
	if err != nil {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}
	if m.Header1.SignedHeader.Height != m.Header2.SignedHeader.Height {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: headers at different heights", ErrNotMisbehaviour)
	}
	if bytes.Equal(m.Header1.SignedHeader.Hash(), m.Header2.SignedHeader.Hash()) {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: identical headers", ErrNotMisbehaviour)
	}

	for _, h := range []Header{m.Header1, m.Header2} {
		if err := h.SignedHeader.ValidateBasic(cs.ChainID); err != nil {
			return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
		if err := h.ValidatorSet.VerifyCommitLight(cs.ChainID, h.SignedHeader.Commit.BlockID, h.SignedHeader.Height, h.SignedHeader.Commit); err != nil {
			return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
	}

	misHeight := lcptypes.NewHeight(clientState.LatestHeight.RevisionNumber, uint64(m.Header1.SignedHeader.Height))
	existing, err := reader.ConsensusState(clientID, misHeight)
	if err != nil {
		return lightclient.UpdateClientResult{}, err
	}
	existingCons, err := DecodeConsensusState(existing.Data)
	if err != nil {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: %v", lightclient.ErrHeaderVerificationFailure, err)
	}
	if !bytes.Equal(existingCons.Root, m.Header1.SignedHeader.AppHash) && !bytes.Equal(existingCons.Root, m.Header2.SignedHeader.AppHash) {
		return lightclient.UpdateClientResult{}, fmt.Errorf("%w: neither conflicting header matches the trusted root at %s", ErrNotMisbehaviour, misHeight)
	}

	frozenState := ClientState{
		ChainID:        cs.ChainID,
		TrustLevel:     cs.TrustLevel,
		TrustingPeriod: cs.TrustingPeriod,
		MaxClockDrift:  cs.MaxClockDrift,
		LatestHeight:   clientState.LatestHeight,
		Frozen:         true,
		FrozenHeight:   misHeight,
	}
	anyFrozenState := EncodeClientState(frozenState)
	prevStateID := lcptypes.ComputeStateID(clientState.Data, existing.Data)

	return lightclient.UpdateClientResult{
		Kind: lightclient.UpdateClientResultMisbehaviour,
		FrozenClientState: store.ClientState{
			ClientType:   ClientType,
			LatestHeight: clientState.LatestHeight,
			Frozen:       true,
			Data:         anyFrozenState,
		},
		MisbehaviourMessage: lcptypes.Misbehaviour{
			PrevStates:    []lcptypes.HeightStateID{{Height: misHeight, StateID: prevStateID}},
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
		StateID:  lcptypes.ComputeStateID(clientState.Data, cons.Data),
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
		StateID: lcptypes.ComputeStateID(clientState.Data, cons.Data),
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
