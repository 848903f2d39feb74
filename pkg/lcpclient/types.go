// Copyright 2025 Certen Protocol
//
// Package lcpclient is the outer LCP client (spec §4.8): the relying-party
// side state machine that a chain module (or, in this repo, any caller
// holding a *Client) consults to decide whether a CommitmentProof produced
// by an enclave is worth acting on. It never touches enclave secrets or the
// ELC's own kvstore — its only inputs are ClientState/ConsensusState values
// it was given at InitClient time and the CommitmentProofs it is asked to
// verify afterwards.
//
// Structurally this mirrors siburu-lcp-go's light-clients/lcp/types
// ClientState: the same "enclave key expiry keyed by address", "freeze on
// misbehaviour", "advisory id allow-list via a set" shape, generalized from
// an ibc-go KVStore-backed module to a plain in-memory registry.
package lcpclient

import (
	"time"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// ClientState is the per-client-id configuration and mutable head state an
// outer LCP client tracks, per spec §4.8.
type ClientState struct {
	MrEnclave     [32]byte
	KeyExpiration time.Duration
	Frozen        bool
	LatestHeight  lcptypes.Height

	Operators            []lcptypes.Address
	OperatorsNonce       uint64
	ThresholdNumerator   uint64
	ThresholdDenominator uint64

	// AllowedQuoteStatuses/AllowedAdvisoryIDs allow-list IAS/DCAP quote
	// statuses and advisory ids other than the trivial "OK, no advisories"
	// case, per spec §4.7's RA acceptance rule.
	AllowedQuoteStatuses []string
	AllowedAdvisoryIDs   []string
}

// validateThreshold reports whether the configured threshold is satisfiable
// by len(Operators) when operators are configured at all. A client with no
// configured operator set (single-enclave deployments) skips this check.
func (cs ClientState) validateThreshold() error {
	if len(cs.Operators) == 0 {
		return nil
	}
	if cs.ThresholdDenominator == 0 || cs.ThresholdNumerator == 0 || cs.ThresholdNumerator > cs.ThresholdDenominator {
		return ErrInvalidThreshold
	}
	return nil
}

// ConsensusState is the per-height commitment-root summary an outer LCP
// client stores: just enough to bind future VerifyMembership/
// VerifyNonMembership calls and UpdateClient chaining to a concrete prior
// state, without holding the state itself (spec invariant 2/3).
type ConsensusState struct {
	StateID   lcptypes.StateID
	Timestamp lcptypes.Time
}

// RAResult is the caller-supplied outcome of one of the three RA flavors
// (IAS, DCAP, zkDCAP) from pkg/attestation, reduced to exactly the fields
// RegisterEnclaveKey needs to validate. Keeping this package decoupled from
// pkg/attestation's concrete types avoids coupling the relying-party-facing
// registry to the enclave-facing RA plumbing; a caller (cmd/lcpd) is
// expected to translate an ias.SignedReport / dcap.VerifiedOutput /
// zkdcap.Commit into an RAResult before calling RegisterEnclaveKey.
type RAResult struct {
	EnclaveAddress    lcptypes.Address
	OperatorAddress   lcptypes.Address
	MrEnclave         [32]byte
	AttestationTime   time.Time
	QuoteStatus       string
	AdvisoryIDs       []string
	ReportDataVersion byte
}

// clientRecord is the registry's internal per-client-id bundle: the
// ClientState plus every consensus state and enclave key expiry recorded
// against it so far.
type clientRecord struct {
	state           ClientState
	consensusStates map[lcptypes.Height]ConsensusState
	enclaveKeys     map[lcptypes.Address]time.Time
}

func newClientRecord(state ClientState) *clientRecord {
	return &clientRecord{
		state:           state,
		consensusStates: make(map[lcptypes.Height]ConsensusState),
		enclaveKeys:     make(map[lcptypes.Address]time.Time),
	}
}

func (r *clientRecord) isActiveKey(addr lcptypes.Address, now time.Time) bool {
	expiredAt, ok := r.enclaveKeys[addr]
	if !ok {
		return false
	}
	return expiredAt.After(now)
}

func (r *clientRecord) isAllowedStatus(status string) bool {
	if status == quoteStatusOK {
		return true
	}
	for _, s := range r.state.AllowedQuoteStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// quoteStatusOK is the IAS/DCAP status string meaning "no caveats", per
// spec §4.7. When the quote status is anything else, the caller must also
// be allow-listed for every advisory id the RA flagged.
const quoteStatusOK = "OK"
