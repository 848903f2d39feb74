package lcpclient

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sbx-labs/lcp-enclave/pkg/commitment"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// Client is the outer LCP client registry: one process-wide instance tracks
// every client id a relying party has initialised, each with its own
// ClientState, consensus-state history and enclave-key expiry table.
type Client struct {
	mu      sync.RWMutex
	clients map[lcptypes.ClientID]*clientRecord

	logger *log.Logger
}

// NewClient constructs an empty Client registry. A nil logger falls back to
// the standard logger, matching the rest of this repo's service
// constructors.
func NewClient(logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[LCPClient] ", log.LstdFlags)
	}
	return &Client{clients: make(map[lcptypes.ClientID]*clientRecord), logger: logger}
}

// InitClient registers a new client id with its initial ClientState and
// first ConsensusState, stored at state.LatestHeight.
func (c *Client) InitClient(id lcptypes.ClientID, state ClientState, cons ConsensusState) error {
	if err := state.validateThreshold(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.clients[id]; exists {
		return fmt.Errorf("%w: %s", ErrClientAlreadyExists, id)
	}
	rec := newClientRecord(state)
	rec.consensusStates[state.LatestHeight] = cons
	c.clients[id] = rec
	return nil
}

func (c *Client) record(id lcptypes.ClientID) (*clientRecord, error) {
	rec, ok := c.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	return rec, nil
}

// ClientState returns a copy of id's current state.
func (c *Client) ClientState(id lcptypes.ClientID) (ClientState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, err := c.record(id)
	if err != nil {
		return ClientState{}, err
	}
	return rec.state, nil
}

// ConsensusStateAt returns the consensus state id stored for id at height.
func (c *Client) ConsensusStateAt(id lcptypes.ClientID, height lcptypes.Height) (ConsensusState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, err := c.record(id)
	if err != nil {
		return ConsensusState{}, err
	}
	cons, ok := rec.consensusStates[height]
	if !ok {
		return ConsensusState{}, fmt.Errorf("%w: %s at %s", ErrConsensusStateNotFound, id, height)
	}
	return cons, nil
}

// IsActiveKey reports whether addr is a currently non-expired enclave key
// for client id.
func (c *Client) IsActiveKey(id lcptypes.ClientID, addr lcptypes.Address, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, err := c.record(id)
	if err != nil {
		return false
	}
	return rec.isActiveKey(addr, now)
}

// RegisterEnclaveKey implements spec §4.8's RegisterEnclaveKey message:
// validate an RA result against the client's configured mrenclave and
// status/advisory allow-lists, then record the enclave address's expiry as
// attestation_time + key_expiration. Re-registering the same address with
// the RA result it was already registered under is a no-op (idempotent,
// matching siburu-lcp-go's registerEnclaveKey); re-registering it with a
// different expiry is rejected.
func (c *Client) RegisterEnclaveKey(id lcptypes.ClientID, ra RAResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.record(id)
	if err != nil {
		return err
	}

	if rec.state.MrEnclave != ra.MrEnclave {
		return fmt.Errorf("%w: client=%x ra=%x", ErrMrEnclaveMismatch, rec.state.MrEnclave, ra.MrEnclave)
	}

	if ra.QuoteStatus == quoteStatusOK {
		if len(ra.AdvisoryIDs) != 0 {
			return fmt.Errorf("%w: status OK must carry no advisories, got %v", ErrDisallowedAdvisoryIDs, ra.AdvisoryIDs)
		}
	} else {
		if !rec.isAllowedStatus(ra.QuoteStatus) {
			return fmt.Errorf("%w: %s", ErrDisallowedQuoteStatus, ra.QuoteStatus)
		}
		if !isAllowedAdvisoryIDs(rec.state.AllowedAdvisoryIDs, ra.AdvisoryIDs) {
			return fmt.Errorf("%w: %v", ErrDisallowedAdvisoryIDs, ra.AdvisoryIDs)
		}
	}

	expiredAt := ra.AttestationTime.Add(rec.state.KeyExpiration)
	if existing, ok := rec.enclaveKeys[ra.EnclaveAddress]; ok {
		if !existing.Equal(expiredAt) {
			return fmt.Errorf("%w: %s: existing=%s new=%s", ErrEnclaveKeyAlreadyRegistered, ra.EnclaveAddress, existing, expiredAt)
		}
		return nil
	}
	rec.enclaveKeys[ra.EnclaveAddress] = expiredAt
	return nil
}

// isAllowedAdvisoryIDs reports whether every id in advIDs is present in
// allowed, using a thread-unsafe set since the caller already holds c.mu
// (mirrors siburu-lcp-go's isAllowedAdvisoryIDs, built on the same
// golang-set/v2 package).
func isAllowedAdvisoryIDs(allowed, advIDs []string) bool {
	if len(advIDs) == 0 {
		return true
	}
	set := mapset.NewThreadUnsafeSet(allowed...)
	return set.Contains(advIDs...)
}

// verifySignerAndDecode verifies proof's signature recovers its claimed
// signer, that the client is not frozen, and that the signer is currently
// an active enclave key for id, then decodes and returns the ProxyMessage.
// Callers must hold c.mu (read or write) for the duration of rec's use.
func (c *Client) verifySignerAndDecode(id lcptypes.ClientID, proof lcptypes.CommitmentProof, now time.Time) (*clientRecord, lcptypes.ProxyMessage, error) {
	rec, err := c.record(id)
	if err != nil {
		return nil, lcptypes.ProxyMessage{}, err
	}
	if rec.state.Frozen {
		return nil, lcptypes.ProxyMessage{}, fmt.Errorf("%w: %s", ErrClientFrozen, id)
	}

	msg, err := commitment.Verify(proof)
	if err != nil {
		return nil, lcptypes.ProxyMessage{}, err
	}

	if !rec.isActiveKey(proof.Signer, now) {
		return nil, lcptypes.ProxyMessage{}, fmt.Errorf("%w: %s", ErrInactiveSigner, proof.Signer)
	}

	return rec, msg, nil
}

// UpdateClient implements spec §4.8's UpdateClient message: proof must wrap
// either an UpdateState or a Misbehaviour ProxyMessage, signed by a
// currently active enclave key. UpdateState advances the client's latest
// height and records a new consensus state after checking prev-state
// chaining; Misbehaviour freezes the client.
func (c *Client) UpdateClient(id lcptypes.ClientID, proof lcptypes.CommitmentProof, now time.Time) (lcptypes.ProxyMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, msg, err := c.verifySignerAndDecode(id, proof, now)
	if err != nil {
		return lcptypes.ProxyMessage{}, err
	}

	switch msg.Kind {
	case lcptypes.ProxyMessageKindUpdateState:
		us := msg.UpdateState
		if err := rec.verifyUpdateStateChaining(*us); err != nil {
			return lcptypes.ProxyMessage{}, err
		}
		if err := us.Context.Validate(lcptypes.NewTime(now.UnixNano())); err != nil {
			return lcptypes.ProxyMessage{}, err
		}
		if rec.state.LatestHeight.LT(us.PostHeight) {
			rec.state.LatestHeight = us.PostHeight
		}
		rec.consensusStates[us.PostHeight] = ConsensusState{StateID: us.PostStateID, Timestamp: us.Timestamp}
		return msg, nil

	case lcptypes.ProxyMessageKindMisbehaviour:
		mb := msg.Misbehaviour
		if err := mb.Context.Validate(lcptypes.NewTime(now.UnixNano())); err != nil {
			return lcptypes.ProxyMessage{}, err
		}
		for _, ps := range mb.PrevStates {
			stored, ok := rec.consensusStates[ps.Height]
			if ok && !stored.StateID.Equal(ps.StateID) {
				return lcptypes.ProxyMessage{}, fmt.Errorf("%w: height %s", ErrStateIDMismatch, ps.Height)
			}
		}
		rec.state.Frozen = true
		return msg, nil

	default:
		return lcptypes.ProxyMessage{}, fmt.Errorf("%w: %s", ErrUnexpectedProxyMessageKind, msg.Kind)
	}
}

// verifyUpdateStateChaining checks us against r's recorded head, per
// siburu-lcp-go's verifyUpdateClient: an UpdateState without a previous
// height/state id must emit at least one new state; otherwise us must name
// a previous height/state id this registry actually has on record.
func (r *clientRecord) verifyUpdateStateChaining(us lcptypes.UpdateState) error {
	if !us.HasPrevState {
		if len(us.EmittedStates) == 0 {
			return ErrMissingEmittedStates
		}
		return nil
	}
	prev, ok := r.consensusStates[us.PrevHeight]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConsensusStateNotFound, us.PrevHeight)
	}
	if !prev.StateID.Equal(us.PrevStateID) {
		return fmt.Errorf("%w: height %s: expected=%s actual=%s", ErrStateIDMismatch, us.PrevHeight, prev.StateID, us.PrevStateID)
	}
	return nil
}

// VerifyMembership implements spec §4.8's VerifyMembership message: proof
// must wrap a VerifyMembership ProxyMessage signed by an active enclave
// key; its Prefix/Path/Height must match the caller's expectations;
// keccak256(expectedValue) must match the proof's embedded value
// commitment; and its (Height, StateID) must match this registry's
// recorded consensus state at that height. Any mismatch is rejected here —
// callers never need to re-check the proof themselves.
func (c *Client) VerifyMembership(id lcptypes.ClientID, proof lcptypes.CommitmentProof, expectedPrefix []byte, expectedPath string, expectedValue []byte, now time.Time) (lcptypes.VerifyMembership, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, msg, err := c.verifySignerAndDecode(id, proof, now)
	if err != nil {
		return lcptypes.VerifyMembership{}, err
	}
	if msg.Kind != lcptypes.ProxyMessageKindVerifyMembership || msg.VerifyMembership == nil {
		return lcptypes.VerifyMembership{}, fmt.Errorf("%w: %s", ErrUnexpectedProxyMessageKind, msg.Kind)
	}
	vm := *msg.VerifyMembership

	if !bytes.Equal(vm.Prefix, expectedPrefix) {
		return lcptypes.VerifyMembership{}, fmt.Errorf("%w: expected=%x actual=%x", ErrPrefixMismatch, expectedPrefix, vm.Prefix)
	}
	if vm.Path != expectedPath {
		return lcptypes.VerifyMembership{}, fmt.Errorf("%w: expected=%s actual=%s", ErrPathMismatch, expectedPath, vm.Path)
	}
	expectedHash := crypto.Keccak256Hash(expectedValue)
	if !vm.HasValue || [32]byte(expectedHash) != vm.Value {
		return lcptypes.VerifyMembership{}, fmt.Errorf("%w: expected=%x actual=%x", ErrValueMismatch, expectedHash, vm.Value)
	}

	stored, ok := rec.consensusStates[vm.Height]
	if !ok {
		return lcptypes.VerifyMembership{}, fmt.Errorf("%w: %s", ErrConsensusStateNotFound, vm.Height)
	}
	if !stored.StateID.Equal(vm.StateID) {
		return lcptypes.VerifyMembership{}, fmt.Errorf("%w: height %s", ErrStateIDMismatch, vm.Height)
	}
	return vm, nil
}

// VerifyNonMembership implements spec §4.8's VerifyNonMembership message,
// mirroring VerifyMembership but for the absence proof variant: no value to
// hash, but Prefix/Path still must match the caller's expectations.
func (c *Client) VerifyNonMembership(id lcptypes.ClientID, proof lcptypes.CommitmentProof, expectedPrefix []byte, expectedPath string, now time.Time) (lcptypes.VerifyNonMembership, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, msg, err := c.verifySignerAndDecode(id, proof, now)
	if err != nil {
		return lcptypes.VerifyNonMembership{}, err
	}
	if msg.Kind != lcptypes.ProxyMessageKindVerifyNonMembership || msg.VerifyNonMembership == nil {
		return lcptypes.VerifyNonMembership{}, fmt.Errorf("%w: %s", ErrUnexpectedProxyMessageKind, msg.Kind)
	}
	vn := *msg.VerifyNonMembership

	if !bytes.Equal(vn.Prefix, expectedPrefix) {
		return lcptypes.VerifyNonMembership{}, fmt.Errorf("%w: expected=%x actual=%x", ErrPrefixMismatch, expectedPrefix, vn.Prefix)
	}
	if vn.Path != expectedPath {
		return lcptypes.VerifyNonMembership{}, fmt.Errorf("%w: expected=%s actual=%s", ErrPathMismatch, expectedPath, vn.Path)
	}

	stored, ok := rec.consensusStates[vn.Height]
	if !ok {
		return lcptypes.VerifyNonMembership{}, fmt.Errorf("%w: %s", ErrConsensusStateNotFound, vn.Height)
	}
	if !stored.StateID.Equal(vn.StateID) {
		return lcptypes.VerifyNonMembership{}, fmt.Errorf("%w: height %s", ErrStateIDMismatch, vn.Height)
	}
	return vn, nil
}
