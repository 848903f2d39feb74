package lcpclient

import "errors"

var (
	// ErrClientNotFound is returned when a command names a client id this
	// registry has no ClientState for.
	ErrClientNotFound = errors.New("lcpclient: client not found")

	// ErrClientAlreadyExists is returned by InitClient when called twice for
	// the same client id.
	ErrClientAlreadyExists = errors.New("lcpclient: client already exists")

	// ErrClientFrozen is returned by every verifying command once a client
	// has accepted a Misbehaviour message.
	ErrClientFrozen = errors.New("lcpclient: client is frozen")

	// ErrMrEnclaveMismatch is returned when a RegisterEnclaveKey's RA result
	// names a different mrenclave than the client state was initialised with.
	ErrMrEnclaveMismatch = errors.New("lcpclient: mrenclave mismatch")

	// ErrDisallowedQuoteStatus is returned when an RA result's quote status
	// is neither OK nor present in the client state's allow-list.
	ErrDisallowedQuoteStatus = errors.New("lcpclient: disallowed quote status")

	// ErrDisallowedAdvisoryIDs is returned when an RA result carries an
	// advisory id outside the client state's allow-list.
	ErrDisallowedAdvisoryIDs = errors.New("lcpclient: disallowed advisory ids")

	// ErrEnclaveKeyAlreadyRegistered is returned when a RegisterEnclaveKey
	// call names an address that is already registered with a different
	// expiry than the one this call would produce.
	ErrEnclaveKeyAlreadyRegistered = errors.New("lcpclient: enclave key already registered")

	// ErrInactiveSigner is returned when a CommitmentProof's signer is not a
	// currently-active enclave key for the client.
	ErrInactiveSigner = errors.New("lcpclient: signer is not an active enclave key")

	// ErrUnexpectedProxyMessageKind is returned when a command receives a
	// CommitmentProof wrapping a ProxyMessage variant it does not expect.
	ErrUnexpectedProxyMessageKind = errors.New("lcpclient: unexpected proxy message kind")

	// ErrMissingEmittedStates is returned by UpdateClient when an UpdateState
	// without a previous height/state id carries no EmittedStates.
	ErrMissingEmittedStates = errors.New("lcpclient: first update must emit states")

	// ErrMissingPrevState names an UpdateState that carries no previous
	// height/state id. UpdateClient does not return it: such an UpdateState
	// is accepted whenever it carries EmittedStates.
	ErrMissingPrevState = errors.New("lcpclient: update missing previous state")

	// ErrStateIDMismatch is returned when a message's claimed previous
	// state id, or a verify command's claimed state id, does not match the
	// consensus state this registry already stores at that height.
	ErrStateIDMismatch = errors.New("lcpclient: state id mismatch")

	// ErrConsensusStateNotFound is returned when a command names a height
	// this client has no stored consensus state for.
	ErrConsensusStateNotFound = errors.New("lcpclient: consensus state not found")

	// ErrInvalidThreshold is returned by InitClient when the supplied
	// operator threshold is not a satisfiable fraction of len(Operators).
	ErrInvalidThreshold = errors.New("lcpclient: invalid operator threshold")

	// ErrPrefixMismatch is returned when a VerifyMembership/VerifyNonMembership
	// proof's Prefix does not match the caller's expected prefix.
	ErrPrefixMismatch = errors.New("lcpclient: commitment prefix mismatch")

	// ErrPathMismatch is returned when a VerifyMembership/VerifyNonMembership
	// proof's Path does not match the caller's expected path.
	ErrPathMismatch = errors.New("lcpclient: commitment path mismatch")

	// ErrValueMismatch is returned when a VerifyMembership proof's committed
	// value hash does not match keccak256 of the caller's expected value.
	ErrValueMismatch = errors.New("lcpclient: commitment value mismatch")
)
