// Copyright 2025 Certen Protocol

package lcptypes

import "errors"

// ErrUnexpectedMessageType is returned wherever code expects one variant and
// receives another (e.g. ValidationContext.Validate on a context of unknown
// kind).
var ErrUnexpectedMessageType = errors.New("lcptypes: unexpected message type")

// HeightAny pairs a Height with an Any-encoded client or consensus state,
// used by UpdateState.EmittedStates.
type HeightAny struct {
	Height Height
	State  Any
}

// HeightStateID pairs a Height with a StateID, used by Misbehaviour.PrevStates.
type HeightStateID struct {
	Height  Height
	StateID StateID
}

// ProxyMessageKind discriminates the ProxyMessage sum type.
type ProxyMessageKind uint8

const (
	ProxyMessageKindUpdateState ProxyMessageKind = iota + 1
	ProxyMessageKindMisbehaviour
	ProxyMessageKindVerifyMembership
	ProxyMessageKindVerifyNonMembership
)

// String renders the kind's name for error messages and logging.
func (k ProxyMessageKind) String() string {
	switch k {
	case ProxyMessageKindUpdateState:
		return "UpdateState"
	case ProxyMessageKindMisbehaviour:
		return "Misbehaviour"
	case ProxyMessageKindVerifyMembership:
		return "VerifyMembership"
	case ProxyMessageKindVerifyNonMembership:
		return "VerifyNonMembership"
	default:
		return "Unknown"
	}
}

// UpdateState is the ProxyMessage variant emitted by a successful
// UpdateClient. PrevHeight/PrevStateID are absent (zero) exactly when the
// client had no prior consensus state, i.e. this is the client's first
// update.
type UpdateState struct {
	PrevHeight    Height
	PrevStateID   StateID
	HasPrevState  bool
	PostHeight    Height
	PostStateID   StateID
	Timestamp     Time
	Context       ValidationContext
	EmittedStates []HeightAny
}

// Misbehaviour is the ProxyMessage variant produced when the ELC detects
// conflicting headers or other protocol violations for a client; accepting
// it freezes the client.
type Misbehaviour struct {
	PrevStates    []HeightStateID
	Context       ValidationContext
	ClientMessage Any
}

// VerifyMembership is the ProxyMessage variant attesting that a key at Path
// holds Value in the commitment root at (Height, StateID).
type VerifyMembership struct {
	Prefix   []byte
	Path     string
	Value    [32]byte
	HasValue bool
	Height   Height
	StateID  StateID
}

// VerifyNonMembership is the ProxyMessage variant attesting that no value is
// committed under Path in the commitment root at (Height, StateID).
type VerifyNonMembership struct {
	Prefix  []byte
	Path    string
	Height  Height
	StateID StateID
}

// ProxyMessage is the sum type every commitment proof ultimately wraps.
// Exactly one of the typed fields is populated, selected by Kind.
type ProxyMessage struct {
	Kind                ProxyMessageKind
	UpdateState         *UpdateState
	Misbehaviour        *Misbehaviour
	VerifyMembership    *VerifyMembership
	VerifyNonMembership *VerifyNonMembership
}

// ValidationContextKind discriminates the ValidationContext sum type.
type ValidationContextKind uint8

const (
	ValidationContextEmpty ValidationContextKind = iota
	ValidationContextWithinTrustingPeriod
)

// ValidationContext describes the time-based conditions a relying party
// must recheck before accepting a ProxyMessage.
type ValidationContext struct {
	Kind                     ValidationContextKind
	TrustingPeriod           Duration
	ClockDrift               Duration
	UntrustedHeaderTimestamp Time
	TrustedStateTimestamp    Time
}

// EmptyValidationContext returns the no-op validation context.
func EmptyValidationContext() ValidationContext {
	return ValidationContext{Kind: ValidationContextEmpty}
}

// NewWithinTrustingPeriodContext constructs the trusting-period validation context.
func NewWithinTrustingPeriodContext(trustingPeriod, clockDrift Duration, untrustedHeaderTimestamp, trustedStateTimestamp Time) ValidationContext {
	return ValidationContext{
		Kind:                     ValidationContextWithinTrustingPeriod,
		TrustingPeriod:           trustingPeriod,
		ClockDrift:               clockDrift,
		UntrustedHeaderTimestamp: untrustedHeaderTimestamp,
		TrustedStateTimestamp:    trustedStateTimestamp,
	}
}

// ErrOutOfTrustingPeriod is returned by Validate when now is no longer
// within the trusting period of the trusted state.
var ErrOutOfTrustingPeriod = errors.New("lcptypes: out of trusting period")

// ErrHeaderFromFuture is returned by Validate when the untrusted header's
// timestamp is further in the future than the allowed clock drift.
var ErrHeaderFromFuture = errors.New("lcptypes: header from future")

// Validate checks c's time-based conditions against now. Empty contexts
// always succeed.
func (c ValidationContext) Validate(now Time) error {
	switch c.Kind {
	case ValidationContextEmpty:
		return nil
	case ValidationContextWithinTrustingPeriod:
		expiry, err := c.TrustedStateTimestamp.Add(c.TrustingPeriod)
		if err != nil {
			return err
		}
		if !now.Before(expiry) {
			return ErrOutOfTrustingPeriod
		}
		limit, err := now.Add(c.ClockDrift)
		if err != nil {
			return err
		}
		if !c.UntrustedHeaderTimestamp.Before(limit) {
			return ErrHeaderFromFuture
		}
		return nil
	default:
		return ErrUnexpectedMessageType
	}
}

// CommitmentProof is the envelope the commitment prover returns for any
// ProxyMessage: the ABI-encoded message bytes (with their 32-byte header
// prefix), the signer address, and a 65-byte recoverable secp256k1
// signature over those bytes.
type CommitmentProof struct {
	Message   []byte
	Signer    Address
	Signature [65]byte
}
