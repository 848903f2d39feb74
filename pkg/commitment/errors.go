// Copyright 2025 Certen Protocol
//
// Package commitment is the L5 commitment prover and proxy-message codec
// (spec.md §4.6): a deterministic ABI-style tuple encoding of every
// lcptypes.ProxyMessage variant, plus the enclave-key signing step that
// turns an encoded message into a lcptypes.CommitmentProof. Generalized
// from this repo's former RFC8785-canonical-JSON commitment math (see
// DESIGN.md) to the tuple layout spec.md §4.6 requires, grounded on the
// abi.NewType/abi.Arguments/abi.ConvertType idiom used in
// e2e/interchaintestv8/operator/operator.go (cosmos-solidity-ibc-eureka).
package commitment

import "errors"

var (
	// ErrInvalidCommitmentHeader is returned when the 32-byte envelope
	// header is short, carries an unsupported schema version, or names an
	// unknown message type.
	ErrInvalidCommitmentHeader = errors.New("commitment: invalid commitment header")

	// ErrInvalidAbi wraps any failure from the underlying ABI pack/unpack
	// step (malformed or truncated body bytes).
	ErrInvalidAbi = errors.New("commitment: invalid abi encoding")

	// ErrUnexpectedMessageType is returned when Encode is given a
	// ProxyMessage whose Kind does not match its populated variant field.
	ErrUnexpectedMessageType = errors.New("commitment: unexpected message type")

	// ErrInvalidStateIDLength is returned when a decoded bytes32 field
	// cannot be interpreted as a StateID.
	ErrInvalidStateIDLength = errors.New("commitment: invalid state id length")

	// ErrInvalidOptionalBytesLength is returned when a fixed-size byte field
	// (a CommitmentProof signature, a trusting-period ValidationContext body)
	// decodes to an unexpected length.
	ErrInvalidOptionalBytesLength = errors.New("commitment: invalid optional bytes length")
)
