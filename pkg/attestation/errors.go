// Copyright 2025 Certen Protocol

package attestation

import "errors"

// Sentinel errors for the attestation layer, grouped by the RA flavor that
// raises them. Wrapped with fmt.Errorf("%w: ...") at the call site so callers
// can still errors.Is against the base kind.
var (
	ErrTooOldReportTimestamp = errors.New("attestation: report timestamp too old")
	ErrUnexpectedIASResponse = errors.New("attestation: unexpected IAS report response")
	ErrInvalidHTTPStatus     = errors.New("attestation: invalid HTTP status")
	ErrSGXError              = errors.New("attestation: SGX error")
	ErrMrEnclaveMismatch     = errors.New("attestation: mr_enclave mismatch")
	ErrExpiredAVR            = errors.New("attestation: attestation verification report expired")
	ErrUnexpectedQEType      = errors.New("attestation: unexpected quoting enclave type")
	ErrInvalidZkVMProof      = errors.New("attestation: invalid zkVM proof")
	ErrUnknownRAType         = errors.New("attestation: unknown remote attestation type")
	ErrKeyNotFound           = errors.New("attestation: enclave key not found")
	ErrKeyAlreadyRegistered  = errors.New("attestation: enclave key already registered")
)
