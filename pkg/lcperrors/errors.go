// Copyright 2025 Certen Protocol
//
// Package lcperrors gives the outer-facing parts of this daemon (cmd/lcpd's
// HTTP layer, pkg/auditlog's RecordError) a single short "kind" tag for any
// error produced by the layered packages below, per spec §7's requirement
// that the outer service "returns structured errors with a short kind tag
// and a formatted cause chain." Each layer keeps defining its own sentinel
// errors in the teacher's pkg/ledger/errors.go idiom (a package-level var
// block of errors.New values); this package only adds a Classify step on
// top that maps a sentinel to its Kind via errors.Is, so callers at the
// boundary don't need to import every inner package just to branch on
// error identity.
package lcperrors

import (
	"errors"
	"fmt"

	"github.com/sbx-labs/lcp-enclave/pkg/attestation/dcap"
	"github.com/sbx-labs/lcp-enclave/pkg/attestation/ias"
	"github.com/sbx-labs/lcp-enclave/pkg/attestation/zkdcap"
	"github.com/sbx-labs/lcp-enclave/pkg/commitment"
	"github.com/sbx-labs/lcp-enclave/pkg/ecrypto"
	"github.com/sbx-labs/lcp-enclave/pkg/elc"
	"github.com/sbx-labs/lcp-enclave/pkg/kvstore"
	"github.com/sbx-labs/lcp-enclave/pkg/lcpclient"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient"
	"github.com/sbx-labs/lcp-enclave/pkg/store"
)

// Kind groups every sentinel error this daemon can produce into the
// layer-grouped taxonomy spec §7 enumerates.
type Kind string

const (
	KindUnknown Kind = "unknown"

	// Crypto (L0).
	KindInvalidSignatureLength Kind = "invalid_signature_length"
	KindUnexpectedSigner       Kind = "unexpected_signer"
	KindInvalidAddressLength   Kind = "invalid_address_length"
	KindNopSigner              Kind = "nop_signer"

	// Store (L1).
	KindTxIDNotFound         Kind = "tx_id_not_found"
	KindInvalidUpdateKeyLen  Kind = "invalid_update_key_length"
	KindCommitTx             Kind = "commit_tx"
	KindWaitMutex            Kind = "wait_mutex"

	// ELC / light client (L3/L4).
	KindClientTypeNotFound      Kind = "client_type_not_found"
	KindClientStateNotFound     Kind = "client_state_not_found"
	KindConsensusStateNotFound  Kind = "consensus_state_not_found"
	KindClientFrozen            Kind = "client_frozen"
	KindHeaderVerificationFail  Kind = "header_verification_failure"
	KindOutOfTrustingPeriod     Kind = "out_of_trusting_period"
	KindHeaderFromFuture        Kind = "header_from_future"
	KindUnexpectedClientType    Kind = "unexpected_client_type"

	// Commitment (L5).
	KindInvalidCommitmentHeader   Kind = "invalid_commitment_header"
	KindInvalidABI                Kind = "invalid_abi"
	KindUnexpectedMessageType     Kind = "unexpected_message_type"
	KindInvalidStateIDLength      Kind = "invalid_state_id_length"
	KindInvalidOptionalBytesLen   Kind = "invalid_optional_bytes_length"

	// Attestation (L6).
	KindTooOldReportTimestamp    Kind = "too_old_report_timestamp"
	KindUnexpectedIASResponse    Kind = "unexpected_ias_report_response"
	KindInvalidHTTPStatus        Kind = "invalid_http_status"
	KindSGXError                 Kind = "sgx_error"
	KindMrEnclaveMismatch        Kind = "mr_enclave_mismatch"
	KindExpiredAVR               Kind = "expired_avr"
	KindUnexpectedQEType         Kind = "unexpected_qe_type"
	KindUnexpectedReportDataVers Kind = "unexpected_report_data_version"
	KindInvalidZkVMProof         Kind = "invalid_zkvm_proof"

	// Outer client (L7).
	KindClientNotFound           Kind = "client_not_found"
	KindClientAlreadyExists      Kind = "client_already_exists"
	KindDisallowedQuoteStatus    Kind = "disallowed_quote_status"
	KindDisallowedAdvisoryIDs    Kind = "disallowed_advisory_ids"
	KindEnclaveKeyAlreadyExists  Kind = "enclave_key_already_registered"
	KindInactiveSigner           Kind = "inactive_signer"
	KindStateIDMismatch          Kind = "state_id_mismatch"
	KindInvalidThreshold         Kind = "invalid_threshold"
	KindPrefixMismatch           Kind = "prefix_mismatch"
	KindPathMismatch             Kind = "path_mismatch"
	KindValueMismatch            Kind = "value_mismatch"
)

// Error is the structured error type callers at the daemon's outer
// boundary should format and return to clients: a short Kind tag plus the
// original cause, so %w-unwrapping still reaches the sentinel.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Classify wraps err in an *Error carrying the Kind matched by the first
// known sentinel errors.Is finds in err's chain. An err that matches no
// known sentinel is wrapped as KindUnknown so cmd/lcpd can still return a
// structured response for it.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if existing := new(Error); errors.As(err, &existing) {
		return existing
	}
	for _, m := range matchers {
		if errors.Is(err, m.sentinel) {
			return &Error{Kind: m.kind, Cause: err}
		}
	}
	return &Error{Kind: KindUnknown, Cause: err}
}

type matcher struct {
	sentinel error
	kind     Kind
}

var matchers = []matcher{
	{ecrypto.ErrInvalidSignatureLength, KindInvalidSignatureLength},
	{ecrypto.ErrUnexpectedSigner, KindUnexpectedSigner},
	{ecrypto.ErrNopSigner, KindNopSigner},

	{kvstore.ErrTxIDNotFound, KindTxIDNotFound},
	{kvstore.ErrInvalidUpdateKeyLength, KindInvalidUpdateKeyLen},
	{kvstore.ErrCommitTx, KindCommitTx},
	{kvstore.ErrWaitMutex, KindWaitMutex},

	{elc.ErrLightClient, KindHeaderVerificationFail},

	{lcptypes.ErrOutOfTrustingPeriod, KindOutOfTrustingPeriod},
	{lcptypes.ErrHeaderFromFuture, KindHeaderFromFuture},
	{lcptypes.ErrUnexpectedMessageType, KindUnexpectedMessageType},

	{commitment.ErrInvalidCommitmentHeader, KindInvalidCommitmentHeader},
	{commitment.ErrInvalidAbi, KindInvalidABI},
	{commitment.ErrUnexpectedMessageType, KindUnexpectedMessageType},
	{commitment.ErrInvalidStateIDLength, KindInvalidStateIDLength},
	{commitment.ErrInvalidOptionalBytesLength, KindInvalidOptionalBytesLen},

	{ias.ErrTooOldReportTimestamp, KindTooOldReportTimestamp},
	{ias.ErrUnexpectedIASResponse, KindUnexpectedIASResponse},
	{ias.ErrInvalidHTTPStatus, KindInvalidHTTPStatus},
	{ias.ErrSGXError, KindSGXError},

	{dcap.ErrSGXError, KindSGXError},
	{dcap.ErrUnexpectedQEType, KindUnexpectedQEType},

	{zkdcap.ErrInvalidZkVMProof, KindInvalidZkVMProof},

	{lcpclient.ErrClientNotFound, KindClientNotFound},
	{lcpclient.ErrClientAlreadyExists, KindClientAlreadyExists},
	{lcpclient.ErrClientFrozen, KindClientFrozen},
	{lcpclient.ErrMrEnclaveMismatch, KindMrEnclaveMismatch},
	{lcpclient.ErrDisallowedQuoteStatus, KindDisallowedQuoteStatus},
	{lcpclient.ErrDisallowedAdvisoryIDs, KindDisallowedAdvisoryIDs},
	{lcpclient.ErrEnclaveKeyAlreadyRegistered, KindEnclaveKeyAlreadyExists},
	{lcpclient.ErrInactiveSigner, KindInactiveSigner},
	{lcpclient.ErrStateIDMismatch, KindStateIDMismatch},
	{lcpclient.ErrConsensusStateNotFound, KindConsensusStateNotFound},
	{lcpclient.ErrInvalidThreshold, KindInvalidThreshold},
	{lcpclient.ErrPrefixMismatch, KindPrefixMismatch},
	{lcpclient.ErrPathMismatch, KindPathMismatch},
	{lcpclient.ErrValueMismatch, KindValueMismatch},

	{store.ErrClientStateNotFound, KindClientStateNotFound},
	{store.ErrClientTypeNotFound, KindClientTypeNotFound},
	{lightclient.ErrUnexpectedClientType, KindUnexpectedClientType},
}
