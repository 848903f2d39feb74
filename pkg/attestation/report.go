// Copyright 2025 Certen Protocol
//
// Report data construction for enclave remote attestation.
//
// Per the Light Client Proxy attestation scheme, every RA flavor (IAS, DCAP,
// zkDCAP) binds the same fixed 64-byte payload into its hardware report. The
// payload commits the enclave signing key's address (and, optionally, an
// operator address) so that a relying party can tie a verified quote back to
// a specific secp256k1 signer.

package attestation

import (
	"fmt"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// ReportDataLength is the fixed size of the report-data payload embedded in
// every attestation quote.
const ReportDataLength = 64

// ReportDataV1 is the only report-data version currently produced or accepted.
const ReportDataV1 byte = 1

// ReportData is the 64-byte payload bound into a hardware attestation report.
//
// Layout: [0] version | [1:21] enclave key address | [21:41] operator
// address (zero if unset) | [41:64] reserved, zero.
type ReportData [ReportDataLength]byte

// ErrUnexpectedReportDataVersion is returned when the leading version byte of
// a decoded report-data payload is not ReportDataV1.
var ErrUnexpectedReportDataVersion = fmt.Errorf("attestation: unexpected report data version")

// NewReportData builds a report-data payload for the given enclave key
// address and optional operator address.
func NewReportData(enclaveAddr lcptypes.Address, operatorAddr lcptypes.Address) ReportData {
	var rd ReportData
	rd[0] = ReportDataV1
	copy(rd[1:21], enclaveAddr[:])
	if !operatorAddr.IsZero() {
		copy(rd[21:41], operatorAddr[:])
	}
	return rd
}

// Version returns the leading version byte.
func (rd ReportData) Version() byte {
	return rd[0]
}

// EnclaveAddress extracts the enclave key address embedded at offset 1.
func (rd ReportData) EnclaveAddress() lcptypes.Address {
	var addr lcptypes.Address
	copy(addr[:], rd[1:21])
	return addr
}

// OperatorAddress extracts the operator address embedded at offset 21; it is
// the zero address when no operator was set.
func (rd ReportData) OperatorAddress() lcptypes.Address {
	var addr lcptypes.Address
	copy(addr[:], rd[21:41])
	return addr
}

// Validate checks that rd carries the expected version byte.
func (rd ReportData) Validate() error {
	if rd.Version() != ReportDataV1 {
		return fmt.Errorf("%w: got %d", ErrUnexpectedReportDataVersion, rd.Version())
	}
	return nil
}

// Bytes returns the payload as a plain byte slice.
func (rd ReportData) Bytes() []byte {
	return rd[:]
}

// DecodeReportData parses a 64-byte slice into a ReportData, validating its
// length and version.
func DecodeReportData(b []byte) (ReportData, error) {
	var rd ReportData
	if len(b) != ReportDataLength {
		return rd, fmt.Errorf("attestation: invalid report data length: got %d, want %d", len(b), ReportDataLength)
	}
	copy(rd[:], b)
	if err := rd.Validate(); err != nil {
		return rd, err
	}
	return rd, nil
}
