package attestation

import (
	"errors"
	"testing"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

func TestReportDataRoundTrip(t *testing.T) {
	var enclaveAddr, operatorAddr lcptypes.Address
	enclaveAddr[0] = 0xAA
	operatorAddr[0] = 0xBB

	rd := NewReportData(enclaveAddr, operatorAddr)
	if err := rd.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if rd.Version() != ReportDataV1 {
		t.Fatalf("Version() = %d, want %d", rd.Version(), ReportDataV1)
	}
	if !rd.EnclaveAddress().Equal(enclaveAddr) {
		t.Fatalf("EnclaveAddress() = %x, want %x", rd.EnclaveAddress(), enclaveAddr)
	}
	if !rd.OperatorAddress().Equal(operatorAddr) {
		t.Fatalf("OperatorAddress() = %x, want %x", rd.OperatorAddress(), operatorAddr)
	}

	decoded, err := DecodeReportData(rd.Bytes())
	if err != nil {
		t.Fatalf("DecodeReportData() error = %v", err)
	}
	if decoded != rd {
		t.Fatalf("DecodeReportData() round trip mismatch")
	}
}

func TestReportDataZeroOperator(t *testing.T) {
	var enclaveAddr, zero lcptypes.Address
	enclaveAddr[0] = 0x01
	rd := NewReportData(enclaveAddr, zero)
	if !rd.OperatorAddress().IsZero() {
		t.Fatalf("OperatorAddress() = %x, want zero", rd.OperatorAddress())
	}
}

func TestDecodeReportDataRejectsWrongVersion(t *testing.T) {
	var raw [ReportDataLength]byte
	raw[0] = 2
	if _, err := DecodeReportData(raw[:]); !errors.Is(err, ErrUnexpectedReportDataVersion) {
		t.Fatalf("DecodeReportData() error = %v, want ErrUnexpectedReportDataVersion", err)
	}
}

func TestDecodeReportDataRejectsWrongLength(t *testing.T) {
	if _, err := DecodeReportData(make([]byte, 10)); err == nil {
		t.Fatalf("DecodeReportData() with short input succeeded, want error")
	}
}
