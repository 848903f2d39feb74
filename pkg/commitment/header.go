package commitment

import (
	"encoding/binary"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// HeaderLength is the fixed size of the envelope header prefixing every
// encoded ProxyMessage (spec §4.6).
const HeaderLength = 32

// SchemaVersion is the only header version this codec currently emits or
// accepts.
const SchemaVersion uint16 = 1

// encodeHeader writes the 32-byte header: bytes [0:2] schema version,
// bytes [2:4] message type, bytes [4:32] reserved zero.
func encodeHeader(kind lcptypes.ProxyMessageKind) [HeaderLength]byte {
	var h [HeaderLength]byte
	binary.BigEndian.PutUint16(h[0:2], SchemaVersion)
	binary.BigEndian.PutUint16(h[2:4], uint16(kind))
	return h
}

// decodeHeader parses and validates a header produced by encodeHeader.
func decodeHeader(b []byte) (lcptypes.ProxyMessageKind, error) {
	if len(b) < HeaderLength {
		return 0, ErrInvalidCommitmentHeader
	}
	version := binary.BigEndian.Uint16(b[0:2])
	if version != SchemaVersion {
		return 0, ErrInvalidCommitmentHeader
	}
	kind := lcptypes.ProxyMessageKind(binary.BigEndian.Uint16(b[2:4]))
	switch kind {
	case lcptypes.ProxyMessageKindUpdateState,
		lcptypes.ProxyMessageKindMisbehaviour,
		lcptypes.ProxyMessageKindVerifyMembership,
		lcptypes.ProxyMessageKindVerifyNonMembership:
	default:
		return 0, ErrInvalidCommitmentHeader
	}
	for _, z := range b[4:HeaderLength] {
		if z != 0 {
			return 0, ErrInvalidCommitmentHeader
		}
	}
	return kind, nil
}
