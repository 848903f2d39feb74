package commitment

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// validationContextBodyLength is the fixed size of a WithinTrustingPeriod
// context body: four big-endian int64 fields (trusting period nanos, clock
// drift nanos, untrusted header timestamp, trusted state timestamp).
const validationContextBodyLength = 32

// EncodeValidationContext encodes c as the nested (header_32, context_body)
// pair spec §4.6 describes for ValidationContext fields embedded in
// UpdateState/Misbehaviour bodies. The context kind occupies the header's
// first two bytes; the rest of the header is reserved zero.
func EncodeValidationContext(c lcptypes.ValidationContext) ([]byte, error) {
	var header [32]byte
	binary.BigEndian.PutUint16(header[0:2], uint16(c.Kind))

	var body []byte
	switch c.Kind {
	case lcptypes.ValidationContextEmpty:
		body = nil
	case lcptypes.ValidationContextWithinTrustingPeriod:
		body = make([]byte, validationContextBodyLength)
		binary.BigEndian.PutUint64(body[0:8], uint64(c.TrustingPeriod.Nanos))
		binary.BigEndian.PutUint64(body[8:16], uint64(c.ClockDrift.Nanos))
		binary.BigEndian.PutUint64(body[16:24], uint64(c.UntrustedHeaderTimestamp.UnixNano))
		binary.BigEndian.PutUint64(body[24:32], uint64(c.TrustedStateTimestamp.UnixNano))
	default:
		return nil, fmt.Errorf("%w: validation context kind %d", ErrUnexpectedMessageType, c.Kind)
	}

	data, err := validationContextArgs.Pack(validationContextWire{Header: header, Body: body})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	return data, nil
}

// DecodeValidationContext is the inverse of EncodeValidationContext.
func DecodeValidationContext(b []byte) (lcptypes.ValidationContext, error) {
	values, err := validationContextArgs.Unpack(b)
	if err != nil {
		return lcptypes.ValidationContext{}, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	out, ok := abi.ConvertType(values[0], new(validationContextWire)).(*validationContextWire)
	if !ok {
		return lcptypes.ValidationContext{}, ErrInvalidAbi
	}

	kind := lcptypes.ValidationContextKind(binary.BigEndian.Uint16(out.Header[0:2]))
	switch kind {
	case lcptypes.ValidationContextEmpty:
		return lcptypes.EmptyValidationContext(), nil
	case lcptypes.ValidationContextWithinTrustingPeriod:
		if len(out.Body) != validationContextBodyLength {
			return lcptypes.ValidationContext{}, ErrInvalidOptionalBytesLength
		}
		trustingPeriod := lcptypes.Duration{Nanos: int64(binary.BigEndian.Uint64(out.Body[0:8]))}
		clockDrift := lcptypes.Duration{Nanos: int64(binary.BigEndian.Uint64(out.Body[8:16]))}
		untrusted := lcptypes.NewTime(int64(binary.BigEndian.Uint64(out.Body[16:24])))
		trusted := lcptypes.NewTime(int64(binary.BigEndian.Uint64(out.Body[24:32])))
		return lcptypes.NewWithinTrustingPeriodContext(trustingPeriod, clockDrift, untrusted, trusted), nil
	default:
		return lcptypes.ValidationContext{}, fmt.Errorf("%w: validation context kind %d", ErrUnexpectedMessageType, kind)
	}
}
