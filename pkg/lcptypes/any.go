// Copyright 2025 Certen Protocol

package lcptypes

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Any is a self-describing envelope used for polymorphic client-state,
// consensus-state, header and misbehaviour payloads. Implementations own
// the interpretation of Value; the ELC engine and commitment layer only
// ever move Any values around by (TypeURL, Value) identity.
type Any struct {
	TypeURL string
	Value   []byte
}

// NewAny constructs an Any envelope.
func NewAny(typeURL string, value []byte) Any {
	return Any{TypeURL: typeURL, Value: value}
}

// IsEmpty reports whether a is the zero value.
func (a Any) IsEmpty() bool {
	return a.TypeURL == "" && len(a.Value) == 0
}

// Equal reports byte-for-byte equality of two Any envelopes.
func (a Any) Equal(other Any) bool {
	return a.TypeURL == other.TypeURL && bytes.Equal(a.Value, other.Value)
}

// ErrShortAnyEncoding is returned by DecodeAny when the input is too
// short to contain a length-prefixed Any pair.
var ErrShortAnyEncoding = errors.New("lcptypes: short Any encoding")

// EncodeAny produces the stable, length-prefixed wire encoding used by the
// store layer to persist client-state and consensus-state Any values:
//
//	uint32(len(type_url)) || type_url || uint32(len(value)) || value
func EncodeAny(a Any) []byte {
	buf := make([]byte, 0, 8+len(a.TypeURL)+len(a.Value))
	var lenBuf [4]byte

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(a.TypeURL)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, a.TypeURL...)

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(a.Value)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, a.Value...)

	return buf
}

// DecodeAny parses the encoding produced by EncodeAny.
func DecodeAny(b []byte) (Any, error) {
	if len(b) < 4 {
		return Any{}, ErrShortAnyEncoding
	}
	urlLen := binary.BigEndian.Uint32(b[0:4])
	b = b[4:]
	if uint64(len(b)) < uint64(urlLen)+4 {
		return Any{}, ErrShortAnyEncoding
	}
	typeURL := string(b[:urlLen])
	b = b[urlLen:]

	valLen := binary.BigEndian.Uint32(b[0:4])
	b = b[4:]
	if uint64(len(b)) < uint64(valLen) {
		return Any{}, ErrShortAnyEncoding
	}
	value := append([]byte(nil), b[:valLen]...)

	return Any{TypeURL: typeURL, Value: value}, nil
}

// EncodeAnyPair encodes a (client_state, consensus_state) pair as the
// concatenation of their individual length-prefixed encodings. This is the
// exact byte string StateID hashes, so two verifiers that load
// byte-identical Any pairs always compute the same StateID (spec invariant 2/3).
func EncodeAnyPair(clientState, consensusState Any) []byte {
	return append(EncodeAny(clientState), EncodeAny(consensusState)...)
}
