// Copyright 2025 Certen Protocol

package lcptypes

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the byte length of an Address.
const AddressLength = 20

// StateIDLength is the byte length of a StateID.
const StateIDLength = 32

// ErrInvalidAddressLength is returned when a byte slice of the wrong length
// is used to construct an Address.
var ErrInvalidAddressLength = errors.New("lcptypes: invalid address length")

// ErrInvalidStateIDLength is returned when a byte slice of the wrong length
// is used to construct a StateID.
var ErrInvalidStateIDLength = errors.New("lcptypes: invalid state id length")

// ErrInvalidClientID is returned when a string does not parse as a ClientID
// of the form "<client_type>-<counter>".
var ErrInvalidClientID = errors.New("lcptypes: invalid client id")

// Address is the 20-byte identifier derived as the low 20 bytes of the
// keccak-256 hash of an uncompressed secp256k1 public key (without its
// leading 0x04 prefix).
type Address [AddressLength]byte

// ZeroAddress is the distinguished all-zero address.
var ZeroAddress = Address{}

// AddressFromBytes copies b into an Address, failing if len(b) != AddressLength.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("%w: got %d bytes", ErrInvalidAddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromUncompressedPubkey derives the Address of an uncompressed
// secp256k1 public key (65 bytes, leading 0x04 prefix included).
func AddressFromUncompressedPubkey(pubkey []byte) (Address, error) {
	if len(pubkey) != 65 || pubkey[0] != 0x04 {
		return Address{}, fmt.Errorf("%w: expected 65-byte uncompressed pubkey with 0x04 prefix", ErrInvalidAddressLength)
	}
	digest := crypto.Keccak256(pubkey[1:])
	return AddressFromBytes(digest[len(digest)-AddressLength:])
}

// Bytes returns a's bytes as a newly allocated slice.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Equal reports whether a and other denote the same address.
func (a Address) Equal(other Address) bool {
	return a == other
}

// String renders the address as a "0x"-prefixed lowercase hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// StateID is the sha-256 digest over the concatenation of the encoded
// client-state and consensus-state Any envelopes at a given height. Equal
// StateIDs imply equal (client_state, consensus_state) pairs (spec invariant 2).
type StateID [StateIDLength]byte

// ZeroStateID is the distinguished all-zero state id.
var ZeroStateID = StateID{}

// StateIDFromBytes copies b into a StateID, failing if len(b) != StateIDLength.
func StateIDFromBytes(b []byte) (StateID, error) {
	var id StateID
	if len(b) != StateIDLength {
		return id, fmt.Errorf("%w: got %d bytes", ErrInvalidStateIDLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ComputeStateID derives the StateID of a (client_state, consensus_state)
// pair: sha256(EncodeAny(clientState) || EncodeAny(consensusState)).
func ComputeStateID(clientState, consensusState Any) StateID {
	sum := sha256.Sum256(EncodeAnyPair(clientState, consensusState))
	return StateID(sum)
}

// Bytes returns id's bytes as a newly allocated slice.
func (id StateID) Bytes() []byte {
	out := make([]byte, StateIDLength)
	copy(out, id[:])
	return out
}

// Bytes32 returns id as a plain [32]byte array, for callers (e.g. the ABI
// commitment codec) that need the underlying fixed-size value rather than a
// slice.
func (id StateID) Bytes32() [32]byte {
	return [32]byte(id)
}

// IsZero reports whether id is the zero state id.
func (id StateID) IsZero() bool {
	return id == ZeroStateID
}

// Equal reports whether id and other denote the same state id.
func (id StateID) Equal(other StateID) bool {
	return id == other
}

// String renders the state id as a "0x"-prefixed lowercase hex string.
func (id StateID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// ClientID identifies a client instance within an ELC. Its canonical form is
// "<client_type>-<counter>", e.g. "tendermint-0" or "mock-3", and is unique
// within a single ELC instance by construction (the counter is an
// ever-increasing per-ELC sequence).
type ClientID string

// NewClientID formats a ClientID from a client type and a counter.
func NewClientID(clientType string, counter uint64) ClientID {
	return ClientID(clientType + "-" + strconv.FormatUint(counter, 10))
}

// ClientType returns the "<client_type>" portion of the id.
func (c ClientID) ClientType() (string, error) {
	clientType, _, err := c.split()
	return clientType, err
}

// Counter returns the "<counter>" portion of the id.
func (c ClientID) Counter() (uint64, error) {
	_, counter, err := c.split()
	return counter, err
}

func (c ClientID) split() (string, uint64, error) {
	s := string(c)
	idx := strings.LastIndex(s, "-")
	if idx <= 0 || idx == len(s)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidClientID, s)
	}
	counter, err := strconv.ParseUint(s[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrInvalidClientID, s, err)
	}
	return s[:idx], counter, nil
}

// String returns the raw client id string.
func (c ClientID) String() string {
	return string(c)
}
