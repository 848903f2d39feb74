// Copyright 2025 Certen Protocol
//
// Package store is the path & identifier layer (spec §4.3): it formats and
// parses the canonical KV path strings client-state, consensus-state and
// client-type entries live under, and serializes the Any tuples stored at
// those paths. Grounded on pkg/ledger.LedgerStore's key-builder functions
// (systemBlockKey, anchorTargetKey) generalized from a handful of
// single-purpose keys to a general client/height-addressed layout.

package store

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// NextClientSequenceKey is the single counter key used to allocate fresh
// client ids.
var NextClientSequenceKey = []byte("nextClientSequence")

// ClientTypePath returns "clients/<client_id>/clientType".
func ClientTypePath(id lcptypes.ClientID) []byte {
	return []byte(fmt.Sprintf("clients/%s/clientType", id))
}

// ClientStatePath returns "clients/<client_id>/clientState".
func ClientStatePath(id lcptypes.ClientID) []byte {
	return []byte(fmt.Sprintf("clients/%s/clientState", id))
}

// ConsensusStatePath returns "clients/<client_id>/consensusStates/<rev_num>-<rev_height>".
func ConsensusStatePath(id lcptypes.ClientID, h lcptypes.Height) []byte {
	return []byte(fmt.Sprintf("clients/%s/consensusStates/%s", id, h))
}

// ConsensusStatesPrefix returns the common prefix of every consensus-state
// path for id, used to scan adjacent heights (next/prev consensus state).
func ConsensusStatesPrefix(id lcptypes.ClientID) []byte {
	return []byte(fmt.Sprintf("clients/%s/consensusStates/", id))
}

// EnclaveKeyAuxPath returns "clients/<client_id>/aux/enclave_keys/<address-hex>".
func EnclaveKeyAuxPath(id lcptypes.ClientID, addr lcptypes.Address) []byte {
	return []byte(fmt.Sprintf("clients/%s/aux/enclave_keys/%s", id, addr))
}

// errInvalidConsensusStatePath is returned by ParseHeightSuffix when the
// trailing "<rev_num>-<rev_height>" segment does not parse as a Height.
var errInvalidConsensusStatePath = fmt.Errorf("store: invalid consensus state path")

// ParseHeightSuffix parses the "<rev_num>-<rev_height>" suffix of a
// consensus-state path key back into a Height, the inverse of the
// formatting ConsensusStatePath performs.
func ParseHeightSuffix(suffix string) (lcptypes.Height, error) {
	idx := strings.LastIndex(suffix, "-")
	if idx <= 0 || idx == len(suffix)-1 {
		return lcptypes.Height{}, errInvalidConsensusStatePath
	}
	revNum, err := strconv.ParseUint(suffix[:idx], 10, 64)
	if err != nil {
		return lcptypes.Height{}, fmt.Errorf("%w: %v", errInvalidConsensusStatePath, err)
	}
	revHeight, err := strconv.ParseUint(suffix[idx+1:], 10, 64)
	if err != nil {
		return lcptypes.Height{}, fmt.Errorf("%w: %v", errInvalidConsensusStatePath, err)
	}
	return lcptypes.NewHeight(revNum, revHeight), nil
}

// EncodeUint64 big-endian encodes v, the wire format nextClientSequence and
// every on-the-wire height/timestamp integer uses (spec §4.3, "Deterministic
// encoding" design note).
func EncodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// DecodeUint64 is the inverse of EncodeUint64.
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("store: invalid uint64 encoding length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
