// Copyright 2025 Certen Protocol

package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// ErrClientStateNotFound is returned when no client-state is stored at a
// given client id.
var ErrClientStateNotFound = errors.New("store: client state not found")

// ErrConsensusStateNotFound is returned when no consensus-state is stored
// at a given (client id, height).
var ErrConsensusStateNotFound = errors.New("store: consensus state not found")

// ErrClientTypeNotFound is returned when no client-type entry is stored at
// a given client id.
var ErrClientTypeNotFound = errors.New("store: client type not found")

// ClientState is the store's view of a client: the fields the engine must
// enforce invariants over (latest height, frozen flag) alongside the
// opaque, implementation-owned Any envelope.
type ClientState struct {
	ClientType   string
	LatestHeight lcptypes.Height
	Frozen       bool
	Data         lcptypes.Any
}

// ConsensusState is the store's view of one height's consensus state: a
// timestamp and commitment root the ELC engine and commitment prover read
// directly, alongside the opaque Any envelope.
type ConsensusState struct {
	Timestamp lcptypes.Time
	Root      []byte
	Data      lcptypes.Any
}

// StateID computes the StateID binding cs and cons together (spec invariant 2).
func StateID(cs ClientState, cons ConsensusState) lcptypes.StateID {
	return lcptypes.ComputeStateID(cs.Data, cons.Data)
}

// EncodeClientState serializes a ClientState with the same length-prefixed
// discipline as lcptypes.EncodeAny, so storage is stable across
// implementations (spec §4.3, "Serialisation of stored client/consensus
// states").
func EncodeClientState(cs ClientState) []byte {
	buf := make([]byte, 0, 64+len(cs.ClientType)+len(cs.Data.Value))
	buf = appendLPString(buf, cs.ClientType)
	buf = appendUint64(buf, cs.LatestHeight.RevisionNumber)
	buf = appendUint64(buf, cs.LatestHeight.RevisionHeight)
	if cs.Frozen {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, lcptypes.EncodeAny(cs.Data)...)
	return buf
}

// DecodeClientState is the inverse of EncodeClientState.
func DecodeClientState(b []byte) (ClientState, error) {
	var cs ClientState
	clientType, rest, err := readLPString(b)
	if err != nil {
		return cs, fmt.Errorf("store: decode client state: %w", err)
	}
	revNum, rest, err := readUint64(rest)
	if err != nil {
		return cs, fmt.Errorf("store: decode client state: %w", err)
	}
	revHeight, rest, err := readUint64(rest)
	if err != nil {
		return cs, fmt.Errorf("store: decode client state: %w", err)
	}
	if len(rest) < 1 {
		return cs, fmt.Errorf("store: decode client state: %w", lcptypes.ErrShortAnyEncoding)
	}
	frozen := rest[0] != 0
	rest = rest[1:]
	data, err := lcptypes.DecodeAny(rest)
	if err != nil {
		return cs, fmt.Errorf("store: decode client state: %w", err)
	}
	return ClientState{
		ClientType:   clientType,
		LatestHeight: lcptypes.NewHeight(revNum, revHeight),
		Frozen:       frozen,
		Data:         data,
	}, nil
}

// EncodeConsensusState serializes a ConsensusState with the same
// length-prefixed discipline as EncodeClientState.
func EncodeConsensusState(cons ConsensusState) []byte {
	buf := make([]byte, 0, 64+len(cons.Root)+len(cons.Data.Value))
	buf = appendUint64(buf, uint64(cons.Timestamp.UnixNano))
	buf = appendLPBytes(buf, cons.Root)
	buf = append(buf, lcptypes.EncodeAny(cons.Data)...)
	return buf
}

// DecodeConsensusState is the inverse of EncodeConsensusState.
func DecodeConsensusState(b []byte) (ConsensusState, error) {
	var cons ConsensusState
	unixNano, rest, err := readUint64(b)
	if err != nil {
		return cons, fmt.Errorf("store: decode consensus state: %w", err)
	}
	root, rest, err := readLPBytes(rest)
	if err != nil {
		return cons, fmt.Errorf("store: decode consensus state: %w", err)
	}
	data, err := lcptypes.DecodeAny(rest)
	if err != nil {
		return cons, fmt.Errorf("store: decode consensus state: %w", err)
	}
	return ConsensusState{
		Timestamp: lcptypes.NewTime(int64(unixNano)),
		Root:      root,
		Data:      data,
	}, nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("store: short uint64 encoding")
	}
	return binary.BigEndian.Uint64(b[:8]), b[8:], nil
}

func appendLPBytes(buf []byte, v []byte) []byte {
	buf = appendUint64(buf, uint64(len(v)))
	return append(buf, v...)
}

func readLPBytes(b []byte) ([]byte, []byte, error) {
	n, rest, err := readUint64(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, fmt.Errorf("store: short length-prefixed bytes")
	}
	return append([]byte(nil), rest[:n]...), rest[n:], nil
}

func appendLPString(buf []byte, v string) []byte {
	return appendLPBytes(buf, []byte(v))
}

func readLPString(b []byte) (string, []byte, error) {
	v, rest, err := readLPBytes(b)
	if err != nil {
		return "", nil, err
	}
	return string(v), rest, nil
}
