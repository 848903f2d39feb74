// Copyright 2025 Certen Protocol

package store

import (
	"bytes"

	"github.com/sbx-labs/lcp-enclave/pkg/kvstore"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// Reader is the read-only view of the store a light-client implementation
// receives. NextConsensusState/PrevConsensusState are added per spec.md's
// Open Question (a): no shipped light-client implementation calls them
// yet, but the interface carries them so a future implementation can
// without a breaking change.
type Reader interface {
	ClientType(id lcptypes.ClientID) (string, error)
	ClientState(id lcptypes.ClientID) (ClientState, error)
	ConsensusState(id lcptypes.ClientID, h lcptypes.Height) (ConsensusState, error)
	NextConsensusState(id lcptypes.ClientID, h lcptypes.Height) (lcptypes.Height, ConsensusState, error)
	PrevConsensusState(id lcptypes.ClientID, h lcptypes.Height) (lcptypes.Height, ConsensusState, error)

	// HostTimestamp is the per-execution "host timestamp" the engine sets
	// to the command's current_timestamp (spec §4.5 step 2), exposed to
	// light-client implementations through this reader.
	HostTimestamp() lcptypes.Time
}

// Writer is the mutating view of the store the ELC engine uses while a
// transaction is open.
type Writer interface {
	AllocateClientID(clientType string) (lcptypes.ClientID, error)
	SetClientType(id lcptypes.ClientID, clientType string) error
	SetClientState(id lcptypes.ClientID, cs ClientState) error
	SetConsensusState(id lcptypes.ClientID, h lcptypes.Height, cons ConsensusState) error
	SetEnclaveKeyAux(id lcptypes.ClientID, addr lcptypes.Address, expiresAt lcptypes.Time) error
	EnclaveKeyAux(id lcptypes.ClientID, addr lcptypes.Address) (lcptypes.Time, bool, error)
}

// Store binds Reader and Writer to a single kvstore.Tx, the canonical
// formatter spec §4.3 requires ("Path strings must be produced and parsed
// by a single canonical formatter").
type Store struct {
	tx            *kvstore.Tx
	hostTimestamp lcptypes.Time
}

// New wraps tx as a Store, stamped with the engine's per-execution host
// timestamp.
func New(tx *kvstore.Tx, hostTimestamp lcptypes.Time) *Store {
	return &Store{tx: tx, hostTimestamp: hostTimestamp}
}

// HostTimestamp implements Reader.
func (s *Store) HostTimestamp() lcptypes.Time {
	return s.hostTimestamp
}

var _ Reader = (*Store)(nil)
var _ Writer = (*Store)(nil)

// ClientType implements Reader.
func (s *Store) ClientType(id lcptypes.ClientID) (string, error) {
	v, err := s.tx.Get(ClientTypePath(id))
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", ErrClientTypeNotFound
	}
	return string(v), nil
}

// ClientState implements Reader.
func (s *Store) ClientState(id lcptypes.ClientID) (ClientState, error) {
	v, err := s.tx.Get(ClientStatePath(id))
	if err != nil {
		return ClientState{}, err
	}
	if v == nil {
		return ClientState{}, ErrClientStateNotFound
	}
	return DecodeClientState(v)
}

// ConsensusState implements Reader.
func (s *Store) ConsensusState(id lcptypes.ClientID, h lcptypes.Height) (ConsensusState, error) {
	v, err := s.tx.Get(ConsensusStatePath(id, h))
	if err != nil {
		return ConsensusState{}, err
	}
	if v == nil {
		return ConsensusState{}, ErrConsensusStateNotFound
	}
	return DecodeConsensusState(v)
}

// NextConsensusState scans forward from the consensus-state keys stored
// for id and returns the first one strictly after h. Unused by the mock
// and tendermint light clients shipped here; present per Open Question (a).
func (s *Store) NextConsensusState(id lcptypes.ClientID, h lcptypes.Height) (lcptypes.Height, ConsensusState, error) {
	return s.scanAdjacent(id, h, true)
}

// PrevConsensusState is the PrevConsensusState analogue of NextConsensusState,
// returning the last consensus state strictly before h.
func (s *Store) PrevConsensusState(id lcptypes.ClientID, h lcptypes.Height) (lcptypes.Height, ConsensusState, error) {
	return s.scanAdjacent(id, h, false)
}

func (s *Store) scanAdjacent(id lcptypes.ClientID, h lcptypes.Height, forward bool) (lcptypes.Height, ConsensusState, error) {
	prefix := ConsensusStatesPrefix(id)
	it, err := s.tx.Iterator(prefix)
	if err != nil {
		return lcptypes.Height{}, ConsensusState{}, err
	}
	defer it.Close()

	var bestHeight lcptypes.Height
	var bestValue []byte
	found := false

	for ; it.Valid(); it.Next() {
		key := it.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		suffix := string(key[len(prefix):])
		height, err := ParseHeightSuffix(suffix)
		if err != nil {
			continue
		}
		if forward {
			if height.GT(h) && (!found || height.LT(bestHeight)) {
				bestHeight, bestValue, found = height, it.Value(), true
			}
		} else {
			if height.LT(h) && (!found || height.GT(bestHeight)) {
				bestHeight, bestValue, found = height, it.Value(), true
			}
		}
	}
	if !found {
		return lcptypes.Height{}, ConsensusState{}, ErrConsensusStateNotFound
	}
	cons, err := DecodeConsensusState(bestValue)
	if err != nil {
		return lcptypes.Height{}, ConsensusState{}, err
	}
	return bestHeight, cons, nil
}

// AllocateClientID increments the shared nextClientSequence counter and
// formats a fresh ClientID from clientType and the pre-increment value. The
// counter is read from the transaction's Begin-time snapshot: InitClient
// calls for the same client type share an update key and see each other's
// increments, while concurrent calls for different client types can read
// the same counter value; their ids still differ in the client-type part.
func (s *Store) AllocateClientID(clientType string) (lcptypes.ClientID, error) {
	v, err := s.tx.Get(NextClientSequenceKey)
	if err != nil {
		return "", err
	}
	var counter uint64
	if v != nil {
		counter, err = DecodeUint64(v)
		if err != nil {
			return "", err
		}
	}
	if err := s.tx.Set(NextClientSequenceKey, EncodeUint64(counter+1)); err != nil {
		return "", err
	}
	return lcptypes.NewClientID(clientType, counter), nil
}

// SetClientType implements Writer.
func (s *Store) SetClientType(id lcptypes.ClientID, clientType string) error {
	return s.tx.Set(ClientTypePath(id), []byte(clientType))
}

// SetClientState implements Writer.
func (s *Store) SetClientState(id lcptypes.ClientID, cs ClientState) error {
	return s.tx.Set(ClientStatePath(id), EncodeClientState(cs))
}

// SetConsensusState implements Writer.
func (s *Store) SetConsensusState(id lcptypes.ClientID, h lcptypes.Height, cons ConsensusState) error {
	return s.tx.Set(ConsensusStatePath(id, h), EncodeConsensusState(cons))
}

// SetEnclaveKeyAux records that addr is authorized to sign proxy messages
// for client id until expiresAt.
func (s *Store) SetEnclaveKeyAux(id lcptypes.ClientID, addr lcptypes.Address, expiresAt lcptypes.Time) error {
	return s.tx.Set(EnclaveKeyAuxPath(id, addr), EncodeUint64(uint64(expiresAt.UnixNano)))
}

// EnclaveKeyAux returns the expiry recorded by SetEnclaveKeyAux, or
// (_, false, nil) if addr is not authorized for id.
func (s *Store) EnclaveKeyAux(id lcptypes.ClientID, addr lcptypes.Address) (lcptypes.Time, bool, error) {
	v, err := s.tx.Get(EnclaveKeyAuxPath(id, addr))
	if err != nil {
		return lcptypes.Time{}, false, err
	}
	if v == nil {
		return lcptypes.Time{}, false, nil
	}
	nanos, err := DecodeUint64(v)
	if err != nil {
		return lcptypes.Time{}, false, err
	}
	return lcptypes.NewTime(int64(nanos)), true, nil
}
