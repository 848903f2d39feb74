package tendermint

import (
	"encoding/binary"
	"errors"
	"fmt"

	gogoproto "github.com/cosmos/gogoproto/proto"

	cmtmath "github.com/cometbft/cometbft/libs/math"
	tmproto "github.com/cometbft/cometbft/proto/tendermint/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// ErrInvalidData is returned when an Any's Value does not decode to the
// expected layout for its TypeURL.
var ErrInvalidData = errors.New("tendermint: invalid data")

// EncodeClientState serializes a ClientState, length-prefixing ChainID the
// same way pkg/store/entities.go frames its own string fields.
func EncodeClientState(cs ClientState) lcptypes.Any {
	buf := make([]byte, 0, 64+len(cs.ChainID))
	buf = appendLPString(buf, cs.ChainID)
	buf = appendUint64(buf, uint64(cs.TrustLevel.Numerator))
	buf = appendUint64(buf, uint64(cs.TrustLevel.Denominator))
	buf = appendUint64(buf, uint64(cs.TrustingPeriod.Nanos))
	buf = appendUint64(buf, uint64(cs.MaxClockDrift.Nanos))
	buf = appendUint64(buf, cs.LatestHeight.RevisionNumber)
	buf = appendUint64(buf, cs.LatestHeight.RevisionHeight)
	buf = appendUint64(buf, cs.FrozenHeight.RevisionNumber)
	buf = appendUint64(buf, cs.FrozenHeight.RevisionHeight)
	if cs.Frozen {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return lcptypes.NewAny(clientStateTypeURL, buf)
}

// DecodeClientState is the inverse of EncodeClientState.
func DecodeClientState(a lcptypes.Any) (ClientState, error) {
	if a.TypeURL != clientStateTypeURL {
		return ClientState{}, fmt.Errorf("%w: client state type url %q", ErrInvalidData, a.TypeURL)
	}
	chainID, rest, err := readLPString(a.Value)
	if err != nil {
		return ClientState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	num, rest, err := readUint64(rest)
	if err != nil {
		return ClientState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	den, rest, err := readUint64(rest)
	if err != nil {
		return ClientState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	trustingPeriod, rest, err := readUint64(rest)
	if err != nil {
		return ClientState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	clockDrift, rest, err := readUint64(rest)
	if err != nil {
		return ClientState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	latestRevNum, rest, err := readUint64(rest)
	if err != nil {
		return ClientState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	latestRevHeight, rest, err := readUint64(rest)
	if err != nil {
		return ClientState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	frozenRevNum, rest, err := readUint64(rest)
	if err != nil {
		return ClientState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	frozenRevHeight, rest, err := readUint64(rest)
	if err != nil {
		return ClientState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if len(rest) < 1 {
		return ClientState{}, fmt.Errorf("%w: short frozen flag", ErrInvalidData)
	}
	return ClientState{
		ChainID:        chainID,
		TrustLevel:     cmtmath.Fraction{Numerator: int64(num), Denominator: int64(den)},
		TrustingPeriod: lcptypes.NewDuration(int64(trustingPeriod)),
		MaxClockDrift:  lcptypes.NewDuration(int64(clockDrift)),
		LatestHeight:   lcptypes.NewHeight(latestRevNum, latestRevHeight),
		FrozenHeight:   lcptypes.NewHeight(frozenRevNum, frozenRevHeight),
		Frozen:         rest[0] != 0,
	}, nil
}

// EncodeConsensusState serializes a ConsensusState.
func EncodeConsensusState(cons ConsensusState) lcptypes.Any {
	buf := make([]byte, 0, 16+len(cons.Root)+len(cons.NextValidatorsHash))
	buf = appendUint64(buf, uint64(cons.Timestamp.UnixNano))
	buf = appendLPBytes(buf, cons.Root)
	buf = appendLPBytes(buf, cons.NextValidatorsHash)
	return lcptypes.NewAny(consensusStateTypeURL, buf)
}

// DecodeConsensusState is the inverse of EncodeConsensusState.
func DecodeConsensusState(a lcptypes.Any) (ConsensusState, error) {
	if a.TypeURL != consensusStateTypeURL {
		return ConsensusState{}, fmt.Errorf("%w: consensus state type url %q", ErrInvalidData, a.TypeURL)
	}
	unixNano, rest, err := readUint64(a.Value)
	if err != nil {
		return ConsensusState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	root, rest, err := readLPBytes(rest)
	if err != nil {
		return ConsensusState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	nextValidatorsHash, _, err := readLPBytes(rest)
	if err != nil {
		return ConsensusState{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return ConsensusState{
		Timestamp:          lcptypes.NewTime(int64(unixNano)),
		Root:               root,
		NextValidatorsHash: nextValidatorsHash,
	}, nil
}

// EncodeHeader serializes a Header. The SignedHeader and ValidatorSet
// fields are marshaled through their generated protobuf types the same way
// every CometBFT RPC/ABCI wire message is marshaled (gogoproto.Marshal over
// ToProto()), rather than inventing an ad hoc binary layout for consensus
// data this package does not own.
func EncodeHeader(h Header) lcptypes.Any {
	shProto := h.SignedHeader.ToProto()
	shBytes, err := gogoproto.Marshal(shProto)
	if err != nil {
		panic("tendermint: marshal signed header: " + err.Error())
	}
	vsProto, err := h.ValidatorSet.ToProto()
	if err != nil {
		panic("tendermint: marshal validator set: " + err.Error())
	}
	vsBytes, err := gogoproto.Marshal(vsProto)
	if err != nil {
		panic("tendermint: marshal validator set: " + err.Error())
	}
	tvsProto, err := h.TrustedValidators.ToProto()
	if err != nil {
		panic("tendermint: marshal trusted validator set: " + err.Error())
	}
	tvsBytes, err := gogoproto.Marshal(tvsProto)
	if err != nil {
		panic("tendermint: marshal trusted validator set: " + err.Error())
	}

	buf := make([]byte, 0, len(shBytes)+len(vsBytes)+len(tvsBytes)+32)
	buf = appendUint64(buf, h.TrustedHeight.RevisionNumber)
	buf = appendUint64(buf, h.TrustedHeight.RevisionHeight)
	buf = appendLPBytes(buf, shBytes)
	buf = appendLPBytes(buf, vsBytes)
	buf = appendLPBytes(buf, tvsBytes)
	return lcptypes.NewAny(headerTypeURL, buf)
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(a lcptypes.Any) (Header, error) {
	if a.TypeURL != headerTypeURL {
		return Header{}, fmt.Errorf("%w: header type url %q", ErrInvalidData, a.TypeURL)
	}
	return decodeHeaderBytes(a.Value)
}

func decodeHeaderBytes(b []byte) (Header, error) {
	revNum, rest, err := readUint64(b)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	revHeight, rest, err := readUint64(rest)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	shBytes, rest, err := readLPBytes(rest)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	vsBytes, rest, err := readLPBytes(rest)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	tvsBytes, _, err := readLPBytes(rest)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	var shProto tmproto.SignedHeader
	if err := gogoproto.Unmarshal(shBytes, &shProto); err != nil {
		return Header{}, fmt.Errorf("%w: unmarshal signed header: %v", ErrInvalidData, err)
	}
	sh, err := cmttypes.SignedHeaderFromProto(&shProto)
	if err != nil {
		return Header{}, fmt.Errorf("%w: signed header from proto: %v", ErrInvalidData, err)
	}

	var vsProto tmproto.ValidatorSet
	if err := gogoproto.Unmarshal(vsBytes, &vsProto); err != nil {
		return Header{}, fmt.Errorf("%w: unmarshal validator set: %v", ErrInvalidData, err)
	}
	vs, err := cmttypes.ValidatorSetFromProto(&vsProto)
	if err != nil {
		return Header{}, fmt.Errorf("%w: validator set from proto: %v", ErrInvalidData, err)
	}

	var tvsProto tmproto.ValidatorSet
	if err := gogoproto.Unmarshal(tvsBytes, &tvsProto); err != nil {
		return Header{}, fmt.Errorf("%w: unmarshal trusted validator set: %v", ErrInvalidData, err)
	}
	tvs, err := cmttypes.ValidatorSetFromProto(&tvsProto)
	if err != nil {
		return Header{}, fmt.Errorf("%w: trusted validator set from proto: %v", ErrInvalidData, err)
	}

	return Header{
		SignedHeader:      sh,
		ValidatorSet:      vs,
		TrustedHeight:     lcptypes.NewHeight(revNum, revHeight),
		TrustedValidators: tvs,
	}, nil
}

// EncodeMisbehaviour serializes a Misbehaviour as its two conflicting headers.
func EncodeMisbehaviour(m Misbehaviour) lcptypes.Any {
	h1 := EncodeHeader(m.Header1)
	h2 := EncodeHeader(m.Header2)
	buf := make([]byte, 0, len(h1.Value)+len(h2.Value)+8)
	buf = appendLPBytes(buf, h1.Value)
	buf = appendLPBytes(buf, h2.Value)
	return lcptypes.NewAny(misbehaviourTypeURL, buf)
}

// DecodeMisbehaviour is the inverse of EncodeMisbehaviour.
func DecodeMisbehaviour(a lcptypes.Any) (Misbehaviour, error) {
	if a.TypeURL != misbehaviourTypeURL {
		return Misbehaviour{}, fmt.Errorf("%w: misbehaviour type url %q", ErrInvalidData, a.TypeURL)
	}
	h1Bytes, rest, err := readLPBytes(a.Value)
	if err != nil {
		return Misbehaviour{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	h2Bytes, _, err := readLPBytes(rest)
	if err != nil {
		return Misbehaviour{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	h1, err := decodeHeaderBytes(h1Bytes)
	if err != nil {
		return Misbehaviour{}, err
	}
	h2, err := decodeHeaderBytes(h2Bytes)
	if err != nil {
		return Misbehaviour{}, err
	}
	return Misbehaviour{Header1: h1, Header2: h2}, nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("short uint64 encoding")
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
		return nil, nil, fmt.Errorf("short length-prefixed bytes")
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
