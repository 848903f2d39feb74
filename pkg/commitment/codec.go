package commitment

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// Encode renders msg as the two-part envelope spec §4.6 requires: a 32-byte
// header naming the schema version and message kind, followed by the
// ABI-style deterministic tuple encoding of msg's populated variant.
func Encode(msg lcptypes.ProxyMessage) ([]byte, error) {
	header := encodeHeader(msg.Kind)

	var body []byte
	var err error
	switch msg.Kind {
	case lcptypes.ProxyMessageKindUpdateState:
		if msg.UpdateState == nil {
			return nil, ErrUnexpectedMessageType
		}
		body, err = encodeUpdateState(*msg.UpdateState)
	case lcptypes.ProxyMessageKindMisbehaviour:
		if msg.Misbehaviour == nil {
			return nil, ErrUnexpectedMessageType
		}
		body, err = encodeMisbehaviour(*msg.Misbehaviour)
	case lcptypes.ProxyMessageKindVerifyMembership:
		if msg.VerifyMembership == nil {
			return nil, ErrUnexpectedMessageType
		}
		body, err = encodeVerifyMembership(*msg.VerifyMembership)
	case lcptypes.ProxyMessageKindVerifyNonMembership:
		if msg.VerifyNonMembership == nil {
			return nil, ErrUnexpectedMessageType
		}
		body, err = encodeVerifyNonMembership(*msg.VerifyNonMembership)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnexpectedMessageType, msg.Kind)
	}
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, HeaderLength+len(body))
	out = append(out, header[:]...)
	out = append(out, body...)
	return out, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (lcptypes.ProxyMessage, error) {
	kind, err := decodeHeader(b)
	if err != nil {
		return lcptypes.ProxyMessage{}, err
	}
	body := b[HeaderLength:]

	switch kind {
	case lcptypes.ProxyMessageKindUpdateState:
		us, err := decodeUpdateState(body)
		if err != nil {
			return lcptypes.ProxyMessage{}, err
		}
		return lcptypes.ProxyMessage{Kind: kind, UpdateState: &us}, nil
	case lcptypes.ProxyMessageKindMisbehaviour:
		mb, err := decodeMisbehaviour(body)
		if err != nil {
			return lcptypes.ProxyMessage{}, err
		}
		return lcptypes.ProxyMessage{Kind: kind, Misbehaviour: &mb}, nil
	case lcptypes.ProxyMessageKindVerifyMembership:
		vm, err := decodeVerifyMembership(body)
		if err != nil {
			return lcptypes.ProxyMessage{}, err
		}
		return lcptypes.ProxyMessage{Kind: kind, VerifyMembership: &vm}, nil
	case lcptypes.ProxyMessageKindVerifyNonMembership:
		vn, err := decodeVerifyNonMembership(body)
		if err != nil {
			return lcptypes.ProxyMessage{}, err
		}
		return lcptypes.ProxyMessage{Kind: kind, VerifyNonMembership: &vn}, nil
	default:
		return lcptypes.ProxyMessage{}, fmt.Errorf("%w: kind %d", ErrUnexpectedMessageType, kind)
	}
}

func encodeUpdateState(us lcptypes.UpdateState) ([]byte, error) {
	ctxBytes, err := EncodeValidationContext(us.Context)
	if err != nil {
		return nil, err
	}

	emitted := make([]emittedStateWire, len(us.EmittedStates))
	for i, e := range us.EmittedStates {
		emitted[i] = emittedStateWire{Height: e.Height, State: lcptypes.EncodeAny(e.State)}
	}

	wire := updateStateWire{
		PostHeight:    us.PostHeight,
		PostStateId:   us.PostStateID.Bytes32(),
		Timestamp:     uint64(us.Timestamp.UnixNano),
		ContextBytes:  ctxBytes,
		EmittedStates: emitted,
	}
	if us.HasPrevState {
		wire.PrevHeight = us.PrevHeight
		wire.PrevStateId = us.PrevStateID.Bytes32()
	}

	data, err := updateStateArgs.Pack(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	return data, nil
}

func decodeUpdateState(b []byte) (lcptypes.UpdateState, error) {
	values, err := updateStateArgs.Unpack(b)
	if err != nil {
		return lcptypes.UpdateState{}, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	w, ok := abi.ConvertType(values[0], new(updateStateWire)).(*updateStateWire)
	if !ok {
		return lcptypes.UpdateState{}, ErrInvalidAbi
	}

	ctx, err := DecodeValidationContext(w.ContextBytes)
	if err != nil {
		return lcptypes.UpdateState{}, err
	}

	emitted := make([]lcptypes.HeightAny, len(w.EmittedStates))
	for i, e := range w.EmittedStates {
		any, err := lcptypes.DecodeAny(e.State)
		if err != nil {
			return lcptypes.UpdateState{}, err
		}
		emitted[i] = lcptypes.HeightAny{Height: e.Height, State: any}
	}

	prevStateID, err := lcptypes.StateIDFromBytes(w.PrevStateId[:])
	if err != nil {
		return lcptypes.UpdateState{}, err
	}
	postStateID, err := lcptypes.StateIDFromBytes(w.PostStateId[:])
	if err != nil {
		return lcptypes.UpdateState{}, err
	}

	return lcptypes.UpdateState{
		PrevHeight:    w.PrevHeight,
		PrevStateID:   prevStateID,
		HasPrevState:  !w.PrevHeight.IsZero(),
		PostHeight:    w.PostHeight,
		PostStateID:   postStateID,
		Timestamp:     lcptypes.NewTime(int64(w.Timestamp)),
		Context:       ctx,
		EmittedStates: emitted,
	}, nil
}

func encodeMisbehaviour(mb lcptypes.Misbehaviour) ([]byte, error) {
	ctxBytes, err := EncodeValidationContext(mb.Context)
	if err != nil {
		return nil, err
	}

	prevStates := make([]prevStateWire, len(mb.PrevStates))
	for i, p := range mb.PrevStates {
		prevStates[i] = prevStateWire{Height: p.Height, StateId: p.StateID.Bytes32()}
	}

	wire := misbehaviourWire{
		PrevStates:    prevStates,
		ContextBytes:  ctxBytes,
		ClientMessage: lcptypes.EncodeAny(mb.ClientMessage),
	}
	data, err := misbehaviourArgs.Pack(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	return data, nil
}

func decodeMisbehaviour(b []byte) (lcptypes.Misbehaviour, error) {
	values, err := misbehaviourArgs.Unpack(b)
	if err != nil {
		return lcptypes.Misbehaviour{}, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	w, ok := abi.ConvertType(values[0], new(misbehaviourWire)).(*misbehaviourWire)
	if !ok {
		return lcptypes.Misbehaviour{}, ErrInvalidAbi
	}

	ctx, err := DecodeValidationContext(w.ContextBytes)
	if err != nil {
		return lcptypes.Misbehaviour{}, err
	}
	clientMessage, err := lcptypes.DecodeAny(w.ClientMessage)
	if err != nil {
		return lcptypes.Misbehaviour{}, err
	}

	prevStates := make([]lcptypes.HeightStateID, len(w.PrevStates))
	for i, p := range w.PrevStates {
		stateID, err := lcptypes.StateIDFromBytes(p.StateId[:])
		if err != nil {
			return lcptypes.Misbehaviour{}, err
		}
		prevStates[i] = lcptypes.HeightStateID{Height: p.Height, StateID: stateID}
	}

	return lcptypes.Misbehaviour{PrevStates: prevStates, Context: ctx, ClientMessage: clientMessage}, nil
}

func encodeVerifyMembership(vm lcptypes.VerifyMembership) ([]byte, error) {
	wire := verifyMembershipWire{
		Prefix:  vm.Prefix,
		Path:    []byte(vm.Path),
		Height:  vm.Height,
		StateId: vm.StateID.Bytes32(),
	}
	if vm.HasValue {
		wire.Value = vm.Value
	}
	data, err := verifyMembershipArgs.Pack(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	return data, nil
}

func decodeVerifyMembership(b []byte) (lcptypes.VerifyMembership, error) {
	values, err := verifyMembershipArgs.Unpack(b)
	if err != nil {
		return lcptypes.VerifyMembership{}, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	w, ok := abi.ConvertType(values[0], new(verifyMembershipWire)).(*verifyMembershipWire)
	if !ok {
		return lcptypes.VerifyMembership{}, ErrInvalidAbi
	}
	stateID, err := lcptypes.StateIDFromBytes(w.StateId[:])
	if err != nil {
		return lcptypes.VerifyMembership{}, err
	}
	var zero [32]byte
	return lcptypes.VerifyMembership{
		Prefix:   w.Prefix,
		Path:     string(w.Path),
		Value:    w.Value,
		HasValue: w.Value != zero,
		Height:   w.Height,
		StateID:  stateID,
	}, nil
}

func encodeVerifyNonMembership(vn lcptypes.VerifyNonMembership) ([]byte, error) {
	wire := verifyNonMembershipWire{
		Prefix:  vn.Prefix,
		Path:    []byte(vn.Path),
		Height:  vn.Height,
		StateId: vn.StateID.Bytes32(),
	}
	data, err := verifyNonMembershipArgs.Pack(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	return data, nil
}

func decodeVerifyNonMembership(b []byte) (lcptypes.VerifyNonMembership, error) {
	values, err := verifyNonMembershipArgs.Unpack(b)
	if err != nil {
		return lcptypes.VerifyNonMembership{}, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	w, ok := abi.ConvertType(values[0], new(verifyNonMembershipWire)).(*verifyNonMembershipWire)
	if !ok {
		return lcptypes.VerifyNonMembership{}, ErrInvalidAbi
	}
	stateID, err := lcptypes.StateIDFromBytes(w.StateId[:])
	if err != nil {
		return lcptypes.VerifyNonMembership{}, err
	}
	return lcptypes.VerifyNonMembership{
		Prefix:  w.Prefix,
		Path:    string(w.Path),
		Height:  w.Height,
		StateID: stateID,
	}, nil
}
