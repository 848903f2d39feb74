package commitment

import (
	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// mustType panics on construction failure: every abi.Type below is a fixed
// literal definition, so a failure here is a programmer error caught at
// package init, not a runtime condition.
func mustType(t, internalType string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, internalType, components)
	if err != nil {
		panic("commitment: invalid abi type literal: " + err.Error())
	}
	return typ
}

// heightComponents mirrors lcptypes.Height's field layout so the same Go
// struct can be used as both the domain type and the ABI Pack/ConvertType
// value.
var heightComponents = []abi.ArgumentMarshaling{
	{Name: "RevisionNumber", Type: "uint64"},
	{Name: "RevisionHeight", Type: "uint64"},
}

var emittedStateComponents = []abi.ArgumentMarshaling{
	{Name: "Height", Type: "tuple", Components: heightComponents},
	{Name: "State", Type: "bytes"},
}

var prevStateComponents = []abi.ArgumentMarshaling{
	{Name: "Height", Type: "tuple", Components: heightComponents},
	{Name: "StateId", Type: "bytes32"},
}

var validationContextArgs = abi.Arguments{
	{Type: mustType("tuple", "ValidationContext", []abi.ArgumentMarshaling{
		{Name: "Header", Type: "bytes32"},
		{Name: "Body", Type: "bytes"},
	})},
}

var updateStateArgs = abi.Arguments{
	{Type: mustType("tuple", "UpdateState", []abi.ArgumentMarshaling{
		{Name: "PrevHeight", Type: "tuple", Components: heightComponents},
		{Name: "PrevStateId", Type: "bytes32"},
		{Name: "PostHeight", Type: "tuple", Components: heightComponents},
		{Name: "PostStateId", Type: "bytes32"},
		{Name: "Timestamp", Type: "uint64"},
		{Name: "ContextBytes", Type: "bytes"},
		{Name: "EmittedStates", Type: "tuple[]", Components: emittedStateComponents},
	})},
}

var misbehaviourArgs = abi.Arguments{
	{Type: mustType("tuple", "Misbehaviour", []abi.ArgumentMarshaling{
		{Name: "PrevStates", Type: "tuple[]", Components: prevStateComponents},
		{Name: "ContextBytes", Type: "bytes"},
		{Name: "ClientMessage", Type: "bytes"},
	})},
}

var verifyMembershipArgs = abi.Arguments{
	{Type: mustType("tuple", "VerifyMembership", []abi.ArgumentMarshaling{
		{Name: "Prefix", Type: "bytes"},
		{Name: "Path", Type: "bytes"},
		{Name: "Value", Type: "bytes32"},
		{Name: "Height", Type: "tuple", Components: heightComponents},
		{Name: "StateId", Type: "bytes32"},
	})},
}

var verifyNonMembershipArgs = abi.Arguments{
	{Type: mustType("tuple", "VerifyNonMembership", []abi.ArgumentMarshaling{
		{Name: "Prefix", Type: "bytes"},
		{Name: "Path", Type: "bytes"},
		{Name: "Height", Type: "tuple", Components: heightComponents},
		{Name: "StateId", Type: "bytes32"},
	})},
}

var commitmentProofArgs = abi.Arguments{
	{Type: mustType("tuple", "CommitmentProof", []abi.ArgumentMarshaling{
		{Name: "Message", Type: "bytes"},
		{Name: "Signer", Type: "bytes20"},
		{Name: "Signature", Type: "bytes"},
	})},
}

// emittedStateWire is the ABI-level shape of one UpdateState.EmittedStates
// entry. lcptypes.HeightAny carries lcptypes.Any for State, which has no
// direct ABI type, so the wire form flattens it to the Any's own encoding.
type emittedStateWire struct {
	Height lcptypes.Height
	State  []byte
}

type prevStateWire struct {
	Height  lcptypes.Height
	StateId [32]byte
}

type updateStateWire struct {
	PrevHeight    lcptypes.Height
	PrevStateId   [32]byte
	PostHeight    lcptypes.Height
	PostStateId   [32]byte
	Timestamp     uint64
	ContextBytes  []byte
	EmittedStates []emittedStateWire
}

type misbehaviourWire struct {
	PrevStates    []prevStateWire
	ContextBytes  []byte
	ClientMessage []byte
}

type verifyMembershipWire struct {
	Prefix  []byte
	Path    []byte
	Value   [32]byte
	Height  lcptypes.Height
	StateId [32]byte
}

type verifyNonMembershipWire struct {
	Prefix  []byte
	Path    []byte
	Height  lcptypes.Height
	StateId [32]byte
}

type validationContextWire struct {
	Header [32]byte
	Body   []byte
}

type commitmentProofWire struct {
	Message   []byte
	Signer    [20]byte
	Signature []byte
}
