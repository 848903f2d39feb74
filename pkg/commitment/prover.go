package commitment

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/sbx-labs/lcp-enclave/pkg/ecrypto"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// Prove encodes msg and signs the resulting envelope with key, producing the
// CommitmentProof every ELC engine command returns (spec §4.5 step 7,
// §4.6 "Signing"). The signature is sign_keccak256(envelope_bytes); the
// signer address is the key's own address, never the caller's claim.
func Prove(key *ecrypto.EnclaveKey, msg lcptypes.ProxyMessage) (lcptypes.CommitmentProof, error) {
	if key == nil {
		return lcptypes.CommitmentProof{}, ecrypto.ErrNopSigner
	}
	envelope, err := Encode(msg)
	if err != nil {
		return lcptypes.CommitmentProof{}, err
	}
	sig, err := key.Sign(envelope)
	if err != nil {
		return lcptypes.CommitmentProof{}, err
	}
	signer, err := key.Address()
	if err != nil {
		return lcptypes.CommitmentProof{}, err
	}
	return lcptypes.CommitmentProof{Message: envelope, Signer: signer, Signature: sig}, nil
}

// Verify checks that proof.Signature recovers proof.Signer over
// proof.Message (invariant 2: recover(p.message, p.signature) == p.signer),
// then decodes the verified envelope.
func Verify(proof lcptypes.CommitmentProof) (lcptypes.ProxyMessage, error) {
	if err := ecrypto.VerifyAddress(proof.Signer, proof.Message, proof.Signature); err != nil {
		return lcptypes.ProxyMessage{}, err
	}
	return Decode(proof.Message)
}

// EncodeCommitmentProof renders proof as the single ABI-encoded tuple
// `(message: bytes, signer: bytes20, signature: bytes)` spec §6 names as the
// commitment-proof wire layout, for transport to an outer LCP client.
func EncodeCommitmentProof(proof lcptypes.CommitmentProof) ([]byte, error) {
	wire := commitmentProofWire{
		Message:   proof.Message,
		Signer:    [20]byte(proof.Signer),
		Signature: proof.Signature[:],
	}
	data, err := commitmentProofArgs.Pack(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	return data, nil
}

// DecodeCommitmentProof is the inverse of EncodeCommitmentProof.
func DecodeCommitmentProof(b []byte) (lcptypes.CommitmentProof, error) {
	values, err := commitmentProofArgs.Unpack(b)
	if err != nil {
		return lcptypes.CommitmentProof{}, fmt.Errorf("%w: %w", ErrInvalidAbi, err)
	}
	w, ok := abi.ConvertType(values[0], new(commitmentProofWire)).(*commitmentProofWire)
	if !ok {
		return lcptypes.CommitmentProof{}, ErrInvalidAbi
	}
	if len(w.Signature) != ecrypto.SignatureLength {
		return lcptypes.CommitmentProof{}, ErrInvalidOptionalBytesLength
	}
	var sig [65]byte
	copy(sig[:], w.Signature)
	return lcptypes.CommitmentProof{
		Message:   w.Message,
		Signer:    lcptypes.Address(w.Signer),
		Signature: sig,
	}, nil
}
