// Copyright 2025 Certen Protocol
//
// Crypto core (spec §4.1): secp256k1 enclave key generation, signing and
// recovery, keccak-256 hashing, and address derivation. Every enclave key's
// secret scalar lives only in enclave memory; the only representation that
// may leave the TEE boundary is the sealed ciphertext produced by Seal.

package ecrypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// SignatureLength is the byte length of a recoverable secp256k1 signature:
// 32-byte r, 32-byte s, 1-byte recovery id.
const SignatureLength = 65

// ErrInvalidSignatureLength is returned when a signature is not exactly
// SignatureLength bytes.
var ErrInvalidSignatureLength = errors.New("ecrypto: invalid signature length")

// ErrUnexpectedSigner is returned by Verify when the signature recovers to a
// public key other than the one the caller expected.
var ErrUnexpectedSigner = errors.New("ecrypto: unexpected signer")

// ErrNopSigner is returned by operations that need an installed signer
// (e.g. the commitment prover) when none has been configured.
var ErrNopSigner = errors.New("ecrypto: no signer installed")

// ErrMalformedScalar is returned when a private or public key's byte
// encoding does not parse as a valid secp256k1 scalar or point.
var ErrMalformedScalar = errors.New("ecrypto: malformed scalar")

// PublicKey is an uncompressed secp256k1 public key (65 bytes, 0x04 prefix).
type PublicKey struct {
	pub *ecdsa.PublicKey
}

// Bytes returns the 65-byte uncompressed encoding of pk.
func (pk PublicKey) Bytes() []byte {
	return crypto.FromECDSAPub(pk.pub)
}

// Address derives the Address corresponding to pk.
func (pk PublicKey) Address() (lcptypes.Address, error) {
	return lcptypes.AddressFromUncompressedPubkey(pk.Bytes())
}

// PublicKeyFromBytes parses a 65-byte uncompressed secp256k1 public key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	pub, err := crypto.UnmarshalPubkey(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrMalformedScalar, err)
	}
	return PublicKey{pub: pub}, nil
}

// EnclaveKey is a secp256k1 secret key generated inside the TEE. Its secret
// scalar is held only in process memory; Destroy zeroes it. The key forbids
// copying its secret outside the TEE boundary — callers that need to
// persist a key must go through Seal.
type EnclaveKey struct {
	priv *ecdsa.PrivateKey
}

// GenerateKey creates a fresh random enclave key.
func GenerateKey() (*EnclaveKey, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("ecrypto: generate key: %w", err)
	}
	return &EnclaveKey{priv: priv}, nil
}

// keyFromECDSA wraps an already-parsed private key, used by Unseal.
func keyFromECDSA(priv *ecdsa.PrivateKey) *EnclaveKey {
	return &EnclaveKey{priv: priv}
}

// secretToECDSA parses a raw 32-byte scalar into a private key, used by
// Unseal to reconstruct an EnclaveKey from its decrypted secret bytes.
func secretToECDSA(secret []byte) (*ecdsa.PrivateKey, error) {
	priv, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScalar, err)
	}
	return priv, nil
}

// Pubkey returns the public key corresponding to k.
func (k *EnclaveKey) Pubkey() PublicKey {
	return PublicKey{pub: &k.priv.PublicKey}
}

// Address returns the Address corresponding to k's public key.
func (k *EnclaveKey) Address() (lcptypes.Address, error) {
	return k.Pubkey().Address()
}

// Sign hashes msg with keccak-256 and produces a 65-byte recoverable
// signature over the digest: 32-byte r, 32-byte s, 1-byte recovery id.
func (k *EnclaveKey) Sign(msg []byte) ([SignatureLength]byte, error) {
	var out [SignatureLength]byte
	digest := crypto.Keccak256(msg)
	sig, err := crypto.Sign(digest, k.priv)
	if err != nil {
		return out, fmt.Errorf("ecrypto: sign: %w", err)
	}
	if len(sig) != SignatureLength {
		return out, fmt.Errorf("%w: got %d bytes from signer", ErrInvalidSignatureLength, len(sig))
	}
	copy(out[:], sig)
	return out, nil
}

// secretBytes returns the raw 32-byte scalar, used only for sealing.
// Callers must never let this slice escape the TEE boundary unencrypted.
func (k *EnclaveKey) secretBytes() []byte {
	return crypto.FromECDSA(k.priv)
}

// Destroy zeroes k's secret scalar. k must not be used after Destroy.
func (k *EnclaveKey) Destroy() {
	if k.priv == nil {
		return
	}
	b := k.priv.D.Bits()
	for i := range b {
		b[i] = 0
	}
	k.priv = nil
}

// Recover recovers the public key that produced sig over msg.
func Recover(msg []byte, sig [SignatureLength]byte) (PublicKey, error) {
	digest := crypto.Keccak256(msg)
	pubBytes, err := crypto.Ecrecover(digest, sig[:])
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrMalformedScalar, err)
	}
	return PublicKeyFromBytes(pubBytes)
}

// Verify reports whether sig is a valid signature over msg by pk. It
// returns ErrUnexpectedSigner if sig recovers to a different public key.
func Verify(pk PublicKey, msg []byte, sig [SignatureLength]byte) error {
	recovered, err := Recover(msg, sig)
	if err != nil {
		return err
	}
	wantAddr, err := pk.Address()
	if err != nil {
		return err
	}
	gotAddr, err := recovered.Address()
	if err != nil {
		return err
	}
	if !wantAddr.Equal(gotAddr) {
		return ErrUnexpectedSigner
	}
	return nil
}

// VerifyAddress is the address-only variant of Verify, used where only the
// claimed signer's Address (not its full public key) is on hand — the
// common case for a CommitmentProof, which carries Signer, not PublicKey.
func VerifyAddress(signer lcptypes.Address, msg []byte, sig [SignatureLength]byte) error {
	recovered, err := Recover(msg, sig)
	if err != nil {
		return err
	}
	gotAddr, err := recovered.Address()
	if err != nil {
		return err
	}
	if !signer.Equal(gotAddr) {
		return ErrUnexpectedSigner
	}
	return nil
}
