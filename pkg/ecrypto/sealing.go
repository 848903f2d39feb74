// Copyright 2025 Certen Protocol
//
// Sealing stands in for the SGX sealing-key hierarchy (spec §4.1): the key
// used to encrypt an EnclaveKey's secret for storage outside the TEE is
// derived from a platform identity secret plus the running enclave's
// measurement, so that unsealing fails whenever either changes.

package ecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MREnclaveLength is the byte length of an enclave measurement.
const MREnclaveLength = 32

// sealedKeyVersion is prefixed to every sealed blob so future sealing-key
// derivation schemes can be distinguished from this one.
const sealedKeyVersion = 1

// nonceLength is the AES-GCM nonce length.
const nonceLength = 12

// ErrUnsealFailed is returned by Unseal when decryption fails — either the
// sealed bytes are corrupt, or they were sealed under a different
// MRENCLAVE or platform identity than the one unsealing them.
var ErrUnsealFailed = errors.New("ecrypto: unseal failed")

// ErrInvalidSealedLength is returned when a sealed blob is too short to
// contain the version byte and nonce.
var ErrInvalidSealedLength = errors.New("ecrypto: invalid sealed data length")

// SealingIdentity binds a sealing operation to a specific enclave
// measurement and platform. In a real SGX deployment this is supplied by
// the platform's sealing key hierarchy (EGETKEY with KEYNAME=SEAL); here it
// is the (mrenclave, platform secret) pair the enclave process was
// launched with.
type SealingIdentity struct {
	MREnclave      [MREnclaveLength]byte
	PlatformSecret []byte
}

func (id SealingIdentity) deriveKey() ([]byte, error) {
	salt := id.MREnclave[:]
	r := hkdf.New(sha256.New, id.PlatformSecret, salt, []byte("lcp-enclave-key-sealing-v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("ecrypto: derive sealing key: %w", err)
	}
	return key, nil
}

// Seal encrypts k's secret scalar under a key derived from identity,
// producing a fixed-length opaque blob safe to persist outside the TEE.
func Seal(k *EnclaveKey, identity SealingIdentity) ([]byte, error) {
	sealingKey, err := identity.deriveKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(sealingKey)
	if err != nil {
		return nil, fmt.Errorf("ecrypto: seal: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ecrypto: seal: %w", err)
	}
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("ecrypto: seal: %w", err)
	}

	plaintext := k.secretBytes()
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, 1+len(nonce)+len(ciphertext))
	out = append(out, sealedKeyVersion)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Unseal decrypts a blob produced by Seal. It fails with ErrUnsealFailed if
// identity does not match the one used at sealing time.
func Unseal(sealed []byte, identity SealingIdentity) (*EnclaveKey, error) {
	if len(sealed) < 1+nonceLength {
		return nil, ErrInvalidSealedLength
	}
	if sealed[0] != sealedKeyVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrUnsealFailed, sealed[0])
	}
	nonce := sealed[1 : 1+nonceLength]
	ciphertext := sealed[1+nonceLength:]

	sealingKey, err := identity.deriveKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(sealingKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrUnsealFailed
	}
	defer func() {
		for i := range plaintext {
			plaintext[i] = 0
		}
	}()

	priv, err := secretToECDSA(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	return keyFromECDSA(priv), nil
}
