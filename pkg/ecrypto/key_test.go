// Copyright 2025 Certen Protocol

package ecrypto

import (
	"bytes"
	"testing"
)

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	msg := []byte("lcp commitment proof payload")

	sig, err := key.Sign(msg)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	recovered, err := Recover(msg, sig)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	wantAddr, err := key.Address()
	if err != nil {
		t.Fatalf("Address() error = %v", err)
	}
	gotAddr, err := recovered.Address()
	if err != nil {
		t.Fatalf("recovered.Address() error = %v", err)
	}
	if !bytes.Equal(wantAddr.Bytes(), gotAddr.Bytes()) {
		t.Fatalf("recovered address = %s, want %s", gotAddr, wantAddr)
	}

	if err := Verify(key.Pubkey(), msg, sig); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if err := VerifyAddress(wantAddr, msg, sig); err != nil {
		t.Fatalf("VerifyAddress() error = %v", err)
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	key1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	msg := []byte("payload")

	sig, err := key1.Sign(msg)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if err := Verify(key2.Pubkey(), msg, sig); err != ErrUnexpectedSigner {
		t.Fatalf("Verify() error = %v, want ErrUnexpectedSigner", err)
	}
}

func TestSealUnsealRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	wantAddr, err := key.Address()
	if err != nil {
		t.Fatalf("Address() error = %v", err)
	}

	identity := SealingIdentity{PlatformSecret: []byte("test-platform-secret")}
	identity.MREnclave[0] = 0xAB

	sealed, err := Seal(key, identity)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	unsealed, err := Unseal(sealed, identity)
	if err != nil {
		t.Fatalf("Unseal() error = %v", err)
	}
	gotAddr, err := unsealed.Address()
	if err != nil {
		t.Fatalf("unsealed.Address() error = %v", err)
	}
	if !bytes.Equal(wantAddr.Bytes(), gotAddr.Bytes()) {
		t.Fatalf("unsealed address = %s, want %s", gotAddr, wantAddr)
	}
}

func TestUnsealFailsOnDifferentIdentity(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	sealingIdentity := SealingIdentity{PlatformSecret: []byte("platform-a")}
	sealed, err := Seal(key, sealingIdentity)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	otherIdentity := SealingIdentity{PlatformSecret: []byte("platform-b")}
	if _, err := Unseal(sealed, otherIdentity); err != ErrUnsealFailed {
		t.Fatalf("Unseal() error = %v, want ErrUnsealFailed", err)
	}
}

func TestUnsealRejectsTruncatedInput(t *testing.T) {
	if _, err := Unseal([]byte{1, 2, 3}, SealingIdentity{}); err != ErrInvalidSealedLength {
		t.Fatalf("Unseal() error = %v, want ErrInvalidSealedLength", err)
	}
}
