package zkdcap

import (
	"os"
	"testing"

	"github.com/sbx-labs/lcp-enclave/pkg/attestation/dcap"
)

func TestCommitHashDeterministic(t *testing.T) {
	output := dcap.VerifiedOutput{Version: 1, TCBStatus: "OK", FMSPC: [6]byte{0x01}}
	rootCA := []byte("fake-root-ca-pem")

	c1 := NewCommit(1000, output, rootCA)
	c2 := NewCommit(1000, output, rootCA)
	if c1.Hash() != c2.Hash() {
		t.Fatalf("NewCommit() hash not deterministic")
	}
}

func TestCommitHashChangesWithTime(t *testing.T) {
	output := dcap.VerifiedOutput{Version: 1, TCBStatus: "OK"}
	rootCA := []byte("root-ca")

	c1 := NewCommit(1000, output, rootCA)
	c2 := NewCommit(2000, output, rootCA)
	if c1.Hash() == c2.Hash() {
		t.Fatalf("NewCommit() hash did not change with attestation time")
	}
}

func TestResolveProverModeExplicitWinsOverEnv(t *testing.T) {
	t.Setenv("BONSAI_API_URL", "https://env.example/bonsai")
	t.Setenv("BONSAI_API_KEY", "env-key")

	mode := ResolveProverMode(ProverMode{Kind: ProverModeBonsai, BonsaiURL: "https://explicit.example", BonsaiAPIKey: "explicit-key"})
	if mode.BonsaiURL != "https://explicit.example" || mode.BonsaiAPIKey != "explicit-key" {
		t.Fatalf("ResolveProverMode() = %+v, want explicit values preserved", mode)
	}
}

func TestResolveProverModeFallsBackToEnv(t *testing.T) {
	os.Unsetenv("BONSAI_API_URL")
	os.Unsetenv("BONSAI_API_KEY")
	t.Setenv("BONSAI_API_URL", "https://env.example/bonsai")
	t.Setenv("BONSAI_API_KEY", "env-key")

	mode := ResolveProverMode(ProverMode{Kind: ProverModeBonsai})
	if mode.BonsaiURL != "https://env.example/bonsai" || mode.BonsaiAPIKey != "env-key" {
		t.Fatalf("ResolveProverMode() = %+v, want env fallback", mode)
	}
}

func TestResolveProverModeLocalDevFlag(t *testing.T) {
	t.Setenv("RISC0_DEV_MODE", "1")
	mode := ResolveProverMode(ProverMode{Kind: ProverModeLocal})
	if !mode.Dev {
		t.Fatalf("ResolveProverMode() Dev = false, want true from RISC0_DEV_MODE env")
	}
}

func TestProverSaveLoadKeysRoundTrip(t *testing.T) {
	p := NewProver()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	dir := t.TempDir()
	csPath := dir + "/zkdcap.cs"
	pkPath := dir + "/zkdcap.pk"
	vkPath := dir + "/zkdcap.vk"
	if err := p.SaveKeys(csPath, pkPath, vkPath); err != nil {
		t.Fatalf("SaveKeys() error = %v", err)
	}

	loaded := NewProver()
	if err := loaded.LoadKeys(csPath, pkPath, vkPath); err != nil {
		t.Fatalf("LoadKeys() error = %v", err)
	}

	output := dcap.VerifiedOutput{Version: 1, TCBStatus: "OK"}
	commit := NewCommit(1000, output, []byte("root-ca"))
	proof, err := p.Prove(ProverMode{Kind: ProverModeLocal}, commit)
	if err != nil {
		t.Fatalf("Prove() error = %v", err)
	}
	if err := loaded.Verify(proof, commit); err != nil {
		t.Fatalf("Verify() on loaded prover error = %v", err)
	}
}

func TestProverSaveKeysRejectsUninitialized(t *testing.T) {
	p := NewProver()
	dir := t.TempDir()
	if err := p.SaveKeys(dir+"/cs", dir+"/pk", dir+"/vk"); err == nil {
		t.Fatalf("SaveKeys() error = nil, want error for uninitialized prover")
	}
}
