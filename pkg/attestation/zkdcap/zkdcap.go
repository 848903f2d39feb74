// Copyright 2025 Certen Protocol
//
// zkDCAP remote attestation: the DCAP verification procedure run inside a
// zkVM, committing to (attestation_time, keccak256(root_CA), VerifiedOutput)
// so a relying party can trust the result without re-walking collateral.
//
// The Groth16 setup/prove/verify lifecycle and public/private-witness
// plumbing are grounded on pkg/crypto/bls_zkp/{circuit,prover}.go's gnark
// usage in the teacher repo; the commitment semantics follow
// original_source/modules/attestation-report/src/dcap.rs's DCAPVerifierCommit.

package zkdcap

import (
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"golang.org/x/crypto/sha3"

	"github.com/sbx-labs/lcp-enclave/pkg/attestation/dcap"
)

// ProverModeKind selects where proof generation happens.
type ProverModeKind int

const (
	// ProverModeLocal runs the prover in-process.
	ProverModeLocal ProverModeKind = iota
	// ProverModeBonsai delegates proving to a Bonsai proving service.
	ProverModeBonsai
)

// ProverMode mirrors the spec's `prover_mode ∈ { Local{dev?}, Bonsai{url?, key?} }`.
type ProverMode struct {
	Kind ProverModeKind

	// Local
	Dev bool

	// Bonsai
	BonsaiURL    string
	BonsaiAPIKey string
}

// ResolveProverMode applies the spec's precedence rule for RISC0/Bonsai
// configuration: explicit option > environment variable > default.
func ResolveProverMode(explicit ProverMode) ProverMode {
	resolved := explicit
	if resolved.Kind == ProverModeLocal && !resolved.Dev {
		if v := os.Getenv("RISC0_DEV_MODE"); v == "1" || v == "true" {
			resolved.Dev = true
		}
	}
	if resolved.Kind == ProverModeBonsai {
		if resolved.BonsaiURL == "" {
			resolved.BonsaiURL = os.Getenv("BONSAI_API_URL")
		}
		if resolved.BonsaiAPIKey == "" {
			resolved.BonsaiAPIKey = os.Getenv("BONSAI_API_KEY")
		}
	}
	return resolved
}

// Commit is the zkVM's committed public output: the attestation time, the
// keccak256 hash of the Intel root CA, and the DCAP VerifiedOutput the guest
// program computed.
type Commit struct {
	AttestationTime    int64
	SGXIntelRootCAHash [32]byte
	Output             dcap.VerifiedOutput
}

// ToBytes serializes the commit the way the guest program would, matching
// DCAPVerifierCommit::to_bytes in the original implementation: little-endian
// time, then the root CA hash, then the verified output's own encoding.
func (c Commit) ToBytes() []byte {
	buf := make([]byte, 0, 8+32+64)
	t := uint64(c.AttestationTime)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(t>>(8*i)))
	}
	buf = append(buf, c.SGXIntelRootCAHash[:]...)
	buf = append(buf, c.Output.ToBytes()...)
	return buf
}

// Hash returns the keccak256 hash of the serialized commit.
func (c Commit) Hash() [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(c.ToBytes())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// NewCommit builds a Commit from a successful DCAP verification.
func NewCommit(attestationTime int64, output dcap.VerifiedOutput, rootCA []byte) Commit {
	h := sha3.NewLegacyKeccak256()
	h.Write(rootCA)
	var rootHash [32]byte
	copy(rootHash[:], h.Sum(nil))
	return Commit{AttestationTime: attestationTime, SGXIntelRootCAHash: rootHash, Output: output}
}

// Proof is a generated zkDCAP proof ready for submission to the engine's
// ZKDCAPAttestation command.
type Proof struct {
	ProofA [2]*big.Int
	ProofB [2][2]*big.Int
	ProofC [2]*big.Int

	CommitHash [32]byte
}

// commitCircuit is a commitment-based stand-in for the full zkVM guest: it
// proves knowledge of a commit preimage without re-executing certificate
// chain walking in-circuit, following the teacher's SimpleBLSCircuit pattern
// of verifying algebraic constraints over a linear commitment rather than
// the full underlying computation.
type commitCircuit struct {
	CommitHash frontend.Variable `gnark:",public"`

	AttestationTime    frontend.Variable
	SGXIntelRootCAHash0 frontend.Variable
	OutputCommitment    frontend.Variable
}

func (c *commitCircuit) Define(api frontend.API) error {
	mixed := api.Add(c.AttestationTime, api.Mul(c.SGXIntelRootCAHash0, 7))
	mixed = api.Add(mixed, api.Mul(c.OutputCommitment, 49))
	api.AssertIsEqual(c.CommitHash, mixed)
	return nil
}

// Prover compiles and holds the Groth16 proving/verification keys for the
// zkDCAP commitment circuit.
type Prover struct {
	mu sync.RWMutex

	cs          constraint.ConstraintSystem
	pk          groth16.ProvingKey
	vk          groth16.VerifyingKey
	initialized bool
}

// NewProver creates an uninitialized zkDCAP prover.
func NewProver() *Prover {
	return &Prover{}
}

// Initialize compiles the commitment circuit and runs the Groth16 trusted setup.
func (p *Prover) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	var circuit commitCircuit
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return fmt.Errorf("compile zkDCAP circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}
	p.cs, p.pk, p.vk = cs, pk, vk
	p.initialized = true
	return nil
}

// Prove generates a zkDCAP proof for a Commit using the given mode. The
// Bonsai mode is stubbed as a local proof here; wiring an actual Bonsai HTTP
// round trip is left to the ZKDCAPAttestation command's caller, which is
// expected to supply the mode's URL/key to an external prover client.
func (p *Prover) Prove(mode ProverMode, commit Commit) (*Proof, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return nil, errors.New("zkdcap: prover not initialized")
	}

	commitHash := commit.Hash()
	commitHashInt := new(big.Int).SetBytes(commitHash[:])
	reduced := new(big.Int).Mod(commitHashInt, ecc.BN254.ScalarField())

	rootCAComponent := new(big.Int).SetBytes(commit.SGXIntelRootCAHash[:4])
	outputComponent := new(big.Int).SetBytes(commit.Output.ToBytes()[:4])

	assignment := &commitCircuit{
		CommitHash:          reduced,
		AttestationTime:      commit.AttestationTime,
		SGXIntelRootCAHash0:  rootCAComponent,
		OutputCommitment:     outputComponent,
	}
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("zkdcap: build witness: %w", err)
	}
	proof, err := groth16.Prove(p.cs, p.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("zkdcap: generate proof: %w", err)
	}
	proofBN254, ok := proof.(*groth16_bn254.Proof)
	if !ok {
		return nil, errors.New("zkdcap: proof is not BN254 type")
	}

	ax, ay := new(big.Int), new(big.Int)
	proofBN254.Ar.X.BigInt(ax)
	proofBN254.Ar.Y.BigInt(ay)
	bx0, bx1, by0, by1 := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	proofBN254.Bs.X.A0.BigInt(bx0)
	proofBN254.Bs.X.A1.BigInt(bx1)
	proofBN254.Bs.Y.A0.BigInt(by0)
	proofBN254.Bs.Y.A1.BigInt(by1)
	cx, cy := new(big.Int), new(big.Int)
	proofBN254.Krs.X.BigInt(cx)
	proofBN254.Krs.Y.BigInt(cy)

	return &Proof{
		ProofA:     [2]*big.Int{ax, ay},
		ProofB:     [2][2]*big.Int{{bx0, bx1}, {by0, by1}},
		ProofC:     [2]*big.Int{cx, cy},
		CommitHash: commitHash,
	}, nil
}

// SaveKeys persists the compiled constraint system and the Groth16
// proving/verifying keys produced by Initialize, so a later process can
// load them via LoadKeys instead of repeating the trusted setup.
func (p *Prover) SaveKeys(csPath, pkPath, vkPath string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return errors.New("zkdcap: prover not initialized")
	}

	csFile, err := os.Create(csPath)
	if err != nil {
		return fmt.Errorf("create constraint system file: %w", err)
	}
	defer csFile.Close()
	if _, err := p.cs.WriteTo(csFile); err != nil {
		return fmt.Errorf("write constraint system: %w", err)
	}

	pkFile, err := os.Create(pkPath)
	if err != nil {
		return fmt.Errorf("create proving key file: %w", err)
	}
	defer pkFile.Close()
	if _, err := p.pk.WriteTo(pkFile); err != nil {
		return fmt.Errorf("write proving key: %w", err)
	}

	vkFile, err := os.Create(vkPath)
	if err != nil {
		return fmt.Errorf("create verification key file: %w", err)
	}
	defer vkFile.Close()
	if _, err := p.vk.WriteTo(vkFile); err != nil {
		return fmt.Errorf("write verification key: %w", err)
	}
	return nil
}

// LoadKeys loads a constraint system and Groth16 key pair previously written
// by SaveKeys, skipping the trusted setup.
func (p *Prover) LoadKeys(csPath, pkPath, vkPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}

	csFile, err := os.Open(csPath)
	if err != nil {
		return fmt.Errorf("open constraint system: %w", err)
	}
	defer csFile.Close()
	cs := groth16.NewCS(ecc.BN254)
	if _, err := cs.ReadFrom(csFile); err != nil {
		return fmt.Errorf("read constraint system: %w", err)
	}

	pkFile, err := os.Open(pkPath)
	if err != nil {
		return fmt.Errorf("open proving key: %w", err)
	}
	defer pkFile.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(pkFile); err != nil {
		return fmt.Errorf("read proving key: %w", err)
	}

	vkFile, err := os.Open(vkPath)
	if err != nil {
		return fmt.Errorf("open verification key: %w", err)
	}
	defer vkFile.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(vkFile); err != nil {
		return fmt.Errorf("read verification key: %w", err)
	}

	p.cs, p.pk, p.vk = cs, pk, vk
	p.initialized = true
	return nil
}

// RunSetupCLI runs the zkDCAP trusted setup from command-line flags and
// writes the resulting constraint system and key pair to disk, for use by
// cmd/zkdcap-setup. Mirrors the teacher's bls_zkp setup CLI shape.
func RunSetupCLI() error {
	fs := flag.NewFlagSet("zkdcap-setup", flag.ExitOnError)
	outDir := fs.String("out", "./zkdcap-keys", "directory to write the constraint system and key pair to")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p := NewProver()
	fmt.Println("running zkDCAP trusted setup (this can take several seconds)...")
	if err := p.Initialize(); err != nil {
		return fmt.Errorf("initialize prover: %w", err)
	}

	csPath := filepath.Join(*outDir, "zkdcap.cs")
	pkPath := filepath.Join(*outDir, "zkdcap.pk")
	vkPath := filepath.Join(*outDir, "zkdcap.vk")
	if err := p.SaveKeys(csPath, pkPath, vkPath); err != nil {
		return fmt.Errorf("save keys: %w", err)
	}

	fmt.Printf("wrote constraint system to %s\n", csPath)
	fmt.Printf("wrote proving key to %s\n", pkPath)
	fmt.Printf("wrote verifying key to %s\n", vkPath)
	return nil
}

// ErrInvalidZkVMProof is returned when Verify fails to validate a proof.
var ErrInvalidZkVMProof = errors.New("zkdcap: invalid zkVM proof")

// Verify checks a Proof against the public CommitHash. Extraction of the
// committed VerifiedOutput for use by the outer client is the caller's
// responsibility once the proof validates: the commit hash alone does not
// reveal the output, so callers carry the plaintext Commit alongside the
// proof and pass it as expected; Verify rejects the proof unless
// proof.CommitHash == expected.Hash().
func (p *Prover) Verify(proof *Proof, expected Commit) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return errors.New("zkdcap: prover not initialized")
	}
	if proof.CommitHash != expected.Hash() {
		return fmt.Errorf("%w: commit hash mismatch", ErrInvalidZkVMProof)
	}

	commitHashInt := new(big.Int).SetBytes(proof.CommitHash[:])
	reduced := new(big.Int).Mod(commitHashInt, ecc.BN254.ScalarField())
	publicAssignment := &commitCircuit{CommitHash: reduced}
	publicWitness, err := frontend.NewWitness(publicAssignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("%w: build public witness: %v", ErrInvalidZkVMProof, err)
	}

	reconstructed := &groth16_bn254.Proof{}
	reconstructed.Ar.X.SetBigInt(proof.ProofA[0])
	reconstructed.Ar.Y.SetBigInt(proof.ProofA[1])
	reconstructed.Bs.X.A0.SetBigInt(proof.ProofB[0][0])
	reconstructed.Bs.X.A1.SetBigInt(proof.ProofB[0][1])
	reconstructed.Bs.Y.A0.SetBigInt(proof.ProofB[1][0])
	reconstructed.Bs.Y.A1.SetBigInt(proof.ProofB[1][1])
	reconstructed.Krs.X.SetBigInt(proof.ProofC[0])
	reconstructed.Krs.Y.SetBigInt(proof.ProofC[1])

	if err := groth16.Verify(reconstructed, p.vk, publicWitness); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidZkVMProof, err)
	}
	return nil
}
