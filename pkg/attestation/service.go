// Copyright 2025 Certen Protocol
//
// Service implements the engine-facing attestation commands from spec §6:
// InitEnclave, IASRemoteAttestation, DCAPAttestation, ZKDCAPAttestation.
//
// Structurally grounded on pkg/attestation/service.go's teacher shape: a
// sync.RWMutex-guarded Service holding maps keyed by identifier, an
// HTTP client for outbound network calls, and a *log.Logger — generalized
// here from multi-validator attestation-bundle collection to single-enclave
// RA-key lifecycle management.

package attestation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sbx-labs/lcp-enclave/pkg/attestation/dcap"
	"github.com/sbx-labs/lcp-enclave/pkg/attestation/ias"
	"github.com/sbx-labs/lcp-enclave/pkg/attestation/keymanager"
	"github.com/sbx-labs/lcp-enclave/pkg/attestation/zkdcap"
	"github.com/sbx-labs/lcp-enclave/pkg/ecrypto"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// RAType mirrors keymanager.RAType for callers that only depend on this
// package.
type RAType = keymanager.RAType

const (
	RATypeIAS    = keymanager.RATypeIAS
	RATypeDCAP   = keymanager.RATypeDCAP
	RATypeZKDCAP = keymanager.RATypeZKDCAP
)

// enclaveSession holds an in-memory (unsealed) EnclaveKey and its sealing
// identity while it is active; the sealed form is the only copy that
// persists via keymanager.
type enclaveSession struct {
	key      *ecrypto.EnclaveKey
	identity ecrypto.SealingIdentity
	ra       RAType
	operator lcptypes.Address
}

// Service owns every enclave key this process has generated and brokers the
// three RA flavors over them.
type Service struct {
	mu sync.RWMutex

	sessions map[lcptypes.Address]*enclaveSession

	keys *keymanager.Manager

	iasClient   *ias.Client
	zkProver    *zkdcap.Prover

	mrEnclave [32]byte
	debug     bool

	logger *log.Logger
}

// Config configures a Service.
type Config struct {
	KeyManager *keymanager.Manager
	MREnclave  [32]byte
	Debug      bool
	IASBaseURL string
	IASDev     bool
	Logger     *log.Logger
}

// NewService constructs a Service. The returned Service's zkDCAP prover is
// uninitialized; callers that plan to serve ZKDCAPAttestation must call
// EnsureZKProverInitialized once before first use (the Groth16 setup is
// expensive enough that it shouldn't run implicitly on every command).
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[Attestation] ", log.LstdFlags)
	}
	return &Service{
		sessions:  make(map[lcptypes.Address]*enclaveSession),
		keys:      cfg.KeyManager,
		iasClient: ias.NewClient(cfg.IASBaseURL, cfg.IASDev),
		zkProver:  zkdcap.NewProver(),
		mrEnclave: cfg.MREnclave,
		debug:     cfg.Debug,
		logger:    logger,
	}
}

// EnsureZKProverInitialized runs the zkDCAP Groth16 trusted setup if it has
// not already run.
func (s *Service) EnsureZKProverInitialized() error {
	return s.zkProver.Initialize()
}

// InitEnclaveCommand generates a fresh enclave key and records raType with
// it. InitEnclave does not run any RA flavor itself.
type InitEnclaveCommand struct {
	SPID     string
	IASKey   string
	RAType   RAType
	Operator lcptypes.Address
}

// InitEnclaveResult is the address of the freshly generated key. InitEnclave
// leaves RAResult empty.
type InitEnclaveResult struct {
	Address lcptypes.Address
	RAResult []byte
}

// InitEnclave implements the InitEnclave command (spec §6): generate a
// secp256k1 key inside the TEE, hold it unsealed for the duration of this
// process session, and record its metadata.
func (s *Service) InitEnclave(cmd InitEnclaveCommand) (InitEnclaveResult, error) {
	key, err := ecrypto.GenerateKey()
	if err != nil {
		return InitEnclaveResult{}, fmt.Errorf("attestation: generate enclave key: %w", err)
	}
	addr, err := key.Address()
	if err != nil {
		return InitEnclaveResult{}, fmt.Errorf("attestation: derive enclave key address: %w", err)
	}

	s.mu.Lock()
	s.sessions[addr] = &enclaveSession{
		key:      key,
		identity: ecrypto.SealingIdentity{MREnclave: s.mrEnclave, PlatformSecret: s.mrEnclave[:]},
		ra:       cmd.RAType,
		operator: cmd.Operator,
	}
	s.mu.Unlock()

	return InitEnclaveResult{Address: addr}, nil
}

// EnclaveKey returns the active signing key for addr, letting callers wire
// this Service as an elc.KeyProvider without the engine depending on
// attestation's session/sealing internals.
func (s *Service) EnclaveKey(addr lcptypes.Address) (*ecrypto.EnclaveKey, error) {
	sess, err := s.session(addr)
	if err != nil {
		return nil, err
	}
	return sess.key, nil
}

// session looks up an active session for addr or returns ErrKeyNotFound.
func (s *Service) session(addr lcptypes.Address) (*enclaveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[addr]
	if !ok {
		return nil, fmt.Errorf("attestation: %w: %s", ErrKeyNotFound, addr)
	}
	return sess, nil
}

func (s *Service) persist(ctx context.Context, addr lcptypes.Address, sess *enclaveSession, raResult []byte) error {
	if s.keys == nil {
		return nil
	}
	sealed, err := ecrypto.Seal(sess.key, sess.identity)
	if err != nil {
		return fmt.Errorf("attestation: seal enclave key: %w", err)
	}
	return s.keys.Save(ctx, keymanager.KeyRecord{
		Address:      addr,
		SealedSecret: sealed,
		RAResult:     raResult,
		MrEnclave:    s.mrEnclave,
		Debug:        s.debug,
		RAType:       sess.ra,
		RegisteredAt: time.Now(),
	})
}

// IASRemoteAttestationCommand submits an enclave quote to IAS for the
// address that InitEnclave already generated.
type IASRemoteAttestationCommand struct {
	Address lcptypes.Address
	SPID    string
	IASKey  string
	Quote   []byte
	IsDev   bool
}

// IASRemoteAttestationResult carries the signed AVR produced by IAS.
type IASRemoteAttestationResult struct {
	SignedReport *ias.SignedReport
}

// IASRemoteAttestation implements the IASRemoteAttestation command.
func (s *Service) IASRemoteAttestation(ctx context.Context, cmd IASRemoteAttestationCommand) (IASRemoteAttestationResult, error) {
	sess, err := s.session(cmd.Address)
	if err != nil {
		return IASRemoteAttestationResult{}, err
	}

	report, err := s.iasClient.SubmitQuote(ctx, ias.Request{SPID: cmd.SPID, IASKey: cmd.IASKey, Quote: cmd.Quote, IsDev: cmd.IsDev})
	if err != nil {
		return IASRemoteAttestationResult{}, fmt.Errorf("attestation: IAS submission: %w", err)
	}

	sess.ra = RATypeIAS
	if err := s.persist(ctx, cmd.Address, sess, report.AVR); err != nil {
		return IASRemoteAttestationResult{}, err
	}
	return IASRemoteAttestationResult{SignedReport: report}, nil
}

// DCAPAttestationCommand supplies the already-obtained quote and a
// collateral bundle (fetched by an external collateral service) for the DCAP
// verifier to walk.
type DCAPAttestationCommand struct {
	Address         lcptypes.Address
	Quote           dcap.Quote
	Collateral      dcap.Collateral
	IsEarlyUpdate   bool
}

// DCAPResult is the outcome of a DCAP verification.
type DCAPResult struct {
	Quote          dcap.Quote
	Collateral     dcap.Collateral
	VerifiedOutput dcap.VerifiedOutput
}

// DCAPAttestation implements the DCAPAttestation command.
func (s *Service) DCAPAttestation(ctx context.Context, cmd DCAPAttestationCommand) (DCAPResult, error) {
	sess, err := s.session(cmd.Address)
	if err != nil {
		return DCAPResult{}, err
	}

	output, err := dcap.Verify(cmd.Quote, cmd.Collateral)
	if err != nil {
		return DCAPResult{}, fmt.Errorf("attestation: DCAP verification: %w", err)
	}

	sess.ra = RATypeDCAP
	if err := s.persist(ctx, cmd.Address, sess, output.ToBytes()); err != nil {
		return DCAPResult{}, err
	}
	return DCAPResult{Quote: cmd.Quote, Collateral: cmd.Collateral, VerifiedOutput: output}, nil
}

// ZKDCAPAttestationCommand wraps a DCAP verification in a zkVM proof per
// spec's ProverMode selection.
type ZKDCAPAttestationCommand struct {
	Address    lcptypes.Address
	Quote      dcap.Quote
	Collateral dcap.Collateral
	ProverMode zkdcap.ProverMode
}

// ZKDCAPResult is the DCAP result plus its accompanying zero-knowledge proof.
type ZKDCAPResult struct {
	DCAP DCAPResult
	ZKP  *zkdcap.Proof
}

// ZKDCAPAttestation implements the ZKDCAPAttestation command: the DCAP
// verification result is committed to (attestation_time,
// keccak256(root_CA), VerifiedOutput) and proven in zero knowledge.
func (s *Service) ZKDCAPAttestation(ctx context.Context, cmd ZKDCAPAttestationCommand) (ZKDCAPResult, error) {
	dcapResult, err := s.DCAPAttestation(ctx, DCAPAttestationCommand{
		Address:    cmd.Address,
		Quote:      cmd.Quote,
		Collateral: cmd.Collateral,
	})
	if err != nil {
		return ZKDCAPResult{}, err
	}

	mode := zkdcap.ResolveProverMode(cmd.ProverMode)
	commit := zkdcap.NewCommit(cmd.Quote.AttestedAt, dcapResult.VerifiedOutput, cmd.Collateral.RootCACert)

	proof, err := s.zkProver.Prove(mode, commit)
	if err != nil {
		return ZKDCAPResult{}, fmt.Errorf("%w: %v", ErrInvalidZkVMProof, err)
	}

	sess, err := s.session(cmd.Address)
	if err != nil {
		return ZKDCAPResult{}, err
	}
	sess.ra = RATypeZKDCAP
	if err := s.persist(ctx, cmd.Address, sess, commit.ToBytes()); err != nil {
		return ZKDCAPResult{}, err
	}

	return ZKDCAPResult{DCAP: dcapResult, ZKP: proof}, nil
}

// IsActive reports whether an enclave address's RA result is still within
// its key_expiration window, per spec 4.7's expiration rule.
func IsActive(attestedAt time.Time, keyExpiration time.Duration, now time.Time) bool {
	return now.Before(attestedAt.Add(keyExpiration))
}

// Sign delegates to the active session's enclave key.
func (s *Service) Sign(addr lcptypes.Address, msg []byte) ([ecrypto.SignatureLength]byte, error) {
	sess, err := s.session(addr)
	if err != nil {
		return [ecrypto.SignatureLength]byte{}, err
	}
	return sess.key.Sign(msg)
}
