// Copyright 2025 Certen Protocol
//
// Package server exposes the outer LCP client's commands over HTTP, in the
// handler-struct idiom of pkg/server/attestation_handlers.go: one struct per
// concern wrapping the collaborator it fronts plus a *log.Logger, one
// NewXHandlers constructor, and one HandleX method per route.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sbx-labs/lcp-enclave/pkg/commitment"
	"github.com/sbx-labs/lcp-enclave/pkg/lcpclient"
	"github.com/sbx-labs/lcp-enclave/pkg/lcperrors"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/metrics"
)

// ClientHandlers serves the outer LCP client's HTTP surface: registering
// enclave keys, updating client state, and verifying (non-)membership
// proofs against it.
type ClientHandlers struct {
	client  *lcpclient.Client
	audit   AuditRecorder
	metrics *metrics.Registry
	logger  *log.Logger
}

// AuditRecorder is the subset of *auditlog.Client the HTTP handlers use,
// kept as an interface so tests can supply a stub instead of a live
// Firestore connection.
type AuditRecorder interface {
	RecordEnclaveKeyRegistered(ctx context.Context, clientID lcptypes.ClientID, enclave lcptypes.Address, mrEnclave [32]byte, expiresAt time.Time) error
	RecordClientUpdated(ctx context.Context, clientID lcptypes.ClientID, signer lcptypes.Address, postHeight lcptypes.Height, postStateID lcptypes.StateID) error
	RecordMisbehaviourFrozen(ctx context.Context, clientID lcptypes.ClientID, signer lcptypes.Address, reason string) error
	RecordError(ctx context.Context, clientID lcptypes.ClientID, command string, cause error) error
}

// NewClientHandlers constructs ClientHandlers. audit may be nil, in which
// case no audit entries are recorded.
func NewClientHandlers(client *lcpclient.Client, audit AuditRecorder, reg *metrics.Registry, logger *log.Logger) *ClientHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[ClientAPI] ", log.LstdFlags)
	}
	return &ClientHandlers{client: client, audit: audit, metrics: reg, logger: logger}
}

type registerEnclaveKeyRequest struct {
	ClientID          string   `json:"client_id"`
	EnclaveAddress    string   `json:"enclave_address"`
	OperatorAddress   string   `json:"operator_address"`
	MrEnclave         string   `json:"mr_enclave"`
	AttestationTime   string   `json:"attestation_time"` // RFC3339
	QuoteStatus       string   `json:"quote_status"`
	AdvisoryIDs       []string `json:"advisory_ids"`
	ReportDataVersion int      `json:"report_data_version"`
}

// HandleRegisterEnclaveKey serves POST /v1/clients/{id}/enclave-keys.
func (h *ClientHandlers) HandleRegisterEnclaveKey(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerEnclaveKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	enclave, err := decodeAddress(req.EnclaveAddress)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	operator, err := decodeAddress(req.OperatorAddress)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	mrEnclave, err := decodeBytes32(req.MrEnclave)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	attestedAt, err := time.Parse(time.RFC3339, req.AttestationTime)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("invalid attestation_time: %v", err), http.StatusBadRequest)
		return
	}

	clientID := lcptypes.ClientID(req.ClientID)
	ra := lcpclient.RAResult{
		EnclaveAddress:    enclave,
		OperatorAddress:   operator,
		MrEnclave:         mrEnclave,
		AttestationTime:   attestedAt,
		QuoteStatus:       req.QuoteStatus,
		AdvisoryIDs:       req.AdvisoryIDs,
		ReportDataVersion: byte(req.ReportDataVersion),
	}

	if err := h.client.RegisterEnclaveKey(clientID, ra); err != nil {
		h.observeError(r.Context(), clientID, "RegisterEnclaveKey", err, start)
		writeClassifiedError(w, err)
		return
	}

	cs, err := h.client.ClientState(clientID)
	if err == nil && h.audit != nil {
		h.audit.RecordEnclaveKeyRegistered(r.Context(), clientID, enclave, mrEnclave, attestedAt.Add(cs.KeyExpiration))
	}
	h.observeSuccess("RegisterEnclaveKey", start)

	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

type commitmentProofRequest struct {
	ClientID string `json:"client_id"`
	Proof    string `json:"proof"` // hex-encoded ABI-packed CommitmentProof
}

func (req commitmentProofRequest) decode() (lcptypes.ClientID, lcptypes.CommitmentProof, error) {
	raw, err := hex.DecodeString(trim0x(req.Proof))
	if err != nil {
		return "", lcptypes.CommitmentProof{}, fmt.Errorf("invalid proof hex: %w", err)
	}
	proof, err := commitment.DecodeCommitmentProof(raw)
	if err != nil {
		return "", lcptypes.CommitmentProof{}, err
	}
	return lcptypes.ClientID(req.ClientID), proof, nil
}

// verifyMembershipRequest is commitmentProofRequest plus the caller's
// expected prefix/path/value, which the outer client checks the proof's
// commitment against rather than trusting the caller's own comparison.
type verifyMembershipRequest struct {
	ClientID       string `json:"client_id"`
	Proof          string `json:"proof"`
	ExpectedPrefix string `json:"expected_prefix"` // hex
	ExpectedPath   string `json:"expected_path"`
	ExpectedValue  string `json:"expected_value"` // hex
}

func (req verifyMembershipRequest) decode() (lcptypes.ClientID, lcptypes.CommitmentProof, []byte, string, []byte, error) {
	cpReq := commitmentProofRequest{ClientID: req.ClientID, Proof: req.Proof}
	clientID, proof, err := cpReq.decode()
	if err != nil {
		return "", lcptypes.CommitmentProof{}, nil, "", nil, err
	}
	prefix, err := hex.DecodeString(trim0x(req.ExpectedPrefix))
	if err != nil {
		return "", lcptypes.CommitmentProof{}, nil, "", nil, fmt.Errorf("invalid expected_prefix hex: %w", err)
	}
	value, err := hex.DecodeString(trim0x(req.ExpectedValue))
	if err != nil {
		return "", lcptypes.CommitmentProof{}, nil, "", nil, fmt.Errorf("invalid expected_value hex: %w", err)
	}
	return clientID, proof, prefix, req.ExpectedPath, value, nil
}

// HandleUpdateClient serves POST /v1/clients/{id}/update.
func (h *ClientHandlers) HandleUpdateClient(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req commitmentProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	clientID, proof, err := req.decode()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.client.UpdateClient(clientID, proof, time.Now())
	if err != nil {
		h.observeError(r.Context(), clientID, "UpdateClient", err, start)
		if h.audit != nil {
			h.audit.RecordError(r.Context(), clientID, "UpdateClient", err)
		}
		writeClassifiedError(w, err)
		return
	}
	h.observeSuccess("UpdateClient", start)

	if h.audit != nil {
		switch msg.Kind {
		case lcptypes.ProxyMessageKindUpdateState:
			h.audit.RecordClientUpdated(r.Context(), clientID, proof.Signer, msg.UpdateState.PostHeight, msg.UpdateState.PostStateID)
		case lcptypes.ProxyMessageKindMisbehaviour:
			h.audit.RecordMisbehaviourFrozen(r.Context(), clientID, proof.Signer, "accepted misbehaviour message")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"kind": msg.Kind.String()})
}

// HandleVerifyMembership serves POST /v1/clients/{id}/verify-membership.
func (h *ClientHandlers) HandleVerifyMembership(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req verifyMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	clientID, proof, expectedPrefix, expectedPath, expectedValue, err := req.decode()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	vm, err := h.client.VerifyMembership(clientID, proof, expectedPrefix, expectedPath, expectedValue, time.Now())
	if err != nil {
		h.observeError(r.Context(), clientID, "VerifyMembership", err, start)
		writeClassifiedError(w, err)
		return
	}
	h.observeSuccess("VerifyMembership", start)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":   vm.Path,
		"height": vm.Height.String(),
	})
}

// HandleVerifyNonMembership serves POST /v1/clients/{id}/verify-non-membership.
func (h *ClientHandlers) HandleVerifyNonMembership(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req verifyMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	clientID, proof, expectedPrefix, expectedPath, _, err := req.decode()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	vnm, err := h.client.VerifyNonMembership(clientID, proof, expectedPrefix, expectedPath, time.Now())
	if err != nil {
		h.observeError(r.Context(), clientID, "VerifyNonMembership", err, start)
		writeClassifiedError(w, err)
		return
	}
	h.observeSuccess("VerifyNonMembership", start)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":   vnm.Path,
		"height": vnm.Height.String(),
	})
}

// HandleGetClientState serves GET /v1/clients/{id}, with id supplied via
// the "client_id" query parameter.
func (h *ClientHandlers) HandleGetClientState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clientID := lcptypes.ClientID(r.URL.Query().Get("client_id"))
	cs, err := h.client.ClientState(clientID)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"latest_height": cs.LatestHeight.String(),
		"frozen":        cs.Frozen,
		"mr_enclave":    hex.EncodeToString(cs.MrEnclave[:]),
	})
}

func (h *ClientHandlers) observeSuccess(command string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveCommand(command, "ok", time.Since(start).Seconds())
	}
}

func (h *ClientHandlers) observeError(ctx context.Context, clientID lcptypes.ClientID, command string, err error, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveCommand(command, "error", time.Since(start).Seconds())
	}
	h.logger.Printf("%s failed for client=%s: %v", command, clientID, err)
}

func decodeAddress(s string) (lcptypes.Address, error) {
	b, err := hex.DecodeString(trim0x(s))
	if err != nil {
		return lcptypes.Address{}, fmt.Errorf("invalid address hex: %w", err)
	}
	return lcptypes.AddressFromBytes(b)
}

func decodeBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(trim0x(s))
	if err != nil {
		return out, fmt.Errorf("invalid bytes32 hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeClassifiedError(w http.ResponseWriter, err error) {
	classified := lcperrors.Classify(err)
	status := http.StatusUnprocessableEntity
	switch classified.Kind {
	case lcperrors.KindClientNotFound, lcperrors.KindConsensusStateNotFound:
		status = http.StatusNotFound
	case lcperrors.KindClientAlreadyExists, lcperrors.KindEnclaveKeyAlreadyExists:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"error": classified.Cause.Error(),
		"kind":  string(classified.Kind),
	})
}
