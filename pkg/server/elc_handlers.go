// Copyright 2025 Certen Protocol
//
// ELCHandlers fronts the enclave-side ELC engine (spec §4.5): the commands
// that create and advance a client's own committed state, as opposed to
// ClientHandlers' relying-party-facing verification surface. Same
// XHandlers/writeJSONError idiom as ClientHandlers and
// pkg/server/attestation_handlers.go.
package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sbx-labs/lcp-enclave/pkg/elc"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// ELCHandlers serves the ELC engine's client-lifecycle commands.
type ELCHandlers struct {
	engine *elc.Engine
	logger *log.Logger
}

// NewELCHandlers constructs ELCHandlers.
func NewELCHandlers(engine *elc.Engine, logger *log.Logger) *ELCHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[ELCAPI] ", log.LstdFlags)
	}
	return &ELCHandlers{engine: engine, logger: logger}
}

type anyRequest struct {
	TypeURL string `json:"type_url"`
	Value   string `json:"value"` // hex
}

func (a anyRequest) decode() (lcptypes.Any, error) {
	v, err := hex.DecodeString(trim0x(a.Value))
	if err != nil {
		return lcptypes.Any{}, fmt.Errorf("invalid value hex: %w", err)
	}
	return lcptypes.NewAny(a.TypeURL, v), nil
}

type initClientRequest struct {
	ClientType     string     `json:"client_type"`
	ClientState    anyRequest `json:"client_state"`
	ConsensusState anyRequest `json:"consensus_state"`
	Signer         string     `json:"signer"`
}

// HandleInitClient serves POST /v1/elc/clients.
func (h *ELCHandlers) HandleInitClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req initClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	clientState, err := req.ClientState.decode()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	consensusState, err := req.ConsensusState.decode()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	signer, err := decodeAddress(req.Signer)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.engine.InitClient(elc.InitClientCommand{
		ClientType:        req.ClientType,
		AnyClientState:    clientState,
		AnyConsensusState: consensusState,
		CurrentTimestamp:  lcptypes.NewTime(time.Now().UnixNano()),
		Signer:            signer,
	})
	if err != nil {
		h.logger.Printf("InitClient failed: %v", err)
		writeClassifiedError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"client_id": string(result.ClientID),
		"message":   hex.EncodeToString(result.ProxyMessageBytes),
		"signer":    result.Signer.String(),
	})
}

// HandleQueryClient serves GET /v1/elc/clients?client_id=....
func (h *ELCHandlers) HandleQueryClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clientID := lcptypes.ClientID(r.URL.Query().Get("client_id"))
	result, err := h.engine.QueryClient(elc.QueryClientCommand{ClientID: clientID})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	if !result.Found {
		writeJSONError(w, "client not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"client_state_type_url":    result.AnyClientState.TypeURL,
		"client_state":             hex.EncodeToString(result.AnyClientState.Value),
		"consensus_state_type_url": result.AnyConsensusState.TypeURL,
		"consensus_state":          hex.EncodeToString(result.AnyConsensusState.Value),
	})
}
