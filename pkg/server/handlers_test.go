package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sbx-labs/lcp-enclave/pkg/ecrypto"
	"github.com/sbx-labs/lcp-enclave/pkg/lcpclient"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/metrics"
)

// noopAudit satisfies AuditRecorder by only noting the name of each call in
// recorded, letting tests
// exercise handlers without a live Firestore connection.
type noopAudit struct {
	recorded []string
}

func (a *noopAudit) RecordEnclaveKeyRegistered(ctx context.Context, clientID lcptypes.ClientID, enclave lcptypes.Address, mrEnclave [32]byte, expiresAt time.Time) error {
	a.recorded = append(a.recorded, "enclave_key_registered")
	return nil
}

func (a *noopAudit) RecordClientUpdated(ctx context.Context, clientID lcptypes.ClientID, signer lcptypes.Address, postHeight lcptypes.Height, postStateID lcptypes.StateID) error {
	a.recorded = append(a.recorded, "client_updated")
	return nil
}

func (a *noopAudit) RecordMisbehaviourFrozen(ctx context.Context, clientID lcptypes.ClientID, signer lcptypes.Address, reason string) error {
	a.recorded = append(a.recorded, "misbehaviour_frozen")
	return nil
}

func (a *noopAudit) RecordError(ctx context.Context, clientID lcptypes.ClientID, command string, cause error) error {
	a.recorded = append(a.recorded, "error:"+command)
	return nil
}

func newTestHandlers(t *testing.T) (*ClientHandlers, lcptypes.ClientID, lcptypes.Address, *noopAudit) {
	t.Helper()
	key, err := ecrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	addr, err := key.Address()
	if err != nil {
		t.Fatalf("Address() error = %v", err)
	}

	mrenclave := [32]byte{0xAB}
	state := lcpclient.ClientState{
		MrEnclave:     mrenclave,
		KeyExpiration: time.Hour,
		LatestHeight:  lcptypes.NewHeight(0, 1),
	}
	id := lcptypes.NewClientID("tendermint", 0)
	now := time.Unix(1_700_000_000, 0)

	c := lcpclient.NewClient(nil)
	if err := c.InitClient(id, state, lcpclient.ConsensusState{
		StateID:   lcptypes.StateID{0x01},
		Timestamp: lcptypes.NewTime(now.UnixNano()),
	}); err != nil {
		t.Fatalf("InitClient() error = %v", err)
	}

	audit := &noopAudit{}
	handlers := NewClientHandlers(c, audit, metrics.New(), nil)
	return handlers, id, addr, audit
}

func TestHandleRegisterEnclaveKeySuccess(t *testing.T) {
	h, id, addr, audit := newTestHandlers(t)

	body := registerEnclaveKeyRequest{
		ClientID:        string(id),
		EnclaveAddress:  hex.EncodeToString(addr.Bytes()),
		OperatorAddress: hex.EncodeToString(addr.Bytes()),
		MrEnclave:       hex.EncodeToString([32]byte{0xAB}[:]),
		AttestationTime: time.Unix(1_700_000_000, 0).Format(time.RFC3339),
		QuoteStatus:     "OK",
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/clients/enclave-keys", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.HandleRegisterEnclaveKey(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(audit.recorded) != 1 || audit.recorded[0] != "enclave_key_registered" {
		t.Fatalf("audit.recorded = %v, want one enclave_key_registered entry", audit.recorded)
	}
}

func TestHandleRegisterEnclaveKeyRejectsNonPost(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/clients/enclave-keys", nil)
	rec := httptest.NewRecorder()
	h.HandleRegisterEnclaveKey(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleRegisterEnclaveKeyRejectsBadAddressHex(t *testing.T) {
	h, id, _, _ := newTestHandlers(t)
	body := registerEnclaveKeyRequest{
		ClientID:        string(id),
		EnclaveAddress:  "not-hex",
		AttestationTime: time.Now().Format(time.RFC3339),
	}
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/v1/clients/enclave-keys", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.HandleRegisterEnclaveKey(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleGetClientStateUnknownClientReturnsNotFound(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/clients?client_id=does-not-exist", nil)
	rec := httptest.NewRecorder()
	h.HandleGetClientState(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp["kind"] != "client_not_found" {
		t.Fatalf("kind = %q, want client_not_found", resp["kind"])
	}
}

func TestHandleGetClientStateKnownClient(t *testing.T) {
	h, id, _, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/clients?client_id="+string(id), nil)
	rec := httptest.NewRecorder()
	h.HandleGetClientState(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestTrim0xStripsPrefix(t *testing.T) {
	if got := trim0x("0xabcd"); got != "abcd" {
		t.Fatalf("trim0x() = %q, want abcd", got)
	}
	if got := trim0x("abcd"); got != "abcd" {
		t.Fatalf("trim0x() = %q, want abcd", got)
	}
}
