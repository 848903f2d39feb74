// Copyright 2025 Certen Protocol
//
// Package auditlog mirrors spec.md's outer-client events (enclave-key
// registration, client-state updates, misbehaviour/freeze) into a
// hash-chained Firestore trail, adapted from
// pkg/firestore/{client,audit_trail}.go's users/{userID}/auditTrail domain
// into one keyed by LCP client ID instead of a Certen user ID. Entries are
// append-only and chained by SHA-256 the same way the teacher chains them,
// so VerifyChain can detect tampering or gaps.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	gcpfirestore "cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// Entry is one hash-chained audit record for a single LCP client.
type Entry struct {
	EntryID string `json:"entryId" firestore:"-"`

	ClientID       string `json:"clientId" firestore:"clientId"`
	EnclaveAddress string `json:"enclaveAddress,omitempty" firestore:"enclaveAddress,omitempty"`

	Event  string `json:"event" firestore:"event"` // "register_enclave_key", "update_client", "misbehaviour_freeze", "command_rejected"
	Detail string `json:"detail" firestore:"detail"`

	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`

	PreviousHash string `json:"previousHash" firestore:"previousHash"`
	EntryHash    string `json:"entryHash" firestore:"entryHash"`

	Fields map[string]interface{} `json:"fields,omitempty" firestore:"fields,omitempty"`
}

// Config holds configuration for the audit-log client.
type Config struct {
	// ProjectID is the Firebase/GCP project ID.
	ProjectID string

	// CredentialsFile is the path to the service account JSON file. If
	// empty, the SDK falls back to GOOGLE_APPLICATION_CREDENTIALS or
	// application-default credentials.
	CredentialsFile string

	// Enabled controls whether audit entries are actually written. When
	// false every Record* method is a no-op and VerifyChain returns an
	// error, matching the teacher's local-development escape hatch.
	Enabled bool

	Logger *log.Logger
}

// DefaultConfig reads Config from the environment, mirroring
// pkg/firestore/client.go's DefaultConfig.
func DefaultConfig() *Config {
	return &Config{
		ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Enabled:         getEnvBool("AUDIT_LOG_ENABLED", false),
		Logger:          log.New(os.Stdout, "[auditlog] ", log.LstdFlags),
	}
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "TRUE" || v == "True"
}

// Client writes hash-chained audit entries for the outer LCP client's
// state transitions. It is safe for concurrent use.
type Client struct {
	mu        sync.RWMutex
	app       *firebase.App
	firestore *gcpfirestore.Client
	logger    *log.Logger
	enabled   bool
}

// NewClient constructs a Client. When cfg.Enabled is false (or cfg is the
// zero value), the returned Client performs no network I/O and every write
// method returns nil immediately, so callers can wire auditlog
// unconditionally and let configuration decide whether it does anything.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[auditlog] ", log.LstdFlags)
	}

	c := &Client{
		logger:  cfg.Logger,
		enabled: cfg.Enabled,
	}

	if !cfg.Enabled {
		cfg.Logger.Printf("audit log disabled - entries will be skipped")
		return c, nil
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auditlog: initialize firebase app: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("auditlog: create firestore client: %w", err)
	}

	c.app = app
	c.firestore = fsClient
	cfg.Logger.Printf("audit log initialized for project %s", cfg.ProjectID)
	return c, nil
}

// IsEnabled reports whether this Client performs real writes.
func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Close releases the underlying Firestore connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

func (c *Client) collectionPath(clientID lcptypes.ClientID) string {
	return fmt.Sprintf("lcpClients/%s/auditTrail", string(clientID))
}

// RecordEnclaveKeyRegistered logs a successful RegisterEnclaveKey command.
func (c *Client) RecordEnclaveKeyRegistered(ctx context.Context, clientID lcptypes.ClientID, enclave lcptypes.Address, mrEnclave [32]byte, expiresAt time.Time) error {
	return c.createEntry(ctx, clientID, Entry{
		EnclaveAddress: enclave.String(),
		Event:          "register_enclave_key",
		Detail:         fmt.Sprintf("enclave key %s registered for client %s", enclave, clientID),
		Fields: map[string]interface{}{
			"mrEnclave": hex.EncodeToString(mrEnclave[:]),
			"expiresAt": expiresAt.Format(time.RFC3339),
		},
	})
}

// RecordClientUpdated logs a successful UpdateClient/UpdateState command.
func (c *Client) RecordClientUpdated(ctx context.Context, clientID lcptypes.ClientID, signer lcptypes.Address, postHeight lcptypes.Height, postStateID lcptypes.StateID) error {
	return c.createEntry(ctx, clientID, Entry{
		EnclaveAddress: signer.String(),
		Event:          "update_client",
		Detail:         fmt.Sprintf("client %s advanced to height %s", clientID, postHeight),
		Fields: map[string]interface{}{
			"postHeight":  postHeight.String(),
			"postStateId": postStateID.String(),
		},
	})
}

// RecordMisbehaviourFrozen logs a client freeze triggered by an accepted
// Misbehaviour message.
func (c *Client) RecordMisbehaviourFrozen(ctx context.Context, clientID lcptypes.ClientID, signer lcptypes.Address, reason string) error {
	return c.createEntry(ctx, clientID, Entry{
		EnclaveAddress: signer.String(),
		Event:          "misbehaviour_freeze",
		Detail:         fmt.Sprintf("client %s frozen: %s", clientID, reason),
	})
}

// RecordError logs a rejected command, keeping the chain covering failures
// as well as successes.
func (c *Client) RecordError(ctx context.Context, clientID lcptypes.ClientID, command string, cause error) error {
	return c.createEntry(ctx, clientID, Entry{
		Event:  "command_rejected",
		Detail: fmt.Sprintf("%s rejected: %v", command, cause),
	})
}

// createEntry fills in the chain-linkage fields and persists entry.
func (c *Client) createEntry(ctx context.Context, clientID lcptypes.ClientID, entry Entry) error {
	if !c.IsEnabled() {
		c.logger.Printf("audit log disabled - skipping entry for client=%s event=%s", clientID, entry.Event)
		return nil
	}

	prev, err := c.latestEntry(ctx, clientID)
	if err != nil {
		return fmt.Errorf("auditlog: lookup previous entry: %w", err)
	}
	if prev != nil {
		entry.PreviousHash = prev.EntryHash
	}

	entry.ClientID = string(clientID)
	entry.Timestamp = time.Now()
	entry.EntryID = uuid.New().String()
	entry.EntryHash = computeEntryHash(entry)

	c.mu.RLock()
	fsClient := c.firestore
	c.mu.RUnlock()
	if fsClient == nil {
		return fmt.Errorf("auditlog: firestore client not initialized")
	}

	docPath := fmt.Sprintf("%s/%s", c.collectionPath(clientID), entry.EntryID)
	_, err = fsClient.Doc(docPath).Set(ctx, entry)
	if err != nil {
		return fmt.Errorf("auditlog: write entry: %w", err)
	}
	return nil
}

// latestEntry returns the most recently written entry for clientID, or nil
// if none exists yet.
func (c *Client) latestEntry(ctx context.Context, clientID lcptypes.ClientID) (*Entry, error) {
	c.mu.RLock()
	fsClient := c.firestore
	c.mu.RUnlock()
	if fsClient == nil {
		return nil, nil
	}

	query := fsClient.Collection(c.collectionPath(clientID)).
		OrderBy("timestamp", gcpfirestore.Desc).
		Limit(1)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var entry Entry
	if err := docs[0].DataTo(&entry); err != nil {
		return nil, fmt.Errorf("decode audit entry: %w", err)
	}
	entry.EntryID = docs[0].Ref.ID
	return &entry, nil
}

// ChainVerification is the result of VerifyChain.
type ChainVerification struct {
	ClientID   string
	EntryCount int
	Verified   bool
	Errors     []string
	CheckedAt  time.Time
}

// VerifyChain re-derives every entry's hash for clientID and checks the
// previousHash linkage, the way pkg/firestore/audit_trail.go's
// VerifyAuditChain does.
func (c *Client) VerifyChain(ctx context.Context, clientID lcptypes.ClientID) (*ChainVerification, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("auditlog: disabled")
	}

	c.mu.RLock()
	fsClient := c.firestore
	c.mu.RUnlock()
	if fsClient == nil {
		return nil, fmt.Errorf("auditlog: firestore client not initialized")
	}

	query := fsClient.Collection(c.collectionPath(clientID)).OrderBy("timestamp", gcpfirestore.Asc)
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}

	result := &ChainVerification{
		ClientID:   string(clientID),
		EntryCount: len(docs),
		Verified:   true,
		CheckedAt:  time.Now(),
	}

	var previousHash string
	for i, doc := range docs {
		var entry Entry
		if err := doc.DataTo(&entry); err != nil {
			result.Verified = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: decode failed: %v", i, err))
			continue
		}
		entry.EntryID = doc.Ref.ID

		if entry.PreviousHash != previousHash {
			result.Verified = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d (%s): previousHash mismatch - expected %s, got %s", i, entry.EntryID, previousHash, entry.PreviousHash))
		}
		if computed := computeEntryHash(entry); entry.EntryHash != computed {
			result.Verified = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d (%s): entryHash mismatch - expected %s, got %s", i, entry.EntryID, computed, entry.EntryHash))
		}
		previousHash = entry.EntryHash
	}

	return result, nil
}

// computeEntryHash derives the chain-integrity hash the same way
// pkg/firestore/audit_trail.go's computeEntryHash does: a deterministic
// JSON projection of the entry's content fields, hashed with SHA-256.
func computeEntryHash(entry Entry) string {
	data := map[string]interface{}{
		"clientId":       entry.ClientID,
		"enclaveAddress": entry.EnclaveAddress,
		"event":          entry.Event,
		"detail":         entry.Detail,
		"timestamp":      entry.Timestamp.UnixNano(),
		"previousHash":   entry.PreviousHash,
		"fields":         entry.Fields,
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:])
}
