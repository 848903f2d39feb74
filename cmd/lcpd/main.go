// Copyright 2025 Certen Protocol
//
// cmd/lcpd is the Light Client Proxy daemon entrypoint: it wires together
// every layer (L0 crypto through L7 outer client) and the ambient packages
// (config, metrics, auditlog, lcperrors) into one process, following
// main.go's texture in the teacher repo — global health-status struct,
// CLI flags via the flag package, graceful degradation for optional
// dependencies instead of a fatal exit, a bare http.NewServeMux(), and
// signal-driven shutdown with a bounded grace period.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sbx-labs/lcp-enclave/pkg/attestation"
	"github.com/sbx-labs/lcp-enclave/pkg/attestation/keymanager"
	"github.com/sbx-labs/lcp-enclave/pkg/auditlog"
	"github.com/sbx-labs/lcp-enclave/pkg/config"
	"github.com/sbx-labs/lcp-enclave/pkg/ecrypto"
	"github.com/sbx-labs/lcp-enclave/pkg/elc"
	"github.com/sbx-labs/lcp-enclave/pkg/kvstore"
	"github.com/sbx-labs/lcp-enclave/pkg/lcpclient"
	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient/mock"
	"github.com/sbx-labs/lcp-enclave/pkg/lightclient/tendermint"
	"github.com/sbx-labs/lcp-enclave/pkg/metrics"
	"github.com/sbx-labs/lcp-enclave/pkg/server"
)

// HealthStatus tracks the health of optional collaborators for the
// /health endpoint, mirroring main.go's HealthStatus: a mutex-guarded
// struct with one Set* method per component and a derived overall Status.
type HealthStatus struct {
	Status     string `json:"status"` // "ok", "degraded"
	KeyManager string `json:"key_manager"` // "connected", "disconnected", "disabled"
	AuditLog   string `json:"audit_log"`   // "connected", "disabled"

	UptimeSeconds int64 `json:"uptime_seconds"`
	startTime     time.Time
	mu            sync.RWMutex
}

var healthStatus = &HealthStatus{
	Status:     "starting",
	KeyManager: "unknown",
	AuditLog:   "unknown",
	startTime:  time.Now(),
}

func (h *HealthStatus) SetKeyManager(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.KeyManager = status
	h.updateOverallStatus()
}

func (h *HealthStatus) SetAuditLog(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.AuditLog = status
	h.updateOverallStatus()
}

func (h *HealthStatus) updateOverallStatus() {
	if h.KeyManager == "disconnected" {
		h.Status = "degraded"
		return
	}
	h.Status = "ok"
}

func (h *HealthStatus) ToJSON() []byte {
	h.mu.Lock()
	h.UptimeSeconds = int64(time.Since(h.startTime).Seconds())
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	data, _ := json.Marshal(h)
	return data
}

// keyProviderAdapter satisfies elc.KeyProvider by delegating to
// attestation.Service's EnclaveKey method; elc intentionally doesn't
// depend on attestation's session/sealing internals, so this is the thin
// bridge between the two packages.
type keyProviderAdapter struct {
	svc *attestation.Service
}

func (a keyProviderAdapter) Key(signer lcptypes.Address) (*ecrypto.EnclaveKey, error) {
	return a.svc.EnclaveKey(signer)
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	log.Printf("🚀 Starting LCP enclave daemon")

	var (
		configPath = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		kvDir      = flag.String("kv-dir", "./data", "Directory for the persistent light-client KV store")
		showHelp   = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration from %s: %v", *configPath, err)
	}
	log.Printf("📋 Loaded configuration: environment=%s", cfg.Environment)

	mrEnclaveBytes, err := hex.DecodeString(cfg.Enclave.MrEnclave)
	if err != nil || len(mrEnclaveBytes) != 32 {
		log.Fatalf("❌ Invalid enclave.mr_enclave in configuration: must be 32 bytes of hex, got %q", cfg.Enclave.MrEnclave)
	}
	var mrEnclave [32]byte
	copy(mrEnclave[:], mrEnclaveBytes)

	metricsRegistry := metrics.New()

	// Key manager is optional: if Postgres isn't reachable, the daemon
	// still starts, it just can't persist sealed keys across restarts. This mirrors main.go's graceful-degradation-over-
	// fatal handling for the database connection.
	var keyManager *keymanager.Manager
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		keyManager, err = keymanager.Open(ctx, cfg.Database.URL)
		cancel()
		if err != nil {
			log.Printf("⚠️ Key manager unavailable - running without sealed-key persistence")
			log.Printf("   Error: %v", err)
			healthStatus.SetKeyManager("disconnected")
		} else {
			log.Printf("✅ Key manager connected to Postgres")
			healthStatus.SetKeyManager("connected")
			defer keyManager.Close()
		}
	} else {
		log.Printf("⚠️ No database.url configured - key manager disabled")
		healthStatus.SetKeyManager("disabled")
	}

	attestationService := attestation.NewService(attestation.Config{
		KeyManager: keyManager,
		MREnclave:  mrEnclave,
		Debug:      cfg.Enclave.Debug,
		IASBaseURL: cfg.Attestation.IASBaseURL,
		IASDev:     cfg.Attestation.IASDev,
		Logger:     log.New(log.Writer(), "[Attestation] ", log.LstdFlags),
	})

	// Audit trail mirroring is optional: absent Firestore credentials
	// degrade to a no-op client rather than failing startup, matching the
	// teacher's Firestore-client handling in main.go.
	auditCfg := &auditlog.Config{
		ProjectID:       cfg.Audit.FirebaseProjectID,
		CredentialsFile: cfg.Audit.CredentialsFile,
		Enabled:         cfg.Audit.Enabled,
		Logger:          log.New(log.Writer(), "[AuditLog] ", log.LstdFlags),
	}
	auditCtx, auditCancel := context.WithTimeout(context.Background(), 15*time.Second)
	auditClient, err := auditlog.NewClient(auditCtx, auditCfg)
	auditCancel()
	if err != nil {
		log.Printf("⚠️ Audit log client unavailable - continuing without Firestore mirroring")
		log.Printf("   Error: %v", err)
		healthStatus.SetAuditLog("disabled")
		auditClient = nil
	} else if auditClient.IsEnabled() {
		log.Printf("✅ Audit log mirroring to Firestore project %s", cfg.Audit.FirebaseProjectID)
		healthStatus.SetAuditLog("connected")
	} else {
		log.Printf("ℹ️ Audit log mirroring disabled by configuration")
		healthStatus.SetAuditLog("disabled")
	}

	registry := lightclient.NewRegistry()
	registry.Register(mock.New())
	registry.Register(tendermint.New())
	log.Printf("✅ Light-client registry: mock, tendermint")

	if err := os.MkdirAll(*kvDir, 0o755); err != nil {
		log.Fatalf("❌ Failed to create KV store directory %s: %v", *kvDir, err)
	}
	db, err := dbm.NewGoLevelDB("lcp", *kvDir)
	if err != nil {
		log.Fatalf("❌ Failed to open persistent KV store at %s: %v", *kvDir, err)
	}
	kvManager := kvstore.NewManager(kvstore.NewDBAdapter(db))
	log.Printf("✅ Persistent KV store opened at %s", *kvDir)

	engine := elc.NewEngine(kvManager, registry, keyProviderAdapter{svc: attestationService})
	elcHandlers := server.NewELCHandlers(engine, log.New(log.Writer(), "[ELCAPI] ", log.LstdFlags))

	outerClient := lcpclient.NewClient(log.New(log.Writer(), "[LCPClient] ", log.LstdFlags))

	var audit server.AuditRecorder
	if auditClient != nil {
		audit = auditClient
	}
	clientHandlers := server.NewClientHandlers(outerClient, audit, metricsRegistry, log.New(log.Writer(), "[ClientAPI] ", log.LstdFlags))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(healthStatus.ToJSON())
	})
	mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry.Gatherer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/clients/enclave-keys", clientHandlers.HandleRegisterEnclaveKey)
	mux.HandleFunc("/v1/clients/update", clientHandlers.HandleUpdateClient)
	mux.HandleFunc("/v1/clients/verify-membership", clientHandlers.HandleVerifyMembership)
	mux.HandleFunc("/v1/clients/verify-non-membership", clientHandlers.HandleVerifyNonMembership)
	mux.HandleFunc("/v1/clients", clientHandlers.HandleGetClientState)
	mux.HandleFunc("/v1/elc/clients", elcHandlerRouter(elcHandlers))
	log.Printf("✅ HTTP API configured:")
	log.Printf("   - GET  /health")
	log.Printf("   - GET  /metrics")
	log.Printf("   - POST /v1/clients/enclave-keys")
	log.Printf("   - POST /v1/clients/update")
	log.Printf("   - POST /v1/clients/verify-membership")
	log.Printf("   - POST /v1/clients/verify-non-membership")
	log.Printf("   - GET  /v1/clients")
	log.Printf("   - POST /v1/elc/clients (InitClient)")
	log.Printf("   - GET  /v1/elc/clients (QueryClient)")

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	log.Printf("✅ LCP daemon ready")

	go func() {
		log.Printf("🌐 LCP daemon API listening on %s", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("🛑 Shutting down LCP daemon...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if auditClient != nil {
		if err := auditClient.Close(); err != nil {
			log.Printf("Audit log client close error: %v", err)
		}
	}

	if err := db.Close(); err != nil {
		log.Printf("KV store close error: %v", err)
	}

	log.Printf("✅ LCP daemon stopped")
}

// elcHandlerRouter dispatches /v1/elc/clients by HTTP method: POST creates
// a client, GET queries one, since both share a single route.
func elcHandlerRouter(h *server.ELCHandlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.HandleInitClient(w, r)
		case http.MethodGet:
			h.HandleQueryClient(w, r)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusMethodNotAllowed)
			w.Write([]byte(`{"error":"method not allowed"}`))
		}
	}
}
