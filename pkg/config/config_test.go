package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testYAML = `
environment: development
enclave:
  mr_enclave: "0000000000000000000000000000000000000000000000000000000000000000"
  debug: true
  key_expiration: 24h
attestation:
  ias_base_url: ${IAS_BASE_URL:-https://api.trustedservices.intel.com}
  ias_dev: true
  zk_prover_mode: local
database:
  url: ${DATABASE_URL}
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lcp")
	path := writeTempConfig(t, testYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/lcp" {
		t.Fatalf("Database.URL = %q, want substituted value", cfg.Database.URL)
	}
	if cfg.Attestation.IASBaseURL != "https://api.trustedservices.intel.com" {
		t.Fatalf("Attestation.IASBaseURL = %q, want default substitution", cfg.Attestation.IASBaseURL)
	}
	if cfg.Server.ListenAddr == "" {
		t.Fatalf("Server.ListenAddr default not applied")
	}
	if cfg.Enclave.KeyExpiration.Duration().Hours() != 24 {
		t.Fatalf("Enclave.KeyExpiration = %v, want 24h", cfg.Enclave.KeyExpiration.Duration())
	}
}

func TestLoadReadsSpecEnvVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lcp")
	t.Setenv("SPID", "deadbeef")
	t.Setenv("IAS_KEY", "test-ias-key")
	t.Setenv("RISC0_DEV_MODE", "1")
	path := writeTempConfig(t, testYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SPID != "deadbeef" {
		t.Fatalf("SPID = %q, want deadbeef", cfg.SPID)
	}
	if cfg.IASKey != "test-ias-key" {
		t.Fatalf("IASKey = %q, want test-ias-key", cfg.IASKey)
	}
	if !cfg.RISC0DevMode {
		t.Fatalf("RISC0DevMode = false, want true")
	}
}

func TestValidateRequiresDatabaseURL(t *testing.T) {
	cfg := &Config{Attestation: AttestationConfig{ZKProverMode: "local"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() with empty database url succeeded, want error")
	}
}

func TestValidateRequiresBonsaiURLWhenBonsaiMode(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{URL: "postgres://x"}, Attestation: AttestationConfig{ZKProverMode: "bonsai"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() with bonsai mode and no BonsaiURL succeeded, want error")
	}
}
