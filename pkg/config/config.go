// Copyright 2025 Certen Protocol
//
// Package config loads the LCP daemon's configuration from a YAML file with
// `${VAR_NAME}`/`${VAR_NAME:-default}` environment-variable substitution,
// following pkg/config/anchor_config.go's LoadAnchorConfig pattern, plus the
// teacher's plain-env-var Load() from pkg/config/config.go for the handful
// of settings spec §6 names as environment variables directly (SPID,
// IAS_KEY, BONSAI_API_URL, BONSAI_API_KEY, RISC0_DEV_MODE).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML config files write durations as
// strings ("24h", "30s") instead of raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// EnclaveConfig configures the per-process enclave identity.
type EnclaveConfig struct {
	MrEnclave     string   `yaml:"mr_enclave"`
	Debug         bool     `yaml:"debug"`
	KeyExpiration Duration `yaml:"key_expiration"`
}

// AttestationConfig configures the three RA flavors (spec §4.7).
type AttestationConfig struct {
	IASBaseURL string `yaml:"ias_base_url"`
	IASDev     bool   `yaml:"ias_dev"`

	AllowedQuoteStatuses []string `yaml:"allowed_quote_statuses"`
	AllowedAdvisoryIDs   []string `yaml:"allowed_advisory_ids"`

	ZKProverMode string `yaml:"zk_prover_mode"` // "local" or "bonsai"
}

// DatabaseConfig configures the key-manager's Postgres connection.
type DatabaseConfig struct {
	URL             string   `yaml:"url"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// ServerConfig configures the daemon's listen addresses.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	HealthAddr  string `yaml:"health_addr"`
}

// LoggingConfig configures process-wide log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuditConfig configures the optional Firestore audit-trail mirror.
type AuditConfig struct {
	Enabled           bool   `yaml:"enabled"`
	FirebaseProjectID string `yaml:"firebase_project_id"`
	CredentialsFile   string `yaml:"credentials_file"`
}

// Config is the LCP daemon's root configuration.
type Config struct {
	Environment string `yaml:"environment"`

	Enclave     EnclaveConfig     `yaml:"enclave"`
	Attestation AttestationConfig `yaml:"attestation"`
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Audit       AuditConfig       `yaml:"audit"`

	// SPID/IASKey/BonsaiURL/BonsaiAPIKey/RISC0DevMode are read directly from
	// the environment variables spec §6 names rather than the YAML file:
	// loadEnvOverrides assigns them from the environment after the YAML file
	// is parsed, and AttestationConfig has no fields for them.
	SPID         string
	IASKey       string
	BonsaiURL    string
	BonsaiAPIKey string
	RISC0DevMode bool
}

// Load reads a YAML config file at path (substituting `${VAR}`/
// `${VAR:-default}` environment references first), applies defaults for
// unset fields, then layers spec §6's direct environment variables on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.loadEnvOverrides()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Enclave.KeyExpiration == 0 {
		c.Enclave.KeyExpiration = Duration(7 * 24 * time.Hour)
	}
	if c.Attestation.ZKProverMode == "" {
		c.Attestation.ZKProverMode = "local"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = Duration(time.Hour)
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "0.0.0.0:8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = "0.0.0.0:9090"
	}
	if c.Server.HealthAddr == "" {
		c.Server.HealthAddr = "0.0.0.0:8081"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// loadEnvOverrides implements spec §6's direct-environment-variable
// settings: SPID, IAS_KEY, BONSAI_API_URL, BONSAI_API_KEY, RISC0_DEV_MODE.
func (c *Config) loadEnvOverrides() {
	c.SPID = getEnv("SPID", "")
	c.IASKey = getEnv("IAS_KEY", "")
	c.BonsaiURL = getEnv("BONSAI_API_URL", "")
	c.BonsaiAPIKey = getEnv("BONSAI_API_KEY", "")
	c.RISC0DevMode = getEnvBool("RISC0_DEV_MODE", false)
}

// Validate checks the minimum configuration a production deployment needs.
func (c *Config) Validate() error {
	var errs []string
	if c.Database.URL == "" {
		errs = append(errs, "database.url is required")
	}
	if c.Attestation.ZKProverMode != "local" && c.Attestation.ZKProverMode != "bonsai" {
		errs = append(errs, fmt.Sprintf("attestation.zk_prover_mode must be local or bonsai, got %q", c.Attestation.ZKProverMode))
	}
	if c.Attestation.ZKProverMode == "bonsai" && c.BonsaiURL == "" {
		errs = append(errs, "BONSAI_API_URL is required when attestation.zk_prover_mode is bonsai")
	}
	if len(errs) == 0 {
		return nil
	}
	msg := "config validation failed:"
	for _, e := range errs {
		msg += "\n  - " + e
	}
	return fmt.Errorf("%s", msg)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} with
// environment variable values, exactly as pkg/config/anchor_config.go's
// substituteEnvVars does.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
