// Copyright 2025 Certen Protocol
//
// Key-manager persistence for enclave signing keys: a mapping
// Address -> (sealed_secret, ra_result, mrenclave, debug, ra_type), backed
// by Postgres. Grounded on pkg/database/client.go's connection-pooling and
// migration-embedding pattern in the teacher repo, narrowed from the
// teacher's full proof-artifact schema down to the single key-record table
// this layer needs.

package keymanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sbx-labs/lcp-enclave/pkg/lcptypes"
)

// ErrKeyNotFound is returned by Load when no record exists for the given address.
var ErrKeyNotFound = errors.New("key record not found")

// RAType identifies which remote-attestation flavor produced a key's
// RAResult.
type RAType string

const (
	RATypeIAS     RAType = "ias"
	RATypeDCAP    RAType = "dcap"
	RATypeZKDCAP  RAType = "zkdcap"
	RATypeSimulate RAType = "simulate"
)

// KeyRecord is the persisted representation of one enclave key.
type KeyRecord struct {
	Address       lcptypes.Address
	SealedSecret  []byte
	RAResult      []byte // opaque, flavor-specific serialized RA result
	MrEnclave     [32]byte
	Debug         bool
	RAType        RAType
	RegisteredAt  time.Time
}

// Manager persists KeyRecords in Postgres. All methods are safe to call
// concurrently; consistency is provided by the underlying connection pool
// plus per-statement transactions, not by an in-process lock.
type Manager struct {
	db     *sql.DB
	logger *log.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the manager's logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Open connects to Postgres at databaseURL and ensures the key_records table
// exists.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Manager, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("keymanager: database URL cannot be empty")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("keymanager: open database: %w", err)
	}
	m := &Manager{db: db, logger: log.New(log.Writer(), "[KeyManager] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(m)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("keymanager: ping database: %w", err)
	}
	if err := m.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS key_records (
	address       BYTEA PRIMARY KEY,
	sealed_secret BYTEA NOT NULL,
	ra_result     BYTEA NOT NULL,
	mr_enclave    BYTEA NOT NULL,
	debug         BOOLEAN NOT NULL DEFAULT FALSE,
	ra_type       TEXT NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL
);`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("keymanager: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Save inserts or replaces a KeyRecord. Read-your-writes consistency follows
// from Postgres read-committed isolation: a Load issued by the same process
// after Save returns always observes the write.
func (m *Manager) Save(ctx context.Context, rec KeyRecord) error {
	const stmt = `
INSERT INTO key_records (address, sealed_secret, ra_result, mr_enclave, debug, ra_type, registered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (address) DO UPDATE SET
	sealed_secret = EXCLUDED.sealed_secret,
	ra_result     = EXCLUDED.ra_result,
	mr_enclave    = EXCLUDED.mr_enclave,
	debug         = EXCLUDED.debug,
	ra_type       = EXCLUDED.ra_type,
	registered_at = EXCLUDED.registered_at;`
	_, err := m.db.ExecContext(ctx, stmt,
		rec.Address[:], rec.SealedSecret, rec.RAResult, rec.MrEnclave[:], rec.Debug, string(rec.RAType), rec.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("keymanager: save key record: %w", err)
	}
	return nil
}

// Load fetches a single KeyRecord by address.
func (m *Manager) Load(ctx context.Context, addr lcptypes.Address) (KeyRecord, error) {
	const stmt = `SELECT address, sealed_secret, ra_result, mr_enclave, debug, ra_type, registered_at FROM key_records WHERE address = $1;`
	row := m.db.QueryRowContext(ctx, stmt, addr[:])
	return scanKeyRecord(row)
}

// ListByRAType enumerates every stored key whose RA flavor matches raType,
// for choosing a signer that matches what a given outer client expects.
func (m *Manager) ListByRAType(ctx context.Context, raType RAType) ([]KeyRecord, error) {
	const stmt = `SELECT address, sealed_secret, ra_result, mr_enclave, debug, ra_type, registered_at FROM key_records WHERE ra_type = $1 ORDER BY registered_at;`
	rows, err := m.db.QueryContext(ctx, stmt, string(raType))
	if err != nil {
		return nil, fmt.Errorf("keymanager: list key records: %w", err)
	}
	defer rows.Close()

	var recs []KeyRecord
	for rows.Next() {
		rec, err := scanKeyRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyRecord(row rowScanner) (KeyRecord, error) {
	var rec KeyRecord
	var addrBytes, mrEnclaveBytes []byte
	var raType string
	if err := row.Scan(&addrBytes, &rec.SealedSecret, &rec.RAResult, &mrEnclaveBytes, &rec.Debug, &raType, &rec.RegisteredAt); err != nil {
		if err == sql.ErrNoRows {
			return rec, fmt.Errorf("keymanager: %w", ErrKeyNotFound)
		}
		return rec, fmt.Errorf("keymanager: scan key record: %w", err)
	}
	copy(rec.Address[:], addrBytes)
	copy(rec.MrEnclave[:], mrEnclaveBytes)
	rec.RAType = RAType(raType)
	return rec, nil
}
