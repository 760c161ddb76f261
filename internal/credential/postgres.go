package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the caller_credentials table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS caller_credentials (
    caller_id      TEXT NOT NULL,
    integration_id TEXT NOT NULL,
    secret         TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (caller_id, integration_id)
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL caller_credentials table.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] using the given connection or
// pool. Call [PostgresStore.Migrate] to ensure the schema exists before
// issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the caller_credentials table
// if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("credential: migrate: %w", err)
	}
	return nil
}

// Get implements [Store]. Absence is reported as ("", nil).
func (s *PostgresStore) Get(ctx context.Context, callerID, integrationID string) (string, error) {
	const q = `
		SELECT secret FROM caller_credentials
		WHERE caller_id = $1 AND integration_id = $2`

	var secret string
	err := s.db.QueryRow(ctx, q, callerID, integrationID).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("credential: get: %w", err)
	}
	return secret, nil
}

// Set implements [Store] as an upsert.
func (s *PostgresStore) Set(ctx context.Context, callerID, integrationID, secret string) error {
	const q = `
		INSERT INTO caller_credentials (caller_id, integration_id, secret)
		VALUES ($1, $2, $3)
		ON CONFLICT (caller_id, integration_id)
		DO UPDATE SET secret = EXCLUDED.secret, updated_at = now()`

	if _, err := s.db.Exec(ctx, q, callerID, integrationID, secret); err != nil {
		return fmt.Errorf("credential: set: %w", err)
	}
	return nil
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, callerID, integrationID string) error {
	const q = `
		DELETE FROM caller_credentials
		WHERE caller_id = $1 AND integration_id = $2`

	if _, err := s.db.Exec(ctx, q, callerID, integrationID); err != nil {
		return fmt.Errorf("credential: delete: %w", err)
	}
	return nil
}
