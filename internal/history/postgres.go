package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the search_history table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS search_history (
    id           BIGSERIAL PRIMARY KEY,
    caller_id    TEXT NOT NULL,
    query        TEXT NOT NULL,
    result_count INT NOT NULL DEFAULT 0,
    duration_ms  BIGINT NOT NULL DEFAULT 0,
    executed_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_history_caller ON search_history(caller_id, executed_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL search_history table.
// The table is append-only from the broker's perspective.
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

// Migrate executes the [Schema] DDL, creating the search_history table and
// index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO search_history (caller_id, query, result_count, duration_ms, executed_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, q,
		rec.CallerID, rec.Query, rec.ResultCount, rec.Duration.Milliseconds(), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}
