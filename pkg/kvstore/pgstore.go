package kvstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PG is a Postgres-backed Store. All keys live in a single kv table;
// Set upserts.
type PG struct {
	db *sql.DB
}

// NewPG opens a Postgres connection using the given connection string
// and verifies it early.
func NewPG(connStr string) (*PG, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PG{db: db}, nil
}

// Migrate creates the kv table if it does not exist.
func (s *PG) Migrate(ctx context.Context) error {
	const q = `
	CREATE TABLE IF NOT EXISTS kv (
	    key        TEXT PRIMARY KEY,
	    value      BYTEA NOT NULL,
	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	return nil
}

func (s *PG) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT value FROM kv WHERE key = $1`

	var value []byte
	err := s.db.QueryRowContext(ctx, q, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", key, err)
	}
	return value, nil
}

func (s *PG) Set(ctx context.Context, key string, value []byte) error {
	const q = `
	INSERT INTO kv (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}
	return nil
}

func (s *PG) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM kv WHERE key = $1`

	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PG) Close() error {
	return s.db.Close()
}
