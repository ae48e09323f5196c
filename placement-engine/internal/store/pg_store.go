package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PGStore keeps cache entries in a single Postgres table:
//
//	CREATE TABLE placement_cache (
//	  key        TEXT PRIMARY KEY,
//	  value      BYTEA NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM placement_cache WHERE key=$1`
	var value []byte
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return value, nil
}

func (s *PGStore) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO placement_cache (key, value, updated_at)
		VALUES ($1,$2,NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM placement_cache WHERE key=$1`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
