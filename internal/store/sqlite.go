package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLite persists values as JSON in the context_values table.
//
// Values come back as their JSON decoding, so numbers are float64 and
// objects are map[string]any. Safe for concurrent use through the
// sql.DB pool.
type SQLite struct {
	db *sql.DB
}

// NewSQLite uses db, which must have the context_values migration applied.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, scope Scope, key string) (any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM context_values WHERE scope = ? AND key = ?",
		string(scope), key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", scope, key, err)
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", scope, key, err)
	}
	return v, nil
}

// Set implements Store.
func (s *SQLite) Set(ctx context.Context, scope Scope, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", scope, key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO context_values (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(scope), key, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", scope, key, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, scope Scope, key string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM context_values WHERE scope = ? AND key = ?", string(scope), key,
	); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", scope, key, err)
	}
	return nil
}

// Keys implements Store. Keys are sorted.
func (s *SQLite) Keys(ctx context.Context, scope Scope) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM context_values WHERE scope = ? ORDER BY key", string(scope))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", scope, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("listing %s: %w", scope, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
