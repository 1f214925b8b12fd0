package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/artpar/shellgate/ports"
)

// KVStore implements ports.KVStore using SQLite.
type KVStore struct {
	db *DB
}

// NewKVStore creates a new key-value store.
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

// Get retrieves a value by key.
func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE key = ?`,
		key,
	).Scan(&value)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ports.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores or updates a value.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

// Remove deletes a value.
func (s *KVStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM kv_store WHERE key = ?`,
		key,
	)
	return err
}

// Ensure interface compliance.
var _ ports.KVStore = (*KVStore)(nil)
