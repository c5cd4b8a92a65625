package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetAPIKeyHash returns the stored argon2id hash for an owner.
func (db *DB) GetAPIKeyHash(ctx context.Context, owner string) (string, error) {
	var hash string
	err := db.pool.QueryRow(ctx,
		`SELECT key_hash FROM api_keys WHERE owner = $1`, owner,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("storage: get api key hash: %w", err)
	}
	return hash, nil
}

// UpsertAPIKey stores (or rotates) the hashed API key for an owner.
func (db *DB) UpsertAPIKey(ctx context.Context, owner, keyHash string) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO api_keys (owner, key_hash)
		VALUES ($1, $2)
		ON CONFLICT (owner) DO UPDATE SET key_hash = EXCLUDED.key_hash
	`, owner, keyHash)
	if err != nil {
		return fmt.Errorf("storage: upsert api key: %w", err)
	}
	return nil
}
