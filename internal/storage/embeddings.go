package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingCacheEntry is one row of the content-addressed embedding cache.
// TextHash is the lowercase hex SHA-256 of the UTF-8 source text.
// (TextHash, ModelName) is unique; rows are insert-only.
type EmbeddingCacheEntry struct {
	TextHash  string
	Vector    []float32
	ModelName string
	Dimension int
}

// GetCachedEmbeddings returns the cached vectors for the given hashes and
// model, keyed by text hash. Hashes without a row are simply absent from
// the result; the caller treats them as misses.
func (db *DB) GetCachedEmbeddings(ctx context.Context, hashes []string, model string) (map[string][]float32, error) {
	if len(hashes) == 0 {
		return map[string][]float32{}, nil
	}

	rows, err := db.pool.Query(ctx, `
		SELECT text_hash, embedding
		FROM embedding_cache
		WHERE text_hash = ANY($1) AND model_name = $2
	`, hashes, model)
	if err != nil {
		return nil, fmt.Errorf("storage: query embedding cache: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32, len(hashes))
	for rows.Next() {
		var hash string
		var vec pgvector.Vector
		if err := rows.Scan(&hash, &vec); err != nil {
			return nil, fmt.Errorf("storage: scan embedding cache row: %w", err)
		}
		out[hash] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate embedding cache rows: %w", err)
	}
	return out, nil
}

// InsertCachedEmbeddings bulk-inserts new cache rows, ignoring conflicts on
// (text_hash, model_name). Idempotent under concurrent inserts of the same
// hash: correctness relies on the unique constraint, not on locking.
func (db *DB) InsertCachedEmbeddings(ctx context.Context, entries []EmbeddingCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO embedding_cache (text_hash, embedding, model_name, dimension)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (text_hash, model_name) DO NOTHING
		`, e.TextHash, pgvector.NewVector(e.Vector), e.ModelName, e.Dimension)
	}

	results := db.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("storage: insert embedding cache rows: %w", err)
		}
	}
	db.logger.Debug("storage: cached embeddings", "count", len(entries))
	return nil
}
