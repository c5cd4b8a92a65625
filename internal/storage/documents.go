package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexora-ai/lexora/internal/model"
)

// InsertDocument records an uploaded document.
func (db *DB) InsertDocument(ctx context.Context, doc model.Document) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO documents (id, owner, name, uploaded_at)
		VALUES ($1, $2, $3, $4)
	`, doc.ID, doc.Owner, doc.Name, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("storage: insert document: %w", err)
	}
	return nil
}

// GetDocument fetches a single document scoped to its owner.
func (db *DB) GetDocument(ctx context.Context, id uuid.UUID, owner string) (model.Document, error) {
	var doc model.Document
	err := db.pool.QueryRow(ctx, `
		SELECT id, owner, name, uploaded_at
		FROM documents
		WHERE id = $1 AND owner = $2
	`, id, owner).Scan(&doc.ID, &doc.Owner, &doc.Name, &doc.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Document{}, ErrNotFound
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("storage: get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns the owner's documents, newest first.
func (db *DB) ListDocuments(ctx context.Context, owner string, limit int) ([]model.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx, `
		SELECT id, owner, name, uploaded_at
		FROM documents
		WHERE owner = $1
		ORDER BY uploaded_at DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.Owner, &d.Name, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("storage: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
