package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexora-ai/lexora/internal/model"
)

// InsertDiscoveries persists the analysis result for a document: one
// discovery per impacted bill plus its article-level impacts, atomically.
// The transaction is replayed on serialization or deadlock conflicts,
// which concurrent analyses can hit on the shared indexes.
func (db *DB) InsertDiscoveries(ctx context.Context, discoveries []model.Discovery) error {
	if len(discoveries) == 0 {
		return nil
	}
	return WithRetry(ctx, txRetryAttempts, txRetryBaseDelay, func() error {
		return db.insertDiscoveriesTx(ctx, discoveries)
	})
}

func (db *DB) insertDiscoveriesTx(ctx context.Context, discoveries []model.Discovery) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin insert discoveries: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, d := range discoveries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO discoveries
				(id, document_id, bill_id, bill_title, max_relevance, consolidated_description, status, analyzed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, d.ID, d.DocumentID, d.BillID, d.BillTitle, d.MaxRelevance, d.ConsolidatedDescription, d.Status, d.AnalyzedAt); err != nil {
			return fmt.Errorf("storage: insert discovery for bill %s: %w", d.BillID, err)
		}
		for _, imp := range d.Impacts {
			if _, err := tx.Exec(ctx, `
				INSERT INTO discovery_impacts
					(discovery_id, article_number, internal_excerpt, article_excerpt, relevance, impact_description)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, d.ID, imp.ArticleNumber, imp.InternalExcerpt, imp.ArticleExcerpt, imp.Relevance, imp.ImpactDescription); err != nil {
				return fmt.Errorf("storage: insert impact for discovery %s: %w", d.ID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit insert discoveries: %w", err)
	}
	return nil
}

// ListDiscoveries returns the owner's discoveries, newest analysis first.
// Impacts are not loaded; use GetDiscovery for the detail view.
func (db *DB) ListDiscoveries(ctx context.Context, owner string, limit int) ([]model.Discovery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx, `
		SELECT d.id, d.document_id, d.bill_id, d.bill_title, d.max_relevance,
		       d.consolidated_description, d.status, d.analyzed_at
		FROM discoveries d
		JOIN documents doc ON doc.id = d.document_id
		WHERE doc.owner = $1
		ORDER BY d.analyzed_at DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list discoveries: %w", err)
	}
	defer rows.Close()

	var out []model.Discovery
	for rows.Next() {
		var d model.Discovery
		if err := rows.Scan(&d.ID, &d.DocumentID, &d.BillID, &d.BillTitle, &d.MaxRelevance,
			&d.ConsolidatedDescription, &d.Status, &d.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("storage: scan discovery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDiscovery fetches a discovery with its impacts, scoped to the owner.
func (db *DB) GetDiscovery(ctx context.Context, id uuid.UUID, owner string) (model.Discovery, error) {
	var d model.Discovery
	err := db.pool.QueryRow(ctx, `
		SELECT d.id, d.document_id, d.bill_id, d.bill_title, d.max_relevance,
		       d.consolidated_description, d.status, d.analyzed_at
		FROM discoveries d
		JOIN documents doc ON doc.id = d.document_id
		WHERE d.id = $1 AND doc.owner = $2
	`, id, owner).Scan(&d.ID, &d.DocumentID, &d.BillID, &d.BillTitle, &d.MaxRelevance,
		&d.ConsolidatedDescription, &d.Status, &d.AnalyzedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Discovery{}, ErrNotFound
	}
	if err != nil {
		return model.Discovery{}, fmt.Errorf("storage: get discovery: %w", err)
	}

	rows, err := db.pool.Query(ctx, `
		SELECT article_number, internal_excerpt, article_excerpt, relevance, impact_description
		FROM discovery_impacts
		WHERE discovery_id = $1
		ORDER BY relevance DESC, article_number
	`, id)
	if err != nil {
		return model.Discovery{}, fmt.Errorf("storage: get discovery impacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var imp model.Impact
		if err := rows.Scan(&imp.ArticleNumber, &imp.InternalExcerpt, &imp.ArticleExcerpt,
			&imp.Relevance, &imp.ImpactDescription); err != nil {
			return model.Discovery{}, fmt.Errorf("storage: scan impact: %w", err)
		}
		d.Impacts = append(d.Impacts, imp)
	}
	if err := rows.Err(); err != nil {
		return model.Discovery{}, fmt.Errorf("storage: iterate impacts: %w", err)
	}
	return d, nil
}

// UpdateDiscoveryStatus moves a discovery through its review state machine.
// PENDING may move to TRACKING or DISCARDED; TRACKING and DISCARDED may
// swap between each other but never return to PENDING.
func (db *DB) UpdateDiscoveryStatus(ctx context.Context, id uuid.UUID, owner string, status model.DiscoveryStatus) error {
	if !model.ValidStatus(status) {
		return fmt.Errorf("storage: unknown status %q: %w", status, ErrInvalidTransition)
	}
	if status == model.DiscoveryPending {
		return fmt.Errorf("storage: cannot return to PENDING: %w", ErrInvalidTransition)
	}

	tag, err := db.pool.Exec(ctx, `
		UPDATE discoveries d
		SET status = $3
		FROM documents doc
		WHERE d.id = $1 AND doc.id = d.document_id AND doc.owner = $2
	`, id, owner, status)
	if err != nil {
		return fmt.Errorf("storage: update discovery status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
