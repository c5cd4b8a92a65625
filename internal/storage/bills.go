package storage

import (
	"context"
	"fmt"

	"github.com/lexora-ai/lexora/internal/model"
)

// ListBills returns every bill with its articles eagerly loaded, ordered by
// bill id and article number. The pipeline treats this as a pure read.
func (db *DB) ListBills(ctx context.Context) ([]model.Bill, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, title, chamber, kind, stage, urgency, date
		FROM bills
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: query bills: %w", err)
	}
	defer rows.Close()

	var bills []model.Bill
	index := make(map[string]int)
	for rows.Next() {
		var b model.Bill
		if err := rows.Scan(&b.ID, &b.Title, &b.Chamber, &b.Kind, &b.Stage, &b.Urgency, &b.Date); err != nil {
			return nil, fmt.Errorf("storage: scan bill: %w", err)
		}
		index[b.ID] = len(bills)
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate bills: %w", err)
	}
	if len(bills) == 0 {
		return nil, nil
	}

	artRows, err := db.pool.Query(ctx, `
		SELECT bill_id, number, kind, text, semantic_description
		FROM bill_articles
		ORDER BY bill_id, number
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: query articles: %w", err)
	}
	defer artRows.Close()

	for artRows.Next() {
		var billID string
		var a model.Article
		if err := artRows.Scan(&billID, &a.Number, &a.Kind, &a.Text, &a.SemanticDescription); err != nil {
			return nil, fmt.Errorf("storage: scan article: %w", err)
		}
		if i, ok := index[billID]; ok {
			bills[i].Articles = append(bills[i].Articles, a)
		}
	}
	if err := artRows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate articles: %w", err)
	}

	return bills, nil
}

// UpsertBill inserts or replaces a bill and its articles. Used by the
// corpus importer; not called during analysis. Concurrent upserts of the
// same bill can deadlock on the delete-then-insert of articles, so the
// transaction is replayed on transient conflicts.
func (db *DB) UpsertBill(ctx context.Context, b model.Bill) error {
	return WithRetry(ctx, txRetryAttempts, txRetryBaseDelay, func() error {
		return db.upsertBillTx(ctx, b)
	})
}

func (db *DB) upsertBillTx(ctx context.Context, b model.Bill) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin upsert bill: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO bills (id, title, chamber, kind, stage, urgency, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			chamber = EXCLUDED.chamber,
			kind = EXCLUDED.kind,
			stage = EXCLUDED.stage,
			urgency = EXCLUDED.urgency,
			date = EXCLUDED.date
	`, b.ID, b.Title, b.Chamber, b.Kind, b.Stage, b.Urgency, b.Date); err != nil {
		return fmt.Errorf("storage: upsert bill %s: %w", b.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM bill_articles WHERE bill_id = $1`, b.ID); err != nil {
		return fmt.Errorf("storage: clear articles for %s: %w", b.ID, err)
	}
	for _, a := range b.Articles {
		if _, err := tx.Exec(ctx, `
			INSERT INTO bill_articles (bill_id, number, kind, text, semantic_description)
			VALUES ($1, $2, $3, $4, $5)
		`, b.ID, a.Number, a.Kind, a.Text, a.SemanticDescription); err != nil {
			return fmt.Errorf("storage: insert article %d for %s: %w", a.Number, b.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit upsert bill: %w", err)
	}
	return nil
}
