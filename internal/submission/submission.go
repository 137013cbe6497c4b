// Package submission tracks how many times the same (cardId, sourceUrl)
// pair has been submitted to the worker, so callers enqueuing via HTTP
// can see resubmission counts without a full catalog query. Adapted
// from the teacher's internal/dedupe.Tracker, which counted resubmitted
// content_ids; this variant keys on the pair the async ingest handler
// actually receives.
package submission

import (
	"context"
	"database/sql"
	"fmt"
)

// Ledger records one row per distinct (cardId, sourceUrl) submission and
// counts repeats.
type Ledger struct {
	db *sql.DB
}

// NewLedger wraps db and ensures the backing table exists.
func NewLedger(ctx context.Context, db *sql.DB) (*Ledger, error) {
	l := &Ledger{db: db}
	if err := l.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure submission ledger table: %w", err)
	}
	return l, nil
}

func (l *Ledger) ensureTable(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS image_job_submissions (
	card_id TEXT NOT NULL,
	source_url TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	seen_count INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (card_id, source_url)
)`
	_, err := l.db.ExecContext(ctx, query)
	return err
}

// Record upserts a submission for (cardID, sourceURL) and returns how
// many times that exact pair has now been seen, including this call.
func (l *Ledger) Record(ctx context.Context, cardID, sourceURL string) (int, error) {
	const query = `
INSERT INTO image_job_submissions (card_id, source_url, first_seen_at, last_seen_at, seen_count)
VALUES ($1, $2, NOW(), NOW(), 1)
ON CONFLICT (card_id, source_url) DO UPDATE
SET last_seen_at = NOW(), seen_count = image_job_submissions.seen_count + 1
RETURNING seen_count`

	var seenCount int
	if err := l.db.QueryRowContext(ctx, query, cardID, sourceURL).Scan(&seenCount); err != nil {
		return 0, fmt.Errorf("record submission: %w", err)
	}
	return seenCount, nil
}
