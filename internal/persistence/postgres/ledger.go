package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Ledger is the PostgreSQL signal ledger
type Ledger struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLedger creates a ledger repository
func NewLedger(db *sqlx.DB, timeout time.Duration) *Ledger {
	return &Ledger{db: db, timeout: timeout}
}

// LastSeen returns the last recorded day per known ticker
func (l *Ledger) LastSeen(ctx context.Context, tickers []string) (map[string]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	out := make(map[string]time.Time, len(tickers))
	if len(tickers) == 0 {
		return out, nil
	}

	rows, err := l.db.QueryxContext(ctx,
		`SELECT ticker, last_seen FROM signal_ledger WHERE ticker = ANY($1)`, pq.Array(tickers))
	if err != nil {
		return nil, fmt.Errorf("failed to query signal ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ticker string
		var seen time.Time
		if err := rows.Scan(&ticker, &seen); err != nil {
			return nil, fmt.Errorf("failed to scan signal ledger: %w", err)
		}
		out[ticker] = seen.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// Record upserts the day for every ticker in one transaction
func (l *Ledger) Record(ctx context.Context, tickers []string, day time.Time) error {
	if len(tickers) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO signal_ledger (ticker, last_seen)
		VALUES ($1, $2)
		ON CONFLICT (ticker) DO UPDATE SET last_seen = EXCLUDED.last_seen`)
	if err != nil {
		return fmt.Errorf("failed to prepare ledger upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tickers {
		if _, err := stmt.ExecContext(ctx, t, day); err != nil {
			return fmt.Errorf("failed to record %s: %w", t, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger: %w", err)
	}
	return nil
}
