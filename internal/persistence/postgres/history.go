package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/gammafunnel/internal/microstructure"
)

// Schema creates the tables used by History and Ledger
const Schema = `
CREATE TABLE IF NOT EXISTS microstructure_history (
	ticker     TEXT        NOT NULL,
	day        DATE        NOT NULL,
	features   JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (ticker, day)
);
CREATE TABLE IF NOT EXISTS signal_ledger (
	ticker    TEXT PRIMARY KEY,
	last_seen DATE NOT NULL
);`

// Open connects with the lib/pq driver
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// Migrate applies Schema
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type historyRow struct {
	Day      time.Time `db:"day"`
	Features []byte    `db:"features"`
}

// History is the PostgreSQL microstructure history store
type History struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHistory creates a history repository
func NewHistory(db *sqlx.DB, timeout time.Duration) *History {
	return &History{db: db, timeout: timeout}
}

// Load returns a ticker's entries oldest first
func (h *History) Load(ctx context.Context, ticker string) ([]microstructure.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var rows []historyRow
	query := `
		SELECT day, features
		FROM microstructure_history
		WHERE ticker = $1
		ORDER BY day ASC`
	if err := h.db.SelectContext(ctx, &rows, query, ticker); err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", ticker, err)
	}

	entries := make([]microstructure.Entry, 0, len(rows))
	for _, r := range rows {
		var features map[string]float64
		if err := json.Unmarshal(r.Features, &features); err != nil {
			return nil, fmt.Errorf("failed to decode features for %s on %s: %w", ticker, r.Day.Format("2006-01-02"), err)
		}
		entries = append(entries, microstructure.Entry{Date: r.Day.UTC(), Features: features})
	}
	return entries, nil
}

// Append inserts an entry; a second entry for the same day is ignored
func (h *History) Append(ctx context.Context, ticker string, entry microstructure.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	features, err := json.Marshal(entry.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO microstructure_history (ticker, day, features)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker, day) DO NOTHING`
	if _, err := h.db.ExecContext(ctx, query, ticker, entry.Date, features); err != nil {
		return fmt.Errorf("failed to append history for %s: %w", ticker, err)
	}
	return nil
}
