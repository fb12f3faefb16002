package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const ledgerDateLayout = "2006-01-02"

// FileLedger keeps the last day each ticker made the final signal set in one JSON file
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger creates a ledger backed by path
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

func (l *FileLedger) read() (map[string]string, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", l.path, err)
	}
	return m, nil
}

// LastSeen returns the recorded day for each known ticker
func (l *FileLedger) LastSeen(ctx context.Context, tickers []string) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(tickers))
	for _, t := range tickers {
		raw, ok := m[t]
		if !ok {
			continue
		}
		day, err := time.Parse(ledgerDateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", t, err)
		}
		out[t] = day
	}
	return out, nil
}

// Record stamps tickers with day and rewrites the ledger atomically
func (l *FileLedger) Record(ctx context.Context, tickers []string, day time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(tickers) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.read()
	if err != nil {
		return err
	}
	stamp := day.UTC().Format(ledgerDateLayout)
	for _, t := range tickers {
		m[t] = stamp
	}
	return WriteJSONAtomic(l.path, m)
}
