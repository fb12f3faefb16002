package redisstore

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const dateLayout = "2006-01-02"

// Ledger stores ticker → last signal day in a single Redis hash
type Ledger struct {
	client *redis.Client
	key    string
}

// NewLedger wraps a go-redis v9 client
func NewLedger(client *redis.Client, prefix string) *Ledger {
	return &Ledger{client: client, key: prefix + ":ledger"}
}

// LastSeen reads the recorded day for each ticker
func (l *Ledger) LastSeen(ctx context.Context, tickers []string) (map[string]time.Time, error) {
	if len(tickers) == 0 {
		return map[string]time.Time{}, nil
	}
	vals, err := l.client.HMGet(ctx, l.key, tickers...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget %s: %w", l.key, err)
	}
	return parseLastSeen(tickers, vals)
}

// Record sets the day for every ticker in one HSET
func (l *Ledger) Record(ctx context.Context, tickers []string, day time.Time) error {
	if len(tickers) == 0 {
		return nil
	}
	stamp := day.UTC().Format(dateLayout)
	fields := make(map[string]interface{}, len(tickers))
	for _, t := range tickers {
		fields[t] = stamp
	}
	if err := l.client.HSet(ctx, l.key, fields).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", l.key, err)
	}
	return nil
}

func parseLastSeen(tickers []string, vals []interface{}) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(tickers))
	for i, v := range vals {
		if i >= len(tickers) || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("ledger value for %s has type %T", tickers[i], v)
		}
		day, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("ledger value for %s: %w", tickers[i], err)
		}
		out[tickers[i]] = day
	}
	return out, nil
}
