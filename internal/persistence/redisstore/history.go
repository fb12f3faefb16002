package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/sawpanic/gammafunnel/internal/microstructure"
)

// History keeps each ticker's microstructure history in a Redis list, oldest first
type History struct {
	client *redis.Client
	prefix string
}

// NewHistory wraps a go-redis v8 client
func NewHistory(client *redis.Client, prefix string) *History {
	return &History{client: client, prefix: prefix}
}

// Key is the list key for a ticker
func (h *History) Key(ticker string) string {
	return h.prefix + ":micro:" + strings.ToUpper(ticker)
}

// Load returns every entry in append order
func (h *History) Load(ctx context.Context, ticker string) ([]microstructure.Entry, error) {
	raw, err := h.client.LRange(ctx, h.Key(ticker), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", ticker, err)
	}
	entries := make([]microstructure.Entry, 0, len(raw))
	for i, r := range raw {
		var e microstructure.Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode history %s[%d]: %w", ticker, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Append pushes one entry onto the tail of the list
func (h *History) Append(ctx context.Context, ticker string, entry microstructure.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	if err := h.client.RPush(ctx, h.Key(ticker), payload).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", ticker, err)
	}
	return nil
}
