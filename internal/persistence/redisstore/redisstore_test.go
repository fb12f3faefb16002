package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	redismockv9 "github.com/go-redis/redismock/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gammafunnel/internal/microstructure"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func TestHistory_LoadAndAppend(t *testing.T) {
	client, mock := redismock.NewClientMock()
	h := NewHistory(client, "gf")
	ctx := context.Background()

	entry := microstructure.Entry{Date: day, Features: map[string]float64{"iv_rank": 55}}
	payload, err := json.Marshal(entry)
	require.NoError(t, err)

	mock.ExpectRPush("gf:micro:AAPL", payload).SetVal(1)
	require.NoError(t, h.Append(ctx, "aapl", entry))

	mock.ExpectLRange("gf:micro:AAPL", 0, -1).SetVal([]string{string(payload)})
	entries, err := h.Load(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 55.0, entries[0].Features["iv_rank"])
	assert.True(t, entries[0].Date.Equal(day))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_Errors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	h := NewHistory(client, "gf")

	mock.ExpectLRange("gf:micro:AAPL", 0, -1).SetErr(errors.New("READONLY"))
	_, err := h.Load(context.Background(), "AAPL")
	assert.ErrorContains(t, err, "READONLY")

	mock.ExpectLRange("gf:micro:MSFT", 0, -1).SetVal([]string{"garbage"})
	_, err = h.Load(context.Background(), "MSFT")
	assert.ErrorContains(t, err, "decode history MSFT[0]")
}

func TestParseLastSeen(t *testing.T) {
	out, err := parseLastSeen([]string{"AAPL", "MSFT", "NVDA"}, []interface{}{"2026-03-10", nil, "2026-01-02"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.True(t, out["AAPL"].Equal(day))

	_, err = parseLastSeen([]string{"AAPL"}, []interface{}{"10/03/2026"})
	assert.Error(t, err)
}

func TestLedger_RecordAndLastSeen(t *testing.T) {
	client, mock := redismockv9.NewClientMock()
	l := NewLedger(client, "gf")
	ctx := context.Background()

	mock.ExpectHSet("gf:ledger", map[string]interface{}{"AAPL": "2026-03-10"}).SetVal(1)
	require.NoError(t, l.Record(ctx, []string{"AAPL"}, day.Add(15*time.Hour)))

	mock.ExpectHMGet("gf:ledger", "AAPL", "MSFT").SetVal([]interface{}{"2026-03-10", nil})
	seen, err := l.LastSeen(ctx, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.True(t, seen["AAPL"].Equal(day))

	mock.ExpectHMGet("gf:ledger", "AAPL").SetErr(errors.New("LOADING"))
	_, err = l.LastSeen(ctx, []string{"AAPL"})
	assert.ErrorContains(t, err, "redis hmget gf:ledger")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	l := NewLedger(client, "gf")

	_, err := l.LastSeen(context.Background(), []string{"AAPL"})
	assert.Error(t, err)

	seen, err := l.LastSeen(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, seen)
	assert.NoError(t, l.Record(context.Background(), nil, day))
}
