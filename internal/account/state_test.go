package account

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_State(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "circuit_breaker.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"start_equity": 100000,
		"current_equity": 92000,
		"active": true,
		"reason": "daily drawdown limit",
		"updated_at": "2026-10-16T21:00:00Z"
	}`), 0o644))

	state, err := NewFileSource(path).State(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.Equal(t, 92000.0, state.CurrentEquity)
	assert.InDelta(t, 0.08, state.Drawdown(), 1e-12)
	assert.Equal(t, "daily drawdown limit", state.Reason)
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "none.json")).State(context.Background())
	assert.ErrorIs(t, err, ErrNoState)
}

func TestFileSource_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileSource(path).State(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoState)
}

func TestDrawdown_PrefersReportedRatio(t *testing.T) {
	s := CircuitBreakerState{StartEquity: 100, CurrentEquity: 50, DrawdownRatio: 0.1}
	assert.Equal(t, 0.1, s.Drawdown())
}
