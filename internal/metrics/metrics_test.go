package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gammafunnel/internal/stream"
)

func TestRegistry_RecordsPhaseEvents(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.Emit(ctx, stream.PhaseEvent{
		Phase:        stream.PhaseUniverse,
		SurvivorsIn:  100,
		SurvivorsOut: 80,
		Exclusions:   map[string]int{"price": 15, "earnings_window": 5},
		FailedOpen:   []string{"AAA", "BBB"},
		Duration:     2 * time.Second,
	}))
	require.NoError(t, r.Emit(ctx, stream.PhaseEvent{Phase: stream.PhaseSizing, SurvivorsOut: 6}))

	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 80.0, snap[`gammafunnel_phase_survivors{phase="universe"}`])
	assert.Equal(t, 15.0, snap[`gammafunnel_exclusions_total{phase="universe",reason="price"}`])
	assert.Equal(t, 2.0, snap[`gammafunnel_failed_open_total{phase="universe"}`])
	assert.Equal(t, 1.0, snap[`gammafunnel_phase_duration_seconds_count{phase="universe"}`])
	assert.InDelta(t, 2.0, snap[`gammafunnel_phase_duration_seconds_sum{phase="universe"}`], 1e-9)
	assert.Equal(t, 6.0, snap["gammafunnel_positions"])
	assert.Zero(t, snap["gammafunnel_halts_total"])
}

func TestRegistry_CountsHalts(t *testing.T) {
	r := New()
	require.NoError(t, r.Emit(context.Background(), stream.PhaseEvent{Phase: stream.PhaseDiagnostics, Halted: true}))
	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap["gammafunnel_halts_total"])
}

func TestRegistry_WriteTextfile(t *testing.T) {
	r := New()
	r.BMI.Set(42.5)
	path := filepath.Join(t.TempDir(), "gammafunnel.prom")
	require.NoError(t, r.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "gammafunnel_bmi 42.5")
}
