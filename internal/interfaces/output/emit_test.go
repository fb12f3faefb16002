package output

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gammafunnel/internal/application/pipeline"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
	"github.com/sawpanic/gammafunnel/internal/gamma"
	"github.com/sawpanic/gammafunnel/internal/microstructure"
	"github.com/sawpanic/gammafunnel/internal/regime"
	"github.com/sawpanic/gammafunnel/internal/sizing"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		RunID:       "run-1",
		AsOf:        time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Mode:        market.ModeLong,
		Equity:      100000,
		VIX:         15,
		Treasury10Y: 4.1,
		Regime:      regime.State{BMI: 52, Regime: regime.Yellow},
		Positions: []sizing.Position{
			{
				Ticker: "AAA", Direction: market.ModeLong, OrderType: "LIMIT", Entry: 101.5, Quantity: 147,
				Stop: 99.925, Target1: 110, Target2: 113.5, Risk: 231.53, Notional: 14920.5, Combined: 80.5,
				GammaRegime: gamma.Positive, MicroRegime: microstructure.Neutral, MicroConfidence: microstructure.Undetermined,
				Sector: "Technology", TotalMultiplier: 1, Trimmed: []string{"position_cap"},
			},
			{Ticker: "BBB", Direction: market.ModeLong, OrderType: "LIMIT", Entry: 50, Quantity: 10},
		},
		Dropped:    []sizing.Drop{{Ticker: "CCC", Reason: "sector_cap"}},
		Fallbacks:  []string{"flow -> ohlc-derived dark pool"},
		FailedOpen: []string{"FLAKY"},
	}
}

func TestEmitAll_WritesEveryArtifact(t *testing.T) {
	dir := t.TempDir()
	res := sampleResult()

	files, err := NewEmitter(dir).EmitAll(res)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(files.Positions, "positions-2026-03-10.jsonl"))

	f, err := os.Open(files.Positions)
	require.NoError(t, err)
	defer f.Close()

	var tickers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var p sizing.Position
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &p))
		tickers = append(tickers, p.Ticker)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"AAA", "BBB"}, tickers)

	raw, err := os.ReadFile(files.CSV)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Ticker", rows[0][0])
	assert.Equal(t, "147", rows[1][4])
	assert.Equal(t, "position_cap", rows[1][16])

	report, err := os.ReadFile(files.Report)
	require.NoError(t, err)
	assert.Contains(t, string(report), `"run_id": "run-1"`)
}

func TestEmitPositionsJSONL_EmptyRun(t *testing.T) {
	path := t.TempDir() + "/positions.jsonl"
	require.NoError(t, NewEmitter("").EmitPositionsJSONL(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "Run run-1  as of 2026-03-10  regime YELLOW (BMI 52.0)  mode LONG")
	assert.Contains(t, out, "VIX 15.00  10Y 4.10%")
	assert.Contains(t, out, "fallback: flow -> ohlc-derived dark pool")
	assert.Contains(t, out, "failed open: FLAKY")
	assert.Contains(t, out, "NEUTRAL/UNDETERMINED")
	assert.Contains(t, out, "dropped CCC: sector_cap")
}

func TestWriteTable_NoPositions(t *testing.T) {
	res := sampleResult()
	res.Positions = nil

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, res))
	assert.Contains(t, buf.String(), "No positions.")
}
