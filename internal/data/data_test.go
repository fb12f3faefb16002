package data

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gammafunnel/internal/domain/market"
	"github.com/sawpanic/gammafunnel/internal/net/breaker"
	"github.com/sawpanic/gammafunnel/internal/net/ratelimit"
)

var asOf = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func seedSnapshot(t *testing.T, withFlow bool) string {
	t.Helper()
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, listingsFile), []market.Listing{
		{Ticker: "AAPL", Sector: "Technology", Price: 180, Fundamentals: market.Fundamentals{ROE: 0.3}},
		{Ticker: "XOM", Sector: "Energy", Price: 110},
	})
	var bars []market.Bar
	for i := 0; i < 30; i++ {
		bars = append(bars, market.Bar{
			Date: asOf.AddDate(0, 0, i-29), Open: 100, High: 110, Low: 100, Close: 107.5, Volume: 1000,
		})
	}
	writeJSON(t, filepath.Join(dir, barsDir, "AAPL.json"), bars)
	writeJSON(t, filepath.Join(dir, optionsDir, "AAPL.json"), []market.OptionContract{
		{Strike: 180, Type: market.Call, ImpliedVol: 0.20},
		{Strike: 180, Type: market.Put, ImpliedVol: 0.26},
		{Strike: 170, Type: market.Put, ImpliedVol: 0.30},
	})
	writeJSON(t, filepath.Join(dir, insiderFile), map[string]market.InsiderActivity{"AAPL": {Buys30d: 3, Sells30d: 1}})
	writeJSON(t, filepath.Join(dir, earningsFile), map[string]string{"AAPL": "2026-03-12", "XOM": "2026-04-30"})
	writeJSON(t, filepath.Join(dir, macroFile), Macro{VIX: 18.5, Treasury10Y: 4.2})
	if withFlow {
		writeJSON(t, filepath.Join(dir, darkPoolFile), map[string]market.DarkPoolPrint{
			"AAPL": {DarkVolume: 400, TotalVolume: 1000, BuyVolume: 300, SellVolume: 100},
		})
		writeJSON(t, filepath.Join(dir, microFile), map[string]market.MicroFeatures{
			"AAPL": {DarkPoolShare: 0.4, IVRank: 35, BlockTrades: 4, TotalTrades: 100},
		})
	}
	return dir
}

func TestFileSource_ServesSnapshot(t *testing.T) {
	ctx := context.Background()
	src := NewFileSource(seedSnapshot(t, true))
	require.NoError(t, src.Ping(ctx))

	listings, err := src.Listings(ctx)
	require.NoError(t, err)
	assert.Len(t, listings, 2)

	bars, err := src.Bars(ctx, "aapl", 20)
	require.NoError(t, err)
	require.Len(t, bars, 20)
	assert.True(t, bars[19].Date.Equal(asOf))

	fund, err := src.Fundamentals(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0.3, fund.ROE)

	ins, err := src.InsiderActivity(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, ins.Net())

	ins, err = src.InsiderActivity(ctx, "XOM")
	require.NoError(t, err)
	assert.Zero(t, ins.Net())

	vix, err := src.VIX(ctx)
	require.NoError(t, err)
	assert.Equal(t, 18.5, vix)

	_, err = src.Bars(ctx, "ZZZZ", 20)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSource_EarningsWindow(t *testing.T) {
	ctx := context.Background()
	src := NewFileSource(seedSnapshot(t, false))

	bulk, err := src.Bulk(ctx, asOf, asOf.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Contains(t, bulk, "AAPL")
	assert.NotContains(t, bulk, "XOM")

	next, ok, err := src.Next(ctx, "xom")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30, next.Day())

	_, ok, err = src.Next(ctx, "MSFT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileSource_FlowUnavailable(t *testing.T) {
	ctx := context.Background()
	src := NewFileSource(seedSnapshot(t, false))
	assert.ErrorIs(t, src.Flow().Ping(ctx), ErrUnavailable)

	_, err := src.DarkPool(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFallbackFlow_PrefersPrimary(t *testing.T) {
	ctx := context.Background()
	src := NewFileSource(seedSnapshot(t, true))
	flow := NewFallbackFlow(src.Flow(), src, 0.45, 20)

	dp, err := flow.DarkPool(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, dp.Derived)
	assert.Equal(t, 0.4, dp.Share())
	assert.Empty(t, flow.Used())
}

func TestFallbackFlow_DerivesFromOHLC(t *testing.T) {
	ctx := context.Background()
	src := NewFileSource(seedSnapshot(t, false))
	flow := NewFallbackFlow(src.Flow(), src, 0.45, 20)

	dp, err := flow.DarkPool(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, dp.Derived)
	assert.InDelta(t, 450, dp.DarkVolume, 1e-9)
	assert.InDelta(t, 0.75, dp.BuyRatio(), 1e-9)

	mf, err := flow.Microstructure(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, mf.Derived)
	assert.InDelta(t, 0.45, mf.DarkPoolShare, 1e-9)
	assert.InDelta(t, 0.08, mf.IVSkew, 1e-9)
	assert.Equal(t, 50.0, mf.IVRank)

	assert.Equal(t, []string{"AAPL"}, flow.Used())
}

func TestDeriveDarkPool_FlatBar(t *testing.T) {
	dp := DeriveDarkPool([]market.Bar{{High: 10, Low: 10, Close: 10, Volume: 200}}, 0.5)
	assert.InDelta(t, 0.5, dp.BuyRatio(), 1e-9)
	assert.InDelta(t, 100, dp.DarkVolume, 1e-9)
}

func TestIVSkew_OneSidedChain(t *testing.T) {
	assert.Zero(t, IVSkew([]market.OptionContract{{Type: market.Call, ImpliedVol: 0.3}}))
}

type flakySource struct {
	market.DataSource
	calls int
	err   error
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Bars(ctx context.Context, ticker string, lookback int) ([]market.Bar, error) {
	f.calls++
	return nil, f.err
}

func TestGuardedSource_OpensBreaker(t *testing.T) {
	ctx := context.Background()
	inner := &flakySource{err: errors.New("503")}
	src := NewGuardedSource(inner, Guards{
		Limiter:  ratelimit.NewLimiter(1000, 10),
		Breakers: breaker.NewSet(breaker.Settings{ConsecutiveFailures: 2, Timeout: time.Minute}),
	})

	for i := 0; i < 2; i++ {
		_, err := src.Bars(ctx, "AAPL", 10)
		assert.Error(t, err)
	}
	_, err := src.Bars(ctx, "AAPL", 10)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestGuardedCalendar_PassesThrough(t *testing.T) {
	ctx := context.Background()
	cal := NewGuardedCalendar(NewFileSource(seedSnapshot(t, false)), Guards{})
	d, ok, err := cal.Next(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12, d.Day())
}
