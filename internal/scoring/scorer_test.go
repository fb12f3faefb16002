package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

var asOf = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

// trendBars drifts by slope per session with an alternating wiggle that keeps RSI neutral
func trendBars(n int, base, slope float64) []market.Bar {
	bars := make([]market.Bar, n)
	for i := range bars {
		wiggle := 0.5
		if i%2 == 1 {
			wiggle = -0.5
		}
		c := base + slope*float64(i) + wiggle
		bars[i] = market.Bar{
			Date:   asOf.AddDate(0, 0, i-n+1),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1e6,
		}
	}
	return bars
}

func newScorer() *Scorer {
	return NewScorer(config.Default().Scoring)
}

type fakeLedger struct {
	seen map[string]time.Time
	err  error
}

func (f fakeLedger) LastSeen(context.Context, []string) (map[string]time.Time, error) {
	return f.seen, f.err
}

func (f fakeLedger) Record(context.Context, []string, time.Time) error { return nil }

func TestTechnicalScore(t *testing.T) {
	s := newScorer()

	up := trendBars(220, 100, 0.2)
	tech, err := s.TechnicalScore(up, market.ModeLong)
	require.NoError(t, err)
	assert.Equal(t, 80.0, tech.Score)
	assert.Greater(t, tech.ATR, 0.0)
	assert.InDelta(t, 50, tech.RSI, 20)

	_, err = s.TechnicalScore(up, market.ModeShort)
	assert.True(t, errors.Is(err, ErrTrendGate))

	down := trendBars(220, 150, -0.2)
	tech, err = s.TechnicalScore(down, market.ModeShort)
	require.NoError(t, err)
	assert.Equal(t, 80.0, tech.Score)

	_, err = s.TechnicalScore(up[:150], market.ModeLong)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestTechnicalScore_RSIExtremes(t *testing.T) {
	s := newScorer()

	// A steady climb without pullbacks pins RSI at 100
	bars := make([]market.Bar, 220)
	for i := range bars {
		c := 100 + 0.2*float64(i)
		bars[i] = market.Bar{Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1e6}
	}
	tech, err := s.TechnicalScore(bars, market.ModeLong)
	require.NoError(t, err)
	assert.Equal(t, 100.0, tech.RSI)
	assert.Equal(t, 75.0, tech.Score)
}

func TestFlowScore_RVOLBands(t *testing.T) {
	s := newScorer()
	tests := []struct {
		name   string
		volume float64
		rangeW float64
		want   float64
		squat  bool
	}{
		{"thin", 0.5e6, 2, 40, false},
		{"normal", 1e6, 2, 50, false},
		{"elevated", 1.5e6, 2, 60, false},
		{"heavy", 2.5e6, 2, 65, false},
		{"squat", 2.5e6, 1, 75, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := trendBars(30, 100, 0.1)
			last := &bars[len(bars)-1]
			last.Volume = tt.volume
			last.High = last.Close + tt.rangeW/2
			last.Low = last.Close - tt.rangeW/2

			flow, err := s.FlowScore(bars, market.DarkPoolPrint{}, market.ModeLong)
			require.NoError(t, err)
			assert.Equal(t, tt.want, flow.Score)
			assert.Equal(t, tt.squat, flow.Squat)
			assert.Equal(t, "inactive", flow.DarkPool)
		})
	}
}

func TestFlowScore_DarkPool(t *testing.T) {
	s := newScorer()
	bars := trendBars(30, 100, 0.1)

	bullish := market.DarkPoolPrint{DarkVolume: 500, TotalVolume: 1000, BuyVolume: 300, SellVolume: 200}
	bearish := market.DarkPoolPrint{DarkVolume: 500, TotalVolume: 1000, BuyVolume: 200, SellVolume: 300}
	balanced := market.DarkPoolPrint{DarkVolume: 500, TotalVolume: 1000, BuyVolume: 250, SellVolume: 250}
	lit := market.DarkPoolPrint{DarkVolume: 300, TotalVolume: 1000, BuyVolume: 300}

	flow, _ := s.FlowScore(bars, bullish, market.ModeLong)
	assert.Equal(t, "bullish", flow.DarkPool)
	assert.Equal(t, 60.0, flow.Score)

	flow, _ = s.FlowScore(bars, bullish, market.ModeShort)
	assert.Equal(t, 40.0, flow.Score)

	flow, _ = s.FlowScore(bars, bearish, market.ModeLong)
	assert.Equal(t, "bearish", flow.DarkPool)
	assert.Equal(t, 40.0, flow.Score)

	flow, _ = s.FlowScore(bars, balanced, market.ModeLong)
	assert.Equal(t, "neutral", flow.DarkPool)
	assert.Equal(t, 50.0, flow.Score)

	flow, _ = s.FlowScore(bars, lit, market.ModeLong)
	assert.Equal(t, "inactive", flow.DarkPool)
}

func TestFundamentalScore(t *testing.T) {
	s := newScorer()
	strong := market.Fundamentals{
		RevenueGrowth: 0.25, EPSGrowth: 0.30, NetMargin: 0.22, ROE: 0.25, DebtToEquity: 0.3, InterestCoverage: 15,
	}
	weak := market.Fundamentals{
		RevenueGrowth: -0.1, EPSGrowth: -0.2, NetMargin: -0.05, ROE: -0.1, DebtToEquity: 3, InterestCoverage: 0.5,
	}

	f := s.FundamentalScore(strong, market.InsiderActivity{}, market.ModeLong)
	assert.Equal(t, 100.0, f.Raw)
	assert.Equal(t, 100.0, f.Score)

	// Insider boost must not leak above the clip
	f = s.FundamentalScore(strong, market.InsiderActivity{Buys30d: 6, Sells30d: 1}, market.ModeLong)
	assert.Equal(t, 1.25, f.InsiderMultiplier)
	assert.Equal(t, 100.0, f.Score)
	assert.Equal(t, 5, f.InsiderNet)

	neutral := market.Fundamentals{RevenueGrowth: 0.05, EPSGrowth: 0.05, NetMargin: 0.05, ROE: 0.05, DebtToEquity: 1, InterestCoverage: 5}
	f = s.FundamentalScore(neutral, market.InsiderActivity{Sells30d: 5}, market.ModeLong)
	assert.Equal(t, 0.75, f.InsiderMultiplier)
	assert.Equal(t, 37.5, f.Score)

	f = s.FundamentalScore(weak, market.InsiderActivity{}, market.ModeLong)
	assert.Equal(t, 0.0, f.Score)

	// Shorts invert the bands and the insider direction
	f = s.FundamentalScore(weak, market.InsiderActivity{Sells30d: 5}, market.ModeShort)
	assert.Equal(t, 110.0, f.Raw)
	assert.Equal(t, 1.25, f.InsiderMultiplier)
	assert.Equal(t, 100.0, f.Score)
}

func TestScore_CombinesAndBounds(t *testing.T) {
	s := newScorer()
	snap := market.Snapshot{
		Listing: market.Listing{Ticker: "AAA", Sector: "Technology"},
		Bars:    trendBars(220, 100, 0.2),
	}

	c, err := s.Score(snap, market.ModeLong, 15)
	require.NoError(t, err)
	// Zero fundamentals score 45 (low D/E +5, no coverage -10): 0.4*50 + 0.3*45 + 0.3*80 + 15
	assert.InDelta(t, 72.5, c.Combined, 1e-9)
	assert.Equal(t, 45.0, c.Fundamental.Score)
	assert.Equal(t, c.Combined, c.BaseCombined)
	assert.Equal(t, 1.0, c.Freshness)
	assert.InDelta(t, market.LastClose(snap.Bars), c.Price, 1e-9)

	for _, adj := range []float64{-1000, -20, 0, 15, 1000} {
		c, err := s.Score(snap, market.ModeLong, adj)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c.Combined, 0.0)
		assert.LessOrEqual(t, c.Combined, 150.0)
	}
}

func cand(ticker string, score float64) Candidate {
	return Candidate{Ticker: ticker, Combined: score, BaseCombined: score, Freshness: 1}
}

func TestFinalize_DefaultOrder(t *testing.T) {
	s := newScorer()
	recent := asOf.AddDate(0, 0, -10)
	ledger := fakeLedger{seen: map[string]time.Time{
		"SEEN":  recent,
		"OLD":   asOf.AddDate(0, 0, -120),
		"OK":    recent,
		"CROWD": recent,
		"LOW":   recent,
		"TIE":   recent,
	}}
	in := []Candidate{
		cand("LOW", 65), cand("CROWD", 95), cand("OK", 80), cand("TIE", 80),
		cand("FRESH", 55), // 55 * 1.5 = 82.5
		cand("HOT", 70),   // 70 * 1.5 = 105, pushed into the crowding cut
		cand("SEEN", 72),
		cand("OLD", 50), // last signal outside the lookback: 75
	}

	out, drops := s.Finalize(context.Background(), in, ledger, asOf)

	var tickers []string
	for _, c := range out {
		tickers = append(tickers, c.Ticker)
		assert.GreaterOrEqual(t, c.Combined, 70.0)
		assert.LessOrEqual(t, c.Combined, 90.0)
	}
	assert.Equal(t, []string{"FRESH", "OK", "TIE", "OLD", "SEEN"}, tickers)
	assert.True(t, out[0].Fresh)
	assert.Equal(t, 1.5, out[0].Freshness)
	assert.InDelta(t, 82.5, out[0].Combined, 1e-9)

	byTicker := map[string]string{}
	for _, d := range drops {
		byTicker[d.Ticker] = d.Step
	}
	assert.Equal(t, map[string]string{"CROWD": "crowding", "HOT": "crowding", "LOW": "threshold"}, byTicker)
}

func TestFinalize_CrowdingBeforeFreshness(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.StepOrder = []string{"crowding", "freshness", "threshold"}
	s := NewScorer(cfg)

	out, drops := s.Finalize(context.Background(), []Candidate{cand("HOT", 70)}, fakeLedger{}, asOf)
	require.Len(t, out, 1)
	assert.InDelta(t, 105.0, out[0].Combined, 1e-9)
	assert.Empty(t, drops)
}

func TestFinalize_FreshnessCapsAtMaxCombined(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.StepOrder = []string{"threshold", "freshness", "crowding"}
	cfg.CrowdingCutoff = 140
	s := NewScorer(cfg)

	out, _ := s.Finalize(context.Background(), []Candidate{cand("BIG", 120)}, fakeLedger{}, asOf)
	assert.Empty(t, out)

	cfg.CrowdingCutoff = 150
	out, _ = NewScorer(cfg).Finalize(context.Background(), []Candidate{cand("BIG", 110)}, fakeLedger{}, asOf)
	require.Len(t, out, 1)
	assert.Equal(t, 150.0, out[0].Combined)
}

func TestFinalize_LedgerErrorDisablesFreshness(t *testing.T) {
	s := newScorer()
	out, _ := s.Finalize(context.Background(), []Candidate{cand("AAA", 60), cand("BBB", 75)},
		fakeLedger{err: errors.New("redis down")}, asOf)
	require.Len(t, out, 1)
	assert.Equal(t, "BBB", out[0].Ticker)
	assert.False(t, out[0].Fresh)
}

func TestRank_TieBreakByTicker(t *testing.T) {
	cands := []Candidate{cand("MSFT", 80), cand("AAPL", 80), cand("NVDA", 85)}
	Rank(cands)
	assert.Equal(t, "NVDA", cands[0].Ticker)
	assert.Equal(t, "AAPL", cands[1].Ticker)
	assert.Equal(t, "MSFT", cands[2].Ticker)
}
