package scoring

import (
	"errors"
	"fmt"

	"github.com/sawpanic/gammafunnel/internal/domain/indicators"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

var (
	// ErrInsufficientData marks a ticker without enough history to score
	ErrInsufficientData = errors.New("insufficient data")
	// ErrTrendGate marks a ticker on the wrong side of its long-term trend
	ErrTrendGate = errors.New("trend gate failed")
)

// Technical is the trend-gated technical sub-score
type Technical struct {
	Score  float64 `json:"score"`
	SMA200 float64 `json:"sma200"`
	SMA50  float64 `json:"sma50"`
	RSI    float64 `json:"rsi"`
	ATR    float64 `json:"atr"`
}

// Flow is the volume and dark-pool sub-score
type Flow struct {
	Score       float64 `json:"score"`
	RVOL        float64 `json:"rvol"`
	SpreadRatio float64 `json:"spread_ratio"`
	Squat       bool    `json:"squat"`
	DarkPool    string  `json:"dark_pool"` // bullish, bearish, neutral or inactive
}

// Fundamental is the quality sub-score after the insider multiplier
type Fundamental struct {
	Score             float64 `json:"score"`
	Raw               float64 `json:"raw"`
	InsiderNet        int     `json:"insider_net"`
	InsiderMultiplier float64 `json:"insider_multiplier"`
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TechnicalScore applies the long-term trend gate then scores trend alignment and RSI
func (s *Scorer) TechnicalScore(bars []market.Bar, mode market.StrategyMode) (Technical, error) {
	cfg := s.cfg
	if len(bars) < cfg.TrendPeriod {
		return Technical{}, fmt.Errorf("%w: %d bars, need %d", ErrInsufficientData, len(bars), cfg.TrendPeriod)
	}
	closes := market.Closes(bars)
	price := closes[len(closes)-1]

	sma200, _ := indicators.SMA(closes, cfg.TrendPeriod)
	long := mode == market.ModeLong
	if (long && price <= sma200) || (!long && price >= sma200) {
		return Technical{SMA200: sma200}, fmt.Errorf("%w: price %.2f vs SMA%d %.2f", ErrTrendGate, price, cfg.TrendPeriod, sma200)
	}

	t := Technical{SMA200: sma200}
	score := 60.0

	if sma50, ok := indicators.SMA(closes, 50); ok {
		t.SMA50 = sma50
		if (long && price > sma50) || (!long && price < sma50) {
			score += 10
		}
	}
	if mom, ok := indicators.PercentChange(closes, 20); ok {
		if (long && mom > 0) || (!long && mom < 0) {
			score += 10
		}
	}

	rsi := indicators.CalculateRSI(closes, cfg.RSIPeriod)
	t.RSI = rsi.Value
	switch {
	case rsi.Value < cfg.RSIOversold:
		score += directional(long, 5)
	case rsi.Value > cfg.RSIOverbought:
		score -= directional(long, 5)
	}

	atr := indicators.CalculateATR(bars, cfg.ATRPeriod)
	if !atr.IsValid || atr.Value <= 0 {
		return Technical{}, fmt.Errorf("%w: ATR%d unavailable", ErrInsufficientData, cfg.ATRPeriod)
	}
	t.ATR = atr.Value
	t.Score = clip(score, 0, 100)
	return t, nil
}

// FlowScore scores relative volume, squat bars and dark-pool imbalance
func (s *Scorer) FlowScore(bars []market.Bar, dp market.DarkPoolPrint, mode market.StrategyMode) (Flow, error) {
	cfg := s.cfg
	rvol, ok := indicators.RelativeVolume(bars, cfg.RVOLPeriod)
	if !ok {
		return Flow{}, fmt.Errorf("%w: relative volume", ErrInsufficientData)
	}
	spread, _ := indicators.SpreadRatio(bars, cfg.RVOLPeriod)
	long := mode == market.ModeLong

	f := Flow{RVOL: rvol, SpreadRatio: spread, DarkPool: "inactive"}
	score := 50.0

	switch {
	case rvol < 0.7:
		score -= 10
	case rvol < 1.3:
	case rvol < 2.0:
		score += 10
	default:
		score += 15
	}

	// Heavy volume on a compressed range: hidden accumulation
	if rvol > cfg.SquatRVOL && spread > 0 && spread < cfg.SquatSpreadRatio {
		f.Squat = true
		score += directional(long, 10)
	}

	if dp.Share() > cfg.DarkPoolMinShare {
		switch ratio := dp.BuyRatio(); {
		case ratio >= cfg.DarkPoolBullish:
			f.DarkPool = "bullish"
			score += directional(long, 10)
		case ratio <= cfg.DarkPoolBearish:
			f.DarkPool = "bearish"
			score -= directional(long, 10)
		default:
			f.DarkPool = "neutral"
		}
	}

	f.Score = clip(score, 0, 100)
	return f, nil
}

// FundamentalScore scores quality bands, applies the insider multiplier, then clips
func (s *Scorer) FundamentalScore(fund market.Fundamentals, insider market.InsiderActivity, mode market.StrategyMode) Fundamental {
	cfg := s.cfg
	raw := 50.0
	raw += band(fund.RevenueGrowth, 0.20, 0.10)
	raw += band(fund.EPSGrowth, 0.20, 0.10)
	raw += band(fund.NetMargin, 0.20, 0.10)
	raw += band(fund.ROE, 0.20, 0.15)

	switch {
	case fund.DebtToEquity <= 0.5:
		raw += 5
	case fund.DebtToEquity >= 2.0:
		raw -= 10
	}
	switch {
	case fund.InterestCoverage >= 10:
		raw += 5
	case fund.InterestCoverage < 1.5:
		raw -= 10
	}

	long := mode == market.ModeLong
	if !long {
		// Weak balance sheets are what a short wants
		raw = 100 - raw
	}

	net := insider.Net()
	if !long {
		net = -net
	}
	mult := 1.0
	switch {
	case net > cfg.InsiderNetThreshold:
		mult = cfg.InsiderBoost
	case net < -cfg.InsiderNetThreshold:
		mult = cfg.InsiderPenalty
	}

	return Fundamental{
		Score:             clip(raw*mult, 0, 100),
		Raw:               raw,
		InsiderNet:        insider.Net(),
		InsiderMultiplier: mult,
	}
}

// band awards +10 at or above strong, +5 at or above good, -10 below zero
func band(v, strong, good float64) float64 {
	switch {
	case v >= strong:
		return 10
	case v >= good:
		return 5
	case v < 0:
		return -10
	}
	return 0
}

func directional(long bool, points float64) float64 {
	if long {
		return points
	}
	return -points
}
