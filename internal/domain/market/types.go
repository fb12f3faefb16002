package market

import (
	"time"
)

// StrategyMode selects which side of the market the whole run trades
type StrategyMode string

const (
	ModeLong  StrategyMode = "LONG"
	ModeShort StrategyMode = "SHORT"
)

// Bar is a single daily OHLCV bar
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// OptionType distinguishes calls from puts
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// OptionContract is one row of an options chain
type OptionContract struct {
	Strike       float64    `json:"strike"`
	Type         OptionType `json:"type"`
	OpenInterest float64    `json:"open_interest"`
	Gamma        float64    `json:"gamma"`
	ImpliedVol   float64    `json:"implied_vol"`
	Expiry       time.Time  `json:"expiry"`
}

// DarkPoolPrint is the off-exchange volume split for the latest session
type DarkPoolPrint struct {
	DarkVolume  float64 `json:"dark_volume"`
	TotalVolume float64 `json:"total_volume"`
	BuyVolume   float64 `json:"buy_volume"`
	SellVolume  float64 `json:"sell_volume"`
	Derived     bool    `json:"derived"` // computed from OHLC, not reported by the feed
}

// Share returns the dark-pool fraction of total volume
func (d DarkPoolPrint) Share() float64 {
	if d.TotalVolume <= 0 {
		return 0
	}
	return d.DarkVolume / d.TotalVolume
}

// BuyRatio returns buy volume over classified dark volume, 0.5 when nothing is classified
func (d DarkPoolPrint) BuyRatio() float64 {
	total := d.BuyVolume + d.SellVolume
	if total <= 0 {
		return 0.5
	}
	return d.BuyVolume / total
}

// Fundamentals holds the fundamental ratios used for screening and scoring.
// Growth, margin and return fields are fractions (0.12 = 12%).
type Fundamentals struct {
	RevenueGrowth    float64 `json:"revenue_growth"`
	EPSGrowth        float64 `json:"eps_growth"`
	NetMargin        float64 `json:"net_margin"`
	ROE              float64 `json:"roe"`
	DebtToEquity     float64 `json:"debt_to_equity"`
	InterestCoverage float64 `json:"interest_coverage"`
}

// InsiderActivity counts insider transactions over the trailing 30 days
type InsiderActivity struct {
	Buys30d  int `json:"buys_30d"`
	Sells30d int `json:"sells_30d"`
}

// Net returns buys minus sells
func (i InsiderActivity) Net() int {
	return i.Buys30d - i.Sells30d
}

// Listing is one screener row describing a ticker before any history is fetched
type Listing struct {
	Ticker       string       `json:"ticker"`
	Sector       string       `json:"sector"`
	MarketCap    float64      `json:"market_cap"`
	Price        float64      `json:"price"`
	AvgVolume    float64      `json:"avg_volume"`
	IsETF        bool         `json:"is_etf"`
	HasOptions   bool         `json:"has_options"`
	Fundamentals Fundamentals `json:"fundamentals"`
}

// MicroFeatures are the raw daily inputs of the microstructure composite
type MicroFeatures struct {
	DarkPoolShare float64            `json:"dark_pool_share"`
	VenueVolumes  map[string]float64 `json:"venue_volumes"`
	BlockTrades   int                `json:"block_trades"`
	TotalTrades   int                `json:"total_trades"`
	IVRank        float64            `json:"iv_rank"`
	IVSkew        float64            `json:"iv_skew"`
	Derived       bool               `json:"derived"`
}

// Snapshot is everything fetched for one ticker on one day. It is never mutated after fetch.
type Snapshot struct {
	Listing  Listing          `json:"listing"`
	Bars     []Bar            `json:"bars"`
	Options  []OptionContract `json:"options"`
	DarkPool DarkPoolPrint    `json:"dark_pool"`
	Insider  InsiderActivity  `json:"insider"`
	Micro    MicroFeatures    `json:"micro"`
}

// LastClose returns the most recent close, or 0 without bars
func LastClose(bars []Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}

// Closes extracts the close series
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Day truncates t to its UTC calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
