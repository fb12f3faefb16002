package market

import (
	"context"
	"time"
)

// DataSource is the market-data provider consumed by the pipeline
type DataSource interface {
	Name() string
	Ping(ctx context.Context) error
	Listings(ctx context.Context) ([]Listing, error)
	Bars(ctx context.Context, ticker string, lookback int) ([]Bar, error)
	OptionChain(ctx context.Context, ticker string) ([]OptionContract, error)
	Fundamentals(ctx context.Context, ticker string) (Fundamentals, error)
	InsiderActivity(ctx context.Context, ticker string) (InsiderActivity, error)
}

// FlowFeed supplies dark-pool and microstructure data. It is allowed to be unavailable.
type FlowFeed interface {
	Name() string
	Ping(ctx context.Context) error
	DarkPool(ctx context.Context, ticker string) (DarkPoolPrint, error)
	Microstructure(ctx context.Context, ticker string) (MicroFeatures, error)
}

// EarningsCalendar answers event-risk lookups
type EarningsCalendar interface {
	Name() string
	Ping(ctx context.Context) error
	// Bulk returns the next earnings date for every ticker reporting within [from, to]
	Bulk(ctx context.Context, from, to time.Time) (map[string]time.Time, error)
	// Next returns the next scheduled earnings date; ok is false when none is known
	Next(ctx context.Context, ticker string) (date time.Time, ok bool, err error)
}

// MacroFeed supplies market-wide macro readings
type MacroFeed interface {
	Name() string
	Ping(ctx context.Context) error
	VIX(ctx context.Context) (float64, error)
	TreasuryYield10Y(ctx context.Context) (float64, error)
}

// SignalLedger remembers when tickers last made the final signal set
type SignalLedger interface {
	LastSeen(ctx context.Context, tickers []string) (map[string]time.Time, error)
	Record(ctx context.Context, tickers []string, day time.Time) error
}
