package data

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

// FallbackFlow serves dark-pool and microstructure data from the primary feed and, when that
// fails, computes a proxy from OHLC bars and the options chain. Every substitution is recorded.
type FallbackFlow struct {
	primary     market.FlowFeed
	source      market.DataSource
	darkShare   float64
	barLookback int

	mu   sync.Mutex
	used map[string]struct{}
}

// NewFallbackFlow creates the wrapper. primary may be nil when no flow feed is configured.
// darkShare is the assumed off-exchange fraction of volume for derived prints.
func NewFallbackFlow(primary market.FlowFeed, source market.DataSource, darkShare float64, barLookback int) *FallbackFlow {
	return &FallbackFlow{
		primary:     primary,
		source:      source,
		darkShare:   darkShare,
		barLookback: barLookback,
		used:        make(map[string]struct{}),
	}
}

func (f *FallbackFlow) Name() string {
	if f.primary == nil {
		return "ohlc-derived"
	}
	return f.primary.Name() + "+ohlc-derived"
}

// Ping reports the primary feed's health; the fallback itself never fails
func (f *FallbackFlow) Ping(ctx context.Context) error {
	if f.primary == nil {
		return nil
	}
	return f.primary.Ping(ctx)
}

// DarkPool returns the primary print or a close-location-value proxy
func (f *FallbackFlow) DarkPool(ctx context.Context, ticker string) (market.DarkPoolPrint, error) {
	if f.primary != nil {
		dp, err := f.primary.DarkPool(ctx, ticker)
		if err == nil {
			return dp, nil
		}
		log.Debug().Str("ticker", ticker).Err(err).Msg("Dark-pool feed failed, deriving from OHLC")
	}
	bars, err := f.source.Bars(ctx, ticker, f.barLookback)
	if err != nil {
		return market.DarkPoolPrint{}, err
	}
	f.mark(ticker)
	return DeriveDarkPool(bars, f.darkShare), nil
}

// Microstructure returns primary features or a derived set built from the dark-pool proxy and
// the options chain
func (f *FallbackFlow) Microstructure(ctx context.Context, ticker string) (market.MicroFeatures, error) {
	if f.primary != nil {
		mf, err := f.primary.Microstructure(ctx, ticker)
		if err == nil {
			return mf, nil
		}
		log.Debug().Str("ticker", ticker).Err(err).Msg("Microstructure feed failed, deriving")
	}
	dp, err := f.DarkPool(ctx, ticker)
	if err != nil {
		return market.MicroFeatures{}, err
	}
	chain, err := f.source.OptionChain(ctx, ticker)
	if err != nil {
		chain = nil
	}
	f.mark(ticker)
	return market.MicroFeatures{
		DarkPoolShare: dp.Share(),
		IVRank:        50,
		IVSkew:        IVSkew(chain),
		Derived:       true,
	}, nil
}

func (f *FallbackFlow) mark(ticker string) {
	f.mu.Lock()
	f.used[ticker] = struct{}{}
	f.mu.Unlock()
}

// Used lists tickers served from the derived path, sorted
func (f *FallbackFlow) Used() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.used))
	for t := range f.used {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DeriveDarkPool splits the latest session's assumed dark volume by its close location value:
// a close at the high counts as all buying, a close at the low as all selling
func DeriveDarkPool(bars []market.Bar, darkShare float64) market.DarkPoolPrint {
	if len(bars) == 0 {
		return market.DarkPoolPrint{Derived: true}
	}
	last := bars[len(bars)-1]
	clv := 0.0
	if rng := last.High - last.Low; rng > 0 {
		clv = ((last.Close - last.Low) - (last.High - last.Close)) / rng
	}
	dark := last.Volume * darkShare
	buyFrac := (1 + clv) / 2
	return market.DarkPoolPrint{
		DarkVolume:  dark,
		TotalVolume: last.Volume,
		BuyVolume:   dark * buyFrac,
		SellVolume:  dark * (1 - buyFrac),
		Derived:     true,
	}
}

// IVSkew is mean put implied volatility minus mean call implied volatility
func IVSkew(chain []market.OptionContract) float64 {
	var callSum, putSum float64
	var calls, puts int
	for _, c := range chain {
		if c.ImpliedVol <= 0 {
			continue
		}
		switch c.Type {
		case market.Call:
			callSum += c.ImpliedVol
			calls++
		case market.Put:
			putSum += c.ImpliedVol
			puts++
		}
	}
	if calls == 0 || puts == 0 {
		return 0
	}
	return putSum/float64(puts) - callSum/float64(calls)
}
