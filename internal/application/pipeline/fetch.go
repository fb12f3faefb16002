package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/domain/market"
	"github.com/sawpanic/gammafunnel/internal/infrastructure/async"
)

// fetchBars loads daily history for every ticker; failures are returned per ticker
func (p *Pipeline) fetchBars(ctx context.Context, tickers []string, limit int) (map[string][]market.Bar, map[string]error) {
	results := async.Map(ctx, tickers, async.Options{Limit: limit},
		func(ctx context.Context, ticker string) ([]market.Bar, error) {
			return p.deps.Source.Bars(ctx, ticker, p.cfg.Run.BarLookback)
		})
	bars, failures := async.Split(results)
	if len(failures) > 0 {
		log.Warn().Int("failed", len(failures)).Int("requested", len(tickers)).Msg("Some bar histories unavailable")
	}
	return bars, failures
}

// snapshot assembles the scoring inputs for one ticker. Bars come from the regime scan;
// fundamentals are refreshed from the source when it has them.
func (p *Pipeline) snapshot(ctx context.Context, r *run, l market.Listing) (market.Snapshot, error) {
	bars, ok := r.bars[l.Ticker]
	if !ok {
		return market.Snapshot{}, fmt.Errorf("bars for %s unavailable", l.Ticker)
	}
	snap := market.Snapshot{Listing: l, Bars: bars}

	if fund, err := p.deps.Source.Fundamentals(ctx, l.Ticker); err == nil {
		snap.Listing.Fundamentals = fund
	} else {
		log.Debug().Str("ticker", l.Ticker).Err(err).Msg("Fundamentals refresh failed, using screener row")
	}

	insider, err := p.deps.Source.InsiderActivity(ctx, l.Ticker)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("insider activity %s: %w", l.Ticker, err)
	}
	snap.Insider = insider

	if p.deps.Flow != nil {
		dp, err := p.deps.Flow.DarkPool(ctx, l.Ticker)
		if err != nil {
			return market.Snapshot{}, fmt.Errorf("dark pool %s: %w", l.Ticker, err)
		}
		snap.DarkPool = dp
	}
	return snap, nil
}
