package universe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
	"github.com/sawpanic/gammafunnel/internal/infrastructure/async"
)

// OutcomeKind tags the event-risk decision for a ticker
type OutcomeKind string

const (
	Passed     OutcomeKind = "PASSED"
	Excluded   OutcomeKind = "EXCLUDED"
	FailedOpen OutcomeKind = "FAILED_OPEN"
)

// ExclusionOutcome is the event-risk verdict for one ticker in one pass
type ExclusionOutcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

// PassSummary counts outcomes of one event-risk pass
type PassSummary struct {
	Checked    int `json:"checked"`
	Excluded   int `json:"excluded"`
	FailedOpen int `json:"failed_open"`
}

func (s *PassSummary) add(o ExclusionOutcome) {
	s.Checked++
	switch o.Kind {
	case Excluded:
		s.Excluded++
	case FailedOpen:
		s.FailedOpen++
	}
}

// Result is the Universe Builder output
type Result struct {
	Mode          market.StrategyMode         `json:"mode"`
	Candidates    []market.Listing            `json:"-"`
	Screened      int                         `json:"screened"`
	ScreenReasons map[string]int              `json:"screen_reasons"`
	Pass1         PassSummary                 `json:"pass1"`
	Pass2         PassSummary                 `json:"pass2"`
	Outcomes      map[string]ExclusionOutcome `json:"outcomes,omitempty"`
	FailedOpen    []string                    `json:"failed_open,omitempty"`
	Degraded      []string                    `json:"degraded,omitempty"`
}

// Tickers lists the surviving candidates in order
func (r Result) Tickers() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Ticker
	}
	return out
}

// Builder screens the listing table and removes tickers with imminent earnings
type Builder struct {
	cfg      config.UniverseConfig
	calendar market.EarningsCalendar
	opts     async.Options
}

// NewBuilder creates a universe builder. opts bounds the Pass 2 fan-out.
func NewBuilder(cfg config.UniverseConfig, calendar market.EarningsCalendar, opts async.Options) *Builder {
	if opts.Limit < 1 {
		opts.Limit = cfg.Pass2Concurrency
	}
	return &Builder{cfg: cfg, calendar: calendar, opts: opts}
}

// Build applies the mode's screen then both event-risk passes. asOf is the logical run date;
// nothing here reads the wall clock, so identical inputs give identical output.
func (b *Builder) Build(ctx context.Context, listings []market.Listing, mode market.StrategyMode, asOf time.Time) (Result, error) {
	res := Result{
		Mode:          mode,
		ScreenReasons: make(map[string]int),
		Outcomes:      make(map[string]ExclusionOutcome),
	}

	sorted := append([]market.Listing(nil), listings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	var screened []market.Listing
	for _, l := range sorted {
		var reason string
		switch mode {
		case market.ModeLong:
			reason = ScreenLong(l, b.cfg.Long)
		case market.ModeShort:
			reason = ScreenShort(l, b.cfg.Short)
		default:
			return Result{}, fmt.Errorf("unknown strategy mode %q", mode)
		}
		if reason != "" {
			res.ScreenReasons[reason]++
			continue
		}
		screened = append(screened, l)
	}
	res.Screened = len(screened)

	from := market.Day(asOf)
	to := from.AddDate(0, 0, b.cfg.EarningsWindowDays)

	// Pass 1: bulk calendar
	bulk, err := b.calendar.Bulk(ctx, from, to)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("earnings bulk lookup: %w", ctx.Err())
		}
		log.Warn().Err(err).Str("provider", b.calendar.Name()).
			Msg("Bulk earnings calendar unavailable, relying on per-ticker pass")
		res.Degraded = append(res.Degraded, fmt.Sprintf("%s bulk: %v", b.calendar.Name(), err))
	}

	var pass1 []market.Listing
	for _, l := range screened {
		outcome := ExclusionOutcome{Kind: Passed}
		if date, ok := bulk[l.Ticker]; ok && inWindow(date, from, to) {
			outcome = ExclusionOutcome{Kind: Excluded, Reason: "earnings " + date.Format("2006-01-02") + " (bulk)"}
		}
		res.Pass1.add(outcome)
		if outcome.Kind == Excluded {
			res.Outcomes[l.Ticker] = outcome
			continue
		}
		pass1 = append(pass1, l)
	}

	// Pass 2: per-ticker re-check, fail-open
	keys := make([]string, len(pass1))
	for i, l := range pass1 {
		keys[i] = l.Ticker
	}
	results := async.Map(ctx, keys, b.opts, func(ctx context.Context, ticker string) (ExclusionOutcome, error) {
		date, ok, err := b.calendar.Next(ctx, ticker)
		if err != nil {
			return ExclusionOutcome{}, err
		}
		if ok && inWindow(date, from, to) {
			return ExclusionOutcome{Kind: Excluded, Reason: "earnings " + date.Format("2006-01-02") + " (per-ticker)"}, nil
		}
		return ExclusionOutcome{Kind: Passed}, nil
	})
	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("earnings per-ticker lookup: %w", ctx.Err())
	}

	for i, r := range results {
		outcome := r.Value
		if r.Err != nil {
			outcome = ExclusionOutcome{Kind: FailedOpen, Reason: r.Err.Error()}
			log.Warn().Str("ticker", r.Key).Err(r.Err).Msg("Earnings check failed, passing ticker through")
			res.FailedOpen = append(res.FailedOpen, r.Key)
		}
		res.Pass2.add(outcome)
		res.Outcomes[r.Key] = outcome
		if outcome.Kind != Excluded {
			res.Candidates = append(res.Candidates, pass1[i])
		}
	}

	log.Info().
		Str("mode", string(mode)).
		Int("listings", len(listings)).
		Int("screened", res.Screened).
		Int("pass1_excluded", res.Pass1.Excluded).
		Int("pass2_excluded", res.Pass2.Excluded).
		Int("failed_open", res.Pass2.FailedOpen).
		Int("candidates", len(res.Candidates)).
		Msg("Universe built")
	return res, nil
}

func inWindow(date, from, to time.Time) bool {
	d := market.Day(date)
	return !d.Before(from) && !d.After(to)
}

// ScreenLong returns the first failed criterion for a LONG candidate, or "" when it passes
func ScreenLong(l market.Listing, s config.LongScreen) string {
	switch {
	case l.IsETF && !s.AllowETFs:
		return "etf"
	case l.MarketCap < s.MinMarketCap:
		return "market_cap"
	case l.Price < s.MinPrice:
		return "price"
	case l.AvgVolume < s.MinAvgVolume:
		return "avg_volume"
	case !l.HasOptions:
		return "no_options"
	}
	return ""
}

// ScreenShort returns the first failed criterion for a SHORT "zombie" candidate
func ScreenShort(l market.Listing, s config.ShortScreen) string {
	f := l.Fundamentals
	switch {
	case l.IsETF:
		return "etf"
	case l.MarketCap < s.MinMarketCap:
		return "market_cap"
	case f.DebtToEquity < s.MinDebtToEquity:
		return "debt_to_equity"
	case f.NetMargin >= s.MaxNetMargin:
		return "net_margin"
	case f.InterestCoverage > s.MaxInterestCoverage:
		return "interest_coverage"
	case !l.HasOptions:
		return "no_options"
	}
	return ""
}
