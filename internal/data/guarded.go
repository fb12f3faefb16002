package data

import (
	"context"
	"time"

	"github.com/sawpanic/gammafunnel/internal/domain/market"
	"github.com/sawpanic/gammafunnel/internal/net/breaker"
	"github.com/sawpanic/gammafunnel/internal/net/ratelimit"
)

// Guards bundles the per-provider token buckets and circuit breakers
type Guards struct {
	Limiter  *ratelimit.Limiter
	Breakers *breaker.Set
}

func guard[T any](ctx context.Context, g Guards, provider string, fn func() (T, error)) (T, error) {
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx, provider); err != nil {
			var zero T
			return zero, err
		}
	}
	if g.Breakers == nil {
		return fn()
	}
	return breaker.Call(g.Breakers, provider, fn)
}

// GuardedSource rate-limits and circuit-breaks every DataSource call
type GuardedSource struct {
	inner  market.DataSource
	guards Guards
}

// NewGuardedSource wraps inner
func NewGuardedSource(inner market.DataSource, g Guards) *GuardedSource {
	return &GuardedSource{inner: inner, guards: g}
}

func (s *GuardedSource) Name() string { return s.inner.Name() }

// Ping bypasses the limiter so diagnostics always reach the provider
func (s *GuardedSource) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

func (s *GuardedSource) Listings(ctx context.Context) ([]market.Listing, error) {
	return guard(ctx, s.guards, s.Name(), func() ([]market.Listing, error) { return s.inner.Listings(ctx) })
}

func (s *GuardedSource) Bars(ctx context.Context, ticker string, lookback int) ([]market.Bar, error) {
	return guard(ctx, s.guards, s.Name(), func() ([]market.Bar, error) { return s.inner.Bars(ctx, ticker, lookback) })
}

func (s *GuardedSource) OptionChain(ctx context.Context, ticker string) ([]market.OptionContract, error) {
	return guard(ctx, s.guards, s.Name(), func() ([]market.OptionContract, error) { return s.inner.OptionChain(ctx, ticker) })
}

func (s *GuardedSource) Fundamentals(ctx context.Context, ticker string) (market.Fundamentals, error) {
	return guard(ctx, s.guards, s.Name(), func() (market.Fundamentals, error) { return s.inner.Fundamentals(ctx, ticker) })
}

func (s *GuardedSource) InsiderActivity(ctx context.Context, ticker string) (market.InsiderActivity, error) {
	return guard(ctx, s.guards, s.Name(), func() (market.InsiderActivity, error) { return s.inner.InsiderActivity(ctx, ticker) })
}

// GuardedFlow guards a FlowFeed
type GuardedFlow struct {
	inner  market.FlowFeed
	guards Guards
}

// NewGuardedFlow wraps inner
func NewGuardedFlow(inner market.FlowFeed, g Guards) *GuardedFlow {
	return &GuardedFlow{inner: inner, guards: g}
}

func (f *GuardedFlow) Name() string                   { return f.inner.Name() }
func (f *GuardedFlow) Ping(ctx context.Context) error { return f.inner.Ping(ctx) }

func (f *GuardedFlow) DarkPool(ctx context.Context, ticker string) (market.DarkPoolPrint, error) {
	return guard(ctx, f.guards, f.Name(), func() (market.DarkPoolPrint, error) { return f.inner.DarkPool(ctx, ticker) })
}

func (f *GuardedFlow) Microstructure(ctx context.Context, ticker string) (market.MicroFeatures, error) {
	return guard(ctx, f.guards, f.Name(), func() (market.MicroFeatures, error) { return f.inner.Microstructure(ctx, ticker) })
}

// GuardedCalendar guards an EarningsCalendar
type GuardedCalendar struct {
	inner  market.EarningsCalendar
	guards Guards
}

// NewGuardedCalendar wraps inner
func NewGuardedCalendar(inner market.EarningsCalendar, g Guards) *GuardedCalendar {
	return &GuardedCalendar{inner: inner, guards: g}
}

func (c *GuardedCalendar) Name() string                   { return c.inner.Name() }
func (c *GuardedCalendar) Ping(ctx context.Context) error { return c.inner.Ping(ctx) }

func (c *GuardedCalendar) Bulk(ctx context.Context, from, to time.Time) (map[string]time.Time, error) {
	return guard(ctx, c.guards, c.Name(), func() (map[string]time.Time, error) { return c.inner.Bulk(ctx, from, to) })
}

type nextResult struct {
	date time.Time
	ok   bool
}

func (c *GuardedCalendar) Next(ctx context.Context, ticker string) (time.Time, bool, error) {
	r, err := guard(ctx, c.guards, c.Name(), func() (nextResult, error) {
		d, ok, err := c.inner.Next(ctx, ticker)
		return nextResult{d, ok}, err
	})
	return r.date, r.ok, err
}
