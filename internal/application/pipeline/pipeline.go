package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/account"
	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
	"github.com/sawpanic/gammafunnel/internal/gamma"
	"github.com/sawpanic/gammafunnel/internal/gates"
	"github.com/sawpanic/gammafunnel/internal/infrastructure/async"
	"github.com/sawpanic/gammafunnel/internal/microstructure"
	"github.com/sawpanic/gammafunnel/internal/regime"
	"github.com/sawpanic/gammafunnel/internal/scoring"
	"github.com/sawpanic/gammafunnel/internal/sector"
	"github.com/sawpanic/gammafunnel/internal/sizing"
	"github.com/sawpanic/gammafunnel/internal/stream"
	"github.com/sawpanic/gammafunnel/internal/universe"
)

// ErrHalted is wrapped by every HaltError
var ErrHalted = errors.New("run halted by diagnostics gate")

// HaltError carries the diagnostics report of a halted run
type HaltError struct {
	Report gates.Report
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("%v: %s", ErrHalted, strings.Join(e.Report.Reasons, "; "))
}

func (e *HaltError) Unwrap() error { return ErrHalted }

// Phases lists the funnel phases in execution order
var Phases = []string{
	stream.PhaseDiagnostics,
	stream.PhaseRegime,
	stream.PhaseUniverse,
	stream.PhaseSector,
	stream.PhaseScoring,
	stream.PhaseGamma,
	stream.PhaseSizing,
}

// FallbackReporter is implemented by feeds that substitute derived data and can say for whom
type FallbackReporter interface {
	Used() []string
}

// Deps are the collaborators of a run. Flow and Sink are optional.
type Deps struct {
	Source   market.DataSource
	Flow     market.FlowFeed
	Calendar market.EarningsCalendar
	Macro    market.MacroFeed
	Breaker  account.StateSource
	History  microstructure.HistoryRepo
	Ledger   market.SignalLedger
	Sink     stream.Sink
	// FlowFallback names what replaces Flow when its probe fails
	FlowFallback string
}

// Options are per-run inputs
type Options struct {
	RunID string
	// AsOf is the logical trading date; nothing in a run reads the wall clock for decisions
	AsOf time.Time
	// Mode forces the strategy side instead of deriving it from the regime
	Mode market.StrategyMode
	// Equity overrides both the configured and the account equity
	Equity float64
	// DryRun skips ledger and microstructure history writes
	DryRun bool
}

// Evaluated is a scored candidate enriched with its options and microstructure view
type Evaluated struct {
	scoring.Candidate
	Gamma   gamma.Profile        `json:"gamma"`
	Micro   microstructure.State `json:"microstructure"`
	Target1 float64              `json:"target1"`
	Target2 float64              `json:"target2"`
}

// Result is everything a run decided
type Result struct {
	RunID       string              `json:"run_id"`
	AsOf        time.Time           `json:"as_of"`
	Mode        market.StrategyMode `json:"mode"`
	Equity      float64             `json:"equity"`
	VIX         float64             `json:"vix"`
	Treasury10Y float64             `json:"treasury_10y,omitempty"`
	Diagnostics gates.Report        `json:"diagnostics"`
	Regime      regime.State        `json:"regime"`
	Universe    universe.Result     `json:"universe"`
	Sectors     sector.Matrix       `json:"sectors"`
	Candidates  []Evaluated         `json:"candidates"`
	Positions   []sizing.Position   `json:"positions"`
	Dropped     []sizing.Drop       `json:"dropped,omitempty"`
	Events      []stream.PhaseEvent `json:"events"`
	Fallbacks   []string            `json:"fallbacks,omitempty"`
	FailedOpen  []string            `json:"failed_open,omitempty"`
}

// Pipeline runs the seven funnel phases strictly in order
type Pipeline struct {
	cfg    *config.Config
	deps   Deps
	params regime.Params

	diagnostics *gates.Diagnostics
	universe    *universe.Builder
	sectors     *sector.Engine
	scorer      *scoring.Scorer
	gamma       *gamma.Engine
	micro       *microstructure.Engine
	sizer       *sizing.Sizer
}

// New wires every phase engine from a validated configuration
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("pipeline: data source is required")
	case deps.Calendar == nil:
		return nil, errors.New("pipeline: earnings calendar is required")
	case deps.Macro == nil:
		return nil, errors.New("pipeline: macro feed is required")
	case deps.Breaker == nil:
		return nil, errors.New("pipeline: circuit breaker state source is required")
	case deps.History == nil:
		return nil, errors.New("pipeline: microstructure history is required")
	}
	if deps.Sink == nil {
		deps.Sink = stream.LogSink{Level: zerolog.InfoLevel}
	}

	params := regime.ParamsFromConfig(cfg.Regime)
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		params: params,
		diagnostics: gates.NewDiagnostics(deps.Breaker, probes(deps), gates.Options{
			Retries:     cfg.Diagnostics.Retries,
			Backoff:     cfg.Diagnostics.Backoff,
			PingTimeout: cfg.Diagnostics.PingTimeout,
		}),
		universe: universe.NewBuilder(cfg.Universe, deps.Calendar, async.Options{Limit: cfg.Universe.Pass2Concurrency}),
		sectors:  sector.NewEngine(cfg.Sector, params),
		scorer:   scoring.NewScorer(cfg.Scoring),
		gamma:    gamma.NewEngine(cfg.Gamma),
		micro:    microstructure.NewEngine(cfg.Microstructure, deps.History),
		sizer:    sizing.NewSizer(cfg.Sizing),
	}, nil
}

// probes registers the market data, calendar and macro feeds as critical. The flow feed has an
// OHLC-derived substitute and only degrades the run.
func probes(deps Deps) []gates.Probe {
	ps := []gates.Probe{
		{Name: deps.Source.Name(), Critical: true, Ping: deps.Source.Ping},
		{Name: deps.Calendar.Name(), Critical: true, Ping: deps.Calendar.Ping},
		{Name: deps.Macro.Name(), Critical: true, Ping: deps.Macro.Ping},
	}
	if deps.Flow != nil {
		fallback := deps.FlowFallback
		if fallback == "" {
			fallback = "ohlc-derived dark pool"
		}
		ps = append(ps, gates.Probe{Name: deps.Flow.Name(), Fallback: fallback, Ping: deps.Flow.Ping})
	}
	return ps
}

// run is the mutable state of one execution
type run struct {
	res      *Result
	listings []market.Listing
	bars     map[string][]market.Bar
	sink     stream.Sink
	started  time.Time
}

// Run executes the funnel. A halted run returns its partial result together with a *HaltError.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.AsOf.IsZero() {
		return nil, errors.New("pipeline: as-of date is required")
	}
	rec := &stream.Recorder{}
	r := &run{
		res:  &Result{RunID: opts.RunID, AsOf: market.Day(opts.AsOf)},
		sink: stream.Multi{rec, p.deps.Sink},
	}
	defer func() { r.res.Events = rec.Events() }()

	logger := log.With().Str("run_id", opts.RunID).Str("as_of", r.res.AsOf.Format("2006-01-02")).Logger()
	logger.Info().Msg("Funnel run starting")

	if err := p.phaseDiagnostics(ctx, r, opts); err != nil {
		return r.res, err
	}
	if err := p.phaseRegime(ctx, r, opts); err != nil {
		return r.res, err
	}
	if err := p.phaseUniverse(ctx, r); err != nil {
		return r.res, err
	}
	survivors, err := p.phaseSector(ctx, r)
	if err != nil {
		return r.res, err
	}
	cands, err := p.phaseScoring(ctx, r, survivors)
	if err != nil {
		return r.res, err
	}
	evaluated, err := p.phaseGamma(ctx, r, cands, opts.DryRun)
	if err != nil {
		return r.res, err
	}
	if err := p.phaseSizing(ctx, r, evaluated, opts.DryRun); err != nil {
		return r.res, err
	}

	if fr, ok := p.deps.Flow.(FallbackReporter); ok {
		for _, t := range fr.Used() {
			r.res.Fallbacks = append(r.res.Fallbacks, "dark pool derived from OHLC: "+t)
		}
	}
	sort.Strings(r.res.FailedOpen)

	logger.Info().
		Str("regime", string(r.res.Regime.Regime)).
		Str("mode", string(r.res.Mode)).
		Int("positions", len(r.res.Positions)).
		Int("fallbacks", len(r.res.Fallbacks)).
		Int("failed_open", len(r.res.FailedOpen)).
		Msg("Funnel run complete")
	return r.res, nil
}

// Diagnose runs only the diagnostics gate
func (p *Pipeline) Diagnose(ctx context.Context) gates.Report {
	return p.diagnostics.Check(ctx)
}

func (p *Pipeline) begin(r *run) { r.started = time.Now() }

func (p *Pipeline) emit(ctx context.Context, r *run, ev stream.PhaseEvent) {
	ev.RunID = r.res.RunID
	ev.AsOf = r.res.AsOf
	ev.Duration = time.Since(r.started)
	// Multi never fails; it logs sink errors itself
	_ = r.sink.Emit(ctx, ev)
}

func (p *Pipeline) phaseDiagnostics(ctx context.Context, r *run, opts Options) error {
	p.begin(r)
	report := p.diagnostics.Check(ctx)
	r.res.Diagnostics = report
	r.res.Fallbacks = append(r.res.Fallbacks, report.Degraded...)

	ev := stream.PhaseEvent{
		Phase:     stream.PhaseDiagnostics,
		Fallbacks: report.Degraded,
		Detail:    map[string]string{"decision": string(report.Decision)},
	}
	if report.Decision == gates.Halt {
		ev.Halted = true
		ev.Detail["reasons"] = strings.Join(report.Reasons, "; ")
		p.emit(ctx, r, ev)
		return &HaltError{Report: report}
	}

	r.res.Equity = p.equity(report.Breaker, opts)
	if r.res.Equity <= 0 {
		ev.Halted = true
		ev.Detail["reasons"] = "no sizing equity available"
		report.Decision = gates.Halt
		report.Reasons = append(report.Reasons, "no sizing equity: configure sizing.equity or provide account state")
		r.res.Diagnostics = report
		p.emit(ctx, r, ev)
		return &HaltError{Report: report}
	}
	ev.SurvivorsOut = len(report.Probes)
	ev.SurvivorsIn = len(report.Probes)
	p.emit(ctx, r, ev)
	return nil
}

func (p *Pipeline) equity(state account.CircuitBreakerState, opts Options) float64 {
	switch {
	case opts.Equity > 0:
		return opts.Equity
	case p.cfg.Sizing.Equity > 0:
		return p.cfg.Sizing.Equity
	default:
		return state.CurrentEquity
	}
}

func (p *Pipeline) phaseRegime(ctx context.Context, r *run, opts Options) error {
	p.begin(r)
	listings, err := p.deps.Source.Listings(ctx)
	if err != nil {
		return fmt.Errorf("regime: listings: %w", err)
	}
	r.listings = listings

	tickers := make([]string, 0, len(listings))
	for _, l := range listings {
		tickers = append(tickers, l.Ticker)
	}
	sort.Strings(tickers)
	bars, failures := p.fetchBars(ctx, tickers, p.cfg.Regime.ScanConcurrency)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("regime: %w", err)
	}
	proxy, err := p.deps.Source.Bars(ctx, p.cfg.Run.MarketProxy, p.cfg.Run.BarLookback)
	if err != nil {
		log.Warn().Str("proxy", p.cfg.Run.MarketProxy).Err(err).Msg("Market proxy bars unavailable, divergence check disabled")
		r.res.Fallbacks = append(r.res.Fallbacks, "market proxy "+p.cfg.Run.MarketProxy+" unavailable: divergence not evaluated")
	}
	r.bars = bars

	state := regime.Compute(bars, proxy, p.params)
	state.AsOf = r.res.AsOf
	r.res.Regime = state
	r.res.Mode = state.Mode
	if opts.Mode != "" {
		r.res.Mode = opts.Mode
	}

	exclusions := map[string]int{}
	if n := len(state.Excluded); n > 0 {
		exclusions["insufficient_history"] = n
	}
	if n := len(failures); n > 0 {
		exclusions["bars_unavailable"] = n
	}
	detail := map[string]string{
		"bmi":    fmt.Sprintf("%.2f", state.BMI),
		"regime": string(state.Regime),
		"mode":   string(r.res.Mode),
	}
	if state.Divergence {
		detail["divergence"] = "true"
	}
	if state.Partial {
		detail["partial"] = "true"
	}
	p.emit(ctx, r, stream.PhaseEvent{
		Phase:        stream.PhaseRegime,
		SurvivorsIn:  len(listings),
		SurvivorsOut: state.Contributors,
		Exclusions:   exclusions,
		Detail:       detail,
	})
	return nil
}

func (p *Pipeline) phaseUniverse(ctx context.Context, r *run) error {
	p.begin(r)
	listings := r.listings
	res, err := p.universe.Build(ctx, listings, r.res.Mode, r.res.AsOf)
	if err != nil {
		return fmt.Errorf("universe: %w", err)
	}
	r.res.Universe = res
	r.res.FailedOpen = append(r.res.FailedOpen, res.FailedOpen...)
	r.res.Fallbacks = append(r.res.Fallbacks, res.Degraded...)

	exclusions := make(map[string]int, len(res.ScreenReasons)+2)
	for reason, n := range res.ScreenReasons {
		exclusions[reason] = n
	}
	if res.Pass1.Excluded > 0 {
		exclusions["earnings_bulk"] = res.Pass1.Excluded
	}
	if res.Pass2.Excluded > 0 {
		exclusions["earnings_per_ticker"] = res.Pass2.Excluded
	}
	p.emit(ctx, r, stream.PhaseEvent{
		Phase:        stream.PhaseUniverse,
		SurvivorsIn:  len(listings),
		SurvivorsOut: len(res.Candidates),
		Exclusions:   exclusions,
		Fallbacks:    res.Degraded,
		FailedOpen:   res.FailedOpen,
		Detail:       map[string]string{"mode": string(r.res.Mode)},
	})
	return nil
}

func (p *Pipeline) phaseSector(ctx context.Context, r *run) ([]market.Listing, error) {
	p.begin(r)
	proxies := make([]string, 0, len(p.cfg.Sector.Proxies))
	for _, proxy := range p.cfg.Sector.Proxies {
		proxies = append(proxies, proxy)
	}
	sort.Strings(proxies)
	proxyBars, failures := p.fetchBars(ctx, proxies, p.cfg.Regime.ScanConcurrency)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sector: %w", err)
	}
	var fallbacks []string
	for _, proxy := range proxies {
		if _, ok := failures[proxy]; ok {
			fallbacks = append(fallbacks, "sector proxy "+proxy+" unavailable: treated as neutral")
		}
	}
	r.res.Fallbacks = append(r.res.Fallbacks, fallbacks...)

	candidates := r.res.Universe.Candidates
	matrix := p.sectors.Evaluate(proxyBars, candidates, r.bars)
	r.res.Sectors = matrix
	kept, vetoed := matrix.Apply(candidates)

	exclusions := map[string]int{}
	for _, reason := range vetoed {
		exclusions[reason]++
	}
	p.emit(ctx, r, stream.PhaseEvent{
		Phase:        stream.PhaseSector,
		SurvivorsIn:  len(candidates),
		SurvivorsOut: len(kept),
		Exclusions:   exclusions,
		Fallbacks:    fallbacks,
		Detail:       map[string]string{"leaders": strings.Join(leaders(matrix), ",")},
	})
	return kept, nil
}

func leaders(m sector.Matrix) []string {
	var out []string
	for _, s := range m.Order {
		if m.States[s].Bucket == sector.Leader {
			out = append(out, s)
		}
	}
	return out
}

func (p *Pipeline) phaseScoring(ctx context.Context, r *run, survivors []market.Listing) ([]scoring.Candidate, error) {
	p.begin(r)
	byTicker := make(map[string]market.Listing, len(survivors))
	keys := make([]string, len(survivors))
	for i, l := range survivors {
		byTicker[l.Ticker] = l
		keys[i] = l.Ticker
	}

	results := async.Map(ctx, keys, async.Options{Limit: p.cfg.Scoring.Concurrency},
		func(ctx context.Context, ticker string) (scoring.Candidate, error) {
			snap, err := p.snapshot(ctx, r, byTicker[ticker])
			if err != nil {
				return scoring.Candidate{}, err
			}
			adj, _ := r.res.Sectors.Adjustment(snap.Listing.Sector)
			return p.scorer.Score(snap, r.res.Mode, adj)
		})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}

	exclusions := map[string]int{}
	var scored []scoring.Candidate
	for _, res := range results {
		if res.Err != nil {
			reason := scoreExclusion(res.Err)
			exclusions[reason]++
			log.Debug().Str("ticker", res.Key).Str("reason", reason).Err(res.Err).Msg("Candidate excluded from scoring")
			continue
		}
		scored = append(scored, res.Value)
	}

	final, drops := p.scorer.Finalize(ctx, scored, p.deps.Ledger, r.res.AsOf)
	for _, d := range drops {
		exclusions[d.Step]++
	}
	p.emit(ctx, r, stream.PhaseEvent{
		Phase:        stream.PhaseScoring,
		SurvivorsIn:  len(survivors),
		SurvivorsOut: len(final),
		Exclusions:   exclusions,
	})
	return final, nil
}

func scoreExclusion(err error) string {
	switch {
	case errors.Is(err, scoring.ErrTrendGate):
		return "trend_gate"
	case errors.Is(err, scoring.ErrInsufficientData):
		return "insufficient_data"
	default:
		return "data_unavailable"
	}
}

func (p *Pipeline) phaseGamma(ctx context.Context, r *run, cands []scoring.Candidate, dryRun bool) ([]Evaluated, error) {
	p.begin(r)
	byTicker := make(map[string]scoring.Candidate, len(cands))
	keys := make([]string, len(cands))
	for i, c := range cands {
		byTicker[c.Ticker] = c
		keys[i] = c.Ticker
	}

	type outcome struct {
		eval     Evaluated
		features map[string]float64
		fallback string
	}
	results := async.Map(ctx, keys, async.Options{Limit: p.cfg.Gamma.Concurrency},
		func(ctx context.Context, ticker string) (outcome, error) {
			c := byTicker[ticker]
			chain, err := p.deps.Source.OptionChain(ctx, ticker)
			if err != nil {
				return outcome{}, fmt.Errorf("%w: %v", gamma.ErrNoChain, err)
			}
			profile, err := p.gamma.Profile(chain, c.Price, r.res.Mode)
			if err != nil {
				return outcome{}, err
			}
			out := outcome{eval: Evaluated{Candidate: c, Gamma: profile}}
			out.eval.Target1, out.eval.Target2 = p.gamma.Targets(profile, c.Price, c.Technical.ATR, r.res.Mode)
			out.eval.Micro = microstructure.State{
				Ticker:     ticker,
				Confidence: microstructure.Undetermined,
				Label:      microstructure.Neutral,
				Multiplier: 1.0,
			}
			if p.deps.Flow == nil {
				return out, nil
			}
			mf, err := p.deps.Flow.Microstructure(ctx, ticker)
			if err != nil {
				out.fallback = fmt.Sprintf("microstructure %s unavailable: %v", ticker, err)
				return out, nil
			}
			out.features = microstructure.Features(mf, profile.NetGEX)
			st, err := p.micro.Evaluate(ctx, ticker, r.res.AsOf, out.features)
			if err != nil {
				out.fallback = fmt.Sprintf("microstructure history %s unavailable: %v", ticker, err)
				return out, nil
			}
			out.eval.Micro = st
			return out, nil
		})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gamma: %w", err)
	}

	exclusions := map[string]int{}
	var fallbacks []string
	var kept []Evaluated
	for _, res := range results {
		if res.Err != nil {
			exclusions["no_options_chain"]++
			log.Debug().Str("ticker", res.Key).Err(res.Err).Msg("Candidate excluded: no usable options chain")
			continue
		}
		out := res.Value
		if out.fallback != "" {
			fallbacks = append(fallbacks, out.fallback)
		}
		// Single writer: history is appended sequentially after the fan-out
		if out.features != nil && !dryRun {
			if _, err := p.micro.Record(ctx, res.Key, r.res.AsOf, out.features); err != nil {
				log.Warn().Str("ticker", res.Key).Err(err).Msg("Failed to append microstructure history")
				fallbacks = append(fallbacks, fmt.Sprintf("microstructure history %s not recorded", res.Key))
			}
		}
		if out.eval.Gamma.Vetoed {
			exclusions["gamma_negative"]++
			continue
		}
		kept = append(kept, out.eval)
	}
	r.res.Candidates = kept
	r.res.Fallbacks = append(r.res.Fallbacks, fallbacks...)

	p.emit(ctx, r, stream.PhaseEvent{
		Phase:        stream.PhaseGamma,
		SurvivorsIn:  len(cands),
		SurvivorsOut: len(kept),
		Exclusions:   exclusions,
		Fallbacks:    fallbacks,
	})
	return kept, nil
}

func (p *Pipeline) phaseSizing(ctx context.Context, r *run, evaluated []Evaluated, dryRun bool) error {
	p.begin(r)
	vix, err := p.deps.Macro.VIX(ctx)
	if err != nil {
		return fmt.Errorf("sizing: vix: %w", err)
	}
	r.res.VIX = vix
	if y, err := p.deps.Macro.TreasuryYield10Y(ctx); err != nil {
		log.Warn().Err(err).Msg("Treasury yield unavailable")
		r.res.Fallbacks = append(r.res.Fallbacks, "treasury yield unavailable: "+err.Error())
	} else {
		r.res.Treasury10Y = y
	}

	exclusions := map[string]int{}
	var sized []sizing.Position
	for _, e := range evaluated {
		pos, err := p.sizer.Size(sizing.Input{
			Ticker:          e.Ticker,
			Sector:          e.Sector,
			Direction:       e.Direction,
			Entry:           e.Price,
			ATR:             e.Technical.ATR,
			Combined:        e.Combined,
			Flow:            e.Flow.Score,
			Fundamental:     e.Fundamental.Score,
			InsiderNet:      e.Fundamental.InsiderNet,
			GammaRegime:     e.Gamma.Regime,
			GammaMultiplier: e.Gamma.Multiplier,
			MicroLabel:      e.Micro.Label,
			MicroConfidence: e.Micro.Confidence,
			MicroMultiplier: e.Micro.Multiplier,
			Target1:         e.Target1,
			Target2:         e.Target2,
		}, r.res.Equity, vix)
		if err != nil {
			reason := "invalid_input"
			if errors.Is(err, sizing.ErrZeroQuantity) {
				reason = "zero_quantity"
			}
			exclusions[reason]++
			r.res.Dropped = append(r.res.Dropped, sizing.Drop{Ticker: e.Ticker, Reason: reason})
			log.Debug().Str("ticker", e.Ticker).Err(err).Msg("Candidate could not be sized")
			continue
		}
		sized = append(sized, pos)
	}

	positions, drops := p.sizer.Portfolio(sized, r.res.Equity)
	for _, d := range drops {
		exclusions[d.Reason]++
	}
	r.res.Positions = positions
	r.res.Dropped = append(r.res.Dropped, drops...)

	if !dryRun && p.deps.Ledger != nil && len(positions) > 0 {
		tickers := make([]string, len(positions))
		for i, pos := range positions {
			tickers[i] = pos.Ticker
		}
		if err := p.deps.Ledger.Record(ctx, tickers, r.res.AsOf); err != nil {
			log.Warn().Err(err).Msg("Failed to record signal ledger")
			r.res.Fallbacks = append(r.res.Fallbacks, "signal ledger not updated: "+err.Error())
		}
	}

	p.emit(ctx, r, stream.PhaseEvent{
		Phase:        stream.PhaseSizing,
		SurvivorsIn:  len(evaluated),
		SurvivorsOut: len(positions),
		Exclusions:   exclusions,
		Detail: map[string]string{
			"equity":       fmt.Sprintf("%.2f", r.res.Equity),
			"vix":          fmt.Sprintf("%.2f", vix),
			"treasury_10y": fmt.Sprintf("%.2f", r.res.Treasury10Y),
		},
	})
	return nil
}
