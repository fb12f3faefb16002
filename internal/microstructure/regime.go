package microstructure

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/indicators"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

// Confidence gates whether the composite regime is trusted
type Confidence string

const (
	Undetermined Confidence = "UNDETERMINED"
	Partial      Confidence = "PARTIAL"
	Complete     Confidence = "COMPLETE"
)

// Label is the composite microstructure regime
type Label string

const (
	Accumulation Label = "ACCUMULATION"
	Neutral      Label = "NEUTRAL"
	Distribution Label = "DISTRIBUTION"
	Stressed     Label = "STRESSED"
)

// Feature keys stored with every history entry
const (
	FeatureDarkPoolShare  = "dark_pool_share"
	FeatureNetGEX         = "net_gex"
	FeatureVenueEntropy   = "venue_entropy"
	FeatureBlockIntensity = "block_intensity"
	FeatureIVRank         = "iv_rank"
	FeatureIVSkew         = "iv_skew"
)

// Entry is one daily observation in a ticker's history
type Entry struct {
	Date     time.Time          `json:"date"`
	Features map[string]float64 `json:"features"`
}

// HistoryRepo is the append-only per-ticker history store.
// Load returns entries oldest first and an empty slice for an unknown ticker.
type HistoryRepo interface {
	Load(ctx context.Context, ticker string) ([]Entry, error)
	Append(ctx context.Context, ticker string, entry Entry) error
}

// State is the evaluated microstructure regime of one ticker
type State struct {
	Ticker     string             `json:"ticker"`
	History    int                `json:"history"`
	Confidence Confidence         `json:"confidence"`
	Label      Label              `json:"label"`
	Composite  float64            `json:"composite"`
	ZScores    map[string]float64 `json:"z_scores,omitempty"`
	Multiplier float64            `json:"multiplier"`
}

// Features turns raw feed data and the net gamma exposure into the stored feature vector
func Features(m market.MicroFeatures, netGEX float64) map[string]float64 {
	block := 0.0
	if m.TotalTrades > 0 {
		block = float64(m.BlockTrades) / float64(m.TotalTrades)
	}
	return map[string]float64{
		FeatureDarkPoolShare:  m.DarkPoolShare,
		FeatureNetGEX:         netGEX,
		FeatureVenueEntropy:   indicators.Entropy(m.VenueVolumes),
		FeatureBlockIntensity: block,
		FeatureIVRank:         m.IVRank,
		FeatureIVSkew:         m.IVSkew,
	}
}

// Engine evaluates composite regimes against stored history
type Engine struct {
	cfg  config.MicrostructureConfig
	repo HistoryRepo
}

// NewEngine creates an engine over the injected history store
func NewEngine(cfg config.MicrostructureConfig, repo HistoryRepo) *Engine {
	return &Engine{cfg: cfg, repo: repo}
}

// ConfidenceFor maps a history length to its confidence state
func (e *Engine) ConfidenceFor(n int) Confidence {
	switch {
	case n < e.cfg.PartialMin:
		return Undetermined
	case n < e.cfg.MinHistory:
		return Partial
	default:
		return Complete
	}
}

// Evaluate scores today's features against prior history. An entry already stored for asOf
// is left out of the baseline so re-running the same day gives the same answer.
func (e *Engine) Evaluate(ctx context.Context, ticker string, asOf time.Time, features map[string]float64) (State, error) {
	history, err := e.prior(ctx, ticker, asOf)
	if err != nil {
		return State{}, err
	}

	st := State{
		Ticker:     ticker,
		History:    len(history),
		Confidence: e.ConfidenceFor(len(history)),
		Label:      Neutral,
		Multiplier: 1.0,
	}
	if st.Confidence == Undetermined {
		return st, nil
	}

	st.ZScores = make(map[string]float64, len(e.cfg.FeatureWeights))
	keys := make([]string, 0, len(e.cfg.FeatureWeights))
	for k := range e.cfg.FeatureWeights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		series := make([]float64, 0, len(history))
		for _, h := range history {
			series = append(series, h.Features[k])
		}
		z := 0.0
		if sd := indicators.StdDev(series); sd > 0 {
			z = (features[k] - indicators.Mean(series)) / sd
		}
		st.ZScores[k] = z
		st.Composite += e.cfg.FeatureWeights[k] * z
	}

	switch {
	case st.ZScores[FeatureIVRank] >= e.cfg.StressZ && st.ZScores[FeatureNetGEX] <= -e.cfg.StressZ:
		st.Label = Stressed
	case st.Composite >= e.cfg.AccumulationZ:
		st.Label = Accumulation
	case st.Composite <= e.cfg.DistributionZ:
		st.Label = Distribution
	}

	// Thin samples never move sizing
	if st.Confidence == Complete {
		st.Multiplier = e.cfg.RegimeMultipliers[string(st.Label)]
	}
	return st, nil
}

// Record appends today's entry unless one is already stored for that day
func (e *Engine) Record(ctx context.Context, ticker string, asOf time.Time, features map[string]float64) (bool, error) {
	history, err := e.repo.Load(ctx, ticker)
	if err != nil {
		return false, fmt.Errorf("load history %s: %w", ticker, err)
	}
	day := market.Day(asOf)
	for _, h := range history {
		if market.Day(h.Date).Equal(day) {
			return false, nil
		}
	}
	if err := e.repo.Append(ctx, ticker, Entry{Date: day, Features: features}); err != nil {
		return false, fmt.Errorf("append history %s: %w", ticker, err)
	}
	log.Debug().Str("ticker", ticker).Int("entries", len(history)+1).Msg("Microstructure history appended")
	return true, nil
}

func (e *Engine) prior(ctx context.Context, ticker string, asOf time.Time) ([]Entry, error) {
	history, err := e.repo.Load(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", ticker, err)
	}
	day := market.Day(asOf)
	out := history[:0:0]
	for _, h := range history {
		if market.Day(h.Date).Before(day) {
			out = append(out, h)
		}
	}
	return out, nil
}
