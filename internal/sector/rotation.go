package sector

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/indicators"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
	"github.com/sawpanic/gammafunnel/internal/regime"
)

// Bucket is the momentum rank bucket of a sector
type Bucket string

const (
	Leader  Bucket = "LEADER"
	Neutral Bucket = "NEUTRAL"
	Laggard Bucket = "LAGGARD"
)

// Trend compares the proxy price with its short moving average
type Trend string

const (
	Up   Trend = "UP"
	Down Trend = "DOWN"
)

// Regime is the sector-level BMI band
type Regime string

const (
	Oversold   Regime = "OVERSOLD"
	Normal     Regime = "NEUTRAL"
	Overbought Regime = "OVERBOUGHT"
)

// State is the per-sector result of a run
type State struct {
	Sector     string  `json:"sector"`
	Proxy      string  `json:"proxy"`
	HasData    bool    `json:"has_data"`
	Price      float64 `json:"price"`
	Trend      Trend   `json:"trend"`
	Momentum   float64 `json:"momentum"`
	Rank       int     `json:"rank"`
	Bucket     Bucket  `json:"bucket"`
	BMI        float64 `json:"bmi"`
	Regime     Regime  `json:"regime"`
	Vetoed     bool    `json:"vetoed"`
	Adjustment float64 `json:"adjustment"`
	Reason     string  `json:"reason"`

	// BucketAdjustment is the momentum bucket's nominal score effect before the sector
	// regime is considered; Adjustment is what constituents actually receive.
	BucketAdjustment float64 `json:"bucket_adjustment"`
}

// Matrix is the veto/adjustment table consumed by scoring
type Matrix struct {
	States map[string]State `json:"states"`
	Order  []string         `json:"order"` // sectors by momentum rank
}

// Adjustment returns the score adjustment and veto flag for a sector.
// Sectors without a proxy are neither adjusted nor vetoed.
func (m Matrix) Adjustment(sector string) (float64, bool) {
	st, ok := m.States[sector]
	if !ok {
		return 0, false
	}
	return st.Adjustment, st.Vetoed
}

// Apply drops constituents of vetoed sectors and reports why each was dropped
func (m Matrix) Apply(listings []market.Listing) ([]market.Listing, map[string]string) {
	kept := make([]market.Listing, 0, len(listings))
	vetoed := make(map[string]string)
	for _, l := range listings {
		if _, veto := m.Adjustment(l.Sector); veto {
			vetoed[l.Ticker] = m.States[l.Sector].Reason
			continue
		}
		kept = append(kept, l)
	}
	return kept, vetoed
}

// NominalAdjustment is the score effect of a momentum bucket on its own
func NominalAdjustment(bucket Bucket, cfg config.SectorConfig) float64 {
	switch bucket {
	case Leader:
		return cfg.LeaderBonus
	case Laggard:
		return cfg.LaggardPenalty
	default:
		return 0
	}
}

// Decide is the bucket x sector-regime decision table
func Decide(bucket Bucket, r Regime, cfg config.SectorConfig) (vetoed bool, adjustment float64, reason string) {
	switch bucket {
	case Leader:
		return false, cfg.LeaderBonus, "leader"
	case Laggard:
		if r == Oversold {
			return false, cfg.MeanReversionPenalty, "laggard mean-reversion (oversold)"
		}
		return true, 0, "laggard veto"
	default:
		if r == Overbought {
			return true, 0, "neutral sector overbought"
		}
		return false, 0, "neutral"
	}
}

// Engine ranks sector proxies and builds the matrix
type Engine struct {
	cfg    config.SectorConfig
	params regime.Params
}

// NewEngine creates a rotation engine; params drive the per-sector BMI
func NewEngine(cfg config.SectorConfig, params regime.Params) *Engine {
	return &Engine{cfg: cfg, params: params}
}

// Evaluate builds the matrix. proxyBars is keyed by proxy ticker, constituentBars by stock ticker.
func (e *Engine) Evaluate(proxyBars map[string][]market.Bar, listings []market.Listing, constituentBars map[string][]market.Bar) Matrix {
	members := make(map[string]map[string][]market.Bar)
	for _, l := range listings {
		bars, ok := constituentBars[l.Ticker]
		if !ok {
			continue
		}
		if members[l.Sector] == nil {
			members[l.Sector] = make(map[string][]market.Bar)
		}
		members[l.Sector][l.Ticker] = bars
	}

	sectors := make([]string, 0, len(e.cfg.Proxies))
	for s := range e.cfg.Proxies {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	m := Matrix{States: make(map[string]State, len(sectors))}
	var ranked []string
	for _, s := range sectors {
		proxy := e.cfg.Proxies[s]
		st := State{Sector: s, Proxy: proxy, Bucket: Neutral, Trend: Down}

		bars := proxyBars[proxy]
		closes := market.Closes(bars)
		sma, smaOK := indicators.SMA(closes, e.cfg.TrendPeriod)
		mom, momOK := indicators.PercentChange(closes, e.cfg.MomentumDays)
		if smaOK && momOK {
			st.HasData = true
			st.Price = closes[len(closes)-1]
			st.Momentum = mom
			if st.Price > sma {
				st.Trend = Up
			}
			ranked = append(ranked, s)
		} else {
			log.Warn().Str("sector", s).Str("proxy", proxy).Int("bars", len(bars)).
				Msg("Sector proxy lacks history, treating as neutral")
		}

		sb := regime.Compute(members[s], nil, e.params)
		st.BMI = sb.BMI
		st.Regime = e.classify(s, sb.BMI)
		m.States[s] = st
	}

	// Momentum descending, ties by sector name
	sort.SliceStable(ranked, func(i, j int) bool {
		return m.States[ranked[i]].Momentum > m.States[ranked[j]].Momentum
	})
	for i, s := range ranked {
		st := m.States[s]
		st.Rank = i + 1
		switch {
		case i < e.cfg.LeaderCount:
			st.Bucket = Leader
		case i >= len(ranked)-e.cfg.LaggardCount:
			st.Bucket = Laggard
		}
		m.States[s] = st
	}
	m.Order = ranked

	for _, s := range sectors {
		st := m.States[s]
		st.Vetoed, st.Adjustment, st.Reason = Decide(st.Bucket, st.Regime, e.cfg)
		st.BucketAdjustment = NominalAdjustment(st.Bucket, e.cfg)
		m.States[s] = st
		log.Debug().Str("sector", s).Str("bucket", string(st.Bucket)).Str("regime", string(st.Regime)).
			Float64("bucket_adjustment", st.BucketAdjustment).Bool("vetoed", st.Vetoed).
			Float64("adjustment", st.Adjustment).Msg("Sector decision")
	}
	return m
}

func (e *Engine) classify(sector string, bmi float64) Regime {
	oversold, overbought := e.cfg.DefaultOversold, e.cfg.DefaultOverbought
	if th, ok := e.cfg.Thresholds[sector]; ok {
		oversold, overbought = th.Oversold, th.Overbought
	}
	switch {
	case bmi <= oversold:
		return Oversold
	case bmi >= overbought:
		return Overbought
	default:
		return Normal
	}
}
