package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

// Candidate is one scored ticker. It is filled once by the scorer and read-only afterwards.
type Candidate struct {
	Ticker           string              `json:"ticker"`
	Sector           string              `json:"sector"`
	Direction        market.StrategyMode `json:"direction"`
	Price            float64             `json:"price"`
	Technical        Technical           `json:"technical"`
	Flow             Flow                `json:"flow"`
	Fundamental      Fundamental         `json:"fundamental"`
	SectorAdjustment float64             `json:"sector_adjustment"`
	BaseCombined     float64             `json:"base_combined"`
	Fresh            bool                `json:"fresh"`
	Freshness        float64             `json:"freshness_multiplier"`
	Combined         float64             `json:"combined_score"`
}

// Drop records why a scored candidate did not survive the post-steps
type Drop struct {
	Ticker string  `json:"ticker"`
	Step   string  `json:"step"`
	Score  float64 `json:"score"`
}

// Scorer computes sub-scores and the combined score
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer creates a scorer
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes all three sub-scores and the pre-step combined score for one snapshot.
// ErrTrendGate and ErrInsufficientData exclude the ticker.
func (s *Scorer) Score(snap market.Snapshot, mode market.StrategyMode, sectorAdjustment float64) (Candidate, error) {
	tech, err := s.TechnicalScore(snap.Bars, mode)
	if err != nil {
		return Candidate{}, err
	}
	flow, err := s.FlowScore(snap.Bars, snap.DarkPool, mode)
	if err != nil {
		return Candidate{}, err
	}
	fund := s.FundamentalScore(snap.Listing.Fundamentals, snap.Insider, mode)

	combined := s.cfg.FlowWeight*flow.Score +
		s.cfg.FundamentalWeight*fund.Score +
		s.cfg.TechnicalWeight*tech.Score +
		sectorAdjustment
	combined = clip(combined, 0, s.cfg.MaxCombined)

	return Candidate{
		Ticker:           snap.Listing.Ticker,
		Sector:           snap.Listing.Sector,
		Direction:        mode,
		Price:            market.LastClose(snap.Bars),
		Technical:        tech,
		Flow:             flow,
		Fundamental:      fund,
		SectorAdjustment: sectorAdjustment,
		BaseCombined:     combined,
		Freshness:        1.0,
		Combined:         combined,
	}, nil
}

// Finalize runs the ordered post-steps (freshness, crowding, threshold in configured order) and
// sorts survivors by score descending, ticker ascending. A ledger error disables the freshness
// bonus rather than failing the run.
func (s *Scorer) Finalize(ctx context.Context, cands []Candidate, ledger market.SignalLedger, asOf time.Time) ([]Candidate, []Drop) {
	lastSeen := map[string]time.Time{}
	ledgerOK := ledger != nil
	if ledger != nil {
		tickers := make([]string, len(cands))
		for i, c := range cands {
			tickers[i] = c.Ticker
		}
		seen, err := ledger.LastSeen(ctx, tickers)
		if err != nil {
			log.Warn().Err(err).Msg("Signal ledger unavailable, freshness bonus disabled")
			ledgerOK = false
		} else {
			lastSeen = seen
		}
	}

	out := append([]Candidate(nil), cands...)
	var drops []Drop
	cutoff := market.Day(asOf).AddDate(0, 0, -s.cfg.FreshnessLookbackDays)

	for _, step := range s.cfg.StepOrder {
		kept := out[:0]
		for _, c := range out {
			switch step {
			case "freshness":
				if !ledgerOK {
					break
				}
				seen, ok := lastSeen[c.Ticker]
				if !ok || market.Day(seen).Before(cutoff) {
					c.Fresh = true
					c.Freshness = s.cfg.FreshnessMultiplier
					c.Combined = clip(c.Combined*c.Freshness, 0, s.cfg.MaxCombined)
				}
			case "crowding":
				if c.Combined > s.cfg.CrowdingCutoff {
					drops = append(drops, Drop{Ticker: c.Ticker, Step: step, Score: c.Combined})
					continue
				}
			case "threshold":
				if c.Combined < s.cfg.MinThreshold {
					drops = append(drops, Drop{Ticker: c.Ticker, Step: step, Score: c.Combined})
					continue
				}
			default:
				panic(fmt.Sprintf("unknown scoring step %q", step))
			}
			kept = append(kept, c)
		}
		out = kept
	}

	Rank(out)
	log.Info().Int("scored", len(cands)).Int("survivors", len(out)).Int("dropped", len(drops)).
		Strs("step_order", s.cfg.StepOrder).Msg("Scoring post-steps applied")
	return out, drops
}

// Rank sorts by combined score descending, ties by ticker ascending
func Rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Combined != cands[j].Combined {
			return cands[i].Combined > cands[j].Combined
		}
		return cands[i].Ticker < cands[j].Ticker
	})
}
