package sizing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
	"github.com/sawpanic/gammafunnel/internal/gamma"
	"github.com/sawpanic/gammafunnel/internal/microstructure"
)

var (
	// ErrZeroQuantity means the risk budget buys less than one share
	ErrZeroQuantity = errors.New("quantity rounds to zero")
	// ErrInvalidInput flags a candidate without a usable entry or ATR
	ErrInvalidInput = errors.New("invalid sizing input")
)

// Input is everything the sizer needs about one surviving candidate
type Input struct {
	Ticker          string
	Sector          string
	Direction       market.StrategyMode
	Entry           float64
	ATR             float64
	Combined        float64
	Flow            float64
	Fundamental     float64
	InsiderNet      int
	GammaRegime     gamma.Regime
	GammaMultiplier float64
	MicroLabel      microstructure.Label
	MicroConfidence microstructure.Confidence
	MicroMultiplier float64
	Target1         float64
	Target2         float64
}

// Position is the terminal sizing record
type Position struct {
	Ticker          string                    `json:"ticker"`
	Direction       market.StrategyMode       `json:"direction"`
	OrderType       string                    `json:"order_type"`
	Entry           float64                   `json:"entry"`
	Quantity        int                       `json:"quantity"`
	Stop            float64                   `json:"stop"`
	Target1         float64                   `json:"target1"`
	Target2         float64                   `json:"target2"`
	Risk            float64                   `json:"risk"`
	Notional        float64                   `json:"notional"`
	Combined        float64                   `json:"combined_score"`
	GammaRegime     gamma.Regime              `json:"gamma_regime"`
	MicroRegime     microstructure.Label      `json:"micro_regime"`
	MicroConfidence microstructure.Confidence `json:"micro_confidence"`
	Sector          string                    `json:"sector"`
	StopDistance    float64                   `json:"stop_distance"`
	BaseRisk        float64                   `json:"base_risk"`
	TotalMultiplier float64                   `json:"total_multiplier"`
	Multipliers     []Factor                  `json:"multipliers"`
	Trimmed         []string                  `json:"trimmed,omitempty"`
}

// Drop records a position removed by a portfolio constraint
type Drop struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// Sizer turns candidates into positions
type Sizer struct {
	cfg config.SizingConfig
}

// NewSizer creates a sizer
func NewSizer(cfg config.SizingConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Factors builds the multiplier chain for a candidate
func (s *Sizer) Factors(in Input, vix float64) []Factor {
	cfg := s.cfg

	insider := Factor{Name: "insider", Value: 1.0}
	net := in.InsiderNet
	if in.Direction == market.ModeShort {
		net = -net
	}
	switch {
	case net > cfg.InsiderNetThreshold:
		insider.Applies, insider.Value = true, cfg.InsiderBoost
	case net < -cfg.InsiderNetThreshold:
		insider.Applies, insider.Value = true, cfg.InsiderPenalty
	}

	vixFactor := Factor{Name: "vix", Applies: vix > cfg.VIXThreshold}
	vixFactor.Value = math.Max(cfg.VIXFloor, 1-(vix-cfg.VIXThreshold)*cfg.VIXSlope)

	utility := Factor{Name: "utility", Applies: in.Combined > cfg.UtilityThreshold}
	utility.Value = math.Min(cfg.UtilityCap, 1+(in.Combined-cfg.UtilityThreshold)/100)

	return []Factor{
		{Name: "flow", Applies: in.Flow >= cfg.FlowStrongThreshold, Value: cfg.FlowMultiplier},
		insider,
		{Name: "fundamental", Applies: in.Fundamental < cfg.FundamentalWeakThreshold, Value: cfg.FundamentalWeakMultiplier},
		{Name: "gamma", Applies: in.GammaMultiplier > 0, Value: in.GammaMultiplier},
		{Name: "microstructure", Applies: in.MicroConfidence == microstructure.Complete && in.MicroMultiplier > 0, Value: in.MicroMultiplier},
		vixFactor,
		utility,
	}
}

// Size computes quantity, stop and risk for one candidate and applies the per-ticker exposure cap
func (s *Sizer) Size(in Input, equity, vix float64) (Position, error) {
	if in.Entry <= 0 || in.ATR <= 0 {
		return Position{}, fmt.Errorf("%w: %s entry %.4f atr %.4f", ErrInvalidInput, in.Ticker, in.Entry, in.ATR)
	}

	factors := s.Factors(in, vix)
	baseRisk := equity * s.cfg.RiskPerTrade
	finalRisk := Fold(baseRisk, factors)
	stopDistance := s.cfg.StopATRMultiple * in.ATR

	// Floor, never round: stay inside the risk budget
	qty := int(math.Floor(finalRisk / stopDistance))
	if qty <= 0 {
		return Position{}, fmt.Errorf("%w: %s risk %.2f / stop %.4f", ErrZeroQuantity, in.Ticker, finalRisk, stopDistance)
	}

	stop := in.Entry - stopDistance
	if in.Direction == market.ModeShort {
		stop = in.Entry + stopDistance
	}

	p := Position{
		Ticker:          in.Ticker,
		Direction:       in.Direction,
		OrderType:       s.cfg.OrderType,
		Entry:           in.Entry,
		Stop:            stop,
		Target1:         in.Target1,
		Target2:         in.Target2,
		Combined:        in.Combined,
		GammaRegime:     in.GammaRegime,
		MicroRegime:     in.MicroLabel,
		MicroConfidence: in.MicroConfidence,
		Sector:          in.Sector,
		StopDistance:    stopDistance,
		BaseRisk:        baseRisk,
		TotalMultiplier: Product(factors),
		Multipliers:     factors,
	}
	p = p.WithQuantity(qty)

	if limit := s.cfg.MaxPositionPct * equity; p.Notional > limit {
		capped := int(math.Floor(limit / in.Entry))
		if capped <= 0 {
			return Position{}, fmt.Errorf("%w: %s exposure cap %.2f below one share", ErrZeroQuantity, in.Ticker, limit)
		}
		p = p.WithQuantity(capped)
		p.Trimmed = append(p.Trimmed, "position_cap")
	}
	return p, nil
}

// WithQuantity returns a copy with quantity and the quantity-derived fields updated.
// Every other field, including the multiplier chain, is carried over.
func (p Position) WithQuantity(qty int) Position {
	out := p
	out.Multipliers = append([]Factor(nil), p.Multipliers...)
	out.Trimmed = append([]string(nil), p.Trimmed...)
	out.Quantity = qty
	out.Notional = float64(qty) * p.Entry
	out.Risk = float64(qty) * p.StopDistance
	return out
}

// Portfolio enforces the sector cap, the position count and the gross exposure cap in score order.
// Untagged positions share no sector.
func (s *Sizer) Portfolio(positions []Position, equity float64) ([]Position, []Drop) {
	ordered := append([]Position(nil), positions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Combined != ordered[j].Combined {
			return ordered[i].Combined > ordered[j].Combined
		}
		return ordered[i].Ticker < ordered[j].Ticker
	})

	var kept []Position
	var drops []Drop
	perSector := make(map[string]int)
	gross := 0.0
	grossCap := s.cfg.MaxGrossExposure * equity
	full := ""

	for _, p := range ordered {
		if full != "" {
			drops = append(drops, Drop{Ticker: p.Ticker, Reason: full})
			continue
		}
		if p.Sector != "" && perSector[p.Sector] >= s.cfg.MaxPerSector {
			drops = append(drops, Drop{Ticker: p.Ticker, Reason: "sector_cap"})
			continue
		}
		if len(kept) >= s.cfg.MaxPositions {
			full = "max_positions"
			drops = append(drops, Drop{Ticker: p.Ticker, Reason: full})
			continue
		}
		if room := grossCap - gross; p.Notional > room {
			full = "gross_exposure"
			qty := int(math.Floor(room / p.Entry))
			if qty <= 0 {
				drops = append(drops, Drop{Ticker: p.Ticker, Reason: full})
				continue
			}
			p = p.WithQuantity(qty)
			p.Trimmed = append(p.Trimmed, "gross_exposure")
		}
		kept = append(kept, p)
		if p.Sector != "" {
			perSector[p.Sector]++
		}
		gross += p.Notional
	}

	log.Info().Int("sized", len(positions)).Int("kept", len(kept)).Int("dropped", len(drops)).
		Float64("gross_exposure", gross).Msg("Portfolio constraints applied")
	return kept, drops
}
