package gamma

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

// ErrNoChain is returned when a ticker has no usable options chain
var ErrNoChain = errors.New("no options chain")

// Regime is the dealer gamma positioning around spot
type Regime string

const (
	Positive Regime = "POSITIVE"
	Negative Regime = "NEGATIVE"
	HighVol  Regime = "HIGH_VOL"
)

// StrikeExposure is the aggregated exposure at one strike. PutGEX is a magnitude.
type StrikeExposure struct {
	Strike  float64 `json:"strike"`
	CallGEX float64 `json:"call_gex"`
	PutGEX  float64 `json:"put_gex"`
}

// Net is call exposure minus put exposure
func (s StrikeExposure) Net() float64 {
	return s.CallGEX - s.PutGEX
}

// Profile is the gamma structure of one ticker
type Profile struct {
	Spot         float64          `json:"spot"`
	Strikes      []StrikeExposure `json:"-"`
	NetGEX       float64          `json:"net_gex"`
	CallWall     float64          `json:"call_wall"`
	PutWall      float64          `json:"put_wall"`
	ZeroGamma    float64          `json:"zero_gamma"`
	HasZeroGamma bool             `json:"has_zero_gamma"`
	Regime       Regime           `json:"regime"`
	Multiplier   float64          `json:"multiplier"`
	Vetoed       bool             `json:"vetoed"`
}

// Engine computes gamma profiles
type Engine struct {
	cfg config.GammaConfig
}

// NewEngine creates a gamma engine
func NewEngine(cfg config.GammaConfig) *Engine {
	return &Engine{cfg: cfg}
}

// ContractGEX is Γ · OI · multiplier · Spot² · 0.01
func (e *Engine) ContractGEX(c market.OptionContract, spot float64) float64 {
	return c.Gamma * c.OpenInterest * e.cfg.ContractMultiplier * spot * spot * 0.01
}

// Profile aggregates the chain by strike and classifies the regime
func (e *Engine) Profile(chain []market.OptionContract, spot float64, mode market.StrategyMode) (Profile, error) {
	if spot <= 0 {
		return Profile{}, fmt.Errorf("%w: spot %.4f", ErrNoChain, spot)
	}

	byStrike := make(map[float64]*StrikeExposure)
	for _, c := range chain {
		if c.OpenInterest <= 0 || c.Gamma <= 0 || c.Strike <= 0 {
			continue
		}
		se, ok := byStrike[c.Strike]
		if !ok {
			se = &StrikeExposure{Strike: c.Strike}
			byStrike[c.Strike] = se
		}
		gex := e.ContractGEX(c, spot)
		switch c.Type {
		case market.Call:
			se.CallGEX += gex
		case market.Put:
			se.PutGEX += gex
		}
	}
	if len(byStrike) == 0 {
		return Profile{}, ErrNoChain
	}

	p := Profile{Spot: spot}
	for _, se := range byStrike {
		p.Strikes = append(p.Strikes, *se)
	}
	sort.Slice(p.Strikes, func(i, j int) bool { return p.Strikes[i].Strike < p.Strikes[j].Strike })

	maxCall, maxPut := 0.0, 0.0
	for _, se := range p.Strikes {
		p.NetGEX += se.Net()
		// Strict comparison keeps the lower strike on ties
		if se.CallGEX > maxCall {
			maxCall, p.CallWall = se.CallGEX, se.Strike
		}
		if se.PutGEX > maxPut {
			maxPut, p.PutWall = se.PutGEX, se.Strike
		}
	}

	p.ZeroGamma, p.HasZeroGamma = ZeroGamma(p.Strikes)
	p.Regime = e.classify(p)
	p.Multiplier = e.cfg.RegimeMultipliers[string(p.Regime)]
	p.Vetoed = mode == market.ModeLong && p.Regime == Negative
	return p, nil
}

// ZeroGamma finds where cumulative signed exposure across ascending strikes first changes sign,
// interpolating linearly between the bracketing strikes
func ZeroGamma(strikes []StrikeExposure) (float64, bool) {
	if len(strikes) == 0 {
		return 0, false
	}
	cum := strikes[0].Net()
	for i := 1; i < len(strikes); i++ {
		next := cum + strikes[i].Net()
		if (cum < 0) != (next < 0) {
			lo, hi := strikes[i-1].Strike, strikes[i].Strike
			return lo + (0-cum)*(hi-lo)/(next-cum), true
		}
		cum = next
	}
	return 0, false
}

func (e *Engine) classify(p Profile) Regime {
	if !p.HasZeroGamma {
		switch {
		case p.NetGEX > 0:
			return Positive
		case p.NetGEX < 0:
			return Negative
		default:
			return HighVol
		}
	}
	if math.Abs(p.Spot-p.ZeroGamma)/p.Spot <= e.cfg.TransitionBand {
		return HighVol
	}
	switch {
	case p.Spot > p.ZeroGamma && p.NetGEX > 0:
		return Positive
	case p.Spot < p.ZeroGamma:
		return Negative
	default:
		return HighVol
	}
}

// Targets derives the two take-profit levels from the gamma structure and ATR
func (e *Engine) Targets(p Profile, entry, atr float64, mode market.StrategyMode) (primary, secondary float64) {
	if mode == market.ModeShort {
		primary = entry - e.cfg.PrimaryTargetATR*atr
		if p.PutWall > 0 && p.PutWall < entry {
			primary = p.PutWall
		}
		secondary = entry - e.cfg.SecondaryTargetATR*atr
		return math.Max(primary, 0), math.Max(secondary, 0)
	}
	primary = entry + e.cfg.PrimaryTargetATR*atr
	if p.CallWall > entry {
		primary = p.CallWall
	}
	return primary, entry + e.cfg.SecondaryTargetATR*atr
}
