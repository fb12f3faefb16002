package regime

import (
	"sort"
	"time"

	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/indicators"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

// Regime is the market-wide BMI classification
type Regime string

const (
	Green  Regime = "GREEN"
	Yellow Regime = "YELLOW"
	Red    Regime = "RED"
)

// neutralRatio is what a day without any big-money signal contributes
const neutralRatio = 50.0

// Params are the BMI knobs
type Params struct {
	VolumeLookback    int
	StdDevK           float64
	SmoothingDays     int
	GreenMax          float64
	RedMin            float64
	DivergenceDays    int
	DivergencePriceUp float64 // percent
	DivergenceBMIDrop float64 // points
}

// ParamsFromConfig lifts the regime section into Params
func ParamsFromConfig(cfg config.RegimeConfig) Params {
	return Params{
		VolumeLookback:    cfg.VolumeLookback,
		StdDevK:           cfg.StdDevK,
		SmoothingDays:     cfg.SmoothingDays,
		GreenMax:          cfg.GreenMax,
		RedMin:            cfg.RedMin,
		DivergenceDays:    cfg.DivergenceDays,
		DivergencePriceUp: cfg.DivergencePriceUp,
		DivergenceBMIDrop: cfg.DivergenceBMIDrop,
	}
}

// DailyRatio is one aggregated day of big-money signals
type DailyRatio struct {
	Date  time.Time `json:"date"`
	Buys  int       `json:"buys"`
	Sells int       `json:"sells"`
	Ratio float64   `json:"ratio"`
}

// State is the run-wide regime. It is computed once and read-only afterwards.
type State struct {
	BMI          float64             `json:"bmi"`
	Regime       Regime              `json:"regime"`
	Mode         market.StrategyMode `json:"strategy_mode"`
	Divergence   bool                `json:"divergence"`
	Partial      bool                `json:"partial"`
	Contributors int                 `json:"contributors"`
	Excluded     []string            `json:"excluded,omitempty"`
	Ratios       []DailyRatio        `json:"-"`
	AsOf         time.Time           `json:"as_of"`
}

// Classify maps a BMI value to its regime. The green bound is inclusive, the red bound exclusive.
func Classify(bmi float64, p Params) Regime {
	switch {
	case bmi <= p.GreenMax:
		return Green
	case bmi <= p.RedMin:
		return Yellow
	default:
		return Red
	}
}

// ModeFor selects the strategy mode a regime trades
func ModeFor(r Regime) market.StrategyMode {
	if r == Red {
		return market.ModeShort
	}
	return market.ModeLong
}

// Signal is the big-money classification of one bar
type Signal int

const (
	NoSignal Signal = iota
	BigMoneyBuy
	BigMoneySell
)

// SignalAt classifies bars[i] against the VolumeLookback bars before it
func SignalAt(bars []market.Bar, i int, p Params) Signal {
	if i < p.VolumeLookback || i >= len(bars) {
		return NoSignal
	}
	window := make([]float64, p.VolumeLookback)
	for j := range window {
		window[j] = bars[i-p.VolumeLookback+j].Volume
	}
	threshold := indicators.Mean(window) + p.StdDevK*indicators.StdDev(window)

	bar := bars[i]
	if bar.Volume <= threshold {
		return NoSignal
	}
	switch {
	case bar.Close > bar.Open:
		return BigMoneyBuy
	case bar.Close < bar.Open:
		return BigMoneySell
	default:
		return NoSignal
	}
}

// Compute aggregates big-money signals over every ticker and smooths them into the BMI.
// Tickers without enough history are left out of the aggregate only.
func Compute(bars map[string][]market.Bar, proxy []market.Bar, p Params) State {
	tickers := make([]string, 0, len(bars))
	for t := range bars {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	type tally struct{ buys, sells int }
	days := make(map[time.Time]*tally)
	state := State{}

	for _, ticker := range tickers {
		series := bars[ticker]
		if len(series) < p.VolumeLookback+1 {
			state.Excluded = append(state.Excluded, ticker)
			continue
		}
		state.Contributors++
		for i := p.VolumeLookback; i < len(series); i++ {
			day := market.Day(series[i].Date)
			tl, ok := days[day]
			if !ok {
				tl = &tally{}
				days[day] = tl
			}
			switch SignalAt(series, i, p) {
			case BigMoneyBuy:
				tl.buys++
			case BigMoneySell:
				tl.sells++
			}
		}
	}

	dates := make([]time.Time, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, d := range dates {
		tl := days[d]
		ratio := neutralRatio
		if n := tl.buys + tl.sells; n > 0 {
			ratio = float64(tl.buys) / float64(n) * 100
		}
		state.Ratios = append(state.Ratios, DailyRatio{Date: d, Buys: tl.buys, Sells: tl.sells, Ratio: ratio})
	}

	if len(state.Ratios) == 0 {
		// Nothing to aggregate: neutral reading, flagged partial
		state.BMI = neutralRatio
		state.Partial = true
	} else {
		state.BMI = smoothedAt(state.Ratios, len(state.Ratios)-1, p.SmoothingDays)
		state.Partial = len(state.Ratios) < p.SmoothingDays
		state.AsOf = state.Ratios[len(state.Ratios)-1].Date
	}

	state.Regime = Classify(state.BMI, p)
	state.Mode = ModeFor(state.Regime)
	state.Divergence = divergence(state.Ratios, proxy, p)
	return state
}

// smoothedAt is the simple moving average of ratios ending at index end, over at most window days
func smoothedAt(ratios []DailyRatio, end, window int) float64 {
	start := end - window + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for i := start; i <= end; i++ {
		sum += ratios[i].Ratio
	}
	return sum / float64(end-start+1)
}

// divergence flags price rising while institutional support falls
func divergence(ratios []DailyRatio, proxy []market.Bar, p Params) bool {
	if len(ratios) <= p.DivergenceDays {
		return false
	}
	priceChange, ok := indicators.PercentChange(market.Closes(proxy), p.DivergenceDays)
	if !ok {
		return false
	}
	last := len(ratios) - 1
	bmiChange := smoothedAt(ratios, last, p.SmoothingDays) - smoothedAt(ratios, last-p.DivergenceDays, p.SmoothingDays)
	return priceChange > p.DivergencePriceUp && bmiChange < -p.DivergenceBMIDrop
}
