package indicators

import (
	"math"

	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

// RSIResult represents the result of RSI calculation
type RSIResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateRSI calculates the Relative Strength Index using Wilder's smoothing
func CalculateRSI(prices []float64, period int) RSIResult {
	if period <= 0 || len(prices) < period+1 {
		return RSIResult{
			Value:     50.0, // Neutral RSI when insufficient data
			Period:    period,
			IsValid:   false,
			DataCount: len(prices),
		}
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = avgGain*(1-alpha) + gain*alpha
		avgLoss = avgLoss*(1-alpha) + loss*alpha
	}

	result := RSIResult{Period: period, IsValid: true, DataCount: len(prices)}
	switch {
	case avgLoss == 0 && avgGain == 0:
		result.Value = 50.0
	case avgLoss == 0:
		result.Value = 100.0
	default:
		rs := avgGain / avgLoss
		result.Value = 100.0 - (100.0 / (1.0 + rs))
	}
	return result
}

// ATRResult represents the result of ATR calculation
type ATRResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateATR calculates the Average True Range for daily bars
func CalculateATR(bars []market.Bar, period int) ATRResult {
	if period <= 0 || len(bars) < period+1 {
		return ATRResult{Period: period, DataCount: len(bars)}
	}

	// True Range = max(high-low, |high-prevClose|, |low-prevClose|)
	trueRanges := make([]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - prevClose)
		lc := math.Abs(bars[i].Low - prevClose)
		trueRanges[i-1] = math.Max(hl, math.Max(hc, lc))
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period; i < len(trueRanges); i++ {
		atr = atr*(1-alpha) + trueRanges[i]*alpha
	}

	return ATRResult{
		Value:     atr,
		Period:    period,
		IsValid:   true,
		DataCount: len(bars),
	}
}

// SMA returns the simple moving average of the last period values; ok is false on short input
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	return Mean(values[len(values)-period:]), true
}

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// PercentChange returns the percentage change of the last value versus the value lookback
// sessions earlier
func PercentChange(values []float64, lookback int) (float64, bool) {
	if lookback <= 0 || len(values) < lookback+1 {
		return 0, false
	}
	base := values[len(values)-1-lookback]
	if base == 0 {
		return 0, false
	}
	return (values[len(values)-1] - base) / base * 100, true
}

// RelativeVolume divides the latest volume by the average of the preceding period sessions
func RelativeVolume(bars []market.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	prior := bars[len(bars)-1-period : len(bars)-1]
	sum := 0.0
	for _, b := range prior {
		sum += b.Volume
	}
	avg := sum / float64(period)
	if avg <= 0 {
		return 0, false
	}
	return bars[len(bars)-1].Volume / avg, true
}

// SpreadRatio compares the latest high-low range with the average range of the preceding
// period sessions
func SpreadRatio(bars []market.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	prior := bars[len(bars)-1-period : len(bars)-1]
	sum := 0.0
	for _, b := range prior {
		sum += b.High - b.Low
	}
	avg := sum / float64(period)
	if avg <= 0 {
		return 0, false
	}
	last := bars[len(bars)-1]
	return (last.High - last.Low) / avg, true
}

// Entropy returns the Shannon entropy of a distribution normalised to [0,1]
func Entropy(weights map[string]float64) float64 {
	total := 0.0
	n := 0
	for _, w := range weights {
		if w > 0 {
			total += w
			n++
		}
	}
	if n < 2 || total <= 0 {
		return 0
	}
	h := 0.0
	for _, w := range weights {
		if w <= 0 {
			continue
		}
		p := w / total
		h -= p * math.Log(p)
	}
	return h / math.Log(float64(n))
}
