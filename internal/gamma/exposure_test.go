package gamma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gammafunnel/internal/config"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

func newEngine() *Engine {
	return NewEngine(config.Default().Gamma)
}

func opt(strike float64, typ market.OptionType, gamma, oi float64) market.OptionContract {
	return market.OptionContract{Strike: strike, Type: typ, Gamma: gamma, OpenInterest: oi}
}

// Puts dominate below 100, calls above; cumulative exposure crosses zero between 100 and 105
func sampleChain() []market.OptionContract {
	return []market.OptionContract{
		opt(90, market.Put, 0.02, 1000),
		opt(95, market.Put, 0.03, 1000),
		opt(100, market.Call, 0.03, 500),
		opt(105, market.Call, 0.04, 1000),
		opt(110, market.Call, 0.02, 800),
	}
}

func TestContractGEX(t *testing.T) {
	e := newEngine()
	// 0.05 * 2000 * 100 * 50^2 * 0.01
	assert.InDelta(t, 250000.0, e.ContractGEX(opt(50, market.Call, 0.05, 2000), 50), 1e-6)
}

func TestProfile_WallsAndZeroGamma(t *testing.T) {
	e := newEngine()
	p, err := e.Profile(sampleChain(), 100, market.ModeLong)
	require.NoError(t, err)

	assert.Equal(t, 105.0, p.CallWall)
	assert.Equal(t, 95.0, p.PutWall)
	assert.InDelta(t, 210000.0, p.NetGEX, 1e-6)
	require.True(t, p.HasZeroGamma)
	assert.InDelta(t, 104.375, p.ZeroGamma, 1e-9)

	assert.Equal(t, Negative, p.Regime)
	assert.Equal(t, 0.5, p.Multiplier)
	assert.True(t, p.Vetoed)

	short, err := e.Profile(sampleChain(), 100, market.ModeShort)
	require.NoError(t, err)
	assert.False(t, short.Vetoed)
}

func TestProfile_RegimeBySpot(t *testing.T) {
	e := newEngine()

	above, err := e.Profile(sampleChain(), 110, market.ModeLong)
	require.NoError(t, err)
	assert.Equal(t, Positive, above.Regime)
	assert.Equal(t, 1.0, above.Multiplier)
	assert.False(t, above.Vetoed)

	near, err := e.Profile(sampleChain(), 104, market.ModeLong)
	require.NoError(t, err)
	assert.Equal(t, HighVol, near.Regime)
	assert.Equal(t, 0.6, near.Multiplier)
}

func TestProfile_NoCrossingUsesNetSign(t *testing.T) {
	e := newEngine()
	calls := []market.OptionContract{opt(100, market.Call, 0.02, 100), opt(110, market.Call, 0.01, 100)}
	p, err := e.Profile(calls, 100, market.ModeLong)
	require.NoError(t, err)
	assert.False(t, p.HasZeroGamma)
	assert.Equal(t, Positive, p.Regime)
	assert.Zero(t, p.PutWall)

	puts := []market.OptionContract{opt(90, market.Put, 0.02, 100)}
	p, err = e.Profile(puts, 100, market.ModeLong)
	require.NoError(t, err)
	assert.Equal(t, Negative, p.Regime)
	assert.True(t, p.Vetoed)

	// calls and puts cancel at a single strike: no sign to follow
	balanced := []market.OptionContract{opt(100, market.Call, 0.02, 100), opt(100, market.Put, 0.02, 100)}
	p, err = e.Profile(balanced, 100, market.ModeLong)
	require.NoError(t, err)
	assert.False(t, p.HasZeroGamma)
	assert.Zero(t, p.NetGEX)
	assert.Equal(t, HighVol, p.Regime)
	assert.False(t, p.Vetoed)
}

func TestCallWall_UniqueMaximum(t *testing.T) {
	e := newEngine()
	var chain []market.OptionContract
	for strike := 80.0; strike <= 120; strike += 2.5 {
		oi := 100.0
		if strike == 112.5 {
			oi = 5000
		}
		chain = append(chain, opt(strike, market.Call, 0.02, oi), opt(strike, market.Put, 0.02, 300))
	}
	p, err := e.Profile(chain, 100, market.ModeLong)
	require.NoError(t, err)
	assert.Equal(t, 112.5, p.CallWall)
}

func TestCallWall_TieKeepsLowerStrike(t *testing.T) {
	e := newEngine()
	chain := []market.OptionContract{opt(110, market.Call, 0.02, 100), opt(105, market.Call, 0.02, 100)}
	p, err := e.Profile(chain, 100, market.ModeLong)
	require.NoError(t, err)
	assert.Equal(t, 105.0, p.CallWall)
}

func TestProfile_EmptyChain(t *testing.T) {
	e := newEngine()
	_, err := e.Profile(nil, 100, market.ModeLong)
	assert.ErrorIs(t, err, ErrNoChain)

	_, err = e.Profile([]market.OptionContract{opt(100, market.Call, 0, 100)}, 100, market.ModeLong)
	assert.ErrorIs(t, err, ErrNoChain)
}

func TestTargets(t *testing.T) {
	e := newEngine()

	p := Profile{CallWall: 105, PutWall: 95}
	primary, secondary := e.Targets(p, 100, 4.5, market.ModeLong)
	assert.Equal(t, 105.0, primary)
	assert.Equal(t, 113.5, secondary)

	// Wall below entry falls back to ATR
	primary, _ = e.Targets(p, 110, 4.5, market.ModeLong)
	assert.Equal(t, 119.0, primary)

	primary, secondary = e.Targets(p, 100, 4.5, market.ModeShort)
	assert.Equal(t, 95.0, primary)
	assert.Equal(t, 86.5, secondary)
}
