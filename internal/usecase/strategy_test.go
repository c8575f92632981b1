package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tick_trader/internal/domain"
	"github.com/vitos/tick_trader/internal/usecase"
)

func newEngine(t *testing.T, cfg domain.StrategyConfig) *usecase.StrategyEngine {
	t.Helper()
	strategy, err := usecase.NewStrategy(cfg)
	require.NoError(t, err)
	return usecase.NewStrategyEngine(strategy, usecase.DefaultWindowSize)
}

func TestTrendFiresCallAtCadenceAfterWindowFills(t *testing.T) {
	engine := newEngine(t, domain.DefaultStrategyConfig(domain.StrategyKyrosTrend))

	for i := 0; i < 21; i++ {
		got := engine.OnTick(100 + 0.01*float64(i))
		tick := i + 1
		if tick < 21 {
			assert.Equal(t, domain.DirectionNone, got, "tick %d", tick)
			continue
		}
		assert.Equal(t, domain.DirectionCall, got, "tick %d", tick)
	}
	assert.Equal(t, 21, engine.TickCount())
}

func TestTrendFiresPutOnFallingPrices(t *testing.T) {
	engine := newEngine(t, domain.DefaultStrategyConfig(domain.StrategyKyrosTrend))

	var got domain.Direction
	for i := 0; i < 21; i++ {
		got = engine.OnTick(100 - 0.01*float64(i))
	}
	assert.Equal(t, domain.DirectionPut, got)
}

func TestTrendIgnoresChoppyPrices(t *testing.T) {
	engine := newEngine(t, domain.DefaultStrategyConfig(domain.StrategyKyrosTrend))

	var got domain.Direction
	for i := 0; i < 21; i++ {
		price := 100.0
		if i%2 == 1 {
			price = 100.05
		}
		got = engine.OnTick(price)
	}
	assert.Equal(t, domain.DirectionNone, got)
}

func TestScalperRunOfThree(t *testing.T) {
	engine := newEngine(t, domain.DefaultStrategyConfig(domain.StrategyKyrosScalper))

	assert.Equal(t, domain.DirectionNone, engine.OnTick(100.00))
	assert.Equal(t, domain.DirectionNone, engine.OnTick(100.01))
	assert.Equal(t, domain.DirectionCall, engine.OnTick(100.02))
	// broken run
	assert.Equal(t, domain.DirectionNone, engine.OnTick(100.015))
}

func TestScalperFallingRun(t *testing.T) {
	engine := newEngine(t, domain.DefaultStrategyConfig(domain.StrategyKyrosScalper))

	engine.OnTick(100.02)
	engine.OnTick(100.01)
	assert.Equal(t, domain.DirectionPut, engine.OnTick(100.00))
}

func TestScalperVolatilityFilter(t *testing.T) {
	tests := []struct {
		filter domain.VolatilityLevel
		want   domain.Direction
	}{
		{domain.VolatilityLow, domain.DirectionNone},
		{domain.VolatilityMedium, domain.DirectionCall},
		{domain.VolatilityHigh, domain.DirectionCall},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			cfg := domain.DefaultStrategyConfig(domain.StrategyKyrosScalper)
			cfg.Scalper.VolatilityFilter = tt.filter
			strategy, err := usecase.NewStrategy(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strategy.Evaluate([]float64{100.00, 100.01, 100.02}))
		})
	}
}

func TestScalperMomentumThreshold(t *testing.T) {
	cfg := domain.DefaultStrategyConfig(domain.StrategyKyrosScalper)
	cfg.Scalper.MomentumThreshold = 0.5
	strategy, err := usecase.NewStrategy(cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionNone, strategy.Evaluate([]float64{100.00, 100.01, 100.02}))
}

func flatThen(n int, tail ...float64) []float64 {
	prices := make([]float64, 0, n+len(tail))
	for i := 0; i < n; i++ {
		prices = append(prices, 100)
	}
	return append(prices, tail...)
}

func TestReversal(t *testing.T) {
	overbought := flatThen(8, 100.1, 100.2, 100.3, 100.4, 100.5, 100.55, 100.58)
	oversold := flatThen(8, 99.9, 99.8, 99.7, 99.6, 99.5, 99.45, 99.42)
	spike := flatThen(14, 100.5)
	// stretched above the long mean but already back under the medium one
	pullback := flatThen(8, 101, 102, 103, 102.5, 102, 101.9, 101.8)

	tests := []struct {
		name         string
		prices       []float64
		confirmation bool
		want         domain.Direction
	}{
		{"overbought and slowing", overbought, true, domain.DirectionPut},
		{"oversold and slowing", oversold, true, domain.DirectionCall},
		{"spike without slowdown", spike, true, domain.DirectionNone},
		{"spike unconfirmed", spike, false, domain.DirectionPut},
		{"overbought pullback below medium mean", pullback, true, domain.DirectionPut},
		{"inside band", flatThen(15), true, domain.DirectionNone},
		{"not enough ticks", flatThen(5, 101), true, domain.DirectionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultStrategyConfig(domain.StrategyKyrosReversal)
			cfg.Reversal.ReversalConfirmation = tt.confirmation
			strategy, err := usecase.NewStrategy(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strategy.Evaluate(tt.prices))
		})
	}
}

func TestReversalCadence(t *testing.T) {
	engine := newEngine(t, domain.DefaultStrategyConfig(domain.StrategyKyrosReversal))
	prices := flatThen(8, 100.1, 100.2, 100.3, 100.4, 100.5, 100.55, 100.58, 100.6)

	var fired []int
	for i, p := range prices {
		if engine.OnTick(p) != domain.DirectionNone {
			fired = append(fired, i+1)
		}
	}
	// tick 15 fills the window but only tick 16 is on cadence
	assert.Equal(t, []int{16}, fired)
}

func TestBasicStrategies(t *testing.T) {
	tests := []struct {
		kind    domain.StrategyKind
		cadence int
	}{
		{domain.StrategyRiseFall, 5},
		{domain.StrategyScalping, 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			engine := newEngine(t, domain.DefaultStrategyConfig(tt.kind))
			for i := 1; i <= tt.cadence; i++ {
				got := engine.OnTick(100 + float64(i))
				if i < tt.cadence {
					assert.Equal(t, domain.DirectionNone, got)
				} else {
					assert.Equal(t, domain.DirectionCall, got)
				}
			}

			strategy := engine.Strategy()
			assert.Equal(t, tt.cadence, strategy.Cadence())
			assert.Equal(t, domain.DirectionPut, strategy.Evaluate([]float64{2, 1}))
			assert.Equal(t, domain.DirectionNone, strategy.Evaluate([]float64{1, 1}))
			assert.Equal(t, domain.DirectionNone, strategy.Evaluate([]float64{1}))
		})
	}
}

func TestNewStrategyRejectsUnknownKind(t *testing.T) {
	_, err := usecase.NewStrategy(domain.StrategyConfig{Kind: "martingale"})
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestEngineWindowIsBounded(t *testing.T) {
	engine := usecase.NewStrategyEngine(nil, 3)
	for i := 1; i <= 5; i++ {
		engine.OnTick(float64(i))
	}
	assert.Equal(t, []float64{3, 4, 5}, engine.Window())
	assert.Equal(t, 5, engine.TickCount())

	engine.Reset(nil)
	assert.Empty(t, engine.Window())
	assert.Equal(t, 0, engine.TickCount())
}
