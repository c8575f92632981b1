package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/tick_trader/internal/domain"
)

// Strategy turns a price window into a trade direction. Evaluate is only
// called on ticks where the engine's counter is a multiple of Cadence.
type Strategy interface {
	Kind() domain.StrategyKind
	Cadence() int
	Evaluate(prices []float64) domain.Direction
}

// NewStrategy builds the evaluator for cfg.Kind. Missing parameter sections
// fall back to the defaults for the kind.
func NewStrategy(cfg domain.StrategyConfig) (Strategy, error) {
	defaults := domain.DefaultStrategyConfig(cfg.Kind)

	switch cfg.Kind {
	case domain.StrategyRiseFall:
		return &deltaStrategy{kind: cfg.Kind, cadence: 5}, nil
	case domain.StrategyScalping:
		return &deltaStrategy{kind: cfg.Kind, cadence: 3}, nil
	case domain.StrategyKyrosTrend:
		p := cfg.Trend
		if p == nil {
			p = defaults.Trend
		}
		return &trendStrategy{cfg: *p}, nil
	case domain.StrategyKyrosScalper:
		p := cfg.Scalper
		if p == nil {
			p = defaults.Scalper
		}
		return &scalperStrategy{cfg: *p}, nil
	case domain.StrategyKyrosReversal:
		p := cfg.Reversal
		if p == nil {
			p = defaults.Reversal
		}
		return &reversalStrategy{cfg: *p}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, cfg.Kind)
	}
}

// deltaStrategy follows the sign of the last price step.
type deltaStrategy struct {
	kind    domain.StrategyKind
	cadence int
}

func (s *deltaStrategy) Kind() domain.StrategyKind { return s.kind }
func (s *deltaStrategy) Cadence() int              { return s.cadence }

func (s *deltaStrategy) Evaluate(prices []float64) domain.Direction {
	if len(prices) < 2 {
		return domain.DirectionNone
	}
	delta := prices[len(prices)-1] - prices[len(prices)-2]
	switch {
	case delta > 0:
		return domain.DirectionCall
	case delta < 0:
		return domain.DirectionPut
	default:
		return domain.DirectionNone
	}
}

type trendStrategy struct {
	cfg domain.TrendConfig
}

func (s *trendStrategy) Kind() domain.StrategyKind { return domain.StrategyKyrosTrend }
func (s *trendStrategy) Cadence() int              { return 7 }

func (s *trendStrategy) Evaluate(prices []float64) domain.Direction {
	period := s.cfg.TrendConfirmationPeriod
	if period < 2 || len(prices) < period {
		return domain.DirectionNone
	}
	window := tail(prices, period)

	if TrendStrength(window, period) <= s.cfg.TrendConfidenceThreshold {
		return domain.DirectionNone
	}
	momentum := Momentum(window)
	if math.Abs(momentum) <= s.cfg.MinTrendStrength {
		return domain.DirectionNone
	}

	price := window[len(window)-1]
	sma := SMA(window, period/2)
	switch {
	case price > sma && momentum > 0:
		return domain.DirectionCall
	case price < sma && momentum < 0:
		return domain.DirectionPut
	default:
		return domain.DirectionNone
	}
}

// volatilitySampleSize is how many recent prices the scalper measures.
const volatilitySampleSize = 5

type scalperStrategy struct {
	cfg domain.ScalperConfig
}

func (s *scalperStrategy) Kind() domain.StrategyKind { return domain.StrategyKyrosScalper }
func (s *scalperStrategy) Cadence() int              { return 1 }

func (s *scalperStrategy) Evaluate(prices []float64) domain.Direction {
	n := s.cfg.ConsecutiveTicksRequired
	if n < 2 || len(prices) < n {
		return domain.DirectionNone
	}

	run := ConsecutiveDirection(prices, n-1)
	if run == TrendNone {
		return domain.DirectionNone
	}

	sample := tail(prices, volatilitySampleSize)
	lo, hi := s.volatilityBand()
	vol := Volatility(sample)
	if vol < lo || vol > hi {
		return domain.DirectionNone
	}

	momentum := Momentum(sample)
	switch {
	case run == TrendUp && momentum > s.cfg.MomentumThreshold:
		return domain.DirectionCall
	case run == TrendDown && momentum < -s.cfg.MomentumThreshold:
		return domain.DirectionPut
	default:
		return domain.DirectionNone
	}
}

// volatilityBand maps the filter level onto the configured min/max range.
func (s *scalperStrategy) volatilityBand() (float64, float64) {
	lo, hi := s.cfg.MinVolatilityPercent, s.cfg.MaxVolatilityPercent
	mid := (lo + hi) / 2
	switch s.cfg.VolatilityFilter {
	case domain.VolatilityLow:
		return lo, mid
	case domain.VolatilityHigh:
		return mid, hi * 2
	default:
		return lo, hi
	}
}

type reversalStrategy struct {
	cfg domain.ReversalConfig
}

func (s *reversalStrategy) Kind() domain.StrategyKind { return domain.StrategyKyrosReversal }
func (s *reversalStrategy) Cadence() int              { return 4 }

func (s *reversalStrategy) Evaluate(prices []float64) domain.Direction {
	long := s.cfg.LongWindow
	if long < 2 || len(prices) < long {
		return domain.DirectionNone
	}
	price := prices[len(prices)-1]

	longSMA := SMA(prices, long)
	if longSMA == 0 {
		return domain.DirectionNone
	}
	deviation := (price - longSMA) / longSMA * 100

	var signal domain.Direction
	switch {
	case deviation > s.cfg.OverboughtThreshold:
		signal = domain.DirectionPut
	case deviation < -s.cfg.OversoldThreshold:
		signal = domain.DirectionCall
	default:
		return domain.DirectionNone
	}

	if s.cfg.ReversalConfirmation {
		short := Momentum(tail(prices, s.cfg.ShortWindow))
		medium := Momentum(tail(prices, s.cfg.MediumWindow))
		if signal == domain.DirectionPut && short >= medium {
			return domain.DirectionNone
		}
		if signal == domain.DirectionCall && short <= medium {
			return domain.DirectionNone
		}
	}

	return signal
}
