package usecase

import "github.com/vitos/tick_trader/internal/domain"

const DefaultWindowSize = 100

// StrategyEngine feeds a rolling price window to one strategy and applies the
// cadence gate. It is not safe for concurrent use; the bot service serializes
// ticks into it.
type StrategyEngine struct {
	strategy Strategy
	window   []float64
	capacity int
	count    int
}

func NewStrategyEngine(strategy Strategy, capacity int) *StrategyEngine {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &StrategyEngine{
		strategy: strategy,
		window:   make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// Reset swaps the strategy and clears the window and tick counter.
func (e *StrategyEngine) Reset(strategy Strategy) {
	e.strategy = strategy
	e.window = e.window[:0]
	e.count = 0
}

// OnTick appends price and evaluates the strategy when the counter hits its
// cadence. The counter advances on every tick.
func (e *StrategyEngine) OnTick(price float64) domain.Direction {
	e.count++
	if len(e.window) == e.capacity {
		copy(e.window, e.window[1:])
		e.window = e.window[:len(e.window)-1]
	}
	e.window = append(e.window, price)

	if e.strategy == nil {
		return domain.DirectionNone
	}
	cadence := e.strategy.Cadence()
	if cadence < 1 {
		cadence = 1
	}
	if e.count%cadence != 0 {
		return domain.DirectionNone
	}
	return e.strategy.Evaluate(e.window)
}

func (e *StrategyEngine) TickCount() int { return e.count }

func (e *StrategyEngine) Window() []float64 {
	return append([]float64(nil), e.window...)
}

func (e *StrategyEngine) Strategy() Strategy { return e.strategy }
