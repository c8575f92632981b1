package usecase

import (
	"sync"

	"github.com/vitos/tick_trader/internal/domain"
	"go.uber.org/zap"
)

// TickSubscriber is the part of the trading API the feed drives.
type TickSubscriber interface {
	SubscribeTicks(symbol string)
	ForgetAllTicks()
}

// MarketFeed keeps exactly one tick subscription open. It holds only the
// target symbol; buffering is left to the consumer.
type MarketFeed struct {
	api    TickSubscriber
	logger *zap.Logger

	mu     sync.RWMutex
	symbol string
}

func NewMarketFeed(api TickSubscriber, logger *zap.Logger) *MarketFeed {
	return &MarketFeed{api: api, logger: logger}
}

// Subscribe drops every tick stream before opening the one for symbol, so
// no stale-symbol stream survives a swap.
func (f *MarketFeed) Subscribe(symbol string) {
	f.mu.Lock()
	prev := f.symbol
	f.symbol = symbol
	f.mu.Unlock()

	f.api.ForgetAllTicks()
	f.api.SubscribeTicks(symbol)

	if prev != "" && prev != symbol {
		f.logger.Info("Switched tick feed", zap.String("from", prev), zap.String("to", symbol))
	}
}

func (f *MarketFeed) Unsubscribe() {
	f.mu.Lock()
	f.symbol = ""
	f.mu.Unlock()

	f.api.ForgetAllTicks()
}

func (f *MarketFeed) Symbol() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.symbol
}

// Accept reports whether tick belongs to the active subscription. Late ticks
// for a previous symbol are rejected.
func (f *MarketFeed) Accept(tick domain.Tick) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.symbol != "" && tick.Symbol == f.symbol
}
