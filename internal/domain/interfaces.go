package domain

import "context"

// TradingAPI is the persistent session against the trading backend.
type TradingAPI interface {
	Connect(ctx context.Context, token string) (*AccountInfo, error)
	Disconnect()
	Status() ConnectionStatus

	On(kind EventKind, handler EventHandler) HandlerID
	Off(kind EventKind, id HandlerID)

	SubscribeTicks(symbol string)
	ForgetAllTicks()
	SubscribeBalance()

	Proposal(ctx context.Context, req ProposalRequest) (*Proposal, error)
	Buy(ctx context.Context, proposalID string, price float64) (*Contract, error)
	SubscribeContract(ctx context.Context, contractID string) error
}

// TradeRepository persists settled trades.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *TradeRecord) error
	ListTrades(ctx context.Context, limit int) ([]*TradeRecord, error)
	DeleteTrades(ctx context.Context) error
}

// SettingsRepository persists per-strategy parameter overrides.
type SettingsRepository interface {
	GetStrategyConfig(ctx context.Context, kind StrategyKind) (StrategyConfig, error)
	SaveStrategyConfig(ctx context.Context, cfg StrategyConfig) error
}

type NotificationLevel string

const (
	LevelInfo     NotificationLevel = "info"
	LevelSuccess  NotificationLevel = "success"
	LevelWarning  NotificationLevel = "warning"
	LevelError    NotificationLevel = "error"
	LevelAdvisory NotificationLevel = "advisory"
)

type Notification struct {
	Level       NotificationLevel `json:"level"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
}

// Notifier is the sink for user-facing messages.
type Notifier interface {
	Notify(n Notification)
}
