package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitos/tick_trader/internal/domain"
	"go.uber.org/zap"
)

type BotConfig struct {
	Symbol            string              `json:"symbol"`
	Strategy          domain.StrategyKind `json:"strategy"`
	Stake             float64             `json:"stake"`
	Currency          string              `json:"currency"`
	MinStake          float64             `json:"min_stake"`
	ApplyReducedStake bool                `json:"apply_reduced_stake"`
	HistorySize       int                 `json:"history_size"`
	TickBufferSize    int                 `json:"tick_buffer_size"`
}

// StartRequest overrides the configured defaults for one run. Zero fields
// keep the configured value.
type StartRequest struct {
	Strategy domain.StrategyKind `json:"strategy"`
	Symbol   string              `json:"symbol"`
	Stake    float64             `json:"stake"`
}

type BotStatus struct {
	Connection   domain.ConnectionStatus `json:"connection"`
	Account      *domain.AccountInfo     `json:"account,omitempty"`
	Balance      float64                 `json:"balance"`
	Currency     string                  `json:"currency"`
	Running      bool                    `json:"running"`
	Halted       bool                    `json:"halted"`
	HaltReason   string                  `json:"halt_reason,omitempty"`
	Strategy     domain.StrategyKind     `json:"strategy"`
	Symbol       string                  `json:"symbol"`
	Stake        float64                 `json:"stake"`
	CurrentStake float64                 `json:"current_stake"`
	TickCount    int                     `json:"tick_count"`
	LastSignal   domain.Direction        `json:"last_signal,omitempty"`
	InFlight     bool                    `json:"in_flight"`
	Pending      *domain.PendingOrder    `json:"pending,omitempty"`
	Risk         *domain.RiskState       `json:"risk,omitempty"`
}

type TradeStats struct {
	TotalProfit float64 `json:"total_profit"`
	WinRate     float64 `json:"win_rate"`
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.Notification) {}

// BotService wires the feed, strategy engine, risk manager and executor to
// the trading API events.
type BotService struct {
	api      domain.TradingAPI
	feed     *MarketFeed
	executor *TradeExecutor
	trades   domain.TradeRepository
	settings domain.SettingsRepository
	notifier domain.Notifier
	logger   *zap.Logger
	cfg      BotConfig

	mu         sync.Mutex
	connection domain.ConnectionStatus
	account    *domain.AccountInfo
	balance    float64
	currency   string
	running    bool
	halted     bool
	haltReason string
	kind       domain.StrategyKind
	symbol     string
	stake      float64
	engine     *StrategyEngine
	risk       *RiskManager
	lastSignal domain.Direction
	ticks      []domain.Tick
	history    []*domain.TradeRecord

	// spawn runs order placement off the event goroutine.
	spawn func(func())
}

func NewBotService(
	api domain.TradingAPI,
	trades domain.TradeRepository,
	settings domain.SettingsRepository,
	notifier domain.Notifier,
	cfg BotConfig,
	logger *zap.Logger,
) *BotService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	if cfg.TickBufferSize <= 0 {
		cfg.TickBufferSize = DefaultWindowSize
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	s := &BotService{
		api:        api,
		feed:       NewMarketFeed(api, logger),
		executor:   NewTradeExecutor(api, logger),
		trades:     trades,
		settings:   settings,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
		connection: api.Status(),
		kind:       cfg.Strategy,
		symbol:     cfg.Symbol,
		stake:      cfg.Stake,
		engine:     NewStrategyEngine(nil, DefaultWindowSize),
		risk:       NewRiskManager(nil, cfg.MinStake),
		spawn:      func(fn func()) { go fn() },
	}

	api.On(domain.EventStatus, s.onStatus)
	api.On(domain.EventTick, s.onTick)
	api.On(domain.EventBalance, s.onBalance)
	api.On(domain.EventContractUpdate, s.onContractUpdate)
	api.On(domain.EventAccountInfoUpdated, s.onAccountInfo)
	api.On(domain.EventMT5Accounts, s.onMT5Accounts)
	api.On(domain.EventError, s.onError)

	return s
}

// --- Session ---

func (s *BotService) Connect(ctx context.Context, token string) (*domain.AccountInfo, error) {
	info, err := s.api.Connect(ctx, token)
	if err != nil {
		s.notifier.Notify(domain.Notification{
			Level:       domain.LevelError,
			Title:       "Connection failed",
			Description: err.Error(),
		})
		return nil, err
	}

	s.mu.Lock()
	s.account = info
	s.balance = info.Balance
	s.currency = info.Currency
	s.mu.Unlock()

	s.api.SubscribeBalance()

	accountLabel := "Real"
	if info.IsVirtual {
		accountLabel = "Demo"
	}
	s.notifier.Notify(domain.Notification{
		Level:       domain.LevelSuccess,
		Title:       "Connected successfully!",
		Description: fmt.Sprintf("Account: %s (%s)", info.LoginID, accountLabel),
	})
	return info, nil
}

func (s *BotService) Disconnect() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		s.feed.Unsubscribe()
	}
	s.api.Disconnect()
	s.executor.Reset()

	s.mu.Lock()
	s.account = nil
	s.balance = 0
	s.mu.Unlock()

	s.notifier.Notify(domain.Notification{Level: domain.LevelInfo, Title: "Disconnected"})
}

// --- Bot lifecycle ---

func (s *BotService) Start(ctx context.Context, req StartRequest) error {
	s.mu.Lock()
	kind := s.kind
	symbol := s.symbol
	stake := s.stake
	s.mu.Unlock()

	if req.Strategy != "" {
		kind = req.Strategy
	}
	if req.Symbol != "" {
		symbol = req.Symbol
	}
	if req.Stake > 0 {
		stake = req.Stake
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, kind)
	}
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if stake <= 0 {
		return fmt.Errorf("stake must be positive, got %v", stake)
	}

	strategyCfg, err := s.loadStrategyConfig(ctx, kind)
	if err != nil {
		return err
	}
	strategy, err := NewStrategy(strategyCfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.ErrBotRunning
	}
	if s.api.Status() != domain.StatusConnected {
		s.mu.Unlock()
		s.notifier.Notify(domain.Notification{
			Level:       domain.LevelError,
			Title:       "Not connected",
			Description: "Please connect to Deriv first",
		})
		return domain.ErrNotConnected
	}
	if s.balance < stake {
		balance := s.balance
		s.mu.Unlock()
		s.notifier.Notify(domain.Notification{
			Level:       domain.LevelError,
			Title:       "Insufficient balance",
			Description: "Please add funds or reduce stake amount",
		})
		return fmt.Errorf("%w: balance %.2f, stake %.2f", domain.ErrInsufficientBalance, balance, stake)
	}

	s.kind = kind
	s.symbol = symbol
	s.stake = stake
	s.engine.Reset(strategy)
	s.risk = NewRiskManager(strategyCfg.Risk, s.cfg.MinStake)
	s.risk.Reset(s.balance, stake)
	s.running = true
	s.halted = false
	s.haltReason = ""
	s.lastSignal = domain.DirectionNone
	s.ticks = s.ticks[:0]
	accountType := s.accountTypeLocked()
	s.mu.Unlock()

	s.feed.Subscribe(symbol)

	s.logger.Info("Bot started",
		zap.String("strategy", string(kind)),
		zap.String("symbol", symbol),
		zap.Float64("stake", stake))
	s.notifier.Notify(domain.Notification{
		Level:       domain.LevelSuccess,
		Title:       "Bot started",
		Description: fmt.Sprintf("Trading %s on %s (%s)", strings.ReplaceAll(string(kind), "_", " "), symbol, accountType),
	})
	if strings.HasPrefix(symbol, "frx") {
		s.notifier.Notify(domain.Notification{
			Level:       domain.LevelInfo,
			Title:       "Forex Trading",
			Description: "Ensure your account has permissions for Forex/Commodities",
		})
	}
	return nil
}

// Stop ends signal evaluation and the tick feed. A pending order still runs
// to settlement.
func (s *BotService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return domain.ErrBotNotRunning
	}
	s.running = false
	s.mu.Unlock()

	s.feed.Unsubscribe()
	s.logger.Info("Bot stopped")
	s.notifier.Notify(domain.Notification{Level: domain.LevelInfo, Title: "Bot stopped"})
	return nil
}

func (s *BotService) loadStrategyConfig(ctx context.Context, kind domain.StrategyKind) (domain.StrategyConfig, error) {
	if s.settings == nil {
		return domain.DefaultStrategyConfig(kind), nil
	}
	cfg, err := s.settings.GetStrategyConfig(ctx, kind)
	if err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("failed to load %s settings: %w", kind, err)
	}
	return cfg, nil
}

// haltLocked stops evaluation for the session. The caller unsubscribes the
// feed after releasing the lock.
func (s *BotService) haltLocked(reason HaltReason, message string) {
	s.running = false
	s.halted = true
	s.haltReason = string(reason)
	s.logger.Warn("Bot halted", zap.String("reason", string(reason)), zap.String("detail", message))
}

func (s *BotService) afterHalt(reason HaltReason, message string) {
	s.feed.Unsubscribe()
	level := domain.LevelAdvisory
	title := "Risk limit reached, bot paused"
	if reason == HaltInsufficientBalance {
		level = domain.LevelError
		title = "Insufficient balance, bot stopped"
	}
	s.notifier.Notify(domain.Notification{Level: level, Title: title, Description: message})
}

// --- Event handlers ---

func (s *BotService) onStatus(ev domain.Event) {
	s.mu.Lock()
	s.connection = ev.Status
	resubscribe := ev.Status == domain.StatusConnected && s.running
	symbol := s.symbol
	s.mu.Unlock()

	switch ev.Status {
	case domain.StatusDisconnected, domain.StatusError:
		if s.executor.InFlight() {
			s.logger.Warn("Link lost with an order in flight, clearing trading state")
		}
		s.executor.Reset()
	case domain.StatusConnected:
		if resubscribe {
			s.logger.Info("Session restored, resubscribing", zap.String("symbol", symbol))
			s.api.SubscribeBalance()
			s.feed.Subscribe(symbol)
		}
	}
}

func (s *BotService) onTick(ev domain.Event) {
	tick := ev.Tick
	if !s.feed.Accept(tick) {
		return
	}

	s.mu.Lock()
	s.ticks = append(s.ticks, tick)
	if over := len(s.ticks) - s.cfg.TickBufferSize; over > 0 {
		s.ticks = append(s.ticks[:0], s.ticks[over:]...)
	}
	if !s.running {
		s.mu.Unlock()
		return
	}

	direction := s.engine.OnTick(tick.Quote)
	if direction == domain.DirectionNone {
		s.mu.Unlock()
		return
	}
	s.lastSignal = direction

	stake := s.orderStakeLocked()
	attempt, err := s.executor.Begin(stake, s.balance)
	if err != nil {
		if errors.Is(err, domain.ErrOrderInFlight) {
			s.mu.Unlock()
			s.logger.Debug("Signal discarded, order in flight", zap.String("direction", string(direction)))
			return
		}
		s.haltLocked(HaltInsufficientBalance, err.Error())
		s.mu.Unlock()
		s.afterHalt(HaltInsufficientBalance, err.Error())
		return
	}

	intent := OrderIntent{
		Direction:    direction,
		Stake:        stake,
		Symbol:       s.symbol,
		Currency:     s.currencyLocked(),
		Duration:     contractDuration(s.kind),
		DurationUnit: "t",
		EntryPrice:   tick.Quote,
		AccountType:  s.accountTypeLocked(),
	}
	s.mu.Unlock()

	s.logger.Info("Signal fired",
		zap.String("direction", string(direction)),
		zap.String("symbol", intent.Symbol),
		zap.Float64("quote", tick.Quote),
		zap.Float64("stake", stake))

	s.spawn(func() { s.placeOrder(attempt, intent) })
}

func (s *BotService) placeOrder(attempt uint64, intent OrderIntent) {
	order, err := s.executor.Place(context.Background(), attempt, intent)
	if err != nil {
		s.logger.Error("Trade failed", zap.Error(err), zap.String("direction", string(intent.Direction)))
		s.notifier.Notify(domain.Notification{
			Level:       domain.LevelError,
			Title:       "Trade failed",
			Description: err.Error(),
		})
		return
	}
	s.notifier.Notify(domain.Notification{
		Level:       domain.LevelInfo,
		Title:       fmt.Sprintf("%s trade placed", order.Direction),
		Description: fmt.Sprintf("Stake: $%.2f on %s", order.Stake, order.Symbol),
	})
}

func (s *BotService) onContractUpdate(ev domain.Event) {
	if ev.Contract == nil {
		return
	}
	record, ok := s.executor.Settle(*ev.Contract)
	if !ok {
		return
	}

	s.mu.Lock()
	s.history = append([]*domain.TradeRecord{record}, s.history...)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[:s.cfg.HistorySize]
	}
	verdict := s.risk.RecordResult(record.Profit)
	halt := verdict.Halt && s.running
	if halt {
		s.haltLocked(verdict.Reason, verdict.Message)
	}
	s.mu.Unlock()

	s.logger.Info("Contract settled",
		zap.String("contract_id", record.ContractID),
		zap.String("result", string(record.Result)),
		zap.Float64("profit", record.Profit))

	if s.trades != nil {
		if err := s.trades.SaveTrade(context.Background(), record); err != nil {
			s.logger.Error("Failed to persist trade", zap.Error(err), zap.String("contract_id", record.ContractID))
		}
	}

	if record.Result == domain.ResultWin {
		s.notifier.Notify(domain.Notification{
			Level:       domain.LevelSuccess,
			Title:       "Trade won!",
			Description: fmt.Sprintf("Profit: $%.2f", record.Profit),
		})
	} else {
		s.notifier.Notify(domain.Notification{
			Level:       domain.LevelError,
			Title:       "Trade lost",
			Description: fmt.Sprintf("Loss: $%.2f", math.Abs(record.Profit)),
		})
	}
	if verdict.Advisory != "" {
		s.notifier.Notify(domain.Notification{
			Level:       domain.LevelAdvisory,
			Title:       "Win rate below threshold",
			Description: verdict.Advisory,
		})
	}
	if halt {
		s.afterHalt(verdict.Reason, verdict.Message)
	}
}

func (s *BotService) onBalance(ev domain.Event) {
	s.mu.Lock()
	s.balance = ev.Balance.Balance
	if ev.Balance.Currency != "" {
		s.currency = ev.Balance.Currency
	}
	if s.account != nil {
		s.account.Balance = ev.Balance.Balance
	}
	var verdict RiskVerdict
	if s.running {
		// The open contract's stake is debited at buy but not yet lost.
		equity := ev.Balance.Balance
		if p := s.executor.Pending(); p != nil {
			equity += p.Stake
		}
		verdict = s.risk.CheckBalance(equity)
		if verdict.Halt {
			s.haltLocked(verdict.Reason, verdict.Message)
		}
	}
	s.mu.Unlock()

	if verdict.Halt {
		s.afterHalt(verdict.Reason, verdict.Message)
	}
}

func (s *BotService) onAccountInfo(ev domain.Event) {
	if ev.Account == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info := *ev.Account
	s.account = &info
	s.balance = info.Balance
	s.currency = info.Currency
}

func (s *BotService) onMT5Accounts(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account != nil {
		s.account.MT5Accounts = ev.MT5
	}
}

func (s *BotService) onError(ev domain.Event) {
	if ev.Err == nil {
		return
	}
	title := "API Error"
	if errors.Is(ev.Err, domain.ErrMalformedSettlement) {
		title = "Malformed settlement"
		var se *domain.SettlementError
		if errors.As(ev.Err, &se) && s.executor.Release(se.ContractID) {
			s.logger.Warn("Pending order released after unreadable settlement",
				zap.String("contract_id", se.ContractID))
		}
	}
	s.logger.Warn(title, zap.Error(ev.Err))
	s.notifier.Notify(domain.Notification{
		Level:       domain.LevelError,
		Title:       title,
		Description: ev.Err.Error(),
	})
}

// --- Sizing ---

func (s *BotService) orderStakeLocked() float64 {
	if s.cfg.ApplyReducedStake && s.risk.Config() != nil && s.risk.Stake() > 0 {
		return s.risk.Stake()
	}
	return s.stake
}

func (s *BotService) currencyLocked() string {
	if s.currency != "" {
		return s.currency
	}
	return s.cfg.Currency
}

func (s *BotService) accountTypeLocked() domain.AccountType {
	if s.account != nil {
		return s.account.AccountType()
	}
	return domain.AccountDemo
}

// contractDuration is the tick count per contract for kind.
func contractDuration(kind domain.StrategyKind) int {
	if kind == domain.StrategyScalping {
		return 1
	}
	return 5
}

// --- History ---

func (s *BotService) LoadHistory(ctx context.Context) error {
	if s.trades == nil {
		return nil
	}
	records, err := s.trades.ListTrades(ctx, s.cfg.HistorySize)
	if err != nil {
		return fmt.Errorf("failed to load trade history: %w", err)
	}
	s.mu.Lock()
	s.history = records
	s.mu.Unlock()
	return nil
}

func (s *BotService) ResetHistory(ctx context.Context) error {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()

	if s.trades != nil {
		if err := s.trades.DeleteTrades(ctx); err != nil {
			return fmt.Errorf("failed to clear trade history: %w", err)
		}
	}
	s.notifier.Notify(domain.Notification{Level: domain.LevelInfo, Title: "Trade history cleared"})
	return nil
}

// --- Snapshots ---

func (s *BotService) Status() BotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := BotStatus{
		Connection: s.connection,
		Balance:    s.balance,
		Currency:   s.currencyLocked(),
		Running:    s.running,
		Halted:     s.halted,
		HaltReason: s.haltReason,
		Strategy:   s.kind,
		Symbol:     s.symbol,
		Stake:      s.stake,
		TickCount:  s.engine.TickCount(),
		LastSignal: s.lastSignal,
		InFlight:   s.executor.InFlight(),
		Pending:    s.executor.Pending(),
	}
	if s.account != nil {
		info := *s.account
		st.Account = &info
	}
	if s.risk.Config() != nil {
		rs := s.risk.State()
		st.Risk = &rs
		st.CurrentStake = rs.CurrentStake
	} else {
		st.CurrentStake = s.stake
	}
	return st
}

func (s *BotService) Stats() TradeStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats TradeStats
	total := decimal.Zero
	for _, t := range s.history {
		total = total.Add(decimal.NewFromFloat(t.Profit))
		if t.Result == domain.ResultWin {
			stats.Wins++
		}
	}
	stats.TotalTrades = len(s.history)
	stats.Losses = stats.TotalTrades - stats.Wins
	stats.TotalProfit = total.Round(2).InexactFloat64()
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
	}
	return stats
}

func (s *BotService) Ticks() []domain.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Tick(nil), s.ticks...)
}

func (s *BotService) History() []*domain.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.TradeRecord(nil), s.history...)
}
