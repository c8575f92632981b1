package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/tick_trader/internal/domain"
	"go.uber.org/zap"
)

var errAttemptSuperseded = errors.New("order attempt superseded by reset")

// OrderAPI is the part of the trading API needed to open and track contracts.
type OrderAPI interface {
	Proposal(ctx context.Context, req domain.ProposalRequest) (*domain.Proposal, error)
	Buy(ctx context.Context, proposalID string, price float64) (*domain.Contract, error)
	SubscribeContract(ctx context.Context, contractID string) error
}

type OrderIntent struct {
	Direction    domain.Direction
	Stake        float64
	Symbol       string
	Currency     string
	Duration     int
	DurationUnit string
	EntryPrice   float64
	AccountType  domain.AccountType
}

// TradeExecutor runs proposal, buy and settlement with at most one order in
// flight. The guard is taken by Begin and released by Settle, Release, a
// failed Place or Reset.
type TradeExecutor struct {
	api    OrderAPI
	logger *zap.Logger

	mu       sync.Mutex
	inFlight bool
	attempt  uint64
	pending  *domain.PendingOrder

	now   func() time.Time
	newID func() string
}

func NewTradeExecutor(api OrderAPI, logger *zap.Logger) *TradeExecutor {
	return &TradeExecutor{
		api:    api,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Begin takes the in-flight guard for stake. The returned attempt token must
// be passed to Place.
func (e *TradeExecutor) Begin(stake, balance float64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight {
		return 0, domain.ErrOrderInFlight
	}
	if balance < stake {
		return 0, fmt.Errorf("%w: balance %.2f, stake %.2f", domain.ErrInsufficientBalance, balance, stake)
	}
	e.inFlight = true
	e.attempt++
	return e.attempt, nil
}

// Place requests a proposal and buys it at the quoted price. On success the
// order is pending and subscribed for settlement; on failure the guard is
// released. No step is retried.
func (e *TradeExecutor) Place(ctx context.Context, attempt uint64, intent OrderIntent) (*domain.PendingOrder, error) {
	proposal, err := e.api.Proposal(ctx, domain.ProposalRequest{
		ContractType: intent.Direction,
		Amount:       intent.Stake,
		Basis:        "stake",
		Currency:     intent.Currency,
		Duration:     intent.Duration,
		DurationUnit: intent.DurationUnit,
		Symbol:       intent.Symbol,
	})
	if err != nil {
		e.abort(attempt)
		return nil, err
	}

	contract, err := e.api.Buy(ctx, proposal.ID, proposal.AskPrice)
	if err != nil {
		e.abort(attempt)
		return nil, err
	}

	order := &domain.PendingOrder{
		ContractID:  contract.ContractID,
		Direction:   intent.Direction,
		EntryPrice:  intent.EntryPrice,
		Stake:       contract.BuyPrice,
		Payout:      contract.Payout,
		Symbol:      intent.Symbol,
		AccountType: intent.AccountType,
		RequestedAt: e.now(),
	}
	if order.Stake == 0 {
		order.Stake = intent.Stake
	}

	e.mu.Lock()
	if !e.inFlight || e.attempt != attempt {
		e.mu.Unlock()
		e.logger.Warn("Bought contract after trading state was reset, settlement will be ignored",
			zap.String("contract_id", contract.ContractID))
		return nil, errAttemptSuperseded
	}
	e.pending = order
	e.mu.Unlock()

	if err := e.api.SubscribeContract(ctx, contract.ContractID); err != nil {
		e.logger.Error("Settlement stream rejected, contract will not be tracked",
			zap.String("contract_id", contract.ContractID), zap.Error(err))
		e.abort(attempt)
		return nil, err
	}

	e.logger.Info("Contract bought",
		zap.String("contract_id", contract.ContractID),
		zap.String("direction", string(intent.Direction)),
		zap.Float64("stake", order.Stake),
		zap.Float64("payout", order.Payout))

	return order, nil
}

func (e *TradeExecutor) abort(attempt uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attempt == attempt {
		e.inFlight = false
		e.pending = nil
	}
}

// Settle finalizes the pending order when update is its settlement. Updates
// for other contracts and unsold updates return false.
func (e *TradeExecutor) Settle(update domain.ContractUpdate) (*domain.TradeRecord, bool) {
	if !update.Settled() {
		return nil, false
	}

	e.mu.Lock()
	order := e.pending
	if order == nil || order.ContractID != update.ContractID {
		e.mu.Unlock()
		e.logger.Debug("Ignoring orphan settlement", zap.String("contract_id", update.ContractID))
		return nil, false
	}
	e.pending = nil
	e.inFlight = false
	e.mu.Unlock()

	record := &domain.TradeRecord{
		ID:          e.newID(),
		ContractID:  update.ContractID,
		Direction:   order.Direction,
		EntryPrice:  update.EntryTick,
		ExitPrice:   update.ExitTick,
		Stake:       update.BuyPrice,
		Payout:      update.Payout,
		Profit:      update.Profit,
		Result:      domain.ResultFromProfit(update.Profit),
		Duration:    update.TickCount,
		Symbol:      update.Underlying,
		AccountType: order.AccountType,
		Timestamp:   e.now(),
	}
	if record.EntryPrice == 0 {
		record.EntryPrice = order.EntryPrice
	}
	if record.Stake == 0 {
		record.Stake = order.Stake
	}
	if record.Payout == 0 {
		record.Payout = order.Payout
	}
	if record.Symbol == "" {
		record.Symbol = order.Symbol
	}
	return record, true
}

// Release drops the pending order when its settlement cannot be read, so
// trading resumes. It reports whether contractID was the pending contract.
func (e *TradeExecutor) Release(contractID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil || contractID == "" || e.pending.ContractID != contractID {
		return false
	}
	e.pending = nil
	e.inFlight = false
	return true
}

// Reset drops the guard and any pending order. A Place still running for
// the old attempt will not re-register its contract.
func (e *TradeExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	e.pending = nil
	e.attempt++
}

func (e *TradeExecutor) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

func (e *TradeExecutor) Pending() *domain.PendingOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	p := *e.pending
	return &p
}
