package domain

import "time"

type TradeResult string

const (
	ResultWin  TradeResult = "win"
	ResultLoss TradeResult = "loss"
)

// ResultFromProfit maps a realized profit to a result. Zero profit is a loss.
func ResultFromProfit(profit float64) TradeResult {
	if profit > 0 {
		return ResultWin
	}
	return ResultLoss
}

// ProposalRequest asks for a priced quote on a contract.
type ProposalRequest struct {
	ContractType Direction
	Amount       float64
	Basis        string
	Currency     string
	Duration     int
	DurationUnit string
	Symbol       string
}

// Proposal is a price-locked quote that can be bought.
type Proposal struct {
	ID       string  `json:"id"`
	AskPrice float64 `json:"ask_price"`
	Payout   float64 `json:"payout"`
	Spot     float64 `json:"spot"`
	Longcode string  `json:"longcode"`
}

// Contract is the receipt of a successful buy.
type Contract struct {
	ContractID    string  `json:"contract_id"`
	TransactionID string  `json:"transaction_id"`
	BuyPrice      float64 `json:"buy_price"`
	Payout        float64 `json:"payout"`
	StartTime     int64   `json:"start_time"`
	Longcode      string  `json:"longcode"`
}

// ContractUpdate is a validated proposal_open_contract push.
type ContractUpdate struct {
	ContractID   string  `json:"contract_id"`
	ContractType string  `json:"contract_type"`
	Status       string  `json:"status"`
	IsSold       bool    `json:"is_sold"`
	BuyPrice     float64 `json:"buy_price"`
	SellPrice    float64 `json:"sell_price"`
	Payout       float64 `json:"payout"`
	Profit       float64 `json:"profit"`
	EntryTick    float64 `json:"entry_tick"`
	ExitTick     float64 `json:"exit_tick"`
	Underlying   string  `json:"underlying"`
	TickCount    int     `json:"tick_count"`
}

// Settled reports whether the update marks the end of the contract.
func (c ContractUpdate) Settled() bool {
	return c.IsSold || c.Status == "sold"
}

// PendingOrder is a bought contract waiting for settlement.
type PendingOrder struct {
	ContractID  string      `json:"contract_id"`
	Direction   Direction   `json:"direction"`
	EntryPrice  float64     `json:"entry_price"`
	Stake       float64     `json:"stake"`
	Payout      float64     `json:"payout"`
	Symbol      string      `json:"symbol"`
	AccountType AccountType `json:"account_type"`
	RequestedAt time.Time   `json:"requested_at"`
}

// TradeRecord is the immutable outcome of a settled contract.
type TradeRecord struct {
	ID          string      `json:"id"`
	ContractID  string      `json:"contract_id"`
	Direction   Direction   `json:"direction"`
	EntryPrice  float64     `json:"entry_price"`
	ExitPrice   float64     `json:"exit_price"`
	Stake       float64     `json:"stake"`
	Payout      float64     `json:"payout"`
	Profit      float64     `json:"profit"`
	Result      TradeResult `json:"result"`
	Duration    int         `json:"duration"`
	Symbol      string      `json:"symbol"`
	AccountType AccountType `json:"account_type"`
	Timestamp   time.Time   `json:"timestamp"`
}

// RiskState is reset at bot start and mutated only by settlement handling.
type RiskState struct {
	ConsecutiveLosses   int     `json:"consecutive_losses"`
	SessionStartBalance float64 `json:"session_start_balance"`
	CurrentStake        float64 `json:"current_stake"`
}
