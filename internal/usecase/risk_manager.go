package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vitos/tick_trader/internal/domain"
)

type HaltReason string

const (
	HaltConsecutiveLosses   HaltReason = "consecutive_losses"
	HaltDrawdown            HaltReason = "drawdown"
	HaltInsufficientBalance HaltReason = "insufficient_balance"
)

// RiskVerdict is the outcome of feeding a settlement or balance into the
// risk manager. Advisory never stops trading.
type RiskVerdict struct {
	Halt     bool
	Reason   HaltReason
	Message  string
	Advisory string
}

// RiskManager tracks loss streaks, session drawdown and the win-rate health
// check. A nil config disables every limit but still counts trades.
type RiskManager struct {
	cfg      *domain.RiskConfig
	minStake decimal.Decimal

	state   domain.RiskState
	profit  decimal.Decimal
	trades  int
	wins    int
	advised bool
}

func NewRiskManager(cfg *domain.RiskConfig, minStake float64) *RiskManager {
	return &RiskManager{
		cfg:      cfg,
		minStake: decimal.NewFromFloat(minStake),
	}
}

// Reset starts a new session.
func (r *RiskManager) Reset(startBalance, stake float64) {
	r.state = domain.RiskState{
		SessionStartBalance: startBalance,
		CurrentStake:        stake,
	}
	r.profit = decimal.Zero
	r.trades = 0
	r.wins = 0
	r.advised = false
}

func (r *RiskManager) RecordResult(profit float64) RiskVerdict {
	r.trades++
	r.profit = r.profit.Add(decimal.NewFromFloat(profit))

	if domain.ResultFromProfit(profit) == domain.ResultWin {
		r.wins++
		r.state.ConsecutiveLosses = 0
	} else {
		r.state.ConsecutiveLosses++
		r.reduceStake()
	}

	if r.cfg == nil {
		return RiskVerdict{}
	}

	var verdict RiskVerdict
	verdict.Advisory = r.winRateAdvisory()

	if r.cfg.AutoPauseOnLossLimit && r.cfg.MaxConsecutiveLosses > 0 &&
		r.state.ConsecutiveLosses >= r.cfg.MaxConsecutiveLosses {
		verdict.Halt = true
		verdict.Reason = HaltConsecutiveLosses
		verdict.Message = fmt.Sprintf("%d consecutive losses", r.state.ConsecutiveLosses)
		return verdict
	}

	if dd := r.sessionDrawdown(); r.drawdownBreached(dd) {
		verdict.Halt = true
		verdict.Reason = HaltDrawdown
		verdict.Message = fmt.Sprintf("session drawdown %.2f%% reached limit %.2f%%", dd, r.cfg.DailyLossLimitPercent)
	}
	return verdict
}

// CheckBalance applies the drawdown limit to the account equity, the pushed
// balance plus any stake still at risk in an open contract.
func (r *RiskManager) CheckBalance(balance float64) RiskVerdict {
	if r.cfg == nil || r.state.SessionStartBalance <= 0 {
		return RiskVerdict{}
	}
	start := decimal.NewFromFloat(r.state.SessionStartBalance)
	dd := start.Sub(decimal.NewFromFloat(balance)).Div(start).Mul(decimal.NewFromInt(100)).InexactFloat64()
	if !r.drawdownBreached(dd) {
		return RiskVerdict{}
	}
	return RiskVerdict{
		Halt:    true,
		Reason:  HaltDrawdown,
		Message: fmt.Sprintf("balance drawdown %.2f%% reached limit %.2f%%", dd, r.cfg.DailyLossLimitPercent),
	}
}

func (r *RiskManager) drawdownBreached(dd float64) bool {
	return r.cfg.DailyLossLimitPercent > 0 && dd >= r.cfg.DailyLossLimitPercent
}

func (r *RiskManager) sessionDrawdown() float64 {
	if r.state.SessionStartBalance <= 0 || !r.profit.IsNegative() {
		return 0
	}
	start := decimal.NewFromFloat(r.state.SessionStartBalance)
	return r.profit.Neg().Div(start).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// reduceStake shrinks the stake from the second loss in a row onwards,
// rounded to cents and never below the floor.
func (r *RiskManager) reduceStake() {
	if r.cfg == nil || !r.cfg.ReduceStakeAfterLoss || r.state.ConsecutiveLosses < 2 {
		return
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(r.cfg.StakeReductionPercent).Div(decimal.NewFromInt(100)))
	next := decimal.NewFromFloat(r.state.CurrentStake).Mul(factor).Round(2)
	if next.LessThan(r.minStake) {
		next = r.minStake
	}
	r.state.CurrentStake = next.InexactFloat64()
}

// winRateAdvisory fires once each time the win rate drops under the
// threshold after enough trades.
func (r *RiskManager) winRateAdvisory() string {
	if r.cfg.MinTradesBeforeEvaluation <= 0 || r.trades < r.cfg.MinTradesBeforeEvaluation {
		return ""
	}
	rate := r.WinRate()
	if rate >= r.cfg.MinWinRateThreshold {
		r.advised = false
		return ""
	}
	if r.advised {
		return ""
	}
	r.advised = true
	return fmt.Sprintf("win rate %.1f%% is below %.1f%% after %d trades", rate, r.cfg.MinWinRateThreshold, r.trades)
}

func (r *RiskManager) WinRate() float64 {
	if r.trades == 0 {
		return 0
	}
	return float64(r.wins) / float64(r.trades) * 100
}

func (r *RiskManager) State() domain.RiskState { return r.state }

func (r *RiskManager) Stake() float64 { return r.state.CurrentStake }

func (r *RiskManager) SessionProfit() float64 { return r.profit.Round(2).InexactFloat64() }

func (r *RiskManager) Config() *domain.RiskConfig { return r.cfg }
