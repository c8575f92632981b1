package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/tick_trader/internal/domain"
	"github.com/vitos/tick_trader/internal/usecase"
)

func TestRiskManager_HaltsAfterConsecutiveLosses(t *testing.T) {
	rm := usecase.NewRiskManager(domain.DefaultRiskConfig(), 0.35)
	rm.Reset(1000, 1)

	assert.False(t, rm.RecordResult(-1).Halt)
	assert.False(t, rm.RecordResult(-1).Halt)
	v := rm.RecordResult(-1)
	assert.True(t, v.Halt)
	assert.Equal(t, usecase.HaltConsecutiveLosses, v.Reason)
	assert.Equal(t, 3, rm.State().ConsecutiveLosses)
}

func TestRiskManager_WinResetsStreak(t *testing.T) {
	rm := usecase.NewRiskManager(domain.DefaultRiskConfig(), 0.35)
	rm.Reset(1000, 1)

	rm.RecordResult(-1)
	rm.RecordResult(-1)
	assert.False(t, rm.RecordResult(0.95).Halt)
	assert.Equal(t, 0, rm.State().ConsecutiveLosses)
	assert.False(t, rm.RecordResult(-1).Halt)
}

func TestRiskManager_NoAutoPause(t *testing.T) {
	cfg := domain.DefaultRiskConfig()
	cfg.AutoPauseOnLossLimit = false
	rm := usecase.NewRiskManager(cfg, 0.35)
	rm.Reset(1000, 1)

	for i := 0; i < 5; i++ {
		assert.False(t, rm.RecordResult(-1).Halt)
	}
}

func TestRiskManager_ZeroProfitCountsAsLoss(t *testing.T) {
	rm := usecase.NewRiskManager(domain.DefaultRiskConfig(), 0.35)
	rm.Reset(1000, 1)

	rm.RecordResult(0)
	assert.Equal(t, 1, rm.State().ConsecutiveLosses)
	assert.Equal(t, 0.0, rm.WinRate())
}

func TestRiskManager_StakeReduction(t *testing.T) {
	rm := usecase.NewRiskManager(&domain.RiskConfig{
		ReduceStakeAfterLoss:  true,
		StakeReductionPercent: 30,
	}, 0.35)
	rm.Reset(1000, 1)

	rm.RecordResult(-1)
	assert.Equal(t, 1.0, rm.Stake(), "first loss keeps the stake")
	rm.RecordResult(-1)
	assert.Equal(t, 0.7, rm.Stake())
	rm.RecordResult(-1)
	assert.Equal(t, 0.49, rm.Stake())
	rm.RecordResult(-1)
	assert.Equal(t, 0.35, rm.Stake(), "floored at min stake")

	rm.RecordResult(1)
	assert.Equal(t, 0.35, rm.Stake(), "wins do not restore the stake")
}

func TestRiskManager_Drawdown(t *testing.T) {
	cfg := &domain.RiskConfig{DailyLossLimitPercent: 10}
	rm := usecase.NewRiskManager(cfg, 0.35)
	rm.Reset(100, 5)

	assert.False(t, rm.RecordResult(-5).Halt)
	v := rm.RecordResult(-5)
	assert.True(t, v.Halt)
	assert.Equal(t, usecase.HaltDrawdown, v.Reason)
	assert.Equal(t, -10.0, rm.SessionProfit())
}

func TestRiskManager_BalanceDrawdown(t *testing.T) {
	rm := usecase.NewRiskManager(&domain.RiskConfig{DailyLossLimitPercent: 10}, 0.35)
	rm.Reset(200, 1)

	assert.False(t, rm.CheckBalance(190).Halt)
	assert.False(t, rm.CheckBalance(250).Halt)
	v := rm.CheckBalance(180)
	assert.True(t, v.Halt)
	assert.Equal(t, usecase.HaltDrawdown, v.Reason)
}

func TestRiskManager_WinRateAdvisoryOncePerCrossing(t *testing.T) {
	cfg := &domain.RiskConfig{MinWinRateThreshold: 60, MinTradesBeforeEvaluation: 4}
	rm := usecase.NewRiskManager(cfg, 0.35)
	rm.Reset(1000, 1)

	var advisories []string
	record := func(p float64) {
		v := rm.RecordResult(p)
		assert.False(t, v.Halt)
		if v.Advisory != "" {
			advisories = append(advisories, v.Advisory)
		}
	}

	record(1)
	record(-1)
	record(-1)
	assert.Empty(t, advisories, "not evaluated before enough trades")

	record(-1) // 25%
	record(-1) // 20%
	assert.Len(t, advisories, 1)

	for i := 0; i < 7; i++ {
		record(1) // climbs to 66%
	}
	record(-1)
	record(-1)
	record(-1) // drops under 60% again
	assert.Len(t, advisories, 2)
}

func TestRiskManager_NilConfigNeverHalts(t *testing.T) {
	rm := usecase.NewRiskManager(nil, 0.35)
	rm.Reset(10, 1)

	for i := 0; i < 20; i++ {
		assert.False(t, rm.RecordResult(-1).Halt)
	}
	assert.False(t, rm.CheckBalance(0).Halt)
	assert.Equal(t, 1.0, rm.Stake())
}
