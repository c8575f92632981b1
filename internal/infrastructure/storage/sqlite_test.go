package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tick_trader/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Trades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		err := store.SaveTrade(ctx, &domain.TradeRecord{
			ID:          id,
			ContractID:  "c-" + id,
			Direction:   domain.DirectionPut,
			EntryPrice:  100,
			ExitPrice:   99.5,
			Stake:       1,
			Payout:      1.95,
			Profit:      float64(i) - 1,
			Result:      domain.ResultFromProfit(float64(i) - 1),
			Duration:    5,
			Symbol:      "R_100",
			AccountType: domain.AccountDemo,
			Timestamp:   ts,
		})
		require.NoError(t, err)
	}

	trades, err := store.ListTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "c", trades[0].ID)
	assert.Equal(t, "b", trades[1].ID)
	assert.Equal(t, domain.ResultWin, trades[0].Result)
	assert.Equal(t, domain.ResultLoss, trades[1].Result)
	assert.Equal(t, domain.DirectionPut, trades[0].Direction)
	assert.True(t, ts.Equal(trades[0].Timestamp))

	require.NoError(t, store.DeleteTrades(ctx))
	trades, err = store.ListTrades(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSQLiteStore_StrategySettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg, err := store.GetStrategyConfig(ctx, domain.StrategyKyrosTrend)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultStrategyConfig(domain.StrategyKyrosTrend), cfg)

	cfg.Trend.TrendConfirmationPeriod = 20
	cfg.Risk.MaxConsecutiveLosses = 5
	require.NoError(t, store.SaveStrategyConfig(ctx, cfg))

	got, err := store.GetStrategyConfig(ctx, domain.StrategyKyrosTrend)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Trend.TrendConfirmationPeriod)
	assert.Equal(t, 5, got.Risk.MaxConsecutiveLosses)
	assert.Equal(t, 0.7, got.Trend.TrendConfidenceThreshold)

	// overwrite
	cfg.Trend.TrendConfirmationPeriod = 25
	require.NoError(t, store.SaveStrategyConfig(ctx, cfg))
	got, err = store.GetStrategyConfig(ctx, domain.StrategyKyrosTrend)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Trend.TrendConfirmationPeriod)
}

func TestSQLiteStore_PartialOverridesMergeOntoDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO strategy_settings (kind, config, updated_at) VALUES (?, ?, ?)`,
		domain.StrategyKyrosScalper, `{"scalper":{"volatility_filter":"high"}}`, time.Now())
	require.NoError(t, err)

	got, err := store.GetStrategyConfig(ctx, domain.StrategyKyrosScalper)
	require.NoError(t, err)
	assert.Equal(t, domain.VolatilityHigh, got.Scalper.VolatilityFilter)
	assert.Equal(t, 3, got.Scalper.ConsecutiveTicksRequired)
	require.NotNil(t, got.Risk)
	assert.Equal(t, 3, got.Risk.MaxConsecutiveLosses)
}

func TestSQLiteStore_RejectsUnknownKind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetStrategyConfig(ctx, "martingale")
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
	assert.ErrorIs(t, store.SaveStrategyConfig(ctx, domain.StrategyConfig{Kind: "martingale"}), domain.ErrUnknownStrategy)
}
