package domain

type StrategyKind string

const (
	StrategyRiseFall      StrategyKind = "rise_fall"
	StrategyScalping      StrategyKind = "scalping"
	StrategyKyrosTrend    StrategyKind = "kyros_trend"
	StrategyKyrosScalper  StrategyKind = "kyros_scalper"
	StrategyKyrosReversal StrategyKind = "kyros_reversal"
)

var StrategyKinds = []StrategyKind{
	StrategyRiseFall,
	StrategyScalping,
	StrategyKyrosTrend,
	StrategyKyrosScalper,
	StrategyKyrosReversal,
}

func (k StrategyKind) Valid() bool {
	for _, known := range StrategyKinds {
		if k == known {
			return true
		}
	}
	return false
}

type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityMedium VolatilityLevel = "medium"
	VolatilityHigh   VolatilityLevel = "high"
)

// RiskConfig holds the limits shared by the kyros strategies.
type RiskConfig struct {
	MaxConsecutiveLosses      int     `json:"max_consecutive_losses"`
	DailyLossLimitPercent     float64 `json:"daily_loss_limit_percent"`
	MinWinRateThreshold       float64 `json:"min_win_rate_threshold"`
	AutoPauseOnLossLimit      bool    `json:"auto_pause_on_loss_limit"`
	ReduceStakeAfterLoss      bool    `json:"reduce_stake_after_loss"`
	StakeReductionPercent     float64 `json:"stake_reduction_percent"`
	MinTradesBeforeEvaluation int     `json:"min_trades_before_evaluation"`
}

type ScalperConfig struct {
	MomentumThreshold        float64         `json:"momentum_threshold"`
	TickConfirmationCount    int             `json:"tick_confirmation_count"`
	VolatilityFilter         VolatilityLevel `json:"volatility_filter"`
	ConsecutiveTicksRequired int             `json:"consecutive_ticks_required"`
	MinVolatilityPercent     float64         `json:"min_volatility_percent"`
	MaxVolatilityPercent     float64         `json:"max_volatility_percent"`
}

type TrendConfig struct {
	TrendConfirmationPeriod  int     `json:"trend_confirmation_period"`
	MinTrendStrength         float64 `json:"min_trend_strength"`
	EMAWindow                int     `json:"ema_window"`
	TrendConfidenceThreshold float64 `json:"trend_confidence_threshold"`
}

type ReversalConfig struct {
	OverboughtThreshold    float64 `json:"overbought_threshold"`
	OversoldThreshold      float64 `json:"oversold_threshold"`
	ReversalConfirmation   bool    `json:"reversal_confirmation"`
	MultiTimeframeAnalysis bool    `json:"multi_timeframe_analysis"`
	ShortWindow            int     `json:"short_window"`
	MediumWindow           int     `json:"medium_window"`
	LongWindow             int     `json:"long_window"`
}

// StrategyConfig is the snapshot taken at bot start. Only the section matching
// Kind is populated; the basic strategies carry no risk limits.
type StrategyConfig struct {
	Kind     StrategyKind    `json:"kind"`
	Risk     *RiskConfig     `json:"risk,omitempty"`
	Scalper  *ScalperConfig  `json:"scalper,omitempty"`
	Trend    *TrendConfig    `json:"trend,omitempty"`
	Reversal *ReversalConfig `json:"reversal,omitempty"`
}

func DefaultRiskConfig() *RiskConfig {
	return &RiskConfig{
		MaxConsecutiveLosses:      3,
		DailyLossLimitPercent:     10,
		MinWinRateThreshold:       60,
		AutoPauseOnLossLimit:      true,
		ReduceStakeAfterLoss:      true,
		StakeReductionPercent:     30,
		MinTradesBeforeEvaluation: 10,
	}
}

// DefaultStrategyConfig returns a fresh copy of the defaults for kind.
func DefaultStrategyConfig(kind StrategyKind) StrategyConfig {
	cfg := StrategyConfig{Kind: kind}
	switch kind {
	case StrategyKyrosScalper:
		cfg.Risk = DefaultRiskConfig()
		cfg.Scalper = &ScalperConfig{
			MomentumThreshold:        0.0002,
			TickConfirmationCount:    3,
			VolatilityFilter:         VolatilityMedium,
			ConsecutiveTicksRequired: 3,
			MinVolatilityPercent:     0.0001,
			MaxVolatilityPercent:     0.01,
		}
	case StrategyKyrosTrend:
		cfg.Risk = DefaultRiskConfig()
		cfg.Trend = &TrendConfig{
			TrendConfirmationPeriod:  15,
			MinTrendStrength:         0.0003,
			EMAWindow:                15,
			TrendConfidenceThreshold: 0.7,
		}
	case StrategyKyrosReversal:
		cfg.Risk = DefaultRiskConfig()
		cfg.Reversal = &ReversalConfig{
			OverboughtThreshold:    0.08,
			OversoldThreshold:      0.08,
			ReversalConfirmation:   true,
			MultiTimeframeAnalysis: true,
			ShortWindow:            3,
			MediumWindow:           7,
			LongWindow:             15,
		}
	}
	return cfg
}
