package config

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidWeights is wrapped by every layer-weight validation failure.
var ErrInvalidWeights = errors.New("invalid layer weights")

// weightTolerance is how far the weight sum may drift from 1.0.
const weightTolerance = 0.01

// Weights are the per-layer contributions to the confidence score.
type Weights struct {
	Trend    float64 `yaml:"trend" json:"trend"`
	Momentum float64 `yaml:"momentum" json:"momentum"`
	Volume   float64 `yaml:"volume" json:"volume"`
	Entry    float64 `yaml:"entry" json:"entry"`
}

// DefaultWeights returns 0.30/0.30/0.20/0.20.
func DefaultWeights() Weights {
	return Weights{Trend: 0.30, Momentum: 0.30, Volume: 0.20, Entry: 0.20}
}

// Sum returns the total of the four weights.
func (w Weights) Sum() float64 {
	return w.Trend + w.Momentum + w.Volume + w.Entry
}

// Validate rejects negative weights and sets that do not sum to 1.0.
// Weights are never renormalized.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"trend": w.Trend, "momentum": w.Momentum, "volume": w.Volume, "entry": w.Entry,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s weight (%f) must be a non-negative number", ErrInvalidWeights, name, v)
		}
	}
	if total := w.Sum(); math.Abs(total-1.0) > weightTolerance {
		return fmt.Errorf("%w: weights must sum to 1.0, got %.4f", ErrInvalidWeights, total)
	}
	return nil
}

// Thresholds holds the classification cutoffs and the indicator
// sub-thresholds used by the rule set.
type Thresholds struct {
	// Classification cutoffs on confidence (0‑100), strictly descending.
	StrongBuy float64 `yaml:"strong_buy"` // default 80
	WeakBuy   float64 `yaml:"weak_buy"`   // default 60
	Watch     float64 `yaml:"watch"`      // default 40

	RSIOversold   float64 `yaml:"rsi_oversold"`   // default 30
	RSIOverbought float64 `yaml:"rsi_overbought"` // default 70
	RSISweetLow   float64 `yaml:"rsi_sweet_low"`  // default 40
	RSISweetHigh  float64 `yaml:"rsi_sweet_high"` // default 60

	VolumeHigh float64 `yaml:"volume_high"` // ratio, default 1.5
	VolumeLow  float64 `yaml:"volume_low"`  // ratio, default 0.7

	// Bollinger position cutoffs (0 = lower band, 1 = upper band).
	BBNearLower    float64 `yaml:"bb_near_lower"`    // default 0.3
	BBMiddle       float64 `yaml:"bb_middle"`        // default 0.5
	BBNearUpper    float64 `yaml:"bb_near_upper"`    // default 0.7
	BBUpperExtreme float64 `yaml:"bb_upper_extreme"` // default 0.9
}

// DefaultThresholds returns the stock rule-set thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongBuy:      80,
		WeakBuy:        60,
		Watch:          40,
		RSIOversold:    30,
		RSIOverbought:  70,
		RSISweetLow:    40,
		RSISweetHigh:   60,
		VolumeHigh:     1.5,
		VolumeLow:      0.7,
		BBNearLower:    0.3,
		BBMiddle:       0.5,
		BBNearUpper:    0.7,
		BBUpperExtreme: 0.9,
	}
}

// Validate checks that every cutoff family stays strictly ordered.
func (t Thresholds) Validate() error {
	if !(t.StrongBuy <= 100 && t.StrongBuy > t.WeakBuy && t.WeakBuy > t.Watch && t.Watch >= 0) {
		return fmt.Errorf("classification thresholds must satisfy 100 >= strong_buy (%.2f) > weak_buy (%.2f) > watch (%.2f) >= 0",
			t.StrongBuy, t.WeakBuy, t.Watch)
	}
	if t.RSIOversold >= t.RSIOverbought {
		return fmt.Errorf("rsi_oversold (%.2f) must be below rsi_overbought (%.2f)", t.RSIOversold, t.RSIOverbought)
	}
	if t.RSISweetLow > t.RSISweetHigh {
		return fmt.Errorf("rsi sweet spot [%.2f, %.2f] is inverted", t.RSISweetLow, t.RSISweetHigh)
	}
	if t.VolumeLow <= 0 || t.VolumeLow >= t.VolumeHigh {
		return fmt.Errorf("volume_low (%.2f) must be >0 and below volume_high (%.2f)", t.VolumeLow, t.VolumeHigh)
	}
	if !(t.BBNearLower > 0 && t.BBNearLower < t.BBMiddle && t.BBMiddle < t.BBNearUpper &&
		t.BBNearUpper < t.BBUpperExtreme && t.BBUpperExtreme <= 1) {
		return errors.New("bollinger cutoffs must satisfy 0 < near_lower < middle < near_upper < upper_extreme <= 1")
	}
	return nil
}

// RiskConfig holds the risk-manager percentages. All percentages are in
// percent units (5 = 5 %).
type RiskConfig struct {
	StopLossPct        float64 `yaml:"stop_loss_pct"`          // default 5
	TakeProfitPct      float64 `yaml:"take_profit_pct"`        // default 10
	PositionSizePct    float64 `yaml:"position_size_pct"`      // default 5
	MinRiskReward      float64 `yaml:"min_risk_reward"`        // default 1.5
	MaxPositionSizePct float64 `yaml:"max_position_size_pct"`  // default 10
	MaxRiskPerTradePct float64 `yaml:"max_risk_per_trade_pct"` // default 2
	TargetRiskReward   float64 `yaml:"target_risk_reward"`     // default 2

	UseATRStopLoss bool    `yaml:"use_atr_stop_loss"`
	ATRMultiplier  float64 `yaml:"atr_multiplier"` // default 2

	// Support is considered when it lies within this band below price.
	SupportMinPct float64 `yaml:"support_min_pct"` // default 2
	SupportMaxPct float64 `yaml:"support_max_pct"` // default 8
	// Resistance is considered when it lies within this band above price.
	ResistanceMinPct float64 `yaml:"resistance_min_pct"` // default 5
	ResistanceMaxPct float64 `yaml:"resistance_max_pct"` // default 15
	// Stops and targets sit this far inside the level.
	SupportBufferPct    float64 `yaml:"support_buffer_pct"`    // default 0.5
	ResistanceBufferPct float64 `yaml:"resistance_buffer_pct"` // default 1

	// Validation band for the stop distance.
	MinStopDistancePct float64 `yaml:"min_stop_distance_pct"` // default 1
	MaxStopDistancePct float64 `yaml:"max_stop_distance_pct"` // default 15
}

// DefaultRisk returns the stock risk parameters.
func DefaultRisk() RiskConfig {
	return RiskConfig{
		StopLossPct:         5,
		TakeProfitPct:       10,
		PositionSizePct:     5,
		MinRiskReward:       1.5,
		MaxPositionSizePct:  10,
		MaxRiskPerTradePct:  2,
		TargetRiskReward:    2,
		ATRMultiplier:       2,
		SupportMinPct:       2,
		SupportMaxPct:       8,
		ResistanceMinPct:    5,
		ResistanceMaxPct:    15,
		SupportBufferPct:    0.5,
		ResistanceBufferPct: 1,
		MinStopDistancePct:  1,
		MaxStopDistancePct:  15,
	}
}

// Validate checks that all numeric fields are within sensible bounds.
func (r RiskConfig) Validate() error {
	if r.StopLossPct <= 0 || r.StopLossPct >= 100 {
		return fmt.Errorf("StopLossPct (%f) must be >0 and <100", r.StopLossPct)
	}
	if r.TakeProfitPct <= 0 {
		return fmt.Errorf("TakeProfitPct (%f) must be positive", r.TakeProfitPct)
	}
	if r.PositionSizePct < 0 || r.PositionSizePct > 100 {
		return fmt.Errorf("PositionSizePct (%f) must be between 0 and 100", r.PositionSizePct)
	}
	if r.MinRiskReward < 0 {
		return fmt.Errorf("MinRiskReward (%f) cannot be negative", r.MinRiskReward)
	}
	if r.MaxPositionSizePct <= 0 || r.MaxPositionSizePct > 100 {
		return fmt.Errorf("MaxPositionSizePct (%f) must be >0 and <=100", r.MaxPositionSizePct)
	}
	if r.MaxRiskPerTradePct <= 0 || r.MaxRiskPerTradePct > 50 {
		return fmt.Errorf("MaxRiskPerTradePct (%f) must be >0 and <=50", r.MaxRiskPerTradePct)
	}
	if r.TargetRiskReward <= 0 {
		return fmt.Errorf("TargetRiskReward (%f) must be positive", r.TargetRiskReward)
	}
	if r.UseATRStopLoss && r.ATRMultiplier <= 0 {
		return errors.New("ATRMultiplier must be positive when ATR stop-loss is enabled")
	}
	if r.SupportMinPct < 0 || r.SupportMinPct > r.SupportMaxPct {
		return fmt.Errorf("support band [%f, %f] is invalid", r.SupportMinPct, r.SupportMaxPct)
	}
	if r.ResistanceMinPct < 0 || r.ResistanceMinPct > r.ResistanceMaxPct {
		return fmt.Errorf("resistance band [%f, %f] is invalid", r.ResistanceMinPct, r.ResistanceMaxPct)
	}
	if r.SupportBufferPct < 0 || r.SupportBufferPct >= 100 || r.ResistanceBufferPct < 0 || r.ResistanceBufferPct >= 100 {
		return errors.New("level buffers must be between 0 and 100")
	}
	if r.MinStopDistancePct < 0 || r.MinStopDistancePct >= r.MaxStopDistancePct {
		return fmt.Errorf("stop distance band [%f, %f] is invalid", r.MinStopDistancePct, r.MaxStopDistancePct)
	}
	return nil
}

// LearningConfig tunes the historical-performance filter.
type LearningConfig struct {
	Enabled                      bool    `yaml:"enabled"`
	MinTradesForFilter           int     `yaml:"min_trades_for_filter"`           // default 5
	MinWinRate                   float64 `yaml:"min_win_rate"`                    // percent, default 40
	CooldownDays                 int     `yaml:"cooldown_days"`                   // default 7
	ConsecutiveLossesForCooldown int     `yaml:"consecutive_losses_for_cooldown"` // default 3
	// MinAvgProfitPct skips symbols whose lifetime average is below it.
	MinAvgProfitPct float64 `yaml:"min_avg_profit_pct"` // default -2
	// RecentWindow is the number of closed trades in the recency signal.
	RecentWindow int `yaml:"recent_window"` // default 5
	// RecentMinTrades is how many of them must exist for it to apply.
	RecentMinTrades int `yaml:"recent_min_trades"` // default 3
	// QueryTimeoutMs bounds every history lookup.
	QueryTimeoutMs int `yaml:"query_timeout_ms"` // default 2000
}

// DefaultLearning returns the stock learning parameters (enabled).
func DefaultLearning() LearningConfig {
	return LearningConfig{
		Enabled:                      true,
		MinTradesForFilter:           5,
		MinWinRate:                   40,
		CooldownDays:                 7,
		ConsecutiveLossesForCooldown: 3,
		MinAvgProfitPct:              -2,
		RecentWindow:                 5,
		RecentMinTrades:              3,
		QueryTimeoutMs:               2000,
	}
}

// Validate checks the learning parameters.
func (l LearningConfig) Validate() error {
	if l.MinTradesForFilter < 0 {
		return errors.New("MinTradesForFilter cannot be negative")
	}
	if l.MinWinRate < 0 || l.MinWinRate > 100 {
		return fmt.Errorf("MinWinRate (%f) must be between 0 and 100", l.MinWinRate)
	}
	if l.CooldownDays < 0 {
		return errors.New("CooldownDays cannot be negative")
	}
	if l.ConsecutiveLossesForCooldown <= 0 {
		return errors.New("ConsecutiveLossesForCooldown must be positive")
	}
	if l.RecentWindow <= 0 {
		return errors.New("RecentWindow must be positive")
	}
	if l.RecentMinTrades <= 0 || l.RecentMinTrades > l.RecentWindow {
		return fmt.Errorf("RecentMinTrades (%d) must be between 1 and RecentWindow (%d)", l.RecentMinTrades, l.RecentWindow)
	}
	if l.QueryTimeoutMs <= 0 {
		return errors.New("QueryTimeoutMs must be positive")
	}
	return nil
}

// StrategyConfig holds all tunable parameters for a strategy instance. It
// is built once and treated as read-only afterwards.
type StrategyConfig struct {
	Name       string         `yaml:"name"`
	Weights    Weights        `yaml:"weights"`
	Thresholds Thresholds     `yaml:"thresholds"`
	Risk       RiskConfig     `yaml:"risk"`
	Learning   LearningConfig `yaml:"learning"`
}

// DefaultStrategy returns the stock configuration.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		Name:       "Pro Trader - Trend Following",
		Weights:    DefaultWeights(),
		Thresholds: DefaultThresholds(),
		Risk:       DefaultRisk(),
		Learning:   DefaultLearning(),
	}
}

// Validate returns the first encountered error, allowing the caller to
// surface a clear configuration problem before any evaluation starts.
func (c *StrategyConfig) Validate() error {
	if c.Name == "" {
		return errors.New("strategy name is required")
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	return c.Learning.Validate()
}
