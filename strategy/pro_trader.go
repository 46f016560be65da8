package strategy

import (
	"errors"

	"github.com/evdnx/protrader/config"
	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/risk"
	"github.com/evdnx/protrader/types"
)

// ProTrader is the trend-following rule set:
//
//	trend    – only buy in an uptrend
//	momentum – MACD direction plus RSI zone
//	volume   – money flow confirmation
//	entry    – Bollinger Band position, lower is better
//
// Unknown labels score as their neutral value.
type ProTrader struct {
	name string
	th   config.Thresholds
}

// NewProTrader validates the thresholds and returns the rule set.
func NewProTrader(name string, th config.Thresholds) (*ProTrader, error) {
	if name == "" {
		return nil, errors.New("rule set name is required")
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &ProTrader{name: name, th: th}, nil
}

// NewProTraderStrategy builds the complete rule-based evaluator from cfg.
func NewProTraderStrategy(cfg config.StrategyConfig, log logger.Logger) (*DecisionTree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rules, err := NewProTrader(cfg.Name, cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	rm, err := risk.NewManager(cfg.Risk)
	if err != nil {
		return nil, err
	}
	return NewDecisionTree(rules, cfg.Weights, rm, log)
}

func (p *ProTrader) Name() string { return p.name }

// Thresholds returns the cutoffs in use.
func (p *ProTrader) Thresholds() config.Thresholds { return p.th }

func (p *ProTrader) EvaluateTrend(ind types.Snapshot) types.LayerResult {
	switch ind.Label(types.KeyTrendDirection, types.TrendSideways) {
	case types.TrendUp:
		return types.LayerResult{Score: 100, Passed: true, Reason: "Strong uptrend confirmed"}
	case types.TrendDown:
		return types.LayerResult{Score: 0, Passed: false, Reason: "Downtrend - avoid buying"}
	default:
		return types.LayerResult{Score: 50, Passed: false, Reason: "Sideways trend - no clear direction"}
	}
}

func (p *ProTrader) EvaluateMomentum(ind types.Snapshot) types.LayerResult {
	macd := ind.Label(types.KeyMACDTrend, types.MACDNeutral)
	rsiLabel := p.rsiLabel(ind)
	rsi := ind.Float(types.KeyRSI, 50)

	var macdScore float64
	switch macd {
	case types.MACDBullish:
		macdScore = 50
	case types.MACDBearish:
		macdScore = 0
	default:
		macd = types.MACDNeutral
		macdScore = 30
	}

	var rsiScore float64
	var reason string
	switch rsiLabel {
	case types.RSIOverbought:
		rsiScore, reason = 20, "RSI overbought - risky entry"
	case types.RSIOversold:
		rsiScore, reason = 60, "RSI oversold - potential reversal"
	default:
		rsiLabel = types.RSINeutral
		if rsi >= p.th.RSISweetLow && rsi <= p.th.RSISweetHigh {
			rsiScore, reason = 50, "RSI in sweet spot"
		} else {
			rsiScore, reason = 40, "RSI neutral"
		}
	}

	switch {
	case macd == types.MACDBullish && rsiLabel == types.RSINeutral:
		reason = "Strong momentum - MACD bullish, RSI neutral"
	case macd == types.MACDBearish:
		reason = "Weak momentum - MACD bearish"
	}

	score := macdScore + rsiScore
	if score > 100 {
		score = 100
	}
	return types.LayerResult{
		Score:  score,
		Passed: macd == types.MACDBullish && rsiLabel != types.RSIOverbought,
		Reason: reason,
	}
}

func (p *ProTrader) EvaluateVolume(ind types.Snapshot) types.LayerResult {
	switch p.volumeLabel(ind) {
	case types.VolumeHigh:
		reason := "High volume confirms buying interest"
		if ind.Bool(types.KeyVolumeSpike, false) {
			reason += " (volume spike detected)"
		}
		return types.LayerResult{Score: 100, Passed: true, Reason: reason}
	case types.VolumeLow:
		return types.LayerResult{Score: 30, Passed: false, Reason: "Low volume - weak confirmation"}
	default:
		return types.LayerResult{Score: 70, Passed: true, Reason: "Normal volume - adequate confirmation"}
	}
}

func (p *ProTrader) EvaluateEntry(ind types.Snapshot) types.LayerResult {
	pos := ind.Float(types.KeyBBPosition, 0.5)
	switch {
	case pos < p.th.BBNearLower:
		return types.LayerResult{Score: 100, Passed: true, Reason: "Excellent entry - near lower Bollinger Band"}
	case pos < p.th.BBMiddle:
		return types.LayerResult{Score: 80, Passed: true, Reason: "Good entry - below middle Bollinger Band"}
	case pos < p.th.BBNearUpper:
		return types.LayerResult{Score: 50, Passed: false, Reason: "Okay entry - around middle Bollinger Band"}
	case pos < p.th.BBUpperExtreme:
		return types.LayerResult{Score: 30, Passed: false, Reason: "Risky entry - above middle Bollinger Band"}
	default:
		return types.LayerResult{Score: 10, Passed: false, Reason: "Very risky - near upper Bollinger Band"}
	}
}

func (p *ProTrader) DetermineSignalType(confidence float64) types.SignalType {
	switch {
	case confidence >= p.th.StrongBuy:
		return types.StrongBuy
	case confidence >= p.th.WeakBuy:
		return types.WeakBuy
	case confidence >= p.th.Watch:
		return types.Watch
	default:
		return types.NoAction
	}
}

// rsiLabel prefers the supplied label and falls back to classifying the
// raw RSI value.
func (p *ProTrader) rsiLabel(ind types.Snapshot) string {
	if ind.Has(types.KeyRSISignal) {
		return ind.Label(types.KeyRSISignal, types.RSINeutral)
	}
	rsi, ok := ind.Number(types.KeyRSI)
	switch {
	case !ok:
		return types.RSINeutral
	case rsi < p.th.RSIOversold:
		return types.RSIOversold
	case rsi > p.th.RSIOverbought:
		return types.RSIOverbought
	default:
		return types.RSINeutral
	}
}

// volumeLabel prefers the supplied label and falls back to classifying the
// volume ratio.
func (p *ProTrader) volumeLabel(ind types.Snapshot) string {
	if ind.Has(types.KeyVolumeSignal) {
		return ind.Label(types.KeyVolumeSignal, types.VolumeNormal)
	}
	ratio, ok := ind.Number(types.KeyVolumeRatio)
	switch {
	case !ok:
		return types.VolumeNormal
	case ratio >= p.th.VolumeHigh:
		return types.VolumeHigh
	case ratio <= p.th.VolumeLow:
		return types.VolumeLow
	default:
		return types.VolumeNormal
	}
}
