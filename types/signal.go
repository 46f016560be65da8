package types

import (
	"encoding/json"
	"fmt"
)

// SignalType is the discrete recommendation tier.
type SignalType string

const (
	StrongBuy  SignalType = "STRONG_BUY"
	WeakBuy    SignalType = "WEAK_BUY"
	Watch      SignalType = "WATCH"
	NoAction   SignalType = "NO_ACTION"
	SellSignal SignalType = "SELL"
	StrongSell SignalType = "STRONG_SELL"
)

// Layer names used as reasoning keys.
const (
	LayerTrend    = "trend"
	LayerMomentum = "momentum"
	LayerVolume   = "volume"
	LayerEntry    = "entry"
)

// Condition labels recorded when a layer passes.
const (
	ConditionTrendFavorable  = "trend_favorable"
	ConditionMomentumStrong  = "momentum_strong"
	ConditionVolumeConfirmed = "volume_confirmed"
	ConditionEntryTimingGood = "entry_timing_good"
)

// Metadata keys written by the hybrid strategy.
const (
	MetaLearningEnabled      = "learning_enabled"
	MetaOriginalConfidence   = "original_confidence"
	MetaConfidenceAdjustment = "confidence_adjustment"
)

// LayerReasoning is the reasoning trace entry of one layer: its result plus
// the indicator values that justified it.
type LayerReasoning struct {
	LayerResult
	Inputs map[string]any `json:"inputs,omitempty"`
}

// Signal is the output of one evaluation. It is built once by the decision
// tree, its Confidence and Metadata may be rewritten once by the hybrid
// strategy, and it is read-only afterwards.
type Signal struct {
	Symbol          string                    `json:"symbol"`
	Timeframe       string                    `json:"timeframe"`
	Timestamp       int64                     `json:"timestamp"`
	Type            SignalType                `json:"signal_type"`
	Price           float64                   `json:"price"`
	Confidence      float64                   `json:"confidence_score"`
	Strategy        string                    `json:"strategy_name"`
	Reasoning       map[string]LayerReasoning `json:"reasoning"`
	ConditionsMet   []string                  `json:"conditions_met"`
	StopLoss        float64                   `json:"stop_loss"`
	TakeProfit      float64                   `json:"take_profit"`
	PositionSizePct float64                   `json:"position_size_pct"`
	RiskRewardRatio float64                   `json:"risk_reward_ratio"`
	Quantity        int64                     `json:"quantity"`
	RiskValid       bool                      `json:"risk_valid"`
	RiskNote        string                    `json:"risk_note"`
	Metadata        map[string]any            `json:"metadata,omitempty"`
	CreatedAt       int64                     `json:"created_at"`
}

// IsBuy reports whether the signal recommends buying.
func (s *Signal) IsBuy() bool {
	return s.Type == StrongBuy || s.Type == WeakBuy
}

// IsSell reports whether the signal recommends selling.
func (s *Signal) IsSell() bool {
	return s.Type == SellSignal || s.Type == StrongSell
}

// IsActionable reports whether the signal requires any follow-up.
func (s *Signal) IsActionable() bool {
	return s.Type != NoAction
}

// PotentialProfitPct is the distance to the take-profit in percent of price.
func (s *Signal) PotentialProfitPct() float64 {
	if s.Price == 0 {
		return 0
	}
	return (s.TakeProfit - s.Price) / s.Price * 100
}

// PotentialLossPct is the distance to the stop-loss in percent of price.
func (s *Signal) PotentialLossPct() float64 {
	if s.Price == 0 {
		return 0
	}
	return (s.Price - s.StopLoss) / s.Price * 100
}

// Reason returns the human readable justification of a layer ("N/A" when
// the layer is absent).
func (s *Signal) Reason(layer string) string {
	if r, ok := s.Reasoning[layer]; ok && r.Reason != "" {
		return r.Reason
	}
	return "N/A"
}

func (s *Signal) String() string {
	return fmt.Sprintf("Signal(%s, %s, confidence=%.1f%%, price=%.2f)",
		s.Symbol, s.Type, s.Confidence, s.Price)
}

// SignalRecord is the flat form handed to persistence.
type SignalRecord struct {
	Symbol          string
	Timeframe       string
	Timestamp       int64
	SignalType      string
	Price           float64
	Confidence      float64
	Strategy        string
	Reasoning       string // JSON
	ConditionsMet   string // JSON
	StopLoss        float64
	TakeProfit      float64
	PositionSizePct float64
	RiskRewardRatio float64
	Metadata        string // JSON, empty when none
	CreatedAt       int64
}

// Record flattens the signal for persistence, serializing the nested
// reasoning, conditions and metadata as JSON.
func (s *Signal) Record() (SignalRecord, error) {
	reasoning, err := json.Marshal(s.Reasoning)
	if err != nil {
		return SignalRecord{}, fmt.Errorf("marshal reasoning: %w", err)
	}
	conds := s.ConditionsMet
	if conds == nil {
		conds = []string{}
	}
	conditions, err := json.Marshal(conds)
	if err != nil {
		return SignalRecord{}, fmt.Errorf("marshal conditions: %w", err)
	}
	var meta string
	if len(s.Metadata) > 0 {
		raw, err := json.Marshal(s.Metadata)
		if err != nil {
			return SignalRecord{}, fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(raw)
	}
	return SignalRecord{
		Symbol:          s.Symbol,
		Timeframe:       s.Timeframe,
		Timestamp:       s.Timestamp,
		SignalType:      string(s.Type),
		Price:           s.Price,
		Confidence:      s.Confidence,
		Strategy:        s.Strategy,
		Reasoning:       string(reasoning),
		ConditionsMet:   string(conditions),
		StopLoss:        s.StopLoss,
		TakeProfit:      s.TakeProfit,
		PositionSizePct: s.PositionSizePct,
		RiskRewardRatio: s.RiskRewardRatio,
		Metadata:        meta,
		CreatedAt:       s.CreatedAt,
	}, nil
}
