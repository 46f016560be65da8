package strategy

import (
	"context"
	"errors"

	"github.com/evdnx/protrader/config"
	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/performance"
	"github.com/evdnx/protrader/types"
)

// HybridStrategy wraps the rule-based evaluator with the performance
// filter: it suppresses instruments with a poor record before evaluation
// and re-weights the confidence afterwards.
type HybridStrategy struct {
	tree     *DecisionTree
	filter   *performance.Filter
	learning bool
	log      logger.Logger
}

// NewHybridStrategy composes tree and filter. With learning disabled the
// filter may be nil and is never consulted.
func NewHybridStrategy(tree *DecisionTree, filter *performance.Filter, learning bool, log logger.Logger) (*HybridStrategy, error) {
	if tree == nil {
		return nil, errors.New("hybrid strategy requires a decision tree")
	}
	if learning && filter == nil {
		return nil, errors.New("learning enabled but no performance filter provided")
	}
	if log == nil {
		log = logger.Nop()
	}
	if !learning {
		filter = nil
	}
	return &HybridStrategy{tree: tree, filter: filter, learning: learning, log: log}, nil
}

// NewHybrid builds the full stack from configuration. Learning is only
// enabled when cfg asks for it and a history source is available.
func NewHybrid(cfg config.StrategyConfig, history performance.History, log logger.Logger) (*HybridStrategy, error) {
	tree, err := NewProTraderStrategy(cfg, log)
	if err != nil {
		return nil, err
	}
	learning := cfg.Learning.Enabled && history != nil
	var filter *performance.Filter
	if learning {
		filter, err = performance.NewFilter(history, cfg.Learning, log)
		if err != nil {
			return nil, err
		}
	}
	return NewHybridStrategy(tree, filter, learning, log)
}

// LearningEnabled reports whether the performance filter is active.
func (h *HybridStrategy) LearningEnabled() bool { return h.learning }

// GenerateSignal returns the adjusted signal, or nil (and no error) when
// the instrument is suppressed by its trading history.
func (h *HybridStrategy) GenerateSignal(ctx context.Context, req Request) (*types.Signal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if h.learning {
		if skip, reason := h.filter.ShouldSkip(ctx, req.Symbol); skip {
			h.log.Info("symbol_skipped",
				logger.String("symbol", req.Symbol),
				logger.String("reason", reason),
			)
			return nil, nil
		}
	}

	sig, err := h.tree.GenerateSignal(req)
	if err != nil || sig == nil {
		return nil, err
	}

	if sig.Metadata == nil {
		sig.Metadata = make(map[string]any)
	}
	if !h.learning {
		sig.Metadata[types.MetaLearningEnabled] = false
		return sig, nil
	}

	original := sig.Confidence
	adjusted, reason := h.filter.AdjustConfidence(ctx, req.Symbol, original)
	sig.Confidence = adjusted
	sig.Metadata[types.MetaLearningEnabled] = true
	sig.Metadata[types.MetaOriginalConfidence] = original
	sig.Metadata[types.MetaConfidenceAdjustment] = reason

	if adjusted != original {
		h.log.Info("confidence_adjusted",
			logger.String("symbol", req.Symbol),
			logger.Float64("original", original),
			logger.Float64("adjusted", adjusted),
		)
	}
	return sig, nil
}

// PerformanceSummary returns the closed-trade record of symbol, or nil
// when learning is disabled or there is no history.
func (h *HybridStrategy) PerformanceSummary(ctx context.Context, symbol string) *types.SymbolStats {
	if !h.learning {
		return nil
	}
	return h.filter.Stats(ctx, symbol)
}

// Rankings lists instruments by total profit; empty when learning is off.
func (h *HybridStrategy) Rankings(ctx context.Context) []types.SymbolStats {
	if !h.learning {
		return nil
	}
	return h.filter.Rankings(ctx)
}

// Info describes a strategy instance.
type Info struct {
	Name               string         `json:"strategy_name"`
	Type               string         `json:"strategy_type"`
	Weights            config.Weights `json:"weights"`
	LearningEnabled    bool           `json:"learning_enabled"`
	PerformanceFilter  bool           `json:"performance_filter"`
	MinTradesForFilter int            `json:"min_trades_for_filter,omitempty"`
	MinWinRate         float64        `json:"min_win_rate,omitempty"`
	CooldownDays       int            `json:"cooldown_days,omitempty"`
	Risk               RiskInfo       `json:"risk"`
}

// RiskInfo is the part of the risk configuration that shapes every plan.
type RiskInfo struct {
	StopLossPct        float64 `json:"stop_loss_pct"`
	TakeProfitPct      float64 `json:"take_profit_pct"`
	MinRiskReward      float64 `json:"min_risk_reward"`
	MaxPositionSizePct float64 `json:"max_position_size_pct"`
}

func (h *HybridStrategy) Info() Info {
	info := Info{
		Name:              h.tree.Name(),
		Type:              "Hybrid (Pro Trader + Learning)",
		Weights:           h.tree.Weights(),
		LearningEnabled:   h.learning,
		PerformanceFilter: h.filter != nil,
	}
	rc := h.tree.RiskManager().Config()
	info.Risk = RiskInfo{
		StopLossPct:        rc.StopLossPct,
		TakeProfitPct:      rc.TakeProfitPct,
		MinRiskReward:      rc.MinRiskReward,
		MaxPositionSizePct: rc.MaxPositionSizePct,
	}
	if h.learning {
		lc := h.filter.Config()
		info.MinTradesForFilter = lc.MinTradesForFilter
		info.MinWinRate = lc.MinWinRate
		info.CooldownDays = lc.CooldownDays
	}
	return info
}
