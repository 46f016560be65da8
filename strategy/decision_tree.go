package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/evdnx/protrader/config"
	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/metrics"
	"github.com/evdnx/protrader/risk"
	"github.com/evdnx/protrader/types"
)

// ErrInvalidRequest is returned when a signal request lacks a required
// argument.
var ErrInvalidRequest = errors.New("invalid signal request")

const defaultTimeframe = "1D"

// Request carries the inputs of one evaluation.
type Request struct {
	Symbol       string
	Timeframe    string // defaults to 1D
	Timestamp    int64  // seconds since epoch, defaults to now
	Price        float64
	Indicators   types.Snapshot
	TotalCapital float64
}

func (r Request) validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if r.Price <= 0 || math.IsNaN(r.Price) || math.IsInf(r.Price, 0) {
		return fmt.Errorf("%w: price %v must be a positive number", ErrInvalidRequest, r.Price)
	}
	if r.TotalCapital <= 0 || math.IsNaN(r.TotalCapital) || math.IsInf(r.TotalCapital, 0) {
		return fmt.Errorf("%w: total capital %v must be a positive number", ErrInvalidRequest, r.TotalCapital)
	}
	return nil
}

// DecisionTree runs a RuleSet over an indicator snapshot, aggregates the
// layer scores into a weighted confidence and attaches a risk plan. It is
// immutable once built and safe for concurrent use.
type DecisionTree struct {
	rules   RuleSet
	weights config.Weights
	risk    *risk.Manager
	log     logger.Logger
	now     func() time.Time
}

// NewDecisionTree validates the weights and wires the collaborators.
func NewDecisionTree(rules RuleSet, weights config.Weights, rm *risk.Manager, log logger.Logger) (*DecisionTree, error) {
	if rules == nil {
		return nil, errors.New("decision tree requires a rule set")
	}
	if rm == nil {
		return nil, errors.New("decision tree requires a risk manager")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DecisionTree{rules: rules, weights: weights, risk: rm, log: log, now: time.Now}, nil
}

// Name is the name of the underlying rule set.
func (d *DecisionTree) Name() string { return d.rules.Name() }

// Weights returns the layer weights in use.
func (d *DecisionTree) Weights() config.Weights { return d.weights }

// RiskManager returns the risk calculator attached to the tree.
func (d *DecisionTree) RiskManager() *risk.Manager { return d.risk }

// WithWeights returns a copy of the tree using w. The receiver is left
// untouched; invalid weights are rejected.
func (d *DecisionTree) WithWeights(w config.Weights) (*DecisionTree, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	c := *d
	c.weights = w
	return &c, nil
}

// WithClock returns a copy of the tree that stamps signals using now.
func (d *DecisionTree) WithClock(now func() time.Time) *DecisionTree {
	c := *d
	c.now = now
	return &c
}

// CalculateConfidence is the weighted sum of the layer scores rounded to
// two decimals.
func (d *DecisionTree) CalculateConfidence(trend, momentum, volume, entry float64) float64 {
	c := trend*d.weights.Trend +
		momentum*d.weights.Momentum +
		volume*d.weights.Volume +
		entry*d.weights.Entry
	return risk.Round2(clampScore(c))
}

// GenerateSignal evaluates the request and returns the assembled signal.
// A signal is always produced for a valid request; a failing risk plan is
// attached and flagged rather than rejected.
func (d *DecisionTree) GenerateSignal(req Request) (*types.Signal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	ind := req.Indicators
	if ind == nil {
		ind = types.Snapshot{}
	}

	layers := []struct {
		name      string
		condition string
		result    types.LayerResult
	}{
		{types.LayerTrend, types.ConditionTrendFavorable, d.rules.EvaluateTrend(ind)},
		{types.LayerMomentum, types.ConditionMomentumStrong, d.rules.EvaluateMomentum(ind)},
		{types.LayerVolume, types.ConditionVolumeConfirmed, d.rules.EvaluateVolume(ind)},
		{types.LayerEntry, types.ConditionEntryTimingGood, d.rules.EvaluateEntry(ind)},
	}

	reasoning := make(map[string]types.LayerReasoning, len(layers))
	conditions := make([]string, 0, len(layers))
	for i := range layers {
		layers[i].result.Score = clampScore(layers[i].result.Score)
		l := layers[i]
		reasoning[l.name] = types.LayerReasoning{
			LayerResult: l.result,
			Inputs:      collectInputs(ind, layerInputs[l.name]),
		}
		if l.result.Passed {
			conditions = append(conditions, l.condition)
		}
	}

	confidence := d.CalculateConfidence(
		layers[0].result.Score,
		layers[1].result.Score,
		layers[2].result.Score,
		layers[3].result.Score,
	)
	signalType := d.rules.DetermineSignalType(confidence)
	plan := d.risk.CalculateAll(req.Price, ind, req.TotalCapital, confidence)

	now := d.now()
	ts := req.Timestamp
	if ts == 0 {
		ts = now.Unix()
	}
	tf := req.Timeframe
	if tf == "" {
		tf = defaultTimeframe
	}

	sig := &types.Signal{
		Symbol:          req.Symbol,
		Timeframe:       tf,
		Timestamp:       ts,
		Type:            signalType,
		Price:           req.Price,
		Confidence:      confidence,
		Strategy:        d.rules.Name(),
		Reasoning:       reasoning,
		ConditionsMet:   conditions,
		StopLoss:        plan.StopLoss,
		TakeProfit:      plan.TakeProfit,
		PositionSizePct: plan.PositionSizePct,
		RiskRewardRatio: plan.RiskRewardRatio,
		Quantity:        plan.Quantity,
		RiskValid:       plan.Valid,
		RiskNote:        plan.ValidationReason,
		CreatedAt:       now.Unix(),
	}

	metrics.SignalsGenerated.WithLabelValues(sig.Strategy, string(sig.Type)).Inc()
	if !plan.Valid {
		metrics.RiskPlansInvalid.WithLabelValues(sig.Strategy).Inc()
		d.log.Warn("risk_plan_invalid",
			logger.String("symbol", sig.Symbol),
			logger.String("reason", plan.ValidationReason),
			logger.Float64("stop_loss", plan.StopLoss),
			logger.Float64("take_profit", plan.TakeProfit),
		)
	}
	d.log.Info("signal_generated",
		logger.String("symbol", sig.Symbol),
		logger.String("signal_type", string(sig.Type)),
		logger.Float64("confidence", sig.Confidence),
		logger.Float64("price", sig.Price),
		logger.Int("conditions_met", len(conditions)),
	)
	return sig, nil
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
