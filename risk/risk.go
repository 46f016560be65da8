package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/evdnx/protrader/config"
	"github.com/evdnx/protrader/types"
)

// Manager converts a price, an indicator snapshot, capital and confidence
// into a risk plan. Every method is a pure function of its inputs.
type Manager struct {
	cfg config.RiskConfig
}

// NewManager validates cfg and returns a Manager bound to it.
func NewManager(cfg config.RiskConfig) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg}, nil
}

// Config returns a copy of the parameters in use.
func (m *Manager) Config() config.RiskConfig { return m.cfg }

// StopLoss returns the stop price: a percentage (or ATR) floor below price,
// pulled up to just under a support level lying within the support band.
func (m *Manager) StopLoss(price float64, ind types.Snapshot) float64 {
	var stop float64
	if atr, ok := ind.Level(types.KeyATR); m.cfg.UseATRStopLoss && ok {
		stop = price - atr*m.cfg.ATRMultiplier
	} else {
		stop = price * (1 - m.cfg.StopLossPct/100)
	}

	if support, ok := ind.Level(types.KeySupportLevel); ok && price > 0 {
		distance := (price - support) / price * 100
		if distance >= m.cfg.SupportMinPct && distance <= m.cfg.SupportMaxPct {
			stop = math.Max(stop, support*(1-m.cfg.SupportBufferPct/100))
		}
	}
	return round2(stop)
}

// TakeProfit returns the more conservative of a risk/reward target and a
// fixed-percentage target, capped just under a resistance level lying
// within the resistance band. targetRR <= 0 uses the configured default.
func (m *Manager) TakeProfit(price, stopLoss float64, ind types.Snapshot, targetRR float64) float64 {
	if targetRR <= 0 {
		targetRR = m.cfg.TargetRiskReward
	}
	rrTarget := price + (price-stopLoss)*targetRR
	fixedTarget := price * (1 + m.cfg.TakeProfitPct/100)
	target := math.Min(rrTarget, fixedTarget)

	if resistance, ok := ind.Level(types.KeyResistanceLevel); ok && price > 0 {
		distance := (resistance - price) / price * 100
		if distance >= m.cfg.ResistanceMinPct && distance <= m.cfg.ResistanceMaxPct {
			target = math.Min(target, resistance*(1-m.cfg.ResistanceBufferPct/100))
		}
	}
	return round2(target)
}

// RiskRewardRatio returns reward/risk, or 0 when the risk is not positive.
func (m *Manager) RiskRewardRatio(price, stopLoss, takeProfit float64) float64 {
	risk := price - stopLoss
	if risk <= 0 {
		return 0
	}
	return round2((takeProfit - price) / risk)
}

// PositionSize is the outcome of the sizing calculation.
type PositionSize struct {
	RawPct    float64 // risk-limited size before confidence scaling
	ScaledPct float64 // RawPct × confidence/100, before the cap
	Pct       float64 // final size in percent of capital
	Quantity  int64   // whole units affordable at Pct
}

// PositionSize sizes a position so that a stop-out loses at most
// maxRiskPct of capital, scales it by confidence and caps it at the
// configured maximum. The quantity is derived from the capped percentage.
// maxRiskPct <= 0 uses the configured default.
func (m *Manager) PositionSize(price, stopLoss, totalCapital, confidence, maxRiskPct float64) PositionSize {
	if maxRiskPct <= 0 {
		maxRiskPct = m.cfg.MaxRiskPerTradePct
	}
	riskPerUnit := price - stopLoss
	if riskPerUnit <= 0 || price <= 0 || totalCapital <= 0 {
		return PositionSize{}
	}

	riskCapital := totalCapital * maxRiskPct / 100
	qty := math.Floor(riskCapital / riskPerUnit)
	rawPct := qty * price * 100 / totalCapital

	confidence = math.Max(0, math.Min(100, confidence))
	scaledPct := rawPct * confidence / 100
	finalPct := math.Min(scaledPct, m.cfg.MaxPositionSizePct)

	finalQty := int64(math.Floor(totalCapital * finalPct / 100 / price))
	return PositionSize{
		RawPct:    rawPct,
		ScaledPct: scaledPct,
		Pct:       round2(finalPct),
		Quantity:  finalQty,
	}
}

// Validate returns whether the plan meets the risk rules, with the first
// violated rule as the reason.
func (m *Manager) Validate(price, stopLoss, takeProfit float64) (bool, string) {
	if stopLoss >= price {
		return false, "Stop-loss must be below current price"
	}
	if takeProfit <= price {
		return false, "Take-profit must be above current price"
	}
	rr := m.RiskRewardRatio(price, stopLoss, takeProfit)
	if rr < m.cfg.MinRiskReward {
		return false, fmt.Sprintf("Risk/Reward ratio %.2f below minimum %.2f", rr, m.cfg.MinRiskReward)
	}
	stopPct := (price - stopLoss) / price * 100
	if stopPct < m.cfg.MinStopDistancePct {
		return false, fmt.Sprintf("Stop-loss too tight (%.2f%%)", stopPct)
	}
	if stopPct > m.cfg.MaxStopDistancePct {
		return false, fmt.Sprintf("Stop-loss too wide (%.2f%%)", stopPct)
	}
	return true, "Valid"
}

// CalculateAll runs every calculation and bundles the result. An invalid
// plan is flagged, not rejected.
func (m *Manager) CalculateAll(price float64, ind types.Snapshot, totalCapital, confidence float64) types.RiskPlan {
	stop := m.StopLoss(price, ind)
	target := m.TakeProfit(price, stop, ind, 0)
	size := m.PositionSize(price, stop, totalCapital, confidence, 0)
	valid, reason := m.Validate(price, stop, target)

	plan := types.RiskPlan{
		StopLoss:         stop,
		TakeProfit:       target,
		RiskRewardRatio:  m.RiskRewardRatio(price, stop, target),
		PositionSizePct:  size.Pct,
		Quantity:         size.Quantity,
		Valid:            valid,
		ValidationReason: reason,
	}
	if price > 0 {
		plan.PotentialProfitPct = (target - price) / price * 100
		plan.PotentialLossPct = (price - stop) / price * 100
	}
	return plan
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Round2 is exported for callers that report figures at the same precision.
func Round2(v float64) float64 { return round2(v) }
