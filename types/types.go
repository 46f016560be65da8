package types

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order is a paper order derived from a signal's risk plan.
type Order struct {
	Symbol   string
	Side     Side
	Qty      float64
	Price    float64
	SignalID int64
	// meta
	Comment string
}

// LayerResult is the outcome of scoring one evaluation layer.
type LayerResult struct {
	Score  float64 `json:"score"`  // 0‑100
	Passed bool    `json:"passed"`
	Reason string  `json:"reason"`
}

// RiskPlan bundles the stop/target/sizing figures computed for one evaluation.
// It is recomputed on every call and folded into a Signal.
type RiskPlan struct {
	StopLoss           float64 `json:"stop_loss"`
	TakeProfit         float64 `json:"take_profit"`
	RiskRewardRatio    float64 `json:"risk_reward_ratio"`
	PositionSizePct    float64 `json:"position_size_pct"`
	Quantity           int64   `json:"quantity"`
	Valid              bool    `json:"is_valid"`
	ValidationReason   string  `json:"validation_reason"`
	PotentialProfitPct float64 `json:"potential_profit_pct"`
	PotentialLossPct   float64 `json:"potential_loss_pct"`
}

// SymbolStats is the aggregate closed-trade record kept per instrument.
type SymbolStats struct {
	Symbol         string  `json:"symbol"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"` // percent
	AvgProfitPct   float64 `json:"avg_profit_pct"`
	TotalProfitPct float64 `json:"total_profit_pct"`
	MaxProfitPct   float64 `json:"max_profit_pct"`
	MaxLossPct     float64 `json:"max_loss_pct"`
	AvgHoldDays    float64 `json:"avg_hold_days"`
}

// ClosedTrade is the outcome of one closed position.
type ClosedTrade struct {
	SignalID       int64   `json:"signal_id"`
	Symbol         string  `json:"symbol"`
	SignalType     string  `json:"signal_type"`
	EntryPrice     float64 `json:"entry_price"`
	ExitPrice      float64 `json:"exit_price"`
	ProfitLossPct  float64 `json:"profit_loss_pct"`
	OpenTimestamp  int64   `json:"open_timestamp"`
	CloseTimestamp int64   `json:"close_timestamp"`
	CloseReason    string  `json:"close_reason,omitempty"`
}

// Close reasons recorded with a closed trade.
const (
	CloseTakeProfit = "TAKE_PROFIT"
	CloseStopLoss   = "STOP_LOSS"
	CloseManual     = "MANUAL"
	CloseTimeout    = "TIMEOUT"
)

// Win reports whether the trade closed with a profit.
func (t ClosedTrade) Win() bool { return t.ProfitLossPct > 0 }

// Loss reports whether the trade closed with a loss.
func (t ClosedTrade) Loss() bool { return t.ProfitLossPct < 0 }

// ReturnPct is the percentage change from entry to exit (0 for a
// non-positive entry).
func ReturnPct(entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (exit - entry) / entry * 100
}
