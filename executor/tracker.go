package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/metrics"
	"github.com/evdnx/protrader/performance"
	"github.com/evdnx/protrader/types"
)

const secondsPerDay = 24 * 60 * 60

// Position is an open paper position taken from a buy signal.
type Position struct {
	SignalID   int64
	Symbol     string
	SignalType string
	Qty        float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   int64
}

// PaperTracker opens one position per instrument from actionable buy
// signals, closes it when the price reaches the stop-loss or take-profit
// and hands every closed trade to a recorder, feeding the performance
// history back into the strategy.
type PaperTracker struct {
	mu          sync.Mutex
	exec        Executor
	recorder    performance.TradeRecorder
	log         logger.Logger
	maxHoldDays int
	positions   map[string]Position
}

func NewPaperTracker(exec Executor, recorder performance.TradeRecorder, log logger.Logger) (*PaperTracker, error) {
	if exec == nil {
		return nil, errors.New("paper tracker requires an executor")
	}
	if recorder == nil {
		return nil, errors.New("paper tracker requires a trade recorder")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PaperTracker{
		exec:      exec,
		recorder:  recorder,
		log:       log,
		positions: make(map[string]Position),
	}, nil
}

// SetMaxHoldDays closes positions held longer than days (0 disables).
func (t *PaperTracker) SetMaxHoldDays(days int) {
	t.mu.Lock()
	t.maxHoldDays = days
	t.mu.Unlock()
}

// Open takes a position for sig. It reports false without error when the
// signal is not a buy, the instrument already has a position, or the risk
// plan cannot bracket the entry price.
func (t *PaperTracker) Open(sig *types.Signal, signalID int64) (bool, error) {
	if sig == nil || !sig.IsBuy() {
		return false, nil
	}
	if !brackets(sig.StopLoss, sig.Price, sig.TakeProfit) {
		t.log.Warn("position_skipped",
			logger.String("symbol", sig.Symbol),
			logger.String("reason", "stop-loss and take-profit do not bracket the price"),
		)
		return false, nil
	}

	qty := float64(sig.Quantity)
	if qty <= 0 {
		qty = math.Floor(t.exec.Cash() * sig.PositionSizePct / 100 / sig.Price)
	}
	if qty <= 0 {
		return false, nil
	}

	return t.add(Position{
		SignalID:   signalID,
		Symbol:     sig.Symbol,
		SignalType: string(sig.Type),
		Qty:        qty,
		EntryPrice: sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		OpenedAt:   sig.Timestamp,
	})
}

// Restore re-opens a position loaded from storage.
func (t *PaperTracker) Restore(p Position) error {
	if p.Qty <= 0 || p.EntryPrice <= 0 {
		return fmt.Errorf("restore %s: quantity and entry price must be positive", p.Symbol)
	}
	if !brackets(p.StopLoss, p.EntryPrice, p.TakeProfit) {
		return fmt.Errorf("restore %s: stop-loss %.2f and take-profit %.2f do not bracket entry %.2f",
			p.Symbol, p.StopLoss, p.TakeProfit, p.EntryPrice)
	}
	_, err := t.add(p)
	return err
}

// brackets reports whether stop < price < target.
func brackets(stop, price, target float64) bool {
	return stop < price && price < target
}

func (t *PaperTracker) add(p Position) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.positions[p.Symbol]; ok {
		return false, nil
	}
	err := t.exec.Submit(types.Order{
		Symbol:   p.Symbol,
		Side:     types.Buy,
		Qty:      p.Qty,
		Price:    p.EntryPrice,
		SignalID: p.SignalID,
		Comment:  p.SignalType,
	})
	if err != nil {
		t.log.Error("position_open_failed", logger.String("symbol", p.Symbol), logger.Err(err))
		return false, err
	}
	t.positions[p.Symbol] = p
	metrics.PositionsOpen.Set(float64(len(t.positions)))
	t.log.Info("position_opened",
		logger.String("symbol", p.Symbol),
		logger.Float64("qty", p.Qty),
		logger.Float64("entry", p.EntryPrice),
		logger.Float64("stop_loss", p.StopLoss),
		logger.Float64("take_profit", p.TakeProfit),
	)
	return true, nil
}

// OnPrice marks the position of symbol to price and closes it when an exit
// condition is met. It returns the closed trade, or nil when the position
// stays open or there is none.
func (t *PaperTracker) OnPrice(ctx context.Context, symbol string, price float64, ts int64) (*types.ClosedTrade, error) {
	t.mu.Lock()
	p, ok := t.positions[symbol]
	maxHold := t.maxHoldDays
	t.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var reason string
	switch {
	case price <= p.StopLoss:
		reason = types.CloseStopLoss
	case price >= p.TakeProfit:
		reason = types.CloseTakeProfit
	case maxHold > 0 && ts-p.OpenedAt >= int64(maxHold)*secondsPerDay:
		reason = types.CloseTimeout
	default:
		return nil, nil
	}
	return t.Close(ctx, symbol, price, ts, reason)
}

// Close flattens the position of symbol at price and records the trade.
// The position is closed even when recording fails.
func (t *PaperTracker) Close(ctx context.Context, symbol string, price float64, ts int64, reason string) (*types.ClosedTrade, error) {
	t.mu.Lock()
	p, ok := t.positions[symbol]
	if !ok {
		t.mu.Unlock()
		return nil, nil
	}
	err := t.exec.Submit(types.Order{
		Symbol:   symbol,
		Side:     types.Sell,
		Qty:      p.Qty,
		Price:    price,
		SignalID: p.SignalID,
		Comment:  reason,
	})
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	delete(t.positions, symbol)
	metrics.PositionsOpen.Set(float64(len(t.positions)))
	t.mu.Unlock()

	trade := types.ClosedTrade{
		SignalID:       p.SignalID,
		Symbol:         symbol,
		SignalType:     p.SignalType,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      price,
		ProfitLossPct:  types.ReturnPct(p.EntryPrice, price),
		OpenTimestamp:  p.OpenedAt,
		CloseTimestamp: ts,
		CloseReason:    reason,
	}
	t.log.Info("position_closed",
		logger.String("symbol", symbol),
		logger.String("reason", reason),
		logger.Float64("exit", price),
		logger.Float64("pnl_pct", trade.ProfitLossPct),
	)
	if err := t.recorder.RecordTrade(ctx, trade); err != nil {
		t.log.Error("trade_record_failed", logger.String("symbol", symbol), logger.Err(err))
		return &trade, fmt.Errorf("record trade: %w", err)
	}
	return &trade, nil
}

// Positions returns the open positions ordered by symbol.
func (t *PaperTracker) Positions() []Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
