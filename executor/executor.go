package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/types"
)

var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrNoPosition       = errors.New("no position to sell")
)

type Executor interface {
	Submit(o types.Order) error
	Cash() float64
	Position(symbol string) (qty float64, avgPrice float64)
}

// PaperExecutor is a long-only cash account with perfect fills at the
// order price and no fees.
type PaperExecutor struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]float64
	avgPrice  map[string]float64
	log       logger.Logger
}

func NewPaperExecutor(startCash float64, log logger.Logger) *PaperExecutor {
	if log == nil {
		log = logger.Nop()
	}
	return &PaperExecutor{
		cash:      startCash,
		positions: make(map[string]float64),
		avgPrice:  make(map[string]float64),
		log:       log,
	}
}

func (p *PaperExecutor) Submit(o types.Order) error {
	if o.Qty <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cost := o.Price * o.Qty
	switch o.Side {
	case types.Buy:
		if cost > p.cash {
			return fmt.Errorf("buy %s %.0f @ %.2f: %w", o.Symbol, o.Qty, o.Price, ErrInsufficientCash)
		}
		p.cash -= cost
		prevQty := p.positions[o.Symbol]
		p.positions[o.Symbol] = prevQty + o.Qty
		// VWAP entry
		p.avgPrice[o.Symbol] = (p.avgPrice[o.Symbol]*prevQty + cost) / p.positions[o.Symbol]
	case types.Sell:
		held := p.positions[o.Symbol]
		if o.Qty > held {
			return fmt.Errorf("sell %s %.0f (held %.0f): %w", o.Symbol, o.Qty, held, ErrNoPosition)
		}
		p.cash += cost
		if held-o.Qty == 0 {
			delete(p.positions, o.Symbol)
			delete(p.avgPrice, o.Symbol)
		} else {
			p.positions[o.Symbol] = held - o.Qty
		}
	default:
		return fmt.Errorf("unknown order side %q", o.Side)
	}

	p.log.Info("order_filled",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.Float64("qty", o.Qty),
		logger.Float64("price", o.Price),
		logger.Float64("cash", p.cash),
		logger.Int64("signal_id", o.SignalID),
	)
	return nil
}

func (p *PaperExecutor) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

func (p *PaperExecutor) Position(sym string) (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[sym], p.avgPrice[sym]
}
