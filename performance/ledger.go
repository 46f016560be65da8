package performance

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/evdnx/protrader/types"
)

// Ledger is an in-memory History and TradeRecorder. It backs the paper
// tracker when no database is configured.
type Ledger struct {
	mu     sync.RWMutex
	trades map[string][]types.ClosedTrade // chronological per symbol
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{trades: make(map[string][]types.ClosedTrade)}
}

// RecordTrade appends a closed trade, keeping each symbol ordered by close
// time.
func (l *Ledger) RecordTrade(_ context.Context, t types.ClosedTrade) error {
	if t.Symbol == "" {
		return errors.New("closed trade has no symbol")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	list := append(l.trades[t.Symbol], t)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CloseTimestamp < list[j].CloseTimestamp })
	l.trades[t.Symbol] = list
	return nil
}

func (l *Ledger) SymbolStats(_ context.Context, symbol string) (*types.SymbolStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	trades := l.trades[symbol]
	if len(trades) == 0 {
		return nil, nil
	}
	s := Summarize(symbol, trades)
	return &s, nil
}

func (l *Ledger) RecentTrades(_ context.Context, symbol string, limit int) ([]types.ClosedTrade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	trades := l.trades[symbol]
	out := make([]types.ClosedTrade, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, trades[i])
	}
	return out, nil
}

func (l *Ledger) Rankings(_ context.Context, minTrades int) ([]types.SymbolStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []types.SymbolStats
	for symbol, trades := range l.trades {
		if len(trades) >= minTrades && len(trades) > 0 {
			out = append(out, Summarize(symbol, trades))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalProfitPct == out[j].TotalProfitPct {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].TotalProfitPct > out[j].TotalProfitPct
	})
	return out, nil
}

// Summarize aggregates closed trades into the per-symbol record. Break-even
// trades count towards the total but neither wins nor losses.
func Summarize(symbol string, trades []types.ClosedTrade) types.SymbolStats {
	s := types.SymbolStats{Symbol: symbol, TotalTrades: len(trades)}
	if len(trades) == 0 {
		return s
	}
	pnl := make([]float64, len(trades))
	hold := make([]float64, len(trades))
	for i, t := range trades {
		pnl[i] = t.ProfitLossPct
		hold[i] = float64(t.CloseTimestamp-t.OpenTimestamp) / secondsPerDay
		switch {
		case t.Win():
			s.WinningTrades++
		case t.Loss():
			s.LosingTrades++
		}
	}
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	s.AvgProfitPct = stat.Mean(pnl, nil)
	s.TotalProfitPct = floats.Sum(pnl)
	s.MaxProfitPct = floats.Max(pnl)
	s.MaxLossPct = floats.Min(pnl)
	s.AvgHoldDays = stat.Mean(hold, nil)
	return s
}
