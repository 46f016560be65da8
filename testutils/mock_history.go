package testutils

import (
	"context"
	"sort"
	"sync"

	"github.com/evdnx/protrader/types"
)

// MockHistory is an in-memory performance history with error injection.
type MockHistory struct {
	mu     sync.Mutex
	stats  map[string]types.SymbolStats
	trades map[string][]types.ClosedTrade // newest first
	// Err, when set, is returned by every query.
	Err   error
	calls int
}

// NewMockHistory returns an empty history.
func NewMockHistory() *MockHistory {
	return &MockHistory{
		stats:  make(map[string]types.SymbolStats),
		trades: make(map[string][]types.ClosedTrade),
	}
}

// SetStats stores the aggregate record of a symbol.
func (m *MockHistory) SetStats(s types.SymbolStats) {
	m.mu.Lock()
	m.stats[s.Symbol] = s
	m.mu.Unlock()
}

// SetTrades stores the closed trades of a symbol, newest first.
func (m *MockHistory) SetTrades(symbol string, trades ...types.ClosedTrade) {
	m.mu.Lock()
	m.trades[symbol] = append([]types.ClosedTrade(nil), trades...)
	m.mu.Unlock()
}

// Calls returns how many queries have been served.
func (m *MockHistory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockHistory) SymbolStats(_ context.Context, symbol string) (*types.SymbolStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.stats[symbol]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MockHistory) RecentTrades(_ context.Context, symbol string, limit int) ([]types.ClosedTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	trades := m.trades[symbol]
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return append([]types.ClosedTrade(nil), trades...), nil
}

func (m *MockHistory) Rankings(_ context.Context, minTrades int) ([]types.SymbolStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	var out []types.SymbolStats
	for _, s := range m.stats {
		if s.TotalTrades >= minTrades {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalProfitPct > out[j].TotalProfitPct })
	return out, nil
}
