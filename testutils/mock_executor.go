package testutils

import (
	"sync"

	"github.com/evdnx/protrader/types"
)

// MockExecutor records submitted orders and fills them at the order price.
// Setting Err makes every subsequent Submit fail.
type MockExecutor struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]float64
	orders    []types.Order
	Err       error
}

// NewMockExecutor creates an executor holding startCash.
func NewMockExecutor(startCash float64) *MockExecutor {
	return &MockExecutor{cash: startCash, positions: make(map[string]float64)}
}

// Submit records o and updates cash and quantity.
func (m *MockExecutor) Submit(o types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cost := o.Price * o.Qty
	if o.Side == types.Buy {
		m.cash -= cost
		m.positions[o.Symbol] += o.Qty
	} else {
		m.cash += cost
		m.positions[o.Symbol] -= o.Qty
	}
	m.orders = append(m.orders, o)
	return nil
}

// Cash returns the current cash balance.
func (m *MockExecutor) Cash() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash
}

// Position returns the held quantity; the average price is not tracked.
func (m *MockExecutor) Position(symbol string) (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions[symbol], 0
}

// Orders returns a copy of every accepted order.
func (m *MockExecutor) Orders() []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Order, len(m.orders))
	copy(out, m.orders)
	return out
}
