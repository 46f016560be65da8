package performance

import (
	"context"

	"github.com/evdnx/protrader/types"
)

// History is the read side of the closed-trade store. SymbolStats returns
// nil (and no error) for an instrument without closed trades. RecentTrades
// returns the newest trade first. Implementations should stop work when ctx
// is done; the filter abandons a query after its timeout either way.
type History interface {
	SymbolStats(ctx context.Context, symbol string) (*types.SymbolStats, error)
	RecentTrades(ctx context.Context, symbol string, limit int) ([]types.ClosedTrade, error)
	Rankings(ctx context.Context, minTrades int) ([]types.SymbolStats, error)
}

// TradeRecorder is the write side: it is called once per closed position.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, trade types.ClosedTrade) error
}
