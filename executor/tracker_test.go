package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/evdnx/protrader/metrics"
	"github.com/evdnx/protrader/performance"
	"github.com/evdnx/protrader/testutils"
	"github.com/evdnx/protrader/types"
)

func buy(symbol string, price float64) *types.Signal {
	return &types.Signal{
		Symbol:          symbol,
		Timestamp:       1000,
		Type:            types.StrongBuy,
		Price:           price,
		StopLoss:        price * 0.95,
		TakeProfit:      price * 1.1,
		PositionSizePct: 10,
		Quantity:        10,
	}
}

func newTracker(t *testing.T, cash float64) (*PaperTracker, *performance.Ledger, *testutils.MockLogger) {
	t.Helper()
	ledger := performance.NewLedger()
	log := testutils.NewMockLogger()
	tr, err := NewPaperTracker(NewPaperExecutor(cash, log), ledger, log)
	if err != nil {
		t.Fatalf("NewPaperTracker failed: %v", err)
	}
	return tr, ledger, log
}

func TestNewPaperTrackerValidation(t *testing.T) {
	if _, err := NewPaperTracker(nil, performance.NewLedger(), nil); err == nil {
		t.Fatal("expected error for nil executor")
	}
	if _, err := NewPaperTracker(NewPaperExecutor(1, nil), nil, nil); err == nil {
		t.Fatal("expected error for nil recorder")
	}
}

func TestTrackerOpensOnlyBuys(t *testing.T) {
	tr, _, _ := newTracker(t, 1_000_000)

	watch := buy("HPG", 100)
	watch.Type = types.Watch
	if ok, err := tr.Open(watch, 1); ok || err != nil {
		t.Fatalf("WATCH must not open a position: %v %v", ok, err)
	}

	bad := buy("FPT", 100)
	bad.TakeProfit = 99
	if ok, _ := tr.Open(bad, 2); ok {
		t.Fatal("an unbracketed plan must not open a position")
	}

	if ok, err := tr.Open(buy("VNM", 100), 3); !ok || err != nil {
		t.Fatalf("expected position, got %v %v", ok, err)
	}
	if ok, _ := tr.Open(buy("VNM", 101), 4); ok {
		t.Fatal("second position on the same symbol must be refused")
	}
	if got := tr.Positions(); len(got) != 1 || got[0].SignalID != 3 || got[0].Qty != 10 {
		t.Fatalf("unexpected positions: %+v", got)
	}
	if got := testutil.ToFloat64(metrics.PositionsOpen); got != 1 {
		t.Fatalf("expected open positions gauge 1, got %v", got)
	}
}

func TestTrackerSizesFromPercentWhenNoQuantity(t *testing.T) {
	tr, _, _ := newTracker(t, 100_000)
	sig := buy("ACB", 250)
	sig.Quantity = 0
	if ok, err := tr.Open(sig, 1); !ok || err != nil {
		t.Fatalf("expected position, got %v %v", ok, err)
	}
	// 10 % of 100k at 250
	if got := tr.Positions()[0].Qty; got != 40 {
		t.Fatalf("expected 40 units, got %v", got)
	}
}

func TestTrackerClosesOnExitLevels(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		reason string
		win    bool
	}{
		{"take profit", 111, types.CloseTakeProfit, true},
		{"stop loss", 94, types.CloseStopLoss, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ledger, log := newTracker(t, 1_000_000)
			ctx := context.Background()
			if _, err := tr.Open(buy("VNM", 100), 7); err != nil {
				t.Fatalf("Open failed: %v", err)
			}

			if trade, err := tr.OnPrice(ctx, "VNM", 101, 2000); trade != nil || err != nil {
				t.Fatalf("position should stay open, got %+v %v", trade, err)
			}
			trade, err := tr.OnPrice(ctx, "VNM", tt.price, 3000)
			if err != nil || trade == nil {
				t.Fatalf("expected a closed trade, got %+v %v", trade, err)
			}
			if trade.CloseReason != tt.reason || trade.Win() != tt.win || trade.SignalID != 7 {
				t.Fatalf("unexpected trade: %+v", trade)
			}
			if len(tr.Positions()) != 0 {
				t.Fatal("position should be gone")
			}
			recorded, _ := ledger.RecentTrades(ctx, "VNM", 0)
			if len(recorded) != 1 || recorded[0].CloseReason != tt.reason {
				t.Fatalf("trade not recorded: %+v", recorded)
			}
			if !log.Has("info", "position_closed") {
				t.Fatal("expected position_closed log")
			}
		})
	}
}

func TestTrackerTimeout(t *testing.T) {
	tr, _, _ := newTracker(t, 1_000_000)
	tr.SetMaxHoldDays(5)
	ctx := context.Background()
	_, _ = tr.Open(buy("SSI", 100), 1)

	if trade, _ := tr.OnPrice(ctx, "SSI", 102, 1000+4*secondsPerDay); trade != nil {
		t.Fatal("position closed too early")
	}
	trade, err := tr.OnPrice(ctx, "SSI", 102, 1000+5*secondsPerDay)
	if err != nil || trade == nil || trade.CloseReason != types.CloseTimeout {
		t.Fatalf("expected timeout close, got %+v %v", trade, err)
	}
}

func TestTrackerUnknownSymbol(t *testing.T) {
	tr, _, _ := newTracker(t, 1000)
	if trade, err := tr.OnPrice(context.Background(), "NONE", 1, 1); trade != nil || err != nil {
		t.Fatalf("expected nothing, got %+v %v", trade, err)
	}
	if trade, err := tr.Close(context.Background(), "NONE", 1, 1, types.CloseManual); trade != nil || err != nil {
		t.Fatalf("expected nothing, got %+v %v", trade, err)
	}
}

type failingRecorder struct{}

func (failingRecorder) RecordTrade(context.Context, types.ClosedTrade) error {
	return errors.New("database is locked")
}

func TestTrackerRecorderFailure(t *testing.T) {
	log := testutils.NewMockLogger()
	tr, err := NewPaperTracker(NewPaperExecutor(10_000, nil), failingRecorder{}, log)
	if err != nil {
		t.Fatalf("NewPaperTracker failed: %v", err)
	}
	if err := tr.Restore(Position{SignalID: 1, Symbol: "MWG", Qty: 5, EntryPrice: 100, StopLoss: 90, TakeProfit: 120, OpenedAt: 1}); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	trade, err := tr.Close(context.Background(), "MWG", 105, 10, types.CloseManual)
	if err == nil || trade == nil {
		t.Fatalf("expected the trade and an error, got %+v %v", trade, err)
	}
	if len(tr.Positions()) != 0 {
		t.Fatal("position must be closed even when recording fails")
	}
	if !log.Has("error", "trade_record_failed") {
		t.Fatal("expected trade_record_failed log")
	}
	if err := tr.Restore(Position{Symbol: "X"}); err == nil {
		t.Fatal("expected error for empty position")
	}
}

func TestTrackerExecutorFailure(t *testing.T) {
	exec := testutils.NewMockExecutor(1_000_000)
	log := testutils.NewMockLogger()
	tr, err := NewPaperTracker(exec, performance.NewLedger(), log)
	if err != nil {
		t.Fatalf("NewPaperTracker failed: %v", err)
	}

	if ok, err := tr.Open(buy("FPT", 100), 3); !ok || err != nil {
		t.Fatalf("Open failed: %v %v", ok, err)
	}
	orders := exec.Orders()
	if len(orders) != 1 || orders[0].Side != types.Buy || orders[0].SignalID != 3 || orders[0].Comment != string(types.StrongBuy) {
		t.Fatalf("unexpected orders %+v", orders)
	}

	exec.Err = errors.New("exchange unavailable")
	if _, err := tr.Close(context.Background(), "FPT", 101, 2000, types.CloseManual); err == nil {
		t.Fatal("expected close to fail")
	}
	if len(tr.Positions()) != 1 {
		t.Fatal("position must stay open when the exit order fails")
	}
	if ok, err := tr.Open(buy("VNM", 50), 4); ok || err == nil {
		t.Fatalf("expected open to fail, got %v %v", ok, err)
	}
	if !log.Has("error", "position_open_failed") {
		t.Fatal("expected position_open_failed log")
	}
}

func TestTrackerRestoreRequiresBracket(t *testing.T) {
	tr, _, _ := newTracker(t, 1_000_000)

	cases := []Position{
		{SignalID: 1, Symbol: "FPT", Qty: 10, EntryPrice: 100, StopLoss: 95, TakeProfit: 0},
		{SignalID: 2, Symbol: "VNM", Qty: 10, EntryPrice: 100, StopLoss: 0, TakeProfit: 100},
		{SignalID: 3, Symbol: "HPG", Qty: 10, EntryPrice: 100, StopLoss: 101, TakeProfit: 120},
	}
	for _, p := range cases {
		if err := tr.Restore(p); err == nil {
			t.Errorf("signal %d: expected restore to be rejected", p.SignalID)
		}
	}
	if n := len(tr.Positions()); n != 0 {
		t.Fatalf("rejected positions must not be tracked, got %d", n)
	}
	if trade, err := tr.OnPrice(context.Background(), "FPT", 100.5, 2000); trade != nil || err != nil {
		t.Fatalf("unexpected close %+v %v", trade, err)
	}
}
