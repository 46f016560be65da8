package strategy

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/evdnx/protrader/config"
	"github.com/evdnx/protrader/metrics"
	"github.com/evdnx/protrader/testutils"
	"github.com/evdnx/protrader/types"
)

func strongBuySnapshot() types.Snapshot {
	return types.Snapshot{
		types.KeyTrendDirection:  "UP",
		types.KeyMA200:           84000.0,
		types.KeyEMA20:           85000.0,
		types.KeyRSI:             55.0,
		types.KeyRSISignal:       "NEUTRAL",
		types.KeyMACDTrend:       "BULLISH",
		types.KeyMACDHistogram:   150.0,
		types.KeyVolumeSignal:    "HIGH",
		types.KeyVolumeRatio:     1.8,
		types.KeyVolumeSpike:     true,
		types.KeyBBPosition:      0.25,
		types.KeyBBPositionLabel: "NEAR_LOWER",
		types.KeySupportLevel:    83000.0,
		types.KeyResistanceLevel: 91000.0,
	}
}

func newProTrader(t *testing.T) (*DecisionTree, *testutils.MockLogger) {
	t.Helper()
	log := testutils.NewMockLogger()
	tree, err := NewProTraderStrategy(config.DefaultStrategy(), log)
	if err != nil {
		t.Fatalf("NewProTraderStrategy failed: %v", err)
	}
	return tree, log
}

func TestProTraderStrongBuyScenario(t *testing.T) {
	tree, log := newProTrader(t)
	before := testutil.ToFloat64(metrics.RiskPlansInvalid.WithLabelValues(tree.Name()))

	sig, err := tree.GenerateSignal(Request{
		Symbol:       "VNM",
		Timestamp:    1_700_000_000,
		Price:        86000,
		Indicators:   strongBuySnapshot(),
		TotalCapital: 100_000_000,
	})
	if err != nil {
		t.Fatalf("GenerateSignal failed: %v", err)
	}
	if sig.Type != types.StrongBuy || sig.Confidence != 100 {
		t.Fatalf("expected STRONG_BUY at 100, got %s at %v", sig.Type, sig.Confidence)
	}
	if !strings.Contains(sig.Reason(types.LayerEntry), "near lower") {
		t.Fatalf("entry reason should reference the lower band: %q", sig.Reason(types.LayerEntry))
	}
	if !strings.HasSuffix(sig.Reason(types.LayerVolume), "(volume spike detected)") {
		t.Fatalf("volume reason should flag the spike: %q", sig.Reason(types.LayerVolume))
	}
	if len(sig.ConditionsMet) != 4 {
		t.Fatalf("expected all four conditions, got %v", sig.ConditionsMet)
	}

	// support pulls the stop up, resistance caps the target
	if sig.StopLoss != 82585 || sig.TakeProfit != 90090 {
		t.Fatalf("unexpected risk plan: stop=%v target=%v", sig.StopLoss, sig.TakeProfit)
	}
	if sig.RiskValid {
		t.Fatal("plan with r/r 1.2 should be flagged invalid but still attached")
	}
	if got := testutil.ToFloat64(metrics.RiskPlansInvalid.WithLabelValues(tree.Name())); got != before+1 {
		t.Fatalf("invalid plan counter not incremented: %v", got)
	}
	if !log.Has("warn", "risk_plan_invalid") {
		t.Fatal("expected risk_plan_invalid warning")
	}
}

func TestProTraderNoActionScenario(t *testing.T) {
	tree, _ := newProTrader(t)
	sig, err := tree.GenerateSignal(Request{
		Symbol: "HPG",
		Price:  28000,
		Indicators: types.Snapshot{
			types.KeyTrendDirection: "DOWN",
			types.KeyRSI:            75.0,
			types.KeyRSISignal:      "OVERBOUGHT",
			types.KeyMACDTrend:      "BEARISH",
			types.KeyVolumeSignal:   "LOW",
			types.KeyVolumeRatio:    0.5,
			types.KeyBBPosition:     0.85,
		},
		TotalCapital: 100_000_000,
	})
	if err != nil {
		t.Fatalf("GenerateSignal failed: %v", err)
	}
	if sig.Confidence >= 60 || sig.IsBuy() {
		t.Fatalf("expected a non-buy below 60, got %s at %v", sig.Type, sig.Confidence)
	}
	if sig.Type != types.NoAction || sig.Confidence != 18 {
		t.Fatalf("expected NO_ACTION at 18, got %s at %v", sig.Type, sig.Confidence)
	}
	if len(sig.ConditionsMet) != 0 {
		t.Fatalf("expected no conditions, got %v", sig.ConditionsMet)
	}
}

func TestProTraderEmptySnapshot(t *testing.T) {
	tree, _ := newProTrader(t)
	sig, err := tree.GenerateSignal(Request{Symbol: "ACB", Price: 25000, TotalCapital: 50_000_000})
	if err != nil {
		t.Fatalf("GenerateSignal failed: %v", err)
	}
	// sideways 50, neutral macd + rsi sweet spot 80, normal volume 70, mid band 50
	if sig.Confidence != 63 || sig.Type != types.WeakBuy {
		t.Fatalf("expected WEAK_BUY at 63, got %s at %v", sig.Type, sig.Confidence)
	}
}

func defaultRules(t *testing.T) *ProTrader {
	t.Helper()
	p, err := NewProTrader("test", config.DefaultThresholds())
	if err != nil {
		t.Fatalf("NewProTrader failed: %v", err)
	}
	return p
}

func TestNewProTraderValidation(t *testing.T) {
	if _, err := NewProTrader("", config.DefaultThresholds()); err == nil {
		t.Fatal("expected error for empty name")
	}
	th := config.DefaultThresholds()
	th.WeakBuy = th.StrongBuy
	if _, err := NewProTrader("x", th); err == nil {
		t.Fatal("expected error for unordered thresholds")
	}
}

func TestEvaluateTrend(t *testing.T) {
	p := defaultRules(t)
	tests := []struct {
		label  any
		score  float64
		passed bool
	}{
		{"UP", 100, true},
		{"up", 100, true},
		{"SIDEWAYS", 50, false},
		{"DOWN", 0, false},
		{nil, 50, false},
		{"FLAT", 50, false},
	}
	for _, tt := range tests {
		got := p.EvaluateTrend(types.Snapshot{types.KeyTrendDirection: tt.label})
		if got.Score != tt.score || got.Passed != tt.passed {
			t.Errorf("trend %v: got %+v", tt.label, got)
		}
	}
}

func TestEvaluateMomentum(t *testing.T) {
	p := defaultRules(t)
	tests := []struct {
		name   string
		ind    types.Snapshot
		score  float64
		passed bool
		reason string
	}{
		{"bullish sweet spot", types.Snapshot{types.KeyMACDTrend: "BULLISH", types.KeyRSISignal: "NEUTRAL", types.KeyRSI: 50.0}, 100, true, "Strong momentum"},
		{"bullish neutral edge", types.Snapshot{types.KeyMACDTrend: "BULLISH", types.KeyRSISignal: "NEUTRAL", types.KeyRSI: 65.0}, 90, true, "Strong momentum"},
		{"bullish oversold capped", types.Snapshot{types.KeyMACDTrend: "BULLISH", types.KeyRSISignal: "OVERSOLD", types.KeyRSI: 25.0}, 100, true, "RSI oversold"},
		{"bullish overbought", types.Snapshot{types.KeyMACDTrend: "BULLISH", types.KeyRSISignal: "OVERBOUGHT"}, 70, false, "RSI overbought"},
		{"neutral macd", types.Snapshot{types.KeyMACDTrend: "NEUTRAL", types.KeyRSISignal: "NEUTRAL", types.KeyRSI: 45.0}, 80, false, "RSI in sweet spot"},
		{"bearish", types.Snapshot{types.KeyMACDTrend: "BEARISH", types.KeyRSISignal: "OVERSOLD"}, 60, false, "Weak momentum"},
		{"derived overbought", types.Snapshot{types.KeyMACDTrend: "BULLISH", types.KeyRSI: 78.0}, 70, false, "RSI overbought"},
		{"derived oversold", types.Snapshot{types.KeyMACDTrend: "NEUTRAL", types.KeyRSI: 22.0}, 90, false, "RSI oversold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.EvaluateMomentum(tt.ind)
			if got.Score != tt.score || got.Passed != tt.passed {
				t.Fatalf("got %+v, want score=%v passed=%v", got, tt.score, tt.passed)
			}
			if !strings.HasPrefix(got.Reason, tt.reason) {
				t.Fatalf("reason %q does not start with %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluateVolume(t *testing.T) {
	p := defaultRules(t)
	tests := []struct {
		name   string
		ind    types.Snapshot
		score  float64
		passed bool
	}{
		{"high", types.Snapshot{types.KeyVolumeSignal: "HIGH"}, 100, true},
		{"normal", types.Snapshot{types.KeyVolumeSignal: "NORMAL"}, 70, true},
		{"low", types.Snapshot{types.KeyVolumeSignal: "LOW"}, 30, false},
		{"missing", types.Snapshot{}, 70, true},
		{"derived high", types.Snapshot{types.KeyVolumeRatio: 1.5}, 100, true},
		{"derived low", types.Snapshot{types.KeyVolumeRatio: 0.7}, 30, false},
		{"derived normal", types.Snapshot{types.KeyVolumeRatio: 1.1}, 70, true},
		{"label wins over ratio", types.Snapshot{types.KeyVolumeSignal: "LOW", types.KeyVolumeRatio: 3.0}, 30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.EvaluateVolume(tt.ind)
			if got.Score != tt.score || got.Passed != tt.passed {
				t.Fatalf("got %+v, want score=%v passed=%v", got, tt.score, tt.passed)
			}
		})
	}

	plain := p.EvaluateVolume(types.Snapshot{types.KeyVolumeSignal: "HIGH", types.KeyVolumeSpike: false})
	if strings.Contains(plain.Reason, "spike") {
		t.Fatalf("spike suffix without a spike: %q", plain.Reason)
	}
}

func TestEvaluateEntry(t *testing.T) {
	p := defaultRules(t)
	tests := []struct {
		pos    any
		score  float64
		passed bool
	}{
		{0.0, 100, true},
		{0.29, 100, true},
		{0.3, 80, true},
		{0.49, 80, true},
		{0.5, 50, false},
		{0.7, 30, false},
		{0.89, 30, false},
		{0.9, 10, false},
		{1.0, 10, false},
		{nil, 50, false},
		{"0.1", 100, true},
	}
	for _, tt := range tests {
		got := p.EvaluateEntry(types.Snapshot{types.KeyBBPosition: tt.pos})
		if got.Score != tt.score || got.Passed != tt.passed {
			t.Errorf("bb_position %v: got %+v", tt.pos, got)
		}
	}
}

func TestDetermineSignalTypeMonotonic(t *testing.T) {
	p := defaultRules(t)
	rank := map[types.SignalType]int{types.NoAction: 0, types.Watch: 1, types.WeakBuy: 2, types.StrongBuy: 3}
	prev := -1
	for c := 0.0; c <= 100; c += 0.5 {
		got := p.DetermineSignalType(c)
		if rank[got] < prev {
			t.Fatalf("classification not monotonic at %v", c)
		}
		prev = rank[got]

		var want types.SignalType
		switch {
		case c >= 80:
			want = types.StrongBuy
		case c >= 60:
			want = types.WeakBuy
		case c >= 40:
			want = types.Watch
		default:
			want = types.NoAction
		}
		if got != want {
			t.Fatalf("confidence %v: got %s want %s", c, got, want)
		}
	}
}
