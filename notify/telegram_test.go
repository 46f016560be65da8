package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/evdnx/protrader/metrics"
	"github.com/evdnx/protrader/testutils"
	"github.com/evdnx/protrader/types"
)

func sampleSignal() *types.Signal {
	return &types.Signal{
		Symbol:          "FPT",
		Timeframe:       "1D",
		Timestamp:       1_700_000_000,
		Type:            types.StrongBuy,
		Price:           86000,
		Confidence:      100,
		Strategy:        "ProTrader",
		StopLoss:        82585,
		TakeProfit:      90090,
		RiskRewardRatio: 1.2,
		PositionSizePct: 10,
		RiskValid:       false,
		RiskNote:        "Risk/Reward ratio 1.20 below minimum 1.50",
		Reasoning: map[string]types.LayerReasoning{
			types.LayerTrend:    {LayerResult: types.LayerResult{Score: 100, Passed: true, Reason: "Strong uptrend confirmed"}},
			types.LayerMomentum: {LayerResult: types.LayerResult{Score: 100, Passed: true, Reason: "RSI oversold - potential reversal"}},
			types.LayerVolume:   {LayerResult: types.LayerResult{Score: 100, Passed: true, Reason: "High volume confirms buying interest"}},
		},
	}
}

func TestFormatSignal(t *testing.T) {
	msg := FormatSignal(sampleSignal(), nil)

	wants := []string{
		"🟢🟢 <b>STRONG_BUY</b>",
		"<b>Symbol:</b> FPT",
		"<b>Price:</b> 86,000",
		"<b>Confidence:</b> 100.0%",
		"• Stop-Loss: 82,585 (3.97%)",
		"• Take-Profit: 90,090 (+4.76%)",
		"• R/R Ratio: 1.20",
		"• Position Size: 10.0%",
		"Risk/Reward ratio 1.20 below minimum 1.50",
		"• Trend: Strong uptrend confirmed",
		"• Entry: N/A",
		"<i>Time: 2023-11-14 22:13:20</i>",
	}
	for _, want := range wants {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatSignalEscapesHTML(t *testing.T) {
	sig := sampleSignal()
	sig.Reasoning[types.LayerEntry] = types.LayerReasoning{LayerResult: types.LayerResult{Reason: "price < band"}}
	msg := FormatSignal(sig, nil)
	if !strings.Contains(msg, "• Entry: price &lt; band") {
		t.Fatalf("expected escaped reason, got:\n%s", msg)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[float64]string{
		0:         "0",
		999:       "999",
		1000:      "1,000",
		82585.4:   "82,585",
		1234567.5: "1,234,568",
		-4500:     "-4,500",
	}
	for in, want := range cases {
		if got := formatPrice(in); got != want {
			t.Errorf("formatPrice(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatClosedTrade(t *testing.T) {
	msg := FormatClosedTrade(types.ClosedTrade{
		Symbol:        "VNM",
		EntryPrice:    70000,
		ExitPrice:     66500,
		ProfitLossPct: -5,
		CloseReason:   types.CloseStopLoss,
	})
	for _, want := range []string{"🔴 <b>POSITION CLOSED</b>", "<b>Exit:</b> 66,500", "📉 <b>P&amp;L:</b> -5.00%", "<b>Reason:</b> STOP_LOSS"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestNewTelegramNotifierValidates(t *testing.T) {
	if _, err := NewTelegramNotifier(TelegramConfig{ChatID: 1}, nil); err == nil {
		t.Fatalf("expected error for missing token")
	}
	if _, err := NewTelegramNotifier(TelegramConfig{BotToken: "x"}, nil); err == nil {
		t.Fatalf("expected error for missing chat id")
	}
}

func TestTelegramNotify(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	log := testutils.NewMockLogger()
	n, err := NewTelegramNotifier(TelegramConfig{BaseURL: srv.URL, BotToken: "TOKEN", ChatID: 42}, log)
	if err != nil {
		t.Fatalf("NewTelegramNotifier: %v", err)
	}
	before := testutil.ToFloat64(metrics.Notifications.WithLabelValues(channelTelegram, "ok"))

	if err := n.Notify(context.Background(), sampleSignal()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Fatalf("unexpected path %q", path)
	}
	if got.ChatID != 42 || got.ParseMode != "HTML" {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(got.Text, "STRONG_BUY") {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if !log.Has("info", "telegram_alert_sent") {
		t.Fatalf("expected telegram_alert_sent log")
	}
	if after := testutil.ToFloat64(metrics.Notifications.WithLabelValues(channelTelegram, "ok")); after != before+1 {
		t.Fatalf("ok counter = %v, want %v", after, before+1)
	}
}

func TestTelegramAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier(TelegramConfig{BaseURL: srv.URL, BotToken: "T", ChatID: 1}, nil)
	if err != nil {
		t.Fatalf("NewTelegramNotifier: %v", err)
	}
	before := testutil.ToFloat64(metrics.Notifications.WithLabelValues(channelTelegram, "error"))

	err = n.Notify(context.Background(), sampleSignal())
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected API error, got %v", err)
	}
	if after := testutil.ToFloat64(metrics.Notifications.WithLabelValues(channelTelegram, "error")); after != before+1 {
		t.Fatalf("error counter = %v, want %v", after, before+1)
	}
}
