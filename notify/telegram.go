package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/metrics"
	"github.com/evdnx/protrader/types"
)

const (
	channelTelegram = "telegram"
	parseModeHTML   = "HTML"
	timeLayout      = "2006-01-02 15:04:05"
)

// TelegramConfig configures a TelegramNotifier.
type TelegramConfig struct {
	BaseURL  string
	BotToken string
	ChatID   int64
	Timeout  time.Duration
	// Location renders signal timestamps; nil means UTC.
	Location *time.Location
}

// TelegramNotifier posts HTML formatted signals through the Bot API.
type TelegramNotifier struct {
	client *resty.Client
	cfg    TelegramConfig
	log    logger.Logger
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// NewTelegramNotifier validates cfg and builds the HTTP client.
func NewTelegramNotifier(cfg TelegramConfig, log logger.Logger) (*TelegramNotifier, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &TelegramNotifier{client: client, cfg: cfg, log: log}, nil
}

// Notify sends the formatted signal.
func (t *TelegramNotifier) Notify(ctx context.Context, sig *types.Signal) error {
	if sig == nil {
		return nil
	}
	if err := t.SendMessage(ctx, FormatSignal(sig, t.cfg.Location)); err != nil {
		return fmt.Errorf("telegram alert for %s: %w", sig.Symbol, err)
	}
	t.log.Info("telegram_alert_sent", logger.String("symbol", sig.Symbol))
	return nil
}

// NotifyClosed sends a position-closed alert for trade.
func (t *TelegramNotifier) NotifyClosed(ctx context.Context, trade types.ClosedTrade) error {
	if err := t.SendMessage(ctx, FormatClosedTrade(trade)); err != nil {
		return fmt.Errorf("telegram close alert for %s: %w", trade.Symbol, err)
	}
	return nil
}

// SendMessage posts raw HTML text to the configured chat.
func (t *TelegramNotifier) SendMessage(ctx context.Context, text string) error {
	var out sendMessageResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{ChatID: t.cfg.ChatID, Text: text, ParseMode: parseModeHTML}).
		SetResult(&out).
		SetError(&out).
		Post("/bot" + t.cfg.BotToken + "/sendMessage")
	if err != nil {
		metrics.Notifications.WithLabelValues(channelTelegram, "error").Inc()
		return fmt.Errorf("send request: %w", err)
	}
	if resp.IsError() || !out.OK {
		metrics.Notifications.WithLabelValues(channelTelegram, "error").Inc()
		desc := out.Description
		if desc == "" {
			desc = resp.Status()
		}
		return fmt.Errorf("telegram API error: %s", desc)
	}
	metrics.Notifications.WithLabelValues(channelTelegram, "ok").Inc()
	return nil
}

var signalEmoji = map[types.SignalType]string{
	types.StrongBuy: "🟢🟢",
	types.WeakBuy:   "🟢",
	types.Watch:     "👀",
	types.NoAction:  "⏸️",
}

// FormatSignal renders sig as a Telegram HTML message.
func FormatSignal(sig *types.Signal, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	emoji, ok := signalEmoji[sig.Type]
	if !ok {
		emoji = "❓"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", emoji, sig.Type)
	fmt.Fprintf(&b, "<b>Symbol:</b> %s\n", html.EscapeString(sig.Symbol))
	fmt.Fprintf(&b, "<b>Price:</b> %s\n", formatPrice(sig.Price))
	fmt.Fprintf(&b, "<b>Confidence:</b> %.1f%%\n\n", sig.Confidence)

	b.WriteString("🛡️ <b>Risk Management:</b>\n")
	fmt.Fprintf(&b, "• Stop-Loss: %s (%.2f%%)\n", formatPrice(sig.StopLoss), sig.PotentialLossPct())
	fmt.Fprintf(&b, "• Take-Profit: %s (+%.2f%%)\n", formatPrice(sig.TakeProfit), sig.PotentialProfitPct())
	fmt.Fprintf(&b, "• R/R Ratio: %.2f\n", sig.RiskRewardRatio)
	fmt.Fprintf(&b, "• Position Size: %.1f%%\n", sig.PositionSizePct)
	if !sig.RiskValid && sig.RiskNote != "" {
		fmt.Fprintf(&b, "• ⚠️ %s\n", html.EscapeString(sig.RiskNote))
	}

	b.WriteString("\n📊 <b>Analysis:</b>\n")
	for _, layer := range []struct{ key, title string }{
		{types.LayerTrend, "Trend"},
		{types.LayerMomentum, "Momentum"},
		{types.LayerVolume, "Volume"},
		{types.LayerEntry, "Entry"},
	} {
		fmt.Fprintf(&b, "• %s: %s\n", layer.title, html.EscapeString(sig.Reason(layer.key)))
	}

	b.WriteString("\n<i>⚠️ Manual review required before trading</i>\n")
	fmt.Fprintf(&b, "<i>Time: %s</i>", time.Unix(sig.Timestamp, 0).In(loc).Format(timeLayout))
	return b.String()
}

// FormatClosedTrade renders a closed position as a Telegram HTML message.
func FormatClosedTrade(trade types.ClosedTrade) string {
	emoji := "🟢"
	if trade.CloseReason == types.CloseStopLoss {
		emoji = "🔴"
	}
	pnlEmoji := "📈"
	if trade.ProfitLossPct < 0 {
		pnlEmoji = "📉"
	}
	reason := trade.CloseReason
	if reason == "" {
		reason = types.CloseManual
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>POSITION CLOSED</b>\n\n", emoji)
	fmt.Fprintf(&b, "<b>Symbol:</b> %s\n", html.EscapeString(trade.Symbol))
	fmt.Fprintf(&b, "<b>Entry:</b> %s\n", formatPrice(trade.EntryPrice))
	fmt.Fprintf(&b, "<b>Exit:</b> %s\n", formatPrice(trade.ExitPrice))
	fmt.Fprintf(&b, "%s <b>P&amp;L:</b> %+.2f%%\n", pnlEmoji, trade.ProfitLossPct)
	fmt.Fprintf(&b, "<b>Reason:</b> %s", html.EscapeString(reason))
	return b.String()
}

// formatPrice rounds to a whole unit and groups thousands with commas.
func formatPrice(v float64) string {
	s := decimal.NewFromFloat(v).Round(0).String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return sign + b.String()
}
