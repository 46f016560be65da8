package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestValidateSuccess(t *testing.T) {
	cfg := DefaultStrategy()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestWeightsMustSumToOne(t *testing.T) {
	tests := []struct {
		name    string
		w       Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"within tolerance", Weights{Trend: 0.305, Momentum: 0.3, Volume: 0.2, Entry: 0.2}, false},
		{"equal", Weights{Trend: 0.25, Momentum: 0.25, Volume: 0.25, Entry: 0.25}, false},
		{"too small", Weights{Trend: 0.2, Momentum: 0.2, Volume: 0.2, Entry: 0.2}, true},
		{"too large", Weights{Trend: 0.5, Momentum: 0.3, Volume: 0.2, Entry: 0.2}, true},
		{"negative", Weights{Trend: 1.2, Momentum: -0.2, Volume: 0, Entry: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidWeights) {
				t.Fatalf("expected ErrInvalidWeights, got %v", err)
			}
		})
	}
}

func TestValidateFailsOnUnorderedThresholds(t *testing.T) {
	cfg := DefaultStrategy()
	cfg.Thresholds.WeakBuy = 85 // above strong_buy
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unordered classification thresholds")
	}

	cfg = DefaultStrategy()
	cfg.Thresholds.Watch = cfg.Thresholds.WeakBuy
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for equal thresholds")
	}
}

func TestValidateFailsOnBadRisk(t *testing.T) {
	cfg := DefaultStrategy()
	cfg.Risk.MaxRiskPerTradePct = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for negative MaxRiskPerTradePct")
	}

	cfg = DefaultStrategy()
	cfg.Risk.UseATRStopLoss = true
	cfg.Risk.ATRMultiplier = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero ATR multiplier")
	}
}

func TestValidateFailsOnBadLearning(t *testing.T) {
	cfg := DefaultStrategy()
	cfg.Learning.ConsecutiveLossesForCooldown = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero consecutive-loss trigger")
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.App.Name != "protrader-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if len(cfg.Trading.Symbols) != 2 || cfg.Trading.Symbols[1] != "VCB" {
		t.Fatalf("unexpected symbols: %+v", cfg.Trading.Symbols)
	}
	if cfg.Trading.TotalCapital != 50_000_000 {
		t.Fatalf("unexpected total capital: %.2f", cfg.Trading.TotalCapital)
	}
	if cfg.Strategy.Weights.Trend != 0.4 {
		t.Fatalf("unexpected trend weight: %.2f", cfg.Strategy.Weights.Trend)
	}
	if cfg.Strategy.Risk.StopLossPct != 4 || !cfg.Strategy.Risk.UseATRStopLoss {
		t.Fatalf("unexpected risk section: %+v", cfg.Strategy.Risk)
	}
	// untouched keys keep their defaults
	if cfg.Strategy.Risk.TakeProfitPct != 10 {
		t.Fatalf("expected default take profit 10, got %.2f", cfg.Strategy.Risk.TakeProfitPct)
	}
	if cfg.Strategy.Thresholds.StrongBuy != 80 {
		t.Fatalf("expected default strong_buy 80, got %.2f", cfg.Strategy.Thresholds.StrongBuy)
	}
	if cfg.Strategy.Learning.MinTradesForFilter != 8 || cfg.Strategy.Learning.MinWinRate != 40 {
		t.Fatalf("unexpected learning section: %+v", cfg.Strategy.Learning)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BOT_CAPITAL", "2500000")
	t.Setenv("BOT_ENABLE_LEARNING", "false")
	t.Setenv("BOT_MIN_WIN_RATE", "45.5")
	t.Setenv("BOT_SYMBOLS", "HPG, FPT ,")
	t.Setenv("BOT_TELEGRAM_CHAT_ID", "12345")
	t.Setenv("BOT_COOLDOWN_DAYS", "not-a-number")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Trading.TotalCapital != 2_500_000 {
		t.Fatalf("unexpected capital: %.2f", cfg.Trading.TotalCapital)
	}
	if cfg.Strategy.Learning.Enabled {
		t.Fatal("expected learning disabled")
	}
	if cfg.Strategy.Learning.MinWinRate != 45.5 {
		t.Fatalf("unexpected min win rate: %.2f", cfg.Strategy.Learning.MinWinRate)
	}
	if len(cfg.Trading.Symbols) != 2 || cfg.Trading.Symbols[1] != "FPT" {
		t.Fatalf("unexpected symbols: %+v", cfg.Trading.Symbols)
	}
	if cfg.Telegram.ChatID != 12345 {
		t.Fatalf("unexpected chat id: %d", cfg.Telegram.ChatID)
	}
	if cfg.Strategy.Learning.CooldownDays != 7 {
		t.Fatalf("unparseable value should keep default, got %d", cfg.Strategy.Learning.CooldownDays)
	}
}

func TestValidateTelegramRequiresCredentials(t *testing.T) {
	cfg := Default()
	cfg.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when telegram is enabled without token")
	}
	cfg.Telegram.BotToken = "token"
	cfg.Telegram.ChatID = 42
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
