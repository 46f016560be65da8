package performance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/evdnx/protrader/config"
	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/metrics"
	"github.com/evdnx/protrader/types"
)

const secondsPerDay = 24 * 60 * 60

// Filter suppresses or re-weights recommendations for an instrument based
// on its own closed-trade history. Lookup failures are logged and treated
// as "no history"; they never block an evaluation.
type Filter struct {
	history History
	cfg     config.LearningConfig
	log     logger.Logger
	now     func() time.Time
}

// NewFilter validates cfg and binds the filter to a history source.
func NewFilter(history History, cfg config.LearningConfig, log logger.Logger) (*Filter, error) {
	if history == nil {
		return nil, errors.New("performance filter requires a history source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Filter{history: history, cfg: cfg, log: log, now: time.Now}, nil
}

// WithClock returns a copy of the filter that reads the time from now.
func (f *Filter) WithClock(now func() time.Time) *Filter {
	c := *f
	c.now = now
	return &c
}

// Config returns the learning parameters in use.
func (f *Filter) Config() config.LearningConfig { return f.cfg }

func (f *Filter) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, time.Duration(f.cfg.QueryTimeoutMs)*time.Millisecond)
}

// bounded runs query in its own goroutine and gives up when ctx expires,
// so a backend that ignores ctx cannot stall an evaluation. The abandoned
// goroutine finishes into a buffered channel.
func bounded[T any](ctx context.Context, query func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := query(ctx)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Stats returns the aggregate record of symbol, or nil when there is none
// or the lookup failed.
func (f *Filter) Stats(ctx context.Context, symbol string) *types.SymbolStats {
	qctx, cancel := f.queryCtx(ctx)
	defer cancel()
	stats, err := bounded(qctx, func(ctx context.Context) (*types.SymbolStats, error) {
		return f.history.SymbolStats(ctx, symbol)
	})
	if err != nil {
		f.queryFailed("symbol_stats", symbol, err)
		return nil
	}
	return stats
}

func (f *Filter) recentTrades(ctx context.Context, symbol string, limit int) []types.ClosedTrade {
	qctx, cancel := f.queryCtx(ctx)
	defer cancel()
	trades, err := bounded(qctx, func(ctx context.Context) ([]types.ClosedTrade, error) {
		return f.history.RecentTrades(ctx, symbol, limit)
	})
	if err != nil {
		f.queryFailed("recent_trades", symbol, err)
		return nil
	}
	return trades
}

func (f *Filter) queryFailed(op, symbol string, err error) {
	metrics.HistoryErrors.WithLabelValues(op).Inc()
	f.log.Warn("history_query_failed",
		logger.String("op", op),
		logger.String("symbol", symbol),
		logger.Err(err),
	)
}

// ConsecutiveLosses reports whether the most recent trades of symbol, as
// many as the cooldown trigger, were all losses, along with the length of
// the losing streak.
func (f *Filter) ConsecutiveLosses(ctx context.Context, symbol string) (bool, int) {
	n := f.cfg.ConsecutiveLossesForCooldown
	_, streak, ok := f.losingStreak(ctx, symbol, n)
	if !ok {
		return false, 0
	}
	return streak >= n, streak
}

// losingStreak returns the newest trade and the number of leading losses
// among the latest n trades. ok is false when fewer than n trades exist.
func (f *Filter) losingStreak(ctx context.Context, symbol string, n int) (types.ClosedTrade, int, bool) {
	trades := f.recentTrades(ctx, symbol, n)
	if len(trades) < n || len(trades) == 0 {
		return types.ClosedTrade{}, 0, false
	}
	streak := 0
	for _, t := range trades {
		if !t.Loss() {
			break
		}
		streak++
	}
	return trades[0], streak, true
}

// InCooldown reports whether symbol is serving a cooldown after a losing
// streak, with a description of the remaining time.
func (f *Filter) InCooldown(ctx context.Context, symbol string) (bool, string) {
	n := f.cfg.ConsecutiveLossesForCooldown
	last, streak, ok := f.losingStreak(ctx, symbol, n)
	if !ok || streak < n {
		return false, ""
	}
	cooldownEnd := last.CloseTimestamp + int64(f.cfg.CooldownDays)*secondsPerDay
	now := f.now().Unix()
	if now >= cooldownEnd {
		return false, ""
	}
	daysLeft := float64(cooldownEnd-now) / secondsPerDay
	return true, fmt.Sprintf("%d consecutive losses, cooldown for %.1f more days", streak, daysLeft)
}

// ShouldSkip decides whether new recommendations for symbol are
// suppressed. Instruments without enough closed trades are never skipped.
func (f *Filter) ShouldSkip(ctx context.Context, symbol string) (bool, string) {
	stats := f.Stats(ctx, symbol)
	if stats == nil || stats.TotalTrades < f.cfg.MinTradesForFilter {
		return false, ""
	}

	if cooling, why := f.InCooldown(ctx, symbol); cooling {
		metrics.SymbolsSkipped.WithLabelValues("cooldown").Inc()
		return true, "COOLDOWN: " + why
	}
	if stats.WinRate < f.cfg.MinWinRate {
		metrics.SymbolsSkipped.WithLabelValues("low_win_rate").Inc()
		return true, fmt.Sprintf("Low win rate: %.1f%% < %.1f%% (after %d trades)",
			stats.WinRate, f.cfg.MinWinRate, stats.TotalTrades)
	}
	if stats.AvgProfitPct < f.cfg.MinAvgProfitPct {
		metrics.SymbolsSkipped.WithLabelValues("negative_avg_profit").Inc()
		return true, fmt.Sprintf("Negative avg profit: %.2f%%", stats.AvgProfitPct)
	}
	return false, ""
}

// AdjustConfidence applies the history-driven deltas to base and returns
// the clamped result with an explanation. Without enough history base is
// returned unchanged.
func (f *Filter) AdjustConfidence(ctx context.Context, symbol string, base float64) (float64, string) {
	stats := f.Stats(ctx, symbol)
	if stats == nil || stats.TotalTrades < f.cfg.MinTradesForFilter {
		return base, "No historical data"
	}

	var (
		delta   float64
		reasons []string
	)

	switch wr := stats.WinRate; {
	case wr >= 70:
		delta += 10
		reasons = append(reasons, fmt.Sprintf("High win rate (%.1f%%): +10", wr))
	case wr >= 60:
		delta += 5
		reasons = append(reasons, fmt.Sprintf("Good win rate (%.1f%%): +5", wr))
	case wr <= 40:
		delta -= 10
		reasons = append(reasons, fmt.Sprintf("Low win rate (%.1f%%): -10", wr))
	case wr <= 50:
		delta -= 5
		reasons = append(reasons, fmt.Sprintf("Below avg win rate (%.1f%%): -5", wr))
	}

	switch avg := stats.AvgProfitPct; {
	case avg >= 5:
		delta += 5
		reasons = append(reasons, fmt.Sprintf("High avg profit (%.2f%%): +5", avg))
	case avg >= 3:
		delta += 3
		reasons = append(reasons, fmt.Sprintf("Good avg profit (%.2f%%): +3", avg))
	case avg < 0:
		delta -= 5
		reasons = append(reasons, fmt.Sprintf("Negative avg profit (%.2f%%): -5", avg))
	}

	recent := f.recentTrades(ctx, symbol, f.cfg.RecentWindow)
	if len(recent) >= f.cfg.RecentMinTrades {
		wins := 0
		for _, t := range recent {
			if t.Win() {
				wins++
			}
		}
		recentRate := float64(wins) / float64(len(recent)) * 100
		if recentRate >= 80 {
			delta += 5
			reasons = append(reasons, fmt.Sprintf("Hot streak (%.0f%% recent): +5", recentRate))
		} else if recentRate <= 20 {
			delta -= 5
			reasons = append(reasons, fmt.Sprintf("Cold streak (%.0f%% recent): -5", recentRate))
		}
	}

	adjusted := math.Max(0, math.Min(100, base+delta))
	metrics.ConfidenceAdjustment.Observe(adjusted - base)

	detail := "no adjustment"
	if len(reasons) > 0 {
		detail = strings.Join(reasons, ", ")
	}
	return adjusted, fmt.Sprintf("Base: %.1f%% → Adjusted: %.1f%% (%s)", base, adjusted, detail)
}

// Rankings lists instruments with at least the filtering minimum of closed
// trades, best total profit first. A failed lookup yields an empty list.
func (f *Filter) Rankings(ctx context.Context) []types.SymbolStats {
	qctx, cancel := f.queryCtx(ctx)
	defer cancel()
	rankings, err := bounded(qctx, func(ctx context.Context) ([]types.SymbolStats, error) {
		return f.history.Rankings(ctx, f.cfg.MinTradesForFilter)
	})
	if err != nil {
		f.queryFailed("rankings", "", err)
		return nil
	}
	return rankings
}
