package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/evdnx/protrader/config"
	"github.com/evdnx/protrader/executor"
	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/metrics"
	"github.com/evdnx/protrader/notify"
	"github.com/evdnx/protrader/performance"
	"github.com/evdnx/protrader/storage/sqlite"
	"github.com/evdnx/protrader/strategy"
	"github.com/evdnx/protrader/types"
)

// app carries what every subcommand needs once the root has loaded it.
type app struct {
	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var cfgPath, envFile string

	root := &cobra.Command{
		Use:           "protrader",
		Short:         "ProTrader - layered trading signal engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load env file: %w", err)
			}
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			var log logger.Logger
			if cfg.App.LogLevel == "" {
				log, err = logger.NewZapLogger()
			} else {
				log, err = logger.NewZapLoggerWithLevel(cfg.App.LogLevel)
			}
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			a.cfg, a.log = cfg, log
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML configuration file (defaults when empty)")
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with BOT_* overrides")

	root.AddCommand(newEvaluateCmd(a))
	root.AddCommand(newMonitorCmd(a))
	root.AddCommand(newCloseCmd(a))
	root.AddCommand(newRankingsCmd(a))
	root.AddCommand(newInfoCmd(a))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// snapshotInput is one evaluation request as read from JSON.
type snapshotInput struct {
	Symbol     string         `json:"symbol"`
	Timeframe  string         `json:"timeframe"`
	Timestamp  int64          `json:"timestamp"`
	Price      float64        `json:"price"`
	Indicators types.Snapshot `json:"indicators"`
}

// priceTick is one observed price for the monitor.
type priceTick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

func newEvaluateCmd(a *app) *cobra.Command {
	var input string
	var save, send bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate indicator snapshots and print the resulting signals",
		Long: `Reads one or more JSON snapshot objects ({"symbol","price","indicators",...})
from --input (stdin by default) and prints the generated signals as JSON. Without a
configured storage path the performance filter reads an empty in-memory ledger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, closeInput, err := openInput(input)
			if err != nil {
				return err
			}
			defer closeInput()

			var store *sqlite.Store
			if save {
				if store, err = a.requireStore(); err != nil {
					return err
				}
				defer store.Close()
			}

			var history performance.History
			if a.cfg.Strategy.Learning.Enabled {
				if store == nil {
					if store, err = a.openStore(); err != nil {
						return err
					}
					if store != nil {
						defer store.Close()
					}
				}
				history, _ = a.tradeHistory(store)
			}
			hybrid, err := strategy.NewHybrid(a.cfg.Strategy, history, a.log)
			if err != nil {
				return err
			}

			var out []*types.Signal
			dec := json.NewDecoder(r)
			for {
				var in snapshotInput
				if err := dec.Decode(&in); err == io.EOF {
					break
				} else if err != nil {
					return fmt.Errorf("decode snapshot: %w", err)
				}
				sig, err := hybrid.GenerateSignal(ctx, strategy.Request{
					Symbol:       in.Symbol,
					Timeframe:    in.Timeframe,
					Timestamp:    in.Timestamp,
					Price:        in.Price,
					Indicators:   in.Indicators,
					TotalCapital: a.cfg.Trading.TotalCapital,
				})
				if err != nil {
					return err
				}
				if sig == nil {
					continue
				}
				if save {
					if _, err := store.SaveSignal(ctx, sig); err != nil {
						return err
					}
				}
				out = append(out, sig)
			}

			if send {
				fan, closeFan, err := a.buildFanout()
				if err != nil {
					return err
				}
				defer closeFan()
				sent, err := fan.NotifyBatch(ctx, out)
				if err != nil {
					a.log.Warn("notification_failed", logger.Err(err))
				}
				a.log.Info("notifications_sent", logger.Int("sent", sent), logger.Int("signals", len(out)))
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "snapshot file, - for stdin")
	cmd.Flags().BoolVar(&save, "save", false, "persist generated signals")
	cmd.Flags().BoolVar(&send, "notify", false, "deliver qualifying signals to telegram/kafka")
	return cmd
}

// monitorResult is the summary printed when the tick stream ends.
type monitorResult struct {
	Closed      []types.ClosedTrade `json:"closed"`
	Open        []executor.Position `json:"open"`
	Performance []types.SymbolStats `json:"performance"`
}

func newMonitorCmd(a *app) *cobra.Command {
	var input, signalsPath string
	var maxHoldDays int

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Track buy signals as paper positions against a stream of price ticks",
		Long: `Opens paper positions for the open buy signals in the store and for the signals
in --signals (the output of evaluate), then closes each one when a tick
({"symbol","price","timestamp"}) reaches its stop-loss or take-profit. Closed trades are
recorded in the store, or in an in-memory ledger when no storage path is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.cfg.App.MetricsAddr != "" {
				srv := metrics.Serve(a.cfg.App.MetricsAddr, a.log)
				defer srv.Close()
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}
			history, recorder := a.tradeHistory(store)

			exec := executor.NewPaperExecutor(a.cfg.Trading.TotalCapital, a.log)
			tracker, err := executor.NewPaperTracker(exec, recorder, a.log)
			if err != nil {
				return err
			}
			tracker.SetMaxHoldDays(maxHoldDays)

			if store != nil {
				if err := a.restorePositions(ctx, store, tracker); err != nil {
					return err
				}
			}
			if signalsPath != "" {
				if err := a.openSignals(ctx, signalsPath, store, tracker); err != nil {
					return err
				}
			}

			var closer interface {
				NotifyClosed(context.Context, types.ClosedTrade) error
			}
			if a.cfg.Telegram.Enabled {
				tg, err := a.newTelegram()
				if err != nil {
					return err
				}
				closer = tg
			}

			r, closeInput, err := openInput(input)
			if err != nil {
				return err
			}
			defer closeInput()

			res := monitorResult{}
			dec := json.NewDecoder(r)
			for ctx.Err() == nil {
				var tick priceTick
				if err := dec.Decode(&tick); err == io.EOF {
					break
				} else if err != nil {
					return fmt.Errorf("decode tick: %w", err)
				}
				if tick.Timestamp == 0 {
					tick.Timestamp = time.Now().Unix()
				}
				trade, err := tracker.OnPrice(ctx, tick.Symbol, tick.Price, tick.Timestamp)
				if err != nil {
					a.log.Error("tick_failed", logger.String("symbol", tick.Symbol), logger.Err(err))
				}
				if trade == nil {
					continue
				}
				res.Closed = append(res.Closed, *trade)
				if closer != nil {
					if err := closer.NotifyClosed(ctx, *trade); err != nil {
						a.log.Warn("notification_failed", logger.String("symbol", trade.Symbol), logger.Err(err))
					}
				}
			}

			res.Open = tracker.Positions()
			if res.Performance, err = history.Rankings(ctx, 1); err != nil {
				return fmt.Errorf("performance summary: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "price tick file, - for stdin")
	cmd.Flags().StringVar(&signalsPath, "signals", "", "JSON array of signals to open as paper positions")
	cmd.Flags().IntVar(&maxHoldDays, "max-hold-days", 0, "close positions held longer than this many days (0 disables)")
	return cmd
}

// restorePositions re-opens every open buy signal of the store and records
// the paper fill of those not yet executed.
func (a *app) restorePositions(ctx context.Context, store *sqlite.Store, tracker *executor.PaperTracker) error {
	open, err := store.OpenSignals(ctx)
	if err != nil {
		return err
	}
	for _, o := range open {
		if err := tracker.Restore(restoredPosition(o, a.cfg.Trading.TotalCapital)); err != nil {
			a.log.Warn("position_restore_failed", logger.Int64("signal_id", o.ID), logger.Err(err))
			continue
		}
		if !o.Executed {
			if err := store.MarkExecuted(ctx, o.ID, o.EntryPrice, o.OpenedAt); err != nil {
				return err
			}
		}
	}
	return nil
}

// openSignals opens positions for the signals in path. With a store each
// signal is saved first and marked executed once its position is open.
func (a *app) openSignals(ctx context.Context, path string, store *sqlite.Store, tracker *executor.PaperTracker) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read signals: %w", err)
	}
	var sigs []*types.Signal
	if err := json.Unmarshal(raw, &sigs); err != nil {
		return fmt.Errorf("decode signals: %w", err)
	}
	for _, sig := range sigs {
		if sig == nil || !sig.IsBuy() {
			continue
		}
		var id int64
		if store != nil {
			if id, err = store.SaveSignal(ctx, sig); err != nil {
				return err
			}
		}
		opened, err := tracker.Open(sig, id)
		if err != nil {
			a.log.Warn("position_open_failed", logger.String("symbol", sig.Symbol), logger.Err(err))
			continue
		}
		if opened && store != nil {
			if err := store.MarkExecuted(ctx, id, sig.Price, sig.Timestamp); err != nil {
				return err
			}
		}
	}
	return nil
}

// restoredPosition sizes a stored signal against the starting capital, so
// the order in which positions are restored does not change their size.
func restoredPosition(o sqlite.OpenSignal, capital float64) executor.Position {
	qty := 1.0
	if o.SizePct > 0 && o.EntryPrice > 0 {
		if q := float64(int64(capital * o.SizePct / 100 / o.EntryPrice)); q > 0 {
			qty = q
		}
	}
	return executor.Position{
		SignalID:   o.ID,
		Symbol:     o.Symbol,
		SignalType: o.SignalType,
		Qty:        qty,
		EntryPrice: o.EntryPrice,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		OpenedAt:   o.OpenedAt,
	}
}

func newCloseCmd(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "close [SIGNAL_ID] [PRICE]",
		Short: "Close a stored signal at an exit price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid signal id %q: %w", args[0], err)
			}
			price, err := strconv.ParseFloat(args[1], 64)
			if err != nil || price <= 0 {
				return fmt.Errorf("invalid price %q", args[1])
			}

			store, err := a.requireStore()
			if err != nil {
				return err
			}
			defer store.Close()

			trade, err := store.CloseSignal(cmd.Context(), id, price, reason, time.Now().Unix())
			if err != nil {
				return err
			}
			a.log.Info("signal_closed",
				logger.Int64("signal_id", id),
				logger.String("symbol", trade.Symbol),
				logger.Float64("pnl_pct", trade.ProfitLossPct),
			)
			return writeJSON(cmd.OutOrStdout(), trade)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", types.CloseManual, "close reason recorded with the trade")
	return cmd
}

func newRankingsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rankings",
		Short: "List instruments by total closed-trade profit",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.requireStore()
			if err != nil {
				return err
			}
			defer store.Close()

			cfg := a.cfg.Strategy
			cfg.Learning.Enabled = true
			hybrid, err := strategy.NewHybrid(cfg, store, a.log)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), hybrid.Rankings(cmd.Context()))
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the configured strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			hybrid, err := strategy.NewHybrid(a.cfg.Strategy, nil, a.log)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), hybrid.Info())
		},
	}
}

// openStore opens the configured sqlite store, or returns nil when no
// storage path is configured.
func (a *app) openStore() (*sqlite.Store, error) {
	if a.cfg.Storage.Path == "" {
		return nil, nil
	}
	return sqlite.Open(a.cfg.Storage.Path)
}

// requireStore is openStore for commands that only work against the store.
func (a *app) requireStore() (*sqlite.Store, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("storage path is not configured")
	}
	return store, nil
}

// tradeHistory returns the store as the trade history, or an in-memory
// ledger when there is none.
func (a *app) tradeHistory(store *sqlite.Store) (performance.History, performance.TradeRecorder) {
	if store != nil {
		return store, store
	}
	a.log.Info("using_in_memory_ledger")
	ledger := performance.NewLedger()
	return ledger, ledger
}

func (a *app) newTelegram() (*notify.TelegramNotifier, error) {
	return notify.NewTelegramNotifier(notify.TelegramConfig{
		BaseURL:  a.cfg.Telegram.BaseURL,
		BotToken: a.cfg.Telegram.BotToken,
		ChatID:   a.cfg.Telegram.ChatID,
		Location: time.Local,
	}, a.log)
}

func (a *app) buildFanout() (*notify.Fanout, func(), error) {
	var notifiers []notify.Notifier
	closeFn := func() {}

	if a.cfg.Telegram.Enabled {
		tg, err := a.newTelegram()
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, tg)
	}
	if a.cfg.Kafka.Enabled {
		pub, err := notify.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.log)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, pub)
		closeFn = func() { _ = pub.Close() }
	}

	fan := notify.NewFanout(a.log, notifiers,
		notify.WithMinConfidence(a.cfg.Trading.MinConfidence),
		notify.WithSkipInvalidRisk(a.cfg.Trading.SkipInvalidRisk),
	)
	if fan.Len() == 0 {
		a.log.Warn("no_notifiers_enabled")
	}
	return fan, closeFn, nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
