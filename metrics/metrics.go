package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evdnx/protrader/logger"
)

var (
	SignalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protrader_signals_generated_total",
			Help: "Total number of signals generated (by strategy and classification).",
		},
		[]string{"strategy", "signal_type"},
	)

	SymbolsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protrader_symbols_skipped_total",
			Help: "Evaluations suppressed by the performance filter.",
		},
		[]string{"reason"},
	)

	ConfidenceAdjustment = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "protrader_confidence_adjustment",
			Help:    "Delta applied to rule-based confidence from trade history.",
			Buckets: []float64{-20, -15, -10, -5, 0, 5, 10, 15, 20},
		},
	)

	RiskPlansInvalid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protrader_risk_plans_invalid_total",
			Help: "Signals emitted with a risk plan that failed validation.",
		},
		[]string{"strategy"},
	)

	HistoryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protrader_history_errors_total",
			Help: "Failed trade-history lookups (treated as no history).",
		},
		[]string{"op"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protrader_notifications_total",
			Help: "Signal deliveries by channel and outcome.",
		},
		[]string{"channel", "status"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "protrader_positions_open",
			Help: "Current number of open paper positions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsGenerated,
		SymbolsSkipped,
		ConfidenceAdjustment,
		RiskPlansInvalid,
		HistoryErrors,
		Notifications,
		PositionsOpen,
	)
}

// Serve exposes the default registry on /metrics in the background.
// Listen failures are logged; a nil log discards them.
func Serve(addr string, log logger.Logger) *http.Server {
	if log == nil {
		log = logger.Nop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_failed", logger.String("addr", addr), logger.Err(err))
		}
	}()
	return srv
}
