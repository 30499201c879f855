package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Watcher counters and histograms. The loop label is "shared" for the
// single multi-wallet loop, or the wallet address in per-wallet mode.

var (
	// Monitor
	MonitorTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approvewatch",
		Subsystem: "monitor",
		Name:      "ticks_total",
		Help:      "Total polling ticks",
	}, []string{"loop"})

	MonitorTickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approvewatch",
		Subsystem: "monitor",
		Name:      "tick_errors_total",
		Help:      "Ticks aborted by an RPC or decode error (range retried)",
	}, []string{"loop"})

	MonitorBlocksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approvewatch",
		Subsystem: "monitor",
		Name:      "blocks_processed_total",
		Help:      "Blocks fetched and fully handled",
	}, []string{"loop"})

	MonitorCursor = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "approvewatch",
		Subsystem: "monitor",
		Name:      "cursor_height",
		Help:      "Last processed block height",
	}, []string{"loop"})

	MonitorTickLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "approvewatch",
		Subsystem: "monitor",
		Name:      "tick_duration_seconds",
		Help:      "Tick processing duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"loop"})

	TransactionsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approvewatch",
		Subsystem: "monitor",
		Name:      "transactions_classified_total",
		Help:      "Watched transactions by category",
	}, []string{"category"})

	// Trigger
	TriggerOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approvewatch",
		Subsystem: "trigger",
		Name:      "orders_total",
		Help:      "Orders handed to the trader, by side and result",
	}, []string{"side", "result"})

	TriggerArmedWallets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "approvewatch",
		Subsystem: "trigger",
		Name:      "armed_wallets",
		Help:      "Wallets currently armed (buy issued, no sell yet)",
	})

	// Tokens
	TokenLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approvewatch",
		Subsystem: "tokens",
		Name:      "lookups_total",
		Help:      "Token metadata lookups by result (hit, miss, unknown)",
	}, []string{"result"})

	// RPC
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "approvewatch",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "JSON-RPC call latency",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method"})

	RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approvewatch",
		Subsystem: "rpc",
		Name:      "errors_total",
		Help:      "JSON-RPC call failures",
	}, []string{"method"})

	RPCRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "approvewatch",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Calls delayed by the client-side rate limiter",
	})
)
