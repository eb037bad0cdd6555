package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_bot_cycles_total",
			Help: "Trading cycles by result (ok, failed).",
		},
		[]string{"result"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spot_bot_cycle_duration_seconds",
			Help:    "Wall time of one trading cycle.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_bot_orders_total",
			Help: "Market orders sent to the venue by side and result.",
		},
		[]string{"side", "result"},
	)

	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_bot_symbol_outcomes_total",
			Help: "Per-symbol cycle outcomes by kind.",
		},
		[]string{"kind"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spot_bot_positions_open",
			Help: "Open positions after the last cycle.",
		},
	)

	QuoteBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spot_bot_quote_balance",
			Help: "Free quote currency balance read at the start of the last cycle.",
		},
	)

	ConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spot_bot_consecutive_failures",
			Help: "Failed cycles in a row.",
		},
	)

	StoreCorruptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spot_bot_store_corrupt_total",
			Help: "Loads that found the position store corrupt.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CycleDuration,
		OrdersTotal,
		OutcomesTotal,
		PositionsOpen,
		QuoteBalance,
		ConsecutiveFailures,
		StoreCorruptTotal,
	)
}
