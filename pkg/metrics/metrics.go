package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersAccepted counts orders accepted by the engine, by side (buy/sell)
var OrdersAccepted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orbitex_orders_accepted_total",
		Help: "Total number of orders accepted by the matching engine",
	},
	[]string{"side"},
)

// OrdersRejected counts rejected orders by reason
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orbitex_orders_rejected_total",
		Help: "Total number of orders rejected before entering the book",
	},
	[]string{"reason"},
)

// TradesSettled counts settled trades
var TradesSettled = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "orbitex_trades_settled_total",
		Help: "Total number of trades settled",
	},
)

// MatchLatency records latency distribution for taker execution
var MatchLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "orbitex_match_latency_seconds",
		Help:    "Latency in seconds to match a single taker order",
		Buckets: prometheus.DefBuckets,
	},
)

// SettlementLatency records latency distribution for trade settlement
var SettlementLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "orbitex_settlement_latency_seconds",
		Help:    "Latency in seconds to settle a single match pair",
		Buckets: prometheus.DefBuckets,
	},
)

// BookDepth tracks the number of resting orders per pair and side
var BookDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "orbitex_book_depth_orders",
		Help: "Number of resting orders in the book",
	},
	[]string{"pair", "side"},
)

func init() {
	prometheus.MustRegister(OrdersAccepted, OrdersRejected, TradesSettled)
	prometheus.MustRegister(MatchLatency, SettlementLatency, BookDepth)
}
