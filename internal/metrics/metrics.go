package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rpc_requests_total", Help: "Solana RPC calls by endpoint, method, and outcome"},
		[]string{"endpoint", "method", "outcome"},
	)
	EndpointSwitchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "endpoint_switches_total", Help: "RPC endpoint failovers"},
	)
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quotes_total", Help: "Aggregator quote requests by outcome"},
		[]string{"outcome"},
	)
	SwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "swaps_total", Help: "Swap submissions by terminal status"},
		[]string{"status"},
	)
	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "transfers_total", Help: "Transfer submissions by terminal status"},
		[]string{"status"},
	)
	SweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sweeps_total", Help: "Balance sweeps submitted"},
	)
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_total", Help: "Balance alerts by level"},
		[]string{"level"},
	)
	WalletBalanceLamports = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "wallet_balance_lamports", Help: "Last observed wallet balance in lamports"},
		[]string{"wallet"},
	)
	ConfirmSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "confirm_seconds",
			Help:    "Time from send to confirmed/finalized status",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(
		RPCRequestsTotal,
		EndpointSwitchesTotal,
		QuotesTotal,
		SwapsTotal,
		TransfersTotal,
		SweepsTotal,
		AlertsTotal,
		WalletBalanceLamports,
		ConfirmSeconds,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
