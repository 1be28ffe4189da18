// Package obs exposes prometheus metrics for the trading loop.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TradesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_executed_total", Help: "Trades booked by the paper engine"},
		[]string{"kind"},
	)
	TradesSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_settled_total", Help: "Trades settled against a market resolution"},
		[]string{"result"},
	)
	BreakerTrips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "breaker_trips_total", Help: "Circuit breaker activations"},
	)
	FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fetch_failures_total", Help: "Upstream fetch failures"},
		[]string{"source"},
	)
	TicksSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ticks_skipped_total", Help: "Ticks skipped because the previous one was still running"},
	)
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tick_duration_seconds",
			Help:    "Duration of one coordinator tick",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
	PortfolioBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "portfolio_balance", Help: "Current paper balance"},
	)
)

func init() {
	prometheus.MustRegister(
		TradesExecuted,
		TradesSettled,
		BreakerTrips,
		FetchFailures,
		TicksSkipped,
		TickDuration,
		PortfolioBalance,
	)
}

// Serve exposes /metrics on addr. The listener shuts down with the
// process; callers may Close the returned server earlier.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
