// Package metrics exposes simulation counters for Prometheus scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quantfolio_fills_total", Help: "Fills executed by the simulator"},
		[]string{"strategy", "side"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quantfolio_rejections_total", Help: "Signals rejected before execution"},
		[]string{"stage"},
	)
	StopExitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "quantfolio_stop_exits_total", Help: "Forced exits triggered by stop-loss breaches"},
	)
	InjectedSignalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "quantfolio_injected_signals_total", Help: "Synthetic signals produced in injection mode"},
	)
	GuardrailFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "quantfolio_guardrail_failures_total", Help: "Window boundary guardrail failures"},
	)
	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "quantfolio_equity", Help: "Mark-to-market equity at the last simulated period"},
	)
)

func init() {
	prometheus.MustRegister(FillsTotal, RejectionsTotal, StopExitsTotal, InjectedSignalsTotal, GuardrailFailuresTotal, Equity)
}

// Serve starts an HTTP server exposing /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
