// metrics/metrics.go

// Package metrics exposes Prometheus counters for CORS decision outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Decision kinds.
const (
	KindSimple    = "simple"
	KindPreflight = "preflight"
	KindWebsocket = "websocket"
)

// Decision outcomes.
const (
	OutcomeAllowed        = "allowed"
	OutcomeNoOrigin       = "no_origin"
	OutcomeOriginMismatch = "origin_mismatch"
	OutcomeMethodRejected = "method_rejected"
	OutcomeHeaderRejected = "header_rejected"
	OutcomeOriginRejected = "origin_rejected"
	OutcomeExempt         = "exempt"
)

// decisions counts CORS decisions by kind (simple, preflight, websocket)
// and outcome. Label cardinality is fixed by the constant sets above, so
// the counter is safe to keep per-process.
var decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cors_decisions_total",
		Help: "CORS decisions by request kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// RegisterDefault registers the Go runtime and process collectors plus the
// CORS decision counter. Safe to call more than once; duplicate
// registrations are ignored.
func RegisterDefault(logger *zap.Logger) {
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mustRegister(logger, "CORS decision counter", decisions)
}

// mustRegister attempts to register a Prometheus collector. Already-registered
// collectors are tolerated (tests, repeated RegisterDefault calls); any other
// failure is a configuration problem worth stopping for.
func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
		if logger != nil {
			logger.Fatal("failed to register "+name, zap.Error(err))
		} else {
			panic("metrics: failed to register " + name + ": " + err.Error())
		}
	}
}

// Observe records one decision outcome. Counts only become visible to
// scrapers once RegisterDefault has run.
func Observe(kind, outcome string) {
	decisions.WithLabelValues(kind, outcome).Inc()
}

// Handler returns an http.Handler that exposes the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
