// Package metrics exposes prometheus collectors for the gateway. They are
// served by the optional diagnostics listener.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "funcgate_requests_total",
		Help: "HTTP requests handled by the gateway, by response code.",
	}, []string{"code"})

	InvocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "funcgate_invocations_total",
		Help: "Function invocations, by function name and outcome.",
	}, []string{"function", "outcome"})

	InvocationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "funcgate_invocation_duration_seconds",
		Help:    "Wall-clock invocation duration, by function name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"function"})
)

func init() {
	prometheus.MustRegister(RequestsTotal, InvocationsTotal, InvocationDuration)
}

// ObserveRequest records one completed gateway request.
func ObserveRequest(code int) {
	RequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveInvocation records one completed function invocation.
func ObserveInvocation(function, outcome string, elapsed time.Duration) {
	InvocationsTotal.WithLabelValues(function, outcome).Inc()
	InvocationDuration.WithLabelValues(function).Observe(elapsed.Seconds())
}
