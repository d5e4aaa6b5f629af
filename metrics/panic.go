package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPanic = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mimecodec_panic_total",
		Help: "Number of unhandled panics, by package.",
	},
	[]string{
		"pkg",
	},
)

// PanicInc counts a recovered panic, e.g. from a parser on unexpected input.
func PanicInc(pkg string) {
	metricPanic.WithLabelValues(pkg).Inc()
}
