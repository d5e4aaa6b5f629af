// Package metrics has prometheus collectors for the codec, registered with the
// default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricHeaderField = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimecodec_header_fields_total",
			Help: "Header fields loaded, by result.",
		},
		[]string{
			"result", // ok, malformed, toolarge
		},
	)
	metricEncodedWord = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimecodec_encoded_words_total",
			Help: "Encoded-words written, by encoding.",
		},
		[]string{
			"encoding", // q, b
		},
	)
	metricSegmentNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mimecodec_segment_search_nodes",
			Help:    "Nodes in the search for the smallest parameter segmentation.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		},
	)
	metricParts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mimecodec_parts_total",
			Help: "Multipart body parts read.",
		},
	)
)

func HeaderFieldInc(result string) {
	metricHeaderField.WithLabelValues(result).Inc()
}

func EncodedWordInc(encoding string) {
	metricEncodedWord.WithLabelValues(encoding).Inc()
}

func SegmentSearchObserve(nodes int) {
	metricSegmentNodes.Observe(float64(nodes))
}

func PartsInc() {
	metricParts.Inc()
}
