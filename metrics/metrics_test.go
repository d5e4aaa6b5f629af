package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	check := func(name string, got, exp float64) {
		t.Helper()
		if got != exp {
			t.Fatalf("%s: got %v, expected %v", name, got, exp)
		}
	}

	fields := testutil.ToFloat64(metricHeaderField.WithLabelValues("malformed"))
	HeaderFieldInc("malformed")
	HeaderFieldInc("malformed")
	check("header fields", testutil.ToFloat64(metricHeaderField.WithLabelValues("malformed")), fields+2)

	words := testutil.ToFloat64(metricEncodedWord.WithLabelValues("b"))
	EncodedWordInc("b")
	check("encoded words", testutil.ToFloat64(metricEncodedWord.WithLabelValues("b")), words+1)

	parts := testutil.ToFloat64(metricParts)
	PartsInc()
	check("parts", testutil.ToFloat64(metricParts), parts+1)

	panics := testutil.ToFloat64(metricPanic.WithLabelValues("message"))
	PanicInc("message")
	check("panics", testutil.ToFloat64(metricPanic.WithLabelValues("message")), panics+1)

	SegmentSearchObserve(17)
	if n := testutil.CollectAndCount(metricSegmentNodes); n != 1 {
		t.Fatalf("segment search histogram: got %d metrics, expected 1", n)
	}
}
