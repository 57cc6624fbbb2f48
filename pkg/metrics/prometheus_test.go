package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordPrediction("BTC", "ok")
	r.RecordPrediction("BTC", "ok")
	r.RecordMissingRange("normalize", "Foo")
	r.RecordCacheLookup(true)
	r.RecordReload("ok", 3)

	if got := testutil.ToFloat64(r.predictions.WithLabelValues("BTC", "ok")); got != 2 {
		t.Fatalf("predictions: got %v", got)
	}
	if got := testutil.ToFloat64(r.missingRange.WithLabelValues("normalize", "Foo")); got != 1 {
		t.Fatalf("missing range: got %v", got)
	}
	if got := testutil.ToFloat64(r.modelsLoaded); got != 3 {
		t.Fatalf("models loaded: got %v", got)
	}
}

func TestNewTwiceOnSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg)
	b := New(reg)

	a.RecordError("cache")
	if got := testutil.ToFloat64(b.errorsTotal.WithLabelValues("cache")); got != 1 {
		t.Fatalf("second recorder should share collectors, got %v", got)
	}
}
