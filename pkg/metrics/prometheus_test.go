package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordEpisode("valid", "done")
	r.RecordEpisode("valid", "done")
	r.RecordMacroStep("test", 0.5)
	r.RecordMacroStep("test", 0)
	r.RecordFinalBalance("test", 12.5)
	r.RecordError("provider_unavailable")

	if got := testutil.ToFloat64(r.episodes.WithLabelValues("valid", "done")); got != 2 {
		t.Fatalf("episodes: got %v", got)
	}
	if got := testutil.ToFloat64(r.macroSteps.WithLabelValues("test")); got != 2 {
		t.Fatalf("macro steps: got %v", got)
	}
	if got := testutil.ToFloat64(r.commission.WithLabelValues("test")); got != 0.5 {
		t.Fatalf("commission: got %v", got)
	}
	if got := testutil.ToFloat64(r.finalBalance.WithLabelValues("test")); got != 12.5 {
		t.Fatalf("final balance: got %v", got)
	}

	// a second recorder on its own registry must not panic
	NewWithRegistry(prometheus.NewRegistry())
}
