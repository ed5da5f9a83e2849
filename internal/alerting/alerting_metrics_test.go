package alerting

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_HooksFromRun(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newFixture(nil, WithHooks(m.Hooks()))

	if _, err := f.svc.Run(context.Background(), fixtureBatch()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeOK)); got != 1 {
		t.Errorf("runs ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AlertsTotal.WithLabelValues("published", "false")); got != 2 {
		t.Errorf("alerts published = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.GateTotal.WithLabelValues("REJECTED_SCORE")); got != 1 {
		t.Errorf("gate rejected_score = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.IngestTotal.WithLabelValues("stale")); got != 1 {
		t.Errorf("ingest stale = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SeenIDs); got != 2 {
		t.Errorf("seen ids gauge = %v, want 2", got)
	}
}

func TestMetrics_AbortedRunCountsOutcomeOnly(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	h := m.Hooks()
	h.OnRun(OutcomeLocked, nil)
	h.OnPublish("slack", "ok", 0.2)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeLocked)); got != 1 {
		t.Errorf("runs locked = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RunDuration); got != 0 {
		t.Errorf("duration series = %d, want 0", got)
	}
	if got := testutil.ToFloat64(m.PublishTotal.WithLabelValues("slack", "ok")); got != 1 {
		t.Errorf("publish ok = %v, want 1", got)
	}
}
