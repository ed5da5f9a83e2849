package alerting

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/herald/internal/gate"
)

// Run outcomes reported to hooks.
const (
	OutcomeOK           = "ok"
	OutcomeDryRun       = "dry_run"
	OutcomePublishError = "publish_error"
	OutcomeLocked       = "locked"
	OutcomeStateError   = "state_error"
	OutcomeCanceled     = "canceled"
)

// RunHooks receive lifecycle events from the Service. Nil fields are skipped.
type RunHooks struct {
	OnRun     func(outcome string, r *RunReport)
	OnAlert   func(outcome string, manual bool)
	OnPublish func(target, outcome string, seconds float64)
	OnSeen    func(ids, titles int)
}

// Metrics holds Prometheus metrics for the alerting subsystem.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	IngestTotal     *prometheus.CounterVec
	GateTotal       *prometheus.CounterVec
	AlertsTotal     *prometheus.CounterVec
	PublishTotal    *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
	SeenIDs         prometheus.Gauge
	SeenTitles      prometheus.Gauge
}

// NewMetrics registers and returns alerting metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_runs_total",
			Help: "Total engine runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "herald_run_duration_seconds",
			Help:    "Duration of engine runs in seconds, publishing included.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~102s
		}, []string{"outcome"}),
		IngestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_ingest_items_total",
			Help: "Raw records by what happened to them before the gate.",
		}, []string{"result"}),
		GateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_gate_decisions_total",
			Help: "Gate decisions by terminal status.",
		}, []string{"status"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_alerts_total",
			Help: "Alerts handed to publishers by outcome.",
		}, []string{"outcome", "manual"}),
		PublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_publish_total",
			Help: "Deliveries per publish target by outcome.",
		}, []string{"target", "outcome"}),
		PublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "herald_publish_duration_seconds",
			Help:    "Duration of single deliveries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"target"}),
		SeenIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_seen_ids",
			Help: "Item IDs held in the seen state after the last commit.",
		}),
		SeenTitles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_seen_titles",
			Help: "Title fingerprints held in the seen state after the last commit.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.IngestTotal,
		m.GateTotal,
		m.AlertsTotal,
		m.PublishTotal,
		m.PublishDuration,
		m.SeenIDs,
		m.SeenTitles,
	)

	return m
}

// Hooks returns RunHooks that update the corresponding metrics.
func (m *Metrics) Hooks() RunHooks {
	return RunHooks{
		OnRun: func(outcome string, r *RunReport) {
			m.RunsTotal.WithLabelValues(outcome).Inc()
			if r == nil {
				return
			}
			m.RunDuration.WithLabelValues(outcome).Observe(r.Duration)

			in := r.Ingest
			for result, n := range map[string]int{
				"dropped":       in.Dropped,
				"stale":         in.Stale,
				"noise":         in.Noise,
				"unmatched":     in.Unmatched,
				"no_anchor":     in.NoAnchor,
				"duplicate_url": in.DuplicateURL,
				"clustered":     in.Clustered,
				"candidate":     in.Representatives,
			} {
				m.IngestTotal.WithLabelValues(result).Add(float64(n))
			}
			for _, st := range gate.Statuses {
				m.GateTotal.WithLabelValues(string(st)).Add(float64(r.Gate.Count(st)))
			}
		},
		OnAlert: func(outcome string, manual bool) {
			label := "false"
			if manual {
				label = "true"
			}
			m.AlertsTotal.WithLabelValues(outcome, label).Inc()
		},
		OnPublish: func(target, outcome string, seconds float64) {
			m.PublishTotal.WithLabelValues(target, outcome).Inc()
			m.PublishDuration.WithLabelValues(target).Observe(seconds)
		},
		OnSeen: func(ids, titles int) {
			m.SeenIDs.Set(float64(ids))
			m.SeenTitles.Set(float64(titles))
		},
	}
}
