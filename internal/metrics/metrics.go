// Package metrics exposes audit and grading counters as Prometheus
// metrics. Batch CLIs write them to a node-exporter textfile.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"accountant/internal/audit"
	"accountant/internal/evaluate"
)

const namespace = "accountant"

// Case outcomes used as the "outcome" label.
const (
	OutcomeVerified   = "verified"
	OutcomeRejected   = "rejected"
	OutcomeDuplicate  = "duplicate"
	OutcomeUnresolved = "unresolved"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	Cases           *prometheus.CounterVec
	Violations      *prometheus.CounterVec
	RepairedOffsets prometheus.Counter
	CoverageRatio   prometheus.Gauge
	Scorecards      *prometheus.CounterVec
	Scores          *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Cases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "cases_total",
			Help: "Audited cases by outcome.",
		}, []string{"outcome"}),
		Violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "violations_total",
			Help: "Violations recorded by type.",
		}, []string{"type"}),
		RepairedOffsets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "repaired_offsets_total",
			Help: "Trace items whose claimed offsets were corrected by search.",
		}),
		CoverageRatio: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "audit", Name: "coverage_ratio",
			Help: "Share of registry signals affirmed by at least one verified case.",
		}),
		Scorecards: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "grade", Name: "scorecards_total",
			Help: "Scorecards by task and overall label.",
		}, []string{"task", "label"}),
		Scores: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "grade", Name: "score",
			Help:    "Criterion scores.",
			Buckets: []float64{0.2, 0.4, 0.6, 0.8, 0.9, 1.0},
		}, []string{"criterion"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveAudit records one audit result.
func (m *Metrics) ObserveAudit(res *audit.Result) {
	counts := res.ViolationCounts()
	for t, n := range counts {
		m.Violations.WithLabelValues(string(t)).Add(float64(n))
	}
	verified := len(res.Verified)
	unresolved := len(res.DroppedUnresolved)
	dups := counts[audit.DuplicateCase]
	rejected := res.TotalProcessed - verified - unresolved - dups
	if rejected < 0 {
		rejected = 0
	}
	m.Cases.WithLabelValues(OutcomeVerified).Add(float64(verified))
	m.Cases.WithLabelValues(OutcomeUnresolved).Add(float64(unresolved))
	m.Cases.WithLabelValues(OutcomeDuplicate).Add(float64(dups))
	m.Cases.WithLabelValues(OutcomeRejected).Add(float64(rejected))
	m.RepairedOffsets.Add(float64(res.RepairedOffsets))
	m.CoverageRatio.Set(audit.BuildReport(res).CoverageSummary.CoverageRatio)
}

// ObserveScorecards records graded scorecards.
func (m *Metrics) ObserveScorecards(cards []evaluate.Scorecard) {
	for _, sc := range cards {
		m.Scorecards.WithLabelValues(sc.TaskID, string(sc.OverallLabel)).Inc()
		for crit, r := range sc.Scores {
			m.Scores.WithLabelValues(crit).Observe(r.Score)
		}
	}
}

// WriteTextfile writes the current values in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
