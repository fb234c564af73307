package diagnosis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Metrics are registered with the controller-runtime registry so the
// operator's metrics endpoint exposes them alongside the manager's own.
var (
	// RunsTotal counts completed runs by verdict.
	RunsTotal = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gopher_doctor",
			Subsystem: "diagnosis",
			Name:      "runs_total",
			Help:      "Total number of completed diagnostic runs",
		},
		[]string{"verdict"},
	)

	// IssuesTotal counts triage issues by severity.
	IssuesTotal = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gopher_doctor",
			Subsystem: "diagnosis",
			Name:      "issues_total",
			Help:      "Total number of triage issues found",
		},
		[]string{"severity"},
	)

	// StageDuration observes how long each pipeline stage took.
	StageDuration = promauto.With(metrics.Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gopher_doctor",
			Subsystem: "diagnosis",
			Name:      "stage_duration_seconds",
			Help:      "Diagnostic pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)
)
