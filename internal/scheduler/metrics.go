package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/enrichment-cli/internal/model"
)

// Metrics are the run counters exposed at /metrics.
type Metrics struct {
	Companies    *prometheus.CounterVec
	Fields       *prometheus.CounterVec
	MethodErrors *prometheus.CounterVec
	Batches      prometheus.Counter
	RunStatus    *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Companies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_companies_total",
			Help: "Companies visited by the scheduler, labeled by outcome.",
		}, []string{"outcome"}),
		Fields: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_fields_total",
			Help: "Field waterfall outcomes, labeled by field and state.",
		}, []string{"field", "state"}),
		MethodErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enrich_method_errors_total",
			Help: "Waterfall method failures, labeled by field and method.",
		}, []string{"field", "method"}),
		Batches: f.NewCounter(prometheus.CounterOpts{
			Name: "enrich_batches_total",
			Help: "Batches started.",
		}),
		RunStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "enrich_run_status",
			Help: "1 for the current run status, 0 otherwise.",
		}, []string{"status"}),
	}
}

var runStatuses = []model.RunStatus{
	model.RunNotStarted, model.RunRunning, model.RunCompleted, model.RunStopped, model.RunFailed,
}

func (m *Metrics) setStatus(s model.RunStatus) {
	for _, st := range runStatuses {
		v := 0.0
		if st == s {
			v = 1
		}
		m.RunStatus.WithLabelValues(string(st)).Set(v)
	}
}
