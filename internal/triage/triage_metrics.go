package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the enrichment pipeline.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec
	ResponseShapes     *prometheus.CounterVec
	ActionsTotal       *prometheus.CounterVec
	InferenceErrors    *prometheus.CounterVec
	InvokeCallsTotal   *prometheus.CounterVec
	InvokeDuration     *prometheus.HistogramVec
	AlertsTotal        *prometheus.CounterVec
	CollaboratorErrors *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uaso_runs_total",
			Help: "Total pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uaso_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}, []string{"outcome", "model"}),
		ResponseShapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uaso_response_shapes_total",
			Help: "Model responses by recognized envelope shape.",
		}, []string{"family", "shape"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uaso_actions_total",
			Help: "Classified alerts by action type.",
		}, []string{"action_type"}),
		InferenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uaso_inference_errors_total",
			Help: "Failed inference calls by error kind.",
		}, []string{"kind"}),
		InvokeCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uaso_invoke_calls_total",
			Help: "Inference calls by model family and status.",
		}, []string{"family", "status"}),
		InvokeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uaso_invoke_duration_seconds",
			Help:    "Duration of individual inference calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}, []string{"family"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uaso_alerts_total",
			Help: "Alerts seen by the service by result.",
		}, []string{"result"}),
		CollaboratorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uaso_collaborator_errors_total",
			Help: "Store and notify failures.",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.ResponseShapes,
		m.ActionsTotal,
		m.InferenceErrors,
		m.InvokeCallsTotal,
		m.InvokeDuration,
		m.AlertsTotal,
		m.CollaboratorErrors,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnInvoke: func(_, family string, duration float64, err error) {
			status := "success"
			if err != nil {
				status = "error"
			}
			m.InvokeCallsTotal.WithLabelValues(family, status).Inc()
			m.InvokeDuration.WithLabelValues(family).Observe(duration)
		},
		OnComplete: func(e *CompleteEvent) {
			m.RunsTotal.WithLabelValues(e.Outcome).Inc()
			m.RunDuration.WithLabelValues(e.Outcome, e.Model).Observe(e.Duration)
			m.ResponseShapes.WithLabelValues(e.Family, string(e.Shape)).Inc()
			m.ActionsTotal.WithLabelValues(string(e.Action)).Inc()
			if e.ErrorKind != "" {
				m.InferenceErrors.WithLabelValues(e.ErrorKind).Inc()
			}
		},
	}
}
