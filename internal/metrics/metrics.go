package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EngineCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxaudit_engine_calls_total",
			Help: "Total number of reasoning-engine calls",
		},
		[]string{"status"},
	)
	EngineCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rxaudit_engine_call_duration_seconds",
			Help:    "Duration of reasoning-engine calls",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
	BackendQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxaudit_backend_queries_total",
			Help: "Total number of knowledge-base queries by backend",
		},
		[]string{"backend", "status"},
	)
	CaseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rxaudit_case_duration_seconds",
			Help:    "Duration of one full case audit",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	CasesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxaudit_cases_processed_total",
			Help: "Total number of audited cases",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(EngineCalls)
	prometheus.MustRegister(EngineCallDuration)
	prometheus.MustRegister(BackendQueries)
	prometheus.MustRegister(CaseDuration)
	prometheus.MustRegister(CasesProcessed)
}
