package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "apsentry", Subsystem: "detection", Name: "runs_total", Help: "Total detection runs by outcome."},
		[]string{"status"},
	)
	anomaliesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "apsentry", Subsystem: "detection", Name: "anomalies_created_total", Help: "Newly created anomalies by kind."},
		[]string{"kind"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "apsentry", Subsystem: "detection", Name: "run_duration_seconds", Help: "Duration of a detection run."},
	)
)

func init() {
	_ = prometheus.Register(runsTotal)
	_ = prometheus.Register(anomaliesCreated)
	_ = prometheus.Register(runDuration)
}
