package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"soctrace/internal/logger"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soctrace_events_ingested_total",
			Help: "Total number of normalized events ingested",
		},
		[]string{"source"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soctrace_alerts_generated_total",
			Help: "Total number of alerts produced by detection rules",
		},
		[]string{"rule", "severity"},
	)

	AlertsEscalated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soctrace_alerts_escalated_total",
			Help: "Total number of alerts escalated by correlation patterns",
		},
		[]string{"pattern"},
	)
)

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("metrics listener failed: %v", err)
		}
	}()
}
