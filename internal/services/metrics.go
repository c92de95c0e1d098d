package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// analysisResults counts produced results by source (online/offline).
	analysisResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_results_total",
			Help: "Analysis results produced, by source.",
		},
		[]string{"source"},
	)

	// analysisRejections counts analyze calls that returned no result.
	analysisRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_rejections_total",
			Help: "Analyze calls rejected or failed, by reason.",
		},
		[]string{"reason"},
	)

	// transportAttempts counts individual transport calls by outcome.
	transportAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_transport_attempts_total",
			Help: "Calls to the remote analysis endpoint, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(analysisResults, analysisRejections, transportAttempts)
}
