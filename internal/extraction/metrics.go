package extraction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// resultsTotal counts pipeline runs by entry point and terminal status
	resultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amount_extractor_results_total",
			Help: "Total number of pipeline runs by input kind and status",
		},
		[]string{"input", "status"},
	)

	// classificationsTotal counts classified tokens; outcome is "fallback" when the default label was substituted
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amount_extractor_classifications_total",
			Help: "Total number of classified amounts by label and outcome",
		},
		[]string{"label", "outcome"},
	)

	generatorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amount_extractor_generator_duration_seconds",
			Help:    "Text generation call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ocrDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amount_extractor_ocr_duration_seconds",
			Help:    "OCR call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
