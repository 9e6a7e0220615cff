package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DaysLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemblestats_days_loaded_total",
			Help: "Forecast dates loaded with every member and parameter present",
		},
		[]string{"source"},
	)

	DaysSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemblestats_days_skipped_total",
			Help: "Forecast dates skipped because an input file was missing",
		},
		[]string{"source"},
	)

	RowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemblestats_rows_loaded_total",
			Help: "Ensemble table rows (date, echeance) loaded",
		},
		[]string{"source"},
	)

	MergedRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ensemblestats_merged_rows",
			Help: "Rows left after joining the two ensembles on (date, echeance)",
		},
	)

	StatisticRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemblestats_statistic_rows_total",
			Help: "Rows reduced by a pointwise statistic",
		},
		[]string{"kind"},
	)

	StatisticDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ensemblestats_statistic_duration_seconds",
			Help:    "Time to compute one pointwise statistic table",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

// WriteTextfile dumps the default registry in the node-exporter textfile
// format, for batch runs that exit before anything could scrape them.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
