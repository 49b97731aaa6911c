package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArchiveAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherreport_archive_api_calls_total",
			Help: "Total Open-Meteo archive API attempts",
		},
		[]string{"status"},
	)

	ArchiveAPILatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weatherreport_archive_api_latency_seconds",
			Help:    "Archive API attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FetchesExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherreport_archive_fetches_exhausted_total",
			Help: "Archive fetches that failed after all retry attempts",
		},
	)

	EntriesInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherreport_daily_entries_inserted_total",
			Help: "Daily weather entries inserted by reconciliation",
		},
		[]string{"city"},
	)

	EntriesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherreport_daily_entries_skipped_total",
			Help: "Daily weather entries skipped because the date was already stored",
		},
		[]string{"city"},
	)

	EntriesFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherreport_daily_entries_flagged_total",
			Help: "Daily weather entries inserted with quality flags",
		},
		[]string{"flag"},
	)

	ReportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherreport_report_failures_total",
			Help: "Report and chart queries that failed and degraded to a message",
		},
		[]string{"report"},
	)

	ChartsRendered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherreport_charts_rendered_total",
			Help: "Chart images written to disk",
		},
	)
)

// WriteTextfile dumps the default registry in the node-exporter textfile
// collector format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
