package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FilesParsed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "form_imports",
		Name:      "files_parsed_total",
		Help:      "Total spreadsheet files parsed.",
	})
	RowsImported = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "form_imports",
		Name:      "rows_imported_total",
		Help:      "Total rows persisted by committed imports.",
	})
	RowsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "form_imports",
		Name:      "rows_failed_total",
		Help:      "Total rows rejected during committed imports.",
	})
	JobsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "form_imports",
		Name:      "jobs_started_total",
		Help:      "Total import jobs created.",
	})
	JobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "form_imports",
		Name:      "jobs_completed_total",
		Help:      "Total import jobs that ran to completion.",
	})
	JobsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "form_imports",
		Name:      "jobs_cancelled_total",
		Help:      "Total import jobs cancelled before completion.",
	})
)

// Init registers collectors; call once from main.
func Init() {
	prometheus.MustRegister(FilesParsed, RowsImported, RowsFailed,
		JobsStarted, JobsCompleted, JobsCancelled)
}

// Serve starts a /metrics server on the given addr (e.g., ":9090").
// Non-blocking when run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
