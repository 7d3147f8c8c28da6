package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sphinxfix/internal/reconcile"
)

var (
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sphinxfix_passes_total",
		Help: "Corrective passes by result (ok, exhausted, skipped, error).",
	}, []string{"result"})
	datesAdvanced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sphinxfix_dates_advanced_total",
		Help: "Due dates moved forward, by kind (merge, rebuild).",
	}, []string{"kind"})
	attemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sphinxfix_pass_attempts_total",
		Help: "Database attempts made across all passes, including retries.",
	})
	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sphinxfix_last_success_timestamp_seconds",
		Help: "Unix time of the last pass that completed without giving up.",
	})
)

// Result classifies a finished pass for the passes counter.
func Result(report reconcile.Report, err error) string {
	switch {
	case err != nil:
		return "error"
	case report.Skipped:
		return "skipped"
	case report.Exhausted:
		return "exhausted"
	default:
		return "ok"
	}
}

// Observe records a finished pass.
func Observe(report reconcile.Report, err error) {
	result := Result(report, err)
	passesTotal.WithLabelValues(result).Inc()
	attemptsTotal.Add(float64(report.Attempts))
	datesAdvanced.WithLabelValues("merge").Add(float64(report.MergesAdvanced))
	datesAdvanced.WithLabelValues("rebuild").Add(float64(report.RebuildsAdvanced))
	if result == "ok" {
		lastSuccess.SetToCurrentTime()
	}
}
