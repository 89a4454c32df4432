// Package metrics provides Prometheus metrics for vitalsup.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TriageUpdatesTotal counts per-article triage writes.
	TriageUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsup",
			Name:      "triage_updates_total",
			Help:      "Total number of triage status writes",
		},
		[]string{"status", "result"},
	)

	// OpenAccessLookupsTotal counts resolver outcomes.
	OpenAccessLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsup",
			Name:      "openaccess_lookups_total",
			Help:      "Total number of open-access lookups by outcome",
		},
		[]string{"outcome"},
	)

	// ProxyRequestsTotal counts relayed resolver calls by upstream status code.
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsup",
			Name:      "proxy_requests_total",
			Help:      "Total number of resolver proxy requests",
		},
		[]string{"code"},
	)

	// SnapshotsTotal counts lab snapshot jobs.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsup",
			Name:      "snapshots_total",
			Help:      "Total number of lab snapshot jobs",
		},
		[]string{"result"},
	)
)

func RecordTriageUpdate(status, result string) {
	TriageUpdatesTotal.WithLabelValues(status, result).Inc()
}

func RecordLookup(outcome string) {
	OpenAccessLookupsTotal.WithLabelValues(outcome).Inc()
}

func RecordProxy(code string) {
	ProxyRequestsTotal.WithLabelValues(code).Inc()
}

func RecordSnapshot(result string) {
	SnapshotsTotal.WithLabelValues(result).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
