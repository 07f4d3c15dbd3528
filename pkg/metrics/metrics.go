// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the import pipeline's collectors so services can take them
// by value instead of reaching for package globals.
type Metrics struct {
	ImportsTotal *prometheus.CounterVec

	// RoleReinterpretations counts role assignments that were silently
	// replaced by a safe alternative (restricted role unavailable or
	// exclusive role taken). Tracked separately from validated assignments
	// so permissive fallbacks stay visible in telemetry.
	RoleReinterpretations prometheus.Counter

	DeferredFiles  prometheus.Counter
	RecordsEmitted prometheus.Counter
	ImportDuration prometheus.Histogram
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ImportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "import_commits_total",
			Help: "Import commit attempts by outcome.",
		}, []string{"status"}),
		RoleReinterpretations: factory.NewCounter(prometheus.CounterOpts{
			Name: "import_role_reinterpretations_total",
			Help: "Role assignments silently reinterpreted to a safe alternative.",
		}),
		DeferredFiles: factory.NewCounter(prometheus.CounterOpts{
			Name: "import_deferred_files_total",
			Help: "Files above the inline size threshold deferred to the batch pipeline.",
		}),
		RecordsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "import_records_emitted_total",
			Help: "Normalized long-format records emitted by committed imports.",
		}),
		ImportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "import_commit_duration_seconds",
			Help:    "Wall time of import commits.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
