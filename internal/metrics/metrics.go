package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all Gatherhall metrics
const namespace = "gatherhall"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Admission metrics

// AdmissionsTotal counts registration admission attempts by outcome.
// Outcomes: admitted, reactivated, duplicate, capacity_exceeded,
// not_open, incomplete_profile, error.
var AdmissionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admissions_total",
		Help:      "Total number of registration admission attempts by outcome",
	},
	[]string{"outcome"},
)

// AdmissionDuration records admission transaction latency, lock wait included.
var AdmissionDuration = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "admission_duration_seconds",
		Help:      "Registration admission latency in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
)

// RegistrationCancellationsTotal counts registration cancellations.
var RegistrationCancellationsTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registration_cancellations_total",
		Help:      "Total number of registration cancellations",
	},
)

// Event code issuance metrics

// CodeIssuedTotal counts successfully issued event codes.
var CodeIssuedTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_codes_issued_total",
		Help:      "Total number of event codes issued",
	},
)

// CodeCollisionsTotal counts generated codes rejected because they were
// already taken. A climbing rate means the code space is filling up.
var CodeCollisionsTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_code_collisions_total",
		Help:      "Total number of candidate event codes rejected as already taken",
	},
)

// CodeExhaustionsTotal counts issuance attempts that ran out of probes.
var CodeExhaustionsTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_code_exhaustions_total",
		Help:      "Total number of code issuance attempts that exhausted all probes",
	},
)

// Role guard metrics

// RoleGuardRejectionsTotal counts role and deletion changes blocked by the
// safety guard. Reasons: self_modification, last_admin.
var RoleGuardRejectionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_guard_rejections_total",
		Help:      "Total number of admin operations blocked by the role guard",
	},
	[]string{"reason"},
)

// Init initializes the metrics registry and sets version information
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
