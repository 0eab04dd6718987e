// Package metrics holds the prometheus collectors and the tracer used by the
// resolver and the language server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "gotodef"

// Tracer is backed by whatever provider the process installs with
// otel.SetTracerProvider; without one, spans are no-ops.
var Tracer trace.Tracer = otel.Tracer("github.com/walteh/gotodef")

// Jump outcomes.
const (
	OutcomeLocal     = "local"
	OutcomeFallback  = "fallback"
	OutcomeCrossFile = "cross_file"
	OutcomeNone      = "none"
)

// Introspection results.
const (
	IntrospectionOK          = "ok"
	IntrospectionError       = "error"
	IntrospectionStale       = "stale"
	IntrospectionUnavailable = "unavailable"
)

type Metrics struct {
	registry prometheus.Gatherer

	JumpsTotal          *prometheus.CounterVec
	JumpBacksTotal      prometheus.Counter
	ResolveDuration     *prometheus.HistogramVec
	IntrospectionsTotal *prometheus.CounterVec
	CandidatesProbed    prometheus.Counter
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		JumpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jumps_total",
			Help:      "Jump requests by language and outcome.",
		}, []string{"language", "outcome"}),

		JumpBacksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jump_backs_total",
			Help:      "Jump back requests that restored a position.",
		}),

		ResolveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_seconds",
			Help:      "Time spent resolving a clicked token.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"language"}),

		IntrospectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "introspections_total",
			Help:      "Live introspection queries by result.",
		}, []string{"result"}),

		CandidatesProbed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_paths_probed_total",
			Help:      "Guessed cross-file paths checked for existence.",
		}),
	}
}

// NewIsolated returns metrics on a private registry, for tests and for
// callers that do not export anything.
func NewIsolated() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
