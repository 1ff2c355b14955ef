// Package metrics exposes Prometheus metrics for customer syncs and the
// Shopify calls they make.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultNamespace = "limerime"
	defaultSubsystem = "customer_sync"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for the upstream latency histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Recorder) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// Recorder owns the sync metrics. A nil *Recorder discards every observation.
type Recorder struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	syncs            *prometheus.CounterVec
	metafieldWrites  *prometheus.CounterVec
	tagWrites        *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder on its own registry unless WithRegistry is given.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: defaultNamespace,
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}

	auto := promauto.With(r.registry)
	r.syncs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: defaultSubsystem,
		Name:      "requests_total",
		Help:      "Sync operations by operation and outcome",
	}, []string{"operation", "outcome"})
	r.metafieldWrites = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: defaultSubsystem,
		Name:      "metafield_writes_total",
		Help:      "Metafield writes by kind (create or update) and outcome",
	}, []string{"kind", "outcome"})
	r.tagWrites = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: defaultSubsystem,
		Name:      "tag_writes_total",
		Help:      "Customer tag writes by outcome",
	}, []string{"outcome"})
	r.upstreamDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: "shopify",
		Name:      "request_duration_seconds",
		Help:      "Latency of Shopify Admin API calls",
		Buckets:   r.buckets,
	}, []string{"operation", "status"})
	return r
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveSync counts one finished sync operation.
func (r *Recorder) ObserveSync(operation string, err error) {
	if r == nil {
		return
	}
	r.syncs.WithLabelValues(operation, outcome(err)).Inc()
}

// ObserveMetafieldWrite counts one metafield create or update.
func (r *Recorder) ObserveMetafieldWrite(kind string, err error) {
	if r == nil {
		return
	}
	r.metafieldWrites.WithLabelValues(kind, outcome(err)).Inc()
}

// ObserveTagWrite counts one customer tag write.
func (r *Recorder) ObserveTagWrite(err error) {
	if r == nil {
		return
	}
	r.tagWrites.WithLabelValues(outcome(err)).Inc()
}

// ObserveUpstream records a Shopify call. Status 0 means no response.
func (r *Recorder) ObserveUpstream(operation string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.upstreamDuration.WithLabelValues(operation, strconv.Itoa(status)).Observe(d.Seconds())
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
