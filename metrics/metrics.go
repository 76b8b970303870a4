// Package metrics holds the Prometheus collectors of a capture run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamtap"

// Registry holds every collector. A nil *Registry is valid and records
// nothing, so components can be used without metrics.
type Registry struct {
	reg *prometheus.Registry

	// Extraction
	SegmentsIngested   prometheus.Counter
	SegmentsSkipped    prometheus.Counter
	EndpointCandidates prometheus.Gauge
	CodeFound          prometheus.Gauge
	Resolved           prometheus.Gauge
	AmbiguousResolves  prometheus.Counter
	ResolveSeconds     prometheus.Histogram

	// Interdiction
	ProcessesTerminated *prometheus.CounterVec
	FilterSessionOpen   prometheus.Gauge
	FilterOpenFailures  prometheus.Counter

	// Pipeline
	RunErrors *prometheus.CounterVec
}

// New creates a Registry backed by its own prometheus.Registry, with the Go
// runtime and process collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newRegistry(reg)
}

func newRegistry(reg *prometheus.Registry) *Registry {
	factory := promauto.With(reg)
	r := &Registry{reg: reg}

	r.SegmentsIngested = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "segments_ingested_total",
		Help:      "TCP segments handed to the extraction engine",
	})
	r.SegmentsSkipped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "segments_skipped_total",
		Help:      "Segments discarded because they were empty or not decodable as text",
	})
	r.EndpointCandidates = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "endpoint_candidates",
		Help:      "Distinct streaming endpoints seen so far",
	})
	r.CodeFound = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_code_found",
		Help:      "1 once a stream code has been captured",
	})
	r.Resolved = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_resolved",
		Help:      "1 once the streaming session is resolved",
	})
	r.AmbiguousResolves = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ambiguous_resolutions_total",
		Help:      "Resolutions made with more than one endpoint candidate",
	})
	r.ResolveSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "resolve_seconds",
		Help:      "Time from engine creation to resolution",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 180},
	})

	r.ProcessesTerminated = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "processes_terminated_total",
		Help:      "Target process instances terminated before interdiction",
	}, []string{"result"})
	r.FilterSessionOpen = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "filter_session_open",
		Help:      "1 while the packet filter session is open",
	})
	r.FilterOpenFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filter_open_failures_total",
		Help:      "Failed attempts to open the packet filter",
	})

	r.RunErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_errors_total",
		Help:      "Pipeline failures by error code",
	}, []string{"code"})

	return r
}

// Gatherer exposes the underlying registry for the HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

func (r *Registry) IncIngested() {
	if r != nil {
		r.SegmentsIngested.Inc()
	}
}

func (r *Registry) IncSkipped() {
	if r != nil {
		r.SegmentsSkipped.Inc()
	}
}

func (r *Registry) SetCandidates(n int) {
	if r != nil {
		r.EndpointCandidates.Set(float64(n))
	}
}

func (r *Registry) SetCodeFound() {
	if r != nil {
		r.CodeFound.Set(1)
	}
}

// ObserveResolved records a resolution that took seconds.
func (r *Registry) ObserveResolved(seconds float64, ambiguous bool) {
	if r == nil {
		return
	}
	r.Resolved.Set(1)
	r.ResolveSeconds.Observe(seconds)
	if ambiguous {
		r.AmbiguousResolves.Inc()
	}
}

// IncTerminated counts a kill attempt, result is "ok" or "error".
func (r *Registry) IncTerminated(result string) {
	if r != nil {
		r.ProcessesTerminated.WithLabelValues(result).Inc()
	}
}

func (r *Registry) SetFilterOpen(open bool) {
	if r == nil {
		return
	}
	if open {
		r.FilterSessionOpen.Set(1)
	} else {
		r.FilterSessionOpen.Set(0)
	}
}

func (r *Registry) IncFilterOpenFailures() {
	if r != nil {
		r.FilterOpenFailures.Inc()
	}
}

func (r *Registry) IncRunError(code string) {
	if r != nil {
		r.RunErrors.WithLabelValues(code).Inc()
	}
}
