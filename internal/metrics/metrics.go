package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the collectors sdnlab exports. A nil *Registry is valid
// and records nothing.
type Registry struct {
	registry *prometheus.Registry

	ControllerRequestsTotal   *prometheus.CounterVec
	ControllerRequestDuration *prometheus.HistogramVec
	StageDuration             *prometheus.HistogramVec
	StageFailuresTotal        *prometheus.CounterVec
	ConvergenceDuration       *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.registry.MustRegister(collectors.NewGoCollector())

	r.ControllerRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdnlab_controller_requests_total",
			Help: "Total number of controller REST requests",
		},
		[]string{"method", "route", "status"},
	)
	r.ControllerRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdnlab_controller_request_duration_seconds",
			Help:    "Controller REST request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdnlab_provision_stage_duration_seconds",
			Help:    "Time spent in each provisioning stage",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"stage"},
	)
	r.StageFailuresTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdnlab_provision_stage_failures_total",
			Help: "Provisioning stages that aborted the sequence",
		},
		[]string{"stage"},
	)
	r.ConvergenceDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdnlab_host_convergence_seconds",
			Help:    "Time until a host acquired an address",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"},
	)
	return r
}

// RecordControllerRequest records one controller call.
func (r *Registry) RecordControllerRequest(method, route, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.ControllerRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.ControllerRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordStage records a finished stage.
func (r *Registry) RecordStage(stage string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		r.StageFailuresTotal.WithLabelValues(stage).Inc()
	}
}

// RecordConvergence records how long a host waited for its address.
func (r *Registry) RecordConvergence(d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	r.ConvergenceDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
