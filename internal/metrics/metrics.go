// Package metrics owns the gateway's process-lifetime counters and the
// Prometheus scrape surface. Counters reset on restart and are never
// persisted.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the gateway counters with a dedicated Prometheus
// registry so scrapes expose exactly the gateway series. Increments are
// lock-free; handlers share one Registry by reference.
type Registry struct {
	registry    *prometheus.Registry
	submissions prometheus.Counter
	errors      prometheus.Counter
}

// New builds a Registry. spoolCount is sampled on every scrape to produce
// the live gauge of published submissions; the scan is best-effort and may
// miss entries mid-publish.
func New(spoolCount func() int) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoold_submissions_total",
			Help: "Submissions accepted and published to the spool.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoold_errors_total",
			Help: "Requests rejected for any reason (auth, validation, size, I/O).",
		}),
	}
	r.registry.MustRegister(r.submissions, r.errors)
	if spoolCount != nil {
		r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "spoold_spool_complete",
			Help: "Published submissions currently present in the spool directory.",
		}, func() float64 {
			return float64(spoolCount())
		}))
	}
	return r
}

// IncSubmissions records one accepted submission.
func (r *Registry) IncSubmissions() {
	r.submissions.Inc()
}

// IncErrors records one rejected request.
func (r *Registry) IncErrors() {
	r.errors.Inc()
}

// Handler returns the scrape handler rendering the pull text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
