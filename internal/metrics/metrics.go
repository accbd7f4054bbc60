// Package metrics is the optional metrics module spec.md §6.3 names
// (optional_modules["metrics"]). It implements engine.MetricsRecorder
// on top of github.com/prometheus/client_golang, renaming the teacher's
// internal/utils/metrics counters (auth_service_token_refresh_total,
// auth_service_active_sessions, ...) into Charon's own namespace.
//
// Unlike the teacher, which registers package-level promauto vars
// against the global registry, Recorder takes a prometheus.Registerer
// so a host embedding Charon as a library can use its own registry
// instead of colliding with the default one across multiple Engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements engine.MetricsRecorder.
type Recorder struct {
	createTotal  prometheus.Counter
	refreshTotal *prometheus.CounterVec
	revokeTotal  prometheus.Counter
	staleTotal   prometheus.Counter
}

// NewRecorder registers Charon's counters against reg. Pass
// prometheus.DefaultRegisterer to behave like the teacher's
// package-level vars.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		createTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "charon_session_create_total",
			Help: "The total number of sessions created.",
		}),
		refreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "charon_session_refresh_total",
			Help: "The total number of session refreshes, by outcome.",
		}, []string{"outcome"}),
		revokeTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "charon_session_revoke_total",
			Help: "The total number of sessions revoked via logout.",
		}),
		staleTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "charon_refresh_stale_total",
			Help: "The total number of refresh attempts rejected as stale.",
		}),
	}
}

func (r *Recorder) ObserveCreate()               { r.createTotal.Inc() }
func (r *Recorder) ObserveRefresh(outcome string) { r.refreshTotal.WithLabelValues(outcome).Inc() }
func (r *Recorder) ObserveRevoke()                { r.revokeTotal.Inc() }
func (r *Recorder) ObserveStale()                { r.staleTotal.Inc() }
