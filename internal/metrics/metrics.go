// Package metrics exposes the Prometheus collectors for the redirect
// pipeline. Collectors register themselves on the default registry and
// are served by the router's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for RedirectsTotal.
const (
	OutcomeRedirected = "redirected"
	OutcomeNotFound   = "not_found"
	OutcomeError      = "error"
)

// Label values for TrackingAppendsTotal.
const (
	AppendOK       = "ok"
	AppendDegraded = "degraded"
	AppendDropped  = "dropped"
)

var (
	RedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linktrack_redirects_total",
			Help: "Total number of redirect requests by outcome",
		},
		[]string{"outcome"},
	)

	TrackingAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linktrack_tracking_appends_total",
			Help: "Total number of visit append attempts by result",
		},
		[]string{"result"},
	)

	EnrichDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linktrack_enrich_duration_seconds",
			Help:    "Time spent building a visit entry from request metadata",
			Buckets: prometheus.DefBuckets,
		},
	)
)
