// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by the relationship and like collectors.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

var (
	// RelationshipOps counts follow/unfollow calls by op and outcome.
	RelationshipOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "murmur",
		Name:      "relationship_operations_total",
		Help:      "Follow and unfollow operations by outcome.",
	}, []string{"op", "outcome"})

	// Compensations counts saga compensation attempts by op and result.
	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "murmur",
		Name:      "relationship_compensations_total",
		Help:      "Compensating writes issued after a partial follow or unfollow.",
	}, []string{"op", "result"})

	// LikeOps counts like/unlike calls by op and outcome.
	LikeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "murmur",
		Name:      "like_operations_total",
		Help:      "Like and unlike operations by outcome.",
	}, []string{"op", "outcome"})

	// ProfileCacheLookups counts profile cache hits and misses.
	ProfileCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "murmur",
		Name:      "profile_cache_lookups_total",
		Help:      "Profile cache lookups by result.",
	}, []string{"result"})

	// HTTPRequests counts served requests by route pattern and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "murmur",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "murmur",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)
