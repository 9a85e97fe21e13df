package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sessionly"

// Rotation outcomes
const (
	RotationSuccess = "success"
	RotationInvalid = "invalid"
	RotationExpired = "expired"
	RotationReuse   = "reuse"
	RotationError   = "error"
)

var (
	// SessionsIssued counts sessions created by login
	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_issued_total",
		Help:      "Sessions created by login.",
	})

	// Rotations counts refresh attempts by outcome
	Rotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rotations_total",
		Help:      "Refresh token rotations by outcome.",
	}, []string{"result"})

	// SessionsRevoked counts revoked sessions by reason
	SessionsRevoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_revoked_total",
		Help:      "Sessions revoked outside of rotation, by reason.",
	}, []string{"reason"})

	// CleanupDeleted counts rows removed by the janitor
	CleanupDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_deleted_total",
		Help:      "Session rows deleted by cleanup, by kind.",
	}, []string{"kind"})

	// CleanupRuns counts janitor passes by pass and status
	CleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_runs_total",
		Help:      "Cleanup passes by pass and status.",
	}, []string{"pass", "status"})

	// CleanupDuration observes how long each pass took
	CleanupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cleanup_duration_seconds",
		Help:      "Cleanup pass duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"pass"})
)
