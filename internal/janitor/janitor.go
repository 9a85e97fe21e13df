package janitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Anvoria/sessionly/internal/config"
	"github.com/Anvoria/sessionly/internal/domain/session"
	"github.com/Anvoria/sessionly/internal/metrics"
)

// Pass selects how much a cleanup run removes
type Pass string

const (
	// PassLight deletes expired sessions
	PassLight Pass = "light"
	// PassDeep also deletes revoked sessions past the retention window
	PassDeep Pass = "deep"
)

// ErrPassInProgress is returned when another instance holds the pass lock
var ErrPassInProgress = errors.New("cleanup pass already running")

// Cleaner is the part of session.Manager the janitor drives
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
	CleanupObsolete(ctx context.Context) (session.CleanupResult, error)
}

// Locker keeps several instances from running the same pass at once
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error)
}

// Scheduler runs light passes every LightInterval and deep passes every
// DeepInterval until its context is cancelled.
type Scheduler struct {
	Cleaner       Cleaner
	Locker        Locker
	LightInterval time.Duration
	DeepInterval  time.Duration
	PassTimeout   time.Duration
	LockTTL       time.Duration
}

// NewScheduler builds a scheduler from the janitor config. locker may be nil.
func NewScheduler(cleaner Cleaner, cfg config.JanitorConfig, locker Locker) *Scheduler {
	return &Scheduler{
		Cleaner:       cleaner,
		Locker:        locker,
		LightInterval: cfg.LightInterval.Std(),
		DeepInterval:  cfg.DeepInterval.Std(),
		PassTimeout:   cfg.PassTimeout.Std(),
		LockTTL:       cfg.LockTTL.Std(),
	}
}

// Run blocks until ctx is done. A light pass runs immediately; failed passes
// are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Janitor started",
		"light_interval", s.LightInterval.String(),
		"deep_interval", s.DeepInterval.String(),
	)

	s.runLogged(ctx, PassLight)

	lightInterval, deepInterval := s.LightInterval, s.DeepInterval
	if lightInterval <= 0 {
		lightInterval = config.DefaultLightInterval
	}
	if deepInterval <= 0 {
		deepInterval = config.DefaultDeepInterval
	}

	light := time.NewTicker(lightInterval)
	defer light.Stop()
	deep := time.NewTicker(deepInterval)
	defer deep.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Janitor stopped")
			return
		case <-light.C:
			s.runLogged(ctx, PassLight)
		case <-deep.C:
			s.runLogged(ctx, PassDeep)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context, pass Pass) {
	result, err := s.RunOnce(ctx, pass)
	switch {
	case errors.Is(err, ErrPassInProgress):
		slog.Debug("Cleanup pass skipped, lock held elsewhere", "pass", pass)
	case err != nil:
		slog.Error("Cleanup pass failed", "pass", pass, "error", err)
	default:
		slog.Info("Cleanup pass finished",
			"pass", pass,
			"expired", result.Expired,
			"revoked", result.Revoked,
			"total", result.Total,
		)
	}
}

// RunOnce runs a single pass synchronously, bounded by PassTimeout
func (s *Scheduler) RunOnce(ctx context.Context, pass Pass) (session.CleanupResult, error) {
	if s.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.PassTimeout)
		defer cancel()
	}

	if s.Locker != nil {
		release, ok, err := s.Locker.TryLock(ctx, "janitor:"+string(pass), s.LockTTL)
		switch {
		case err != nil:
			// passes are idempotent, run unlocked when the lock store is down
			slog.Warn("Janitor lock unavailable, running unlocked", "pass", pass, "error", err)
		case !ok:
			metrics.CleanupRuns.WithLabelValues(string(pass), "skipped").Inc()
			return session.CleanupResult{}, ErrPassInProgress
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					slog.Warn("Failed to release janitor lock", "pass", pass, "error", err)
				}
			}()
		}
	}

	start := time.Now()
	result, err := s.run(ctx, pass)
	metrics.CleanupDuration.WithLabelValues(string(pass)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CleanupRuns.WithLabelValues(string(pass), "error").Inc()
		return result, err
	}

	metrics.CleanupRuns.WithLabelValues(string(pass), "ok").Inc()
	metrics.CleanupDeleted.WithLabelValues("expired").Add(float64(result.Expired))
	metrics.CleanupDeleted.WithLabelValues("revoked").Add(float64(result.Revoked))
	return result, nil
}

func (s *Scheduler) run(ctx context.Context, pass Pass) (session.CleanupResult, error) {
	if pass == PassDeep {
		return s.Cleaner.CleanupObsolete(ctx)
	}

	n, err := s.Cleaner.CleanupExpired(ctx)
	return session.CleanupResult{
		Expired:   n,
		Total:     n,
		Timestamp: time.Now().UTC(),
	}, err
}
