package service

import (
	"context"
	"time"

	"github.com/marek/contextpool/internal/domain"
	"github.com/marek/contextpool/internal/logger"
)

// HealthStore is the persistence contract the tracker drives. The
// repository implements it with atomic single-statement updates.
type HealthStore interface {
	RecordSuccess(ctx context.Context, id string, now time.Time) error
	RecordFailure(ctx context.Context, id, msg string, now time.Time, threshold int) (opened bool, err error)
	ResetStaleBreakers(ctx context.Context, cutoff time.Time) (int64, error)
	ResetBreaker(ctx context.Context, id string) error
}

// HealthConfig holds circuit-breaker tunables.
type HealthConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker.
	FailureThreshold int
	// BreakerCooldown is how long an open breaker waits for the
	// all-or-nothing auto-reset. There is no half-open probe state.
	BreakerCooldown time.Duration
}

// HealthTracker owns the per-source reliability counters and the
// circuit-breaker lifecycle: CLOSED -> OPEN when the consecutive-failure
// count reaches the threshold, OPEN -> CLOSED only after the cooldown
// sweep or a manual reset.
type HealthTracker struct {
	store HealthStore
	cfg   HealthConfig
	log   *logger.Logger
	now   func() time.Time
}

// NewHealthTracker creates a tracker with the standard defaults: 5
// failures to open, 24h cooldown.
func NewHealthTracker(store HealthStore, cfg HealthConfig, log *logger.Logger) *HealthTracker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 24 * time.Hour
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &HealthTracker{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// RecordSuccess zeroes the consecutive-failure counter. An open breaker
// is left as-is; only the sweep or manual reset clears it.
func (t *HealthTracker) RecordSuccess(ctx context.Context, sourceID string) error {
	return t.store.RecordSuccess(ctx, sourceID, t.now())
}

// RecordFailure bumps the failure counters, categorizes the reason for
// diagnostics, and opens the breaker when the threshold is reached.
// Categorization has no effect on the counters.
func (t *HealthTracker) RecordFailure(ctx context.Context, sourceID, msg string) error {
	category := domain.CategorizeError(msg)

	opened, err := t.store.RecordFailure(ctx, sourceID, msg, t.now(), t.cfg.FailureThreshold)
	if err != nil {
		return err
	}

	log := t.log.WithFields(logger.Fields{
		logger.FieldSourceID: sourceID,
		logger.FieldCategory: string(category),
	})
	if opened {
		log.Warn("Circuit breaker opened after repeated failures")
	} else {
		log.WithField("error", msg).Debug("Source check failed")
	}
	return nil
}

// AutoResetStaleBreakers closes every breaker that has been open longer
// than the cooldown. This is the only automatic recovery path; run it
// before every selection cycle.
func (t *HealthTracker) AutoResetStaleBreakers(ctx context.Context) (int64, error) {
	cutoff := t.now().Add(-t.cfg.BreakerCooldown)
	reset, err := t.store.ResetStaleBreakers(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		t.log.WithField(logger.FieldCount, reset).Info("Auto-reset stale circuit breakers")
	}
	return reset, nil
}

// ResetBreaker is the operator's manual reset for a single source.
func (t *HealthTracker) ResetBreaker(ctx context.Context, sourceID string) error {
	if err := t.store.ResetBreaker(ctx, sourceID); err != nil {
		return err
	}
	t.log.WithField(logger.FieldSourceID, sourceID).Info("Circuit breaker manually reset")
	return nil
}
