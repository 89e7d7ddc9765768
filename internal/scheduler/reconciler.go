package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marek/contextpool/internal/domain"
	"github.com/marek/contextpool/internal/logger"
)

// SourceLister provides the full source table as the reconciliation
// baseline.
type SourceLister interface {
	ListAll(ctx context.Context) ([]domain.Source, error)
}

// SourceRunner is the work a per-source job performs when it fires.
type SourceRunner func(ctx context.Context, src domain.Source)

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	Added     int
	Updated   int
	Removed   int
	Unchanged int
	Skipped   int
}

// Reconciler converges the scheduler's source jobs toward the database:
// every active, schedulable source gets exactly one job, jobs for
// deleted or deactivated sources are pruned, and sources whose schedule
// has not changed keep their pending fire time. Runs are idempotent.
type Reconciler struct {
	sched            *Scheduler
	sources          SourceLister
	run              SourceRunner
	defaultFrequency int
	log              *logger.Logger
}

// NewReconciler creates a reconciler. defaultFrequency (minutes) applies
// to interval-schedulable sources with no explicit schedule; zero means
// 60.
func NewReconciler(sched *Scheduler, sources SourceLister, run SourceRunner, defaultFrequency int, log *logger.Logger) *Reconciler {
	if defaultFrequency <= 0 {
		defaultFrequency = 60
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Reconciler{
		sched:            sched,
		sources:          sources,
		run:              run,
		defaultFrequency: defaultFrequency,
		log:              log,
	}
}

// Reconcile performs one pass: prune orphaned source jobs, then upsert a
// job per active schedulable source. A source with a broken schedule
// config is skipped with a warning; it never aborts the pass.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	rows, err := r.sources.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list sources: %w", err)
	}

	desired := make(map[string]domain.Source, len(rows))
	for _, src := range rows {
		if src.IsActive {
			desired[src.JobID()] = src
		}
	}

	// Prune jobs whose source row is gone or deactivated. Only jobs
	// carrying the source prefix are candidates; system jobs are never
	// touched.
	for _, id := range r.sched.IDs() {
		if !strings.HasPrefix(id, domain.SourceJobPrefix) {
			continue
		}
		if _, ok := desired[id]; ok {
			continue
		}
		if r.sched.Remove(id) {
			stats.Removed++
		}
	}

	for _, src := range desired {
		trigger, ok, err := r.parseTrigger(src)
		if err != nil {
			stats.Skipped++
			r.log.WithError(err).WithFields(logger.Fields{
				logger.FieldSourceID: src.ID,
				"source_name":        src.Name,
			}).Warn("Invalid schedule config, skipping source")
			continue
		}
		if !ok {
			// Webhook and manual sources without a cron run only on
			// external triggers.
			continue
		}

		src := src
		switch r.sched.Upsert(src.JobID(), trigger, func(ctx context.Context) {
			r.run(ctx, src)
		}) {
		case JobAdded:
			stats.Added++
		case JobUpdated:
			stats.Updated++
		case JobUnchanged:
			stats.Unchanged++
		}
	}

	r.log.WithFields(logger.Fields{
		"added":     stats.Added,
		"updated":   stats.Updated,
		"removed":   stats.Removed,
		"unchanged": stats.Unchanged,
		"skipped":   stats.Skipped,
	}).Debug("Schedule reconciliation completed")
	return stats, nil
}

// parseTrigger derives a source's trigger from its schedule config. A
// cron time wins over a frequency. The second return is false when the
// source should not be scheduled at all.
func (r *Reconciler) parseTrigger(src domain.Source) (Trigger, bool, error) {
	if src.Schedule.Cron != "" {
		hour, minute, err := r.parseDailyTime(src.Schedule.Cron, src.ID)
		if err != nil {
			return Trigger{}, false, err
		}
		return DailyTrigger(hour, minute), true, nil
	}

	// Only interval-schedulable types get frequency jobs; webhook and
	// manual sources run on external triggers regardless of any
	// frequency_minutes left in their config.
	if !src.Type.IntervalScheduled() {
		return Trigger{}, false, nil
	}

	if src.Schedule.FrequencyMinutes > 0 {
		return IntervalTrigger(time.Duration(src.Schedule.FrequencyMinutes) * time.Minute), true, nil
	}

	return IntervalTrigger(time.Duration(r.defaultFrequency) * time.Minute), true, nil
}

// parseDailyTime accepts "HH:MM" and the deprecated space-separated
// "H M" form, which logs a warning per source until migrated.
func (r *Reconciler) parseDailyTime(expr, sourceID string) (int, int, error) {
	if parts := strings.Fields(expr); len(parts) == 2 && !strings.Contains(expr, ":") {
		r.log.WithFields(logger.Fields{
			logger.FieldSourceID: sourceID,
			"cron":               expr,
		}).Warn("Deprecated space-separated cron format, use HH:MM")

		hour, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		minute, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return 0, 0, fmt.Errorf("invalid cron expression %q: out of range", expr)
		}
		return hour, minute, nil
	}

	t, err := time.Parse("15:04", expr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return t.Hour(), t.Minute(), nil
}
