package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marek/contextpool/internal/logger"
)

// TriggerKind distinguishes interval jobs from daily time-of-day jobs.
type TriggerKind int

const (
	// TriggerInterval fires every fixed duration.
	TriggerInterval TriggerKind = iota
	// TriggerDaily fires once a day at a fixed local time.
	TriggerDaily
)

// Trigger describes when a job fires. Triggers are compared with a
// tolerance so a sub-second drift in a stored interval does not count as
// a schedule change.
type Trigger struct {
	Kind   TriggerKind
	Every  time.Duration
	Hour   int
	Minute int
}

// IntervalTrigger returns a trigger firing every d.
func IntervalTrigger(d time.Duration) Trigger {
	return Trigger{Kind: TriggerInterval, Every: d}
}

// DailyTrigger returns a trigger firing daily at hour:minute.
func DailyTrigger(hour, minute int) Trigger {
	return Trigger{Kind: TriggerDaily, Hour: hour, Minute: minute}
}

// Next returns the first fire time strictly after from.
func (t Trigger) Next(from time.Time) time.Time {
	switch t.Kind {
	case TriggerDaily:
		next := time.Date(from.Year(), from.Month(), from.Day(), t.Hour, t.Minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	default:
		return from.Add(t.Every)
	}
}

// Equal reports whether two triggers describe the same schedule.
// Interval triggers match within tolerance; daily triggers match on the
// exact time of day.
func (t Trigger) Equal(o Trigger, tolerance time.Duration) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind == TriggerDaily {
		return t.Hour == o.Hour && t.Minute == o.Minute
	}
	diff := t.Every - o.Every
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// String returns a human-readable schedule description for logs.
func (t Trigger) String() string {
	if t.Kind == TriggerDaily {
		return fmt.Sprintf("daily at %02d:%02d", t.Hour, t.Minute)
	}
	return fmt.Sprintf("every %s", t.Every)
}

// JobFunc is the work a scheduled job performs.
type JobFunc func(ctx context.Context)

type job struct {
	id      string
	trigger Trigger
	fn      JobFunc
	next    time.Time
	running bool
}

// UpsertResult tells the caller what an Upsert actually did.
type UpsertResult int

const (
	JobAdded UpsertResult = iota
	JobUpdated
	JobUnchanged
)

// Scheduler runs registered jobs at their trigger times. Each job has at
// most one running instance: a tick that fires while the previous run is
// still going is skipped, not queued.
type Scheduler struct {
	mu         sync.Mutex
	jobs       map[string]*job
	resolution time.Duration
	tolerance  time.Duration
	log        *logger.Logger
	now        func() time.Time
	wg         sync.WaitGroup
}

// New creates a scheduler. resolution is how often due jobs are checked;
// zero means one second. Trigger comparisons use a 6 second tolerance.
func New(resolution time.Duration, log *logger.Logger) *Scheduler {
	if resolution <= 0 {
		resolution = time.Second
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Scheduler{
		jobs:       make(map[string]*job),
		resolution: resolution,
		tolerance:  6 * time.Second,
		log:        log,
		now:        time.Now,
	}
}

// Upsert registers a job or updates an existing one. An unchanged
// trigger keeps the job's pending fire time; a changed trigger (or a new
// job) schedules the first fire from now.
func (s *Scheduler) Upsert(id string, trigger Trigger, fn JobFunc) UpsertResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[id]
	if ok && existing.trigger.Equal(trigger, s.tolerance) {
		existing.fn = fn
		return JobUnchanged
	}

	j := &job{
		id:      id,
		trigger: trigger,
		fn:      fn,
		next:    trigger.Next(s.now()),
	}
	if ok {
		// A replacement inherits the in-flight state so the new trigger
		// cannot start a second run while the old one is still going.
		j.running = existing.running
	}
	s.jobs[id] = j

	if ok {
		s.log.WithFields(logger.Fields{
			logger.FieldJobID: id,
			"schedule":        trigger.String(),
		}).Info("Job rescheduled")
		return JobUpdated
	}
	s.log.WithFields(logger.Fields{
		logger.FieldJobID: id,
		"schedule":        trigger.String(),
	}).Info("Job added")
	return JobAdded
}

// Remove unregisters a job. Removing an unknown ID is a no-op. A run
// already in flight finishes; it just never fires again.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	s.log.WithField(logger.FieldJobID, id).Info("Job removed")
	return true
}

// TriggerOf returns the trigger of a registered job.
func (s *Scheduler) TriggerOf(id string) (Trigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Trigger{}, false
	}
	return j.trigger, true
}

// IDs returns the registered job IDs, sorted.
func (s *Scheduler) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run ticks the scheduler until ctx is cancelled, then waits for
// in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.resolution)
	defer ticker.Stop()

	s.log.WithField("resolution", s.resolution.String()).Info("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping, waiting for running jobs")
			s.wg.Wait()
			return
		case now := <-ticker.C:
			s.runTick(ctx, now)
		}
	}
}

// runTick fires every job due at now. Exposed to tests through a fixed
// clock rather than a real ticker.
func (s *Scheduler) runTick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.next.After(now) {
			continue
		}
		j.next = j.trigger.Next(now)
		if j.running {
			s.log.WithField(logger.FieldJobID, j.id).Warn("Job still running, skipping this fire")
			continue
		}
		j.running = true
		s.wg.Add(1)
		go s.execute(ctx, j)
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logger.Fields{
				logger.FieldJobID: j.id,
				"panic":           fmt.Sprintf("%v", r),
			}).Error("Job panicked")
		}
		s.mu.Lock()
		j.running = false
		// The job may have been replaced mid-run; clear the flag on the
		// registered entry too so its next fire is not blocked forever.
		if cur, ok := s.jobs[j.id]; ok {
			cur.running = false
		}
		s.mu.Unlock()
	}()

	start := s.now()
	j.fn(ctx)
	s.log.WithFields(logger.Fields{
		logger.FieldJobID:      j.id,
		logger.FieldDurationMs: s.now().Sub(start).Milliseconds(),
	}).Debug("Job completed")
}
