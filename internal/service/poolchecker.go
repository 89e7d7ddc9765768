package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marek/contextpool/internal/domain"
	"github.com/marek/contextpool/internal/logger"
)

// SelectionStore is the repository slice the checker needs to pick the
// next batch of sources.
type SelectionStore interface {
	NextRotation(ctx context.Context, limit int) ([]domain.Source, error)
	HighFrequencyCandidates(ctx context.Context, limit, minCount int) ([]domain.Source, error)
}

// HealthRecorder receives check outcomes and owns the breaker lifecycle.
type HealthRecorder interface {
	AutoResetStaleBreakers(ctx context.Context) (int64, error)
	RecordSuccess(ctx context.Context, sourceID string) error
	RecordFailure(ctx context.Context, sourceID, msg string) error
}

// CheckerConfig holds the pool-selection tunables.
type CheckerConfig struct {
	// RotationSize is how many sources a normal rotation cycle checks.
	RotationSize int
	// BonusCandidates caps how many high-frequency sources are fetched
	// before recency filtering picks the single bonus slot.
	BonusCandidates int
	// HighFreqMinCount is the content_count_7d floor for bonus eligibility.
	HighFreqMinCount int
	// RecencyWindow excludes a high-frequency source from the bonus slot
	// when it was scraped more recently than this.
	RecencyWindow time.Duration
	// CheckTimeout is the hard per-source deadline. A check still running
	// at the deadline is recorded as a timeout failure.
	CheckTimeout time.Duration
}

// Checker runs the pool checking cycle: sweep stale breakers, pick a
// small batch by rotation plus one high-frequency bonus slot, fan the
// checks out in parallel, and feed every outcome back into the health
// tracker. One slow or panicking source never blocks the rest of the
// batch.
type Checker struct {
	store    SelectionStore
	health   HealthRecorder
	workflow ScrapeWorkflow
	cfg      CheckerConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewChecker creates a pool checker with defaults for any zero tunable:
// 2 rotation picks, 10 bonus candidates, 2 units/7d floor, 50 minute
// recency window, 120 second per-source timeout.
func NewChecker(store SelectionStore, health HealthRecorder, workflow ScrapeWorkflow, cfg CheckerConfig, log *logger.Logger) *Checker {
	if cfg.RotationSize <= 0 {
		cfg.RotationSize = 2
	}
	if cfg.BonusCandidates <= 0 {
		cfg.BonusCandidates = 10
	}
	if cfg.HighFreqMinCount <= 0 {
		cfg.HighFreqMinCount = 2
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = 50 * time.Minute
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 120 * time.Second
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Checker{
		store:    store,
		health:   health,
		workflow: workflow,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// CheckNextBatch runs one full pool cycle and returns the per-source
// results. An empty pool is a quiet no-op.
func (c *Checker) CheckNextBatch(ctx context.Context) ([]domain.CheckResult, error) {
	if _, err := c.health.AutoResetStaleBreakers(ctx); err != nil {
		c.log.WithError(err).Error("Failed to sweep stale circuit breakers")
	}

	batch, err := c.selectBatch(ctx)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		c.log.Debug("No sources due for checking")
		return nil, nil
	}

	results := c.runBatch(ctx, batch)
	for _, res := range results {
		c.recordResult(ctx, res)
	}

	c.log.WithFields(logger.Fields{
		logger.FieldCount: len(results),
	}).Info("Pool check cycle completed")
	return results, nil
}

// CheckSource checks a single source immediately, outside the rotation.
// The scheduler uses this for per-source interval jobs.
func (c *Checker) CheckSource(ctx context.Context, src domain.Source) domain.CheckResult {
	res := c.checkOne(ctx, src)
	c.recordResult(ctx, res)
	return res
}

// selectBatch builds the cycle's batch: up to RotationSize sources in
// least-recently-scraped order, plus at most one high-frequency bonus
// pick that is not already in the batch and not scraped within the
// recency window.
func (c *Checker) selectBatch(ctx context.Context) ([]domain.Source, error) {
	batch, err := c.store.NextRotation(ctx, c.cfg.RotationSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select rotation sources: %w", err)
	}

	picked := make(map[string]bool, len(batch)+1)
	for _, src := range batch {
		picked[src.ID] = true
	}

	candidates, err := c.store.HighFrequencyCandidates(ctx, c.cfg.BonusCandidates, c.cfg.HighFreqMinCount)
	if err != nil {
		return nil, fmt.Errorf("failed to select high-frequency candidates: %w", err)
	}

	cutoff := c.now().Add(-c.cfg.RecencyWindow)
	for _, cand := range candidates {
		if picked[cand.ID] {
			continue
		}
		if cand.LastScrapedAt != nil && cand.LastScrapedAt.After(cutoff) {
			continue
		}
		batch = append(batch, cand)
		break
	}

	return batch, nil
}

// runBatch fans the checks out, one goroutine per source. Each check is
// isolated: panics and timeouts become failure results for that source
// only.
func (c *Checker) runBatch(ctx context.Context, batch []domain.Source) []domain.CheckResult {
	resultsChan := make(chan domain.CheckResult, len(batch))
	var wg sync.WaitGroup

	for _, src := range batch {
		wg.Add(1)
		go func(src domain.Source) {
			defer wg.Done()
			resultsChan <- c.checkOne(ctx, src)
		}(src)
	}

	wg.Wait()
	close(resultsChan)

	results := make([]domain.CheckResult, 0, len(batch))
	for res := range resultsChan {
		results = append(results, res)
	}
	return results
}

// checkOne runs a single source check under the hard timeout. The
// workflow call runs in its own goroutine so a hung call cannot outlive
// the deadline from the caller's point of view.
func (c *Checker) checkOne(ctx context.Context, src domain.Source) domain.CheckResult {
	result := domain.CheckResult{SourceID: src.ID, SourceName: src.Name}

	checkCtx, cancel := context.WithTimeout(ctx, c.cfg.CheckTimeout)
	defer cancel()

	done := make(chan domain.CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				res := result
				res.Error = fmt.Sprintf("panic: %v", r)
				done <- res
			}
		}()
		done <- c.invokeWorkflow(checkCtx, src)
	}()

	select {
	case res := <-done:
		result = res
	case <-checkCtx.Done():
		result.Error = checkCtx.Err().Error()
	}

	// A failure surfaced while the deadline expired is a timeout however
	// it arrived: via the select or via the workflow seeing ctx.Err().
	// Parent cancellation (daemon shutdown) is not the source's fault and
	// must not count against its breaker.
	switch {
	case checkCtx.Err() == context.DeadlineExceeded && result.Error != "":
		result.TimedOut = true
		result.Error = fmt.Sprintf("Timeout after %ds", int(c.cfg.CheckTimeout.Seconds()))
	case checkCtx.Err() == context.Canceled && result.Error != "":
		result.Canceled = true
	}

	result.Success = result.Error == ""
	if !result.Success && !result.Canceled {
		result.Category = domain.CategorizeError(result.Error)
	}
	return result
}

// invokeWorkflow calls the scrape workflow and maps its outcome to a
// check result. A workflow-level error string counts as a failed check
// even when the HTTP call itself succeeded.
func (c *Checker) invokeWorkflow(ctx context.Context, src domain.Source) domain.CheckResult {
	result := domain.CheckResult{SourceID: src.ID, SourceName: src.Name}

	url := src.Config.GetString("url")
	urlType := src.Config.GetString("url_type")

	outcome, err := c.workflow.Scrape(ctx, src.CompanyID, src.ID, url, urlType)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if outcome.Error != "" {
		result.Error = outcome.Error
		return result
	}

	result.ChangeType = outcome.ChangeType
	result.UnitsCreated = len(outcome.ContextUnitIDs)
	return result
}

// recordResult feeds one outcome into the health tracker. Recording
// failures are logged and swallowed so one bad write cannot abort the
// cycle's remaining bookkeeping.
func (c *Checker) recordResult(ctx context.Context, res domain.CheckResult) {
	log := c.log.WithFields(logger.Fields{
		logger.FieldSourceID: res.SourceID,
		"source_name":        res.SourceName,
	})

	if res.Canceled {
		log.Debug("Source check cancelled, outcome not recorded")
		return
	}

	var err error
	if res.Success {
		err = c.health.RecordSuccess(ctx, res.SourceID)
		log.WithFields(logger.Fields{
			"change_type": res.ChangeType,
			"units":       res.UnitsCreated,
		}).Info("Source check succeeded")
	} else {
		err = c.health.RecordFailure(ctx, res.SourceID, res.Error)
		log.WithFields(logger.Fields{
			"error":              res.Error,
			logger.FieldCategory: string(res.Category),
			"timed_out":          res.TimedOut,
		}).Warn("Source check failed")
	}
	if err != nil {
		log.WithError(err).Error("Failed to record check outcome")
	}
}
