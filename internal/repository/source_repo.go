package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marek/contextpool/internal/domain"
	"gorm.io/gorm"
)

// SourceRepository handles persistence for monitored sources, including
// the health counters and circuit-breaker fields. All health mutations
// are single-statement atomic updates rather than read-then-write, so
// two concurrent checks of the same source cannot lose a count.
type SourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository creates a new SourceRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SourceRepository: repository instance bound to db.
func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Create inserts a new source record, assigning an ID if absent.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - src: source record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *SourceRepository) Create(ctx context.Context, src *domain.Source) error {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(src).Error
}

// GetByID retrieves a source by its ID.
func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	var src domain.Source
	if err := r.db.WithContext(ctx).First(&src, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &src, nil
}

// ListAll retrieves every source row regardless of type or active flag.
// The reconciler uses this as the prune baseline: a job survives only if
// its source ID still exists in the table.
func (r *SourceRepository) ListAll(ctx context.Context) ([]domain.Source, error) {
	var sources []domain.Source
	if err := r.db.WithContext(ctx).Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// ListActive retrieves active sources ordered by name.
func (r *SourceRepository) ListActive(ctx context.Context) ([]domain.Source, error) {
	var sources []domain.Source
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// SetActive soft-deletes or restores a source. Health counters are
// preserved for audit either way.
func (r *SourceRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.db.WithContext(ctx).Model(&domain.Source{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

// RecordSuccess resets the consecutive-failure counter and stamps the
// scrape time. The breaker flag is deliberately left untouched: only the
// stale-breaker sweep or a manual reset clears an open breaker.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: source ID.
//   - now: timestamp to record as last_scraped_at.
// Returns:
//   - error: non-nil if the update fails.
func (r *SourceRepository) RecordSuccess(ctx context.Context, id string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Source{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"consecutive_failures": 0,
			"total_successes":      gorm.Expr("total_successes + 1"),
			"last_scraped_at":      now,
			"updated_at":           now,
		}).Error
}

// RecordFailure increments the failure counters and records the error.
// When the consecutive count reaches threshold and the breaker is still
// closed, it opens the breaker and stamps circuit_breaker_opened_at.
// An already-open breaker keeps its original opened-at timestamp so the
// auto-reset window is measured from the first opening.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: source ID.
//   - msg: failure reason text.
//   - now: timestamp to record.
//   - threshold: consecutive-failure count that opens the breaker.
// Returns:
//   - bool: true if this call opened the breaker.
//   - error: non-nil if either update fails.
func (r *SourceRepository) RecordFailure(ctx context.Context, id, msg string, now time.Time, threshold int) (bool, error) {
	err := r.db.WithContext(ctx).Model(&domain.Source{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
			"total_failures":       gorm.Expr("total_failures + 1"),
			"last_error":           msg,
			"last_error_at":        now,
			"last_scraped_at":      now,
			"updated_at":           now,
		}).Error
	if err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).Model(&domain.Source{}).
		Where("id = ? AND consecutive_failures >= ? AND circuit_breaker_open = ?", id, threshold, false).
		Updates(map[string]interface{}{
			"circuit_breaker_open":      true,
			"circuit_breaker_opened_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ResetStaleBreakers closes every breaker opened before cutoff and
// zeroes the consecutive-failure counters in one atomic statement.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: breakers opened before this instant are reset.
// Returns:
//   - int64: number of breakers reset.
//   - error: non-nil if the update fails.
func (r *SourceRepository) ResetStaleBreakers(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Source{}).
		Where("circuit_breaker_open = ? AND circuit_breaker_opened_at < ?", true, cutoff).
		Updates(map[string]interface{}{
			"circuit_breaker_open": false,
			"consecutive_failures": 0,
		})
	return res.RowsAffected, res.Error
}

// ResetBreaker is the operator's manual reset for a single source.
func (r *SourceRepository) ResetBreaker(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Source{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"circuit_breaker_open": false,
			"consecutive_failures": 0,
		}).Error
}

// NextRotation selects the next sources due for a normal-rotation check:
// active, breaker closed, least-recently-scraped first. Never-scraped
// sources sort ahead of any previously-scraped source.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of sources to return.
// Returns:
//   - []domain.Source: selected sources.
//   - error: non-nil if the query fails.
func (r *SourceRepository) NextRotation(ctx context.Context, limit int) ([]domain.Source, error) {
	var sources []domain.Source
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND circuit_breaker_open = ?", true, false).
		Order("last_scraped_at ASC NULLS FIRST").
		Limit(limit).
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// HighFrequencyCandidates selects active, breaker-closed sources with at
// least minCount content units in the last 7 days, most productive first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of candidates to return.
//   - minCount: minimum content_count_7d to qualify.
// Returns:
//   - []domain.Source: candidate sources.
//   - error: non-nil if the query fails.
func (r *SourceRepository) HighFrequencyCandidates(ctx context.Context, limit, minCount int) ([]domain.Source, error) {
	var sources []domain.Source
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND circuit_breaker_open = ? AND content_count_7d >= ?", true, false, minCount).
		Order("content_count_7d DESC").
		Limit(limit).
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}
