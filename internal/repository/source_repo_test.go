package repository

import (
	"context"
	"testing"
	"time"

	"github.com/marek/contextpool/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *SourceRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.Source{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewSourceRepository(db)
}

func mustCreate(t *testing.T, repo *SourceRepository, src *domain.Source) {
	t.Helper()
	src.IsActive = true
	if src.Type == "" {
		src.Type = domain.SourceTypeScraping
	}
	if err := repo.Create(context.Background(), src); err != nil {
		t.Fatalf("failed to create source: %v", err)
	}
}

func mustGet(t *testing.T, repo *SourceRepository, id string) *domain.Source {
	t.Helper()
	src, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to get source: %v", err)
	}
	return src
}

// TestBreakerOpensAtThreshold verifies the breaker opens at exactly the
// configured consecutive-failure count
func TestBreakerOpensAtThreshold(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	src := &domain.Source{Name: "flaky"}
	mustCreate(t, repo, src)

	for i := 1; i <= 4; i++ {
		opened, err := repo.RecordFailure(ctx, src.ID, "HTTP 503", now, 5)
		if err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i, err)
		}
		if opened {
			t.Fatalf("breaker opened at failure %d, want 5", i)
		}
	}

	got := mustGet(t, repo, src.ID)
	if got.ConsecutiveFailures != 4 {
		t.Errorf("ConsecutiveFailures = %d, want 4", got.ConsecutiveFailures)
	}
	if got.CircuitBreakerOpen {
		t.Error("breaker open before threshold")
	}

	opened, err := repo.RecordFailure(ctx, src.ID, "HTTP 503", now, 5)
	if err != nil {
		t.Fatalf("fifth RecordFailure failed: %v", err)
	}
	if !opened {
		t.Fatal("fifth failure did not open the breaker")
	}

	got = mustGet(t, repo, src.ID)
	if !got.CircuitBreakerOpen {
		t.Error("breaker flag not set")
	}
	if got.CircuitBreakerOpenedAt == nil {
		t.Fatal("opened-at not stamped")
	}
	if got.TotalFailures != 5 {
		t.Errorf("TotalFailures = %d, want 5", got.TotalFailures)
	}
	if got.LastError != "HTTP 503" {
		t.Errorf("LastError = %q, want HTTP 503", got.LastError)
	}
}

// TestBreakerOpenedAtPreserved verifies re-failures while open keep the
// original opened-at timestamp
func TestBreakerOpenedAtPreserved(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	openTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	src := &domain.Source{Name: "flaky"}
	mustCreate(t, repo, src)

	for i := 0; i < 5; i++ {
		if _, err := repo.RecordFailure(ctx, src.ID, "boom", openTime, 5); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	later := openTime.Add(3 * time.Hour)
	opened, err := repo.RecordFailure(ctx, src.ID, "boom again", later, 5)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if opened {
		t.Error("already-open breaker reported as newly opened")
	}

	got := mustGet(t, repo, src.ID)
	if !got.CircuitBreakerOpenedAt.Equal(openTime) {
		t.Errorf("opened-at = %v, want original %v", got.CircuitBreakerOpenedAt, openTime)
	}
}

// TestSuccessLeavesOpenBreaker verifies a success zeroes the counter but
// never closes an open breaker
func TestSuccessLeavesOpenBreaker(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	src := &domain.Source{Name: "flaky"}
	mustCreate(t, repo, src)

	for i := 0; i < 5; i++ {
		if _, err := repo.RecordFailure(ctx, src.ID, "boom", now, 5); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	if err := repo.RecordSuccess(ctx, src.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	got := mustGet(t, repo, src.ID)
	if got.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", got.ConsecutiveFailures)
	}
	if got.TotalSuccesses != 1 {
		t.Errorf("TotalSuccesses = %d, want 1", got.TotalSuccesses)
	}
	if !got.CircuitBreakerOpen {
		t.Error("success closed the breaker; only the sweep or manual reset may")
	}
}

// TestResetStaleBreakers verifies the 24h boundary of the auto-reset sweep
func TestResetStaleBreakers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	stale := &domain.Source{Name: "stale"}
	fresh := &domain.Source{Name: "fresh"}
	mustCreate(t, repo, stale)
	mustCreate(t, repo, fresh)

	for i := 0; i < 5; i++ {
		if _, err := repo.RecordFailure(ctx, stale.ID, "boom", now.Add(-25*time.Hour), 5); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if _, err := repo.RecordFailure(ctx, fresh.ID, "boom", now.Add(-23*time.Hour), 5); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	reset, err := repo.ResetStaleBreakers(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ResetStaleBreakers failed: %v", err)
	}
	if reset != 1 {
		t.Errorf("reset count = %d, want 1", reset)
	}

	gotStale := mustGet(t, repo, stale.ID)
	if gotStale.CircuitBreakerOpen {
		t.Error("25h-old breaker not reset")
	}
	if gotStale.ConsecutiveFailures != 0 {
		t.Errorf("stale ConsecutiveFailures = %d, want 0", gotStale.ConsecutiveFailures)
	}

	gotFresh := mustGet(t, repo, fresh.ID)
	if !gotFresh.CircuitBreakerOpen {
		t.Error("23h-old breaker was reset early")
	}
}

func TestManualResetBreaker(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	src := &domain.Source{Name: "flaky"}
	mustCreate(t, repo, src)
	for i := 0; i < 5; i++ {
		if _, err := repo.RecordFailure(ctx, src.ID, "boom", now, 5); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	if err := repo.ResetBreaker(ctx, src.ID); err != nil {
		t.Fatalf("ResetBreaker failed: %v", err)
	}

	got := mustGet(t, repo, src.ID)
	if got.CircuitBreakerOpen {
		t.Error("breaker still open after manual reset")
	}
	if got.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", got.ConsecutiveFailures)
	}
	if got.TotalFailures != 5 {
		t.Errorf("TotalFailures = %d, want history preserved at 5", got.TotalFailures)
	}
}

// TestNextRotationOrdering verifies never-scraped sources win, then the
// least recently scraped
func TestNextRotationOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	never := &domain.Source{Name: "never"}
	old := &domain.Source{Name: "old"}
	recent := &domain.Source{Name: "recent"}
	mustCreate(t, repo, never)
	mustCreate(t, repo, old)
	mustCreate(t, repo, recent)

	if err := repo.RecordSuccess(ctx, old.ID, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if err := repo.RecordSuccess(ctx, recent.ID, now.Add(-time.Hour)); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	got, err := repo.NextRotation(ctx, 2)
	if err != nil {
		t.Fatalf("NextRotation failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sources, want 2", len(got))
	}
	if got[0].ID != never.ID {
		t.Errorf("first pick = %s, want never-scraped source", got[0].Name)
	}
	if got[1].ID != old.ID {
		t.Errorf("second pick = %s, want oldest-scraped source", got[1].Name)
	}
}

func TestNextRotationExcludesOpenAndInactive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	ok := &domain.Source{Name: "ok"}
	broken := &domain.Source{Name: "broken"}
	disabled := &domain.Source{Name: "disabled"}
	mustCreate(t, repo, ok)
	mustCreate(t, repo, broken)
	mustCreate(t, repo, disabled)

	for i := 0; i < 5; i++ {
		if _, err := repo.RecordFailure(ctx, broken.ID, "boom", now, 5); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	if err := repo.SetActive(ctx, disabled.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	got, err := repo.NextRotation(ctx, 10)
	if err != nil {
		t.Fatalf("NextRotation failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != ok.ID {
		t.Errorf("rotation = %v, want only the healthy active source", got)
	}
}

func TestHighFrequencyCandidates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	quiet := &domain.Source{Name: "quiet", ContentCount7d: 1}
	busy := &domain.Source{Name: "busy", ContentCount7d: 7}
	busier := &domain.Source{Name: "busier", ContentCount7d: 12}
	mustCreate(t, repo, quiet)
	mustCreate(t, repo, busy)
	mustCreate(t, repo, busier)

	got, err := repo.HighFrequencyCandidates(ctx, 10, 2)
	if err != nil {
		t.Fatalf("HighFrequencyCandidates failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].ID != busier.ID || got[1].ID != busy.ID {
		t.Errorf("order = [%s %s], want busiest first", got[0].Name, got[1].Name)
	}
}

func TestSetActivePreservesHealthHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	src := &domain.Source{Name: "audited"}
	mustCreate(t, repo, src)
	if _, err := repo.RecordFailure(ctx, src.ID, "boom", now, 5); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	if err := repo.SetActive(ctx, src.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	got := mustGet(t, repo, src.ID)
	if got.IsActive {
		t.Error("source still active")
	}
	if got.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want history preserved", got.TotalFailures)
	}
}
