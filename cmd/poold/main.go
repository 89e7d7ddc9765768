package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marek/contextpool/internal/config"
	"github.com/marek/contextpool/internal/domain"
	"github.com/marek/contextpool/internal/logger"
	"github.com/marek/contextpool/internal/repository"
	"github.com/marek/contextpool/internal/scheduler"
	"github.com/marek/contextpool/internal/service"
)

// poold is the scheduling daemon: it reconciles per-source jobs against
// the database, runs the pool checker rotation, and garbage-collects
// aged vectors.
func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLog := logger.NewFromEnv().WithField(logger.FieldComponent, "poold")
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}

	sourceRepo := repository.NewSourceRepository(db)

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Qdrant.VectorDimension,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	// Initialize services
	health := service.NewHealthTracker(sourceRepo, service.HealthConfig{
		FailureThreshold: cfg.Pool.FailureThreshold,
		BreakerCooldown:  cfg.Pool.BreakerCooldown,
	}, appLog)

	workflow := service.NewHTTPScrapeWorkflow(cfg.Scrape.BaseURL, cfg.Scrape.APIKey)

	checker := service.NewChecker(sourceRepo, health, workflow, service.CheckerConfig{
		RotationSize:     cfg.Pool.RotationSize,
		BonusCandidates:  cfg.Pool.BonusCandidates,
		HighFreqMinCount: cfg.Pool.HighFreqMinCount,
		RecencyWindow:    cfg.Pool.RecencyWindow,
		CheckTimeout:     cfg.Pool.CheckTimeout,
	}, appLog)

	// Initialize scheduler and reconciler
	sched := scheduler.New(cfg.Scheduler.Resolution, appLog)
	reconciler := scheduler.NewReconciler(sched, sourceRepo, func(ctx context.Context, src domain.Source) {
		checker.CheckSource(ctx, src)
	}, cfg.Pool.DefaultFrequencyMin, appLog)

	// System jobs
	sched.Upsert("system_reconcile", scheduler.IntervalTrigger(cfg.Scheduler.ReconcileInterval), func(ctx context.Context) {
		if _, err := reconciler.Reconcile(ctx); err != nil {
			appLog.WithError(err).Error("Schedule reconciliation failed")
		}
	})
	sched.Upsert("system_pool_check", scheduler.IntervalTrigger(cfg.Scheduler.PoolCheckInterval), func(ctx context.Context) {
		if _, err := checker.CheckNextBatch(ctx); err != nil {
			appLog.WithError(err).Error("Pool check cycle failed")
		}
	})

	gcAt, err := time.Parse("15:04", cfg.Scheduler.VectorGCTime)
	if err != nil {
		appLog.WithError(err).Fatal("Invalid vector GC time")
	}
	sched.Upsert("system_vector_gc", scheduler.DailyTrigger(gcAt.Hour(), gcAt.Minute()), func(ctx context.Context) {
		cutoff := time.Now().Add(-cfg.Scheduler.VectorRetention)
		if err := qdrantRepo.DeleteOlderThan(ctx, cutoff, true); err != nil {
			appLog.WithError(err).Error("Vector garbage collection failed")
			return
		}
		appLog.WithField("cutoff", cutoff.Format(time.RFC3339)).Info("Vector garbage collection completed")
	})

	// Converge once at startup so sources don't wait for the first
	// reconcile interval.
	if _, err := reconciler.Reconcile(ctx); err != nil {
		appLog.WithError(err).Error("Initial schedule reconciliation failed")
	}

	appLog.Info("Pool daemon started")
	sched.Run(ctx)
	appLog.Info("Pool daemon exited")
}
