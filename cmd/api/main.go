package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marek/contextpool/internal/api"
	"github.com/marek/contextpool/internal/api/middleware"
	"github.com/marek/contextpool/internal/config"
	"github.com/marek/contextpool/internal/logger"
	"github.com/marek/contextpool/internal/repository"
	"github.com/marek/contextpool/internal/service"
	"github.com/marek/contextpool/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLog := logger.NewFromEnv()
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
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

	// Ensure Qdrant collection exists
	ctx := context.Background()
	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	// Initialize raw document archive
	archive, err := storage.NewArchive(cfg.Archive.Type, &storage.S3Config{
		Endpoint:  cfg.Archive.Endpoint,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		UseSSL:    cfg.Archive.UseSSL,
		Bucket:    cfg.Archive.Bucket,
		Region:    cfg.Archive.Region,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize document archive")
	}
	if s3Archive, ok := archive.(*storage.S3Archive); ok {
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			appLog.WithError(err).Fatal("Failed to ensure archive bucket")
		}
	}

	// Initialize services
	embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	})

	classifier := service.NewHTTPClassifier(cfg.Guardrails.BaseURL, cfg.Guardrails.APIKey)
	guardrails := service.NewGuardrailRunner(classifier, classifier, cfg.Guardrails.CopyrightConfidence, appLog)

	pipeline := service.NewPipeline(guardrails, embeddingService, qdrantRepo, archive, service.PipelineConfig{
		ChunkSize:           cfg.Ingest.ChunkSize,
		ChunkOverlap:        cfg.Ingest.ChunkOverlap,
		SimilarityThreshold: cfg.Ingest.SimilarityThreshold,
	}, appLog)

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

	// Setup router
	router := api.SetupRouter(api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Sources:  sourceRepo,
		Health:   health,
		Checker:  checker,
		Pipeline: pipeline,
		Log:      appLog,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLog.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Fatal("Server forced to shutdown")
	}

	appLog.Info("Server exited")
}
