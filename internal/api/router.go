package api

import (
	"github.com/gin-gonic/gin"
	"github.com/marek/contextpool/internal/api/handler"
	"github.com/marek/contextpool/internal/api/middleware"
	"github.com/marek/contextpool/internal/logger"
	"github.com/marek/contextpool/internal/repository"
	"github.com/marek/contextpool/internal/service"
)

// RouterConfig holds the router's collaborators and settings.
type RouterConfig struct {
	Mode     string
	CORS     middleware.CORSConfig
	Sources  *repository.SourceRepository
	Health   *service.HealthTracker
	Checker  *service.Checker
	Pipeline *service.Pipeline
	Log      *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg RouterConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(cfg.Log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	ingestHandler := handler.NewIngestHandler(cfg.Pipeline)
	sourceHandler := handler.NewSourceHandler(cfg.Sources, cfg.Health, cfg.Checker)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Ingestion
		v1.POST("/ingest", ingestHandler.Ingest)

		// Sources
		v1.GET("/sources", sourceHandler.ListSources)
		v1.POST("/sources", sourceHandler.CreateSource)
		v1.GET("/sources/:id", sourceHandler.GetSource)
		v1.DELETE("/sources/:id", sourceHandler.DeactivateSource)
		v1.POST("/sources/:id/reset-breaker", sourceHandler.ResetBreaker)
		v1.POST("/sources/:id/check", sourceHandler.CheckSource)
	}

	return r
}
