package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marek/contextpool/internal/api/middleware"
	"github.com/marek/contextpool/internal/domain"
	"github.com/marek/contextpool/internal/repository"
	"github.com/marek/contextpool/internal/service"
	"gorm.io/gorm"
)

// SourceHandler handles source management endpoints.
type SourceHandler struct {
	sources *repository.SourceRepository
	health  *service.HealthTracker
	checker *service.Checker
}

// NewSourceHandler creates a new source handler.
// Parameters:
//   - sources: source repository instance.
//   - health: health tracker for breaker operations.
//   - checker: pool checker for on-demand source checks.
// Returns:
//   - *SourceHandler: initialized handler.
func NewSourceHandler(sources *repository.SourceRepository, health *service.HealthTracker, checker *service.Checker) *SourceHandler {
	return &SourceHandler{
		sources: sources,
		health:  health,
		checker: checker,
	}
}

// ListSources handles GET /api/v1/sources.
func (h *SourceHandler) ListSources(c *gin.Context) {
	sources, err := h.sources.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list sources: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"total":   len(sources),
	})
}

// GetSource handles GET /api/v1/sources/:id.
func (h *SourceHandler) GetSource(c *gin.Context) {
	src, err := h.sources.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get source: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, src)
}

// CreateSource handles POST /api/v1/sources.
func (h *SourceHandler) CreateSource(c *gin.Context) {
	var src domain.Source
	if err := c.ShouldBindJSON(&src); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}
	if src.Name == "" || src.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and type are required"})
		return
	}
	src.IsActive = true

	if err := h.sources.Create(c.Request.Context(), &src); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create source: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, src)
}

// DeactivateSource handles DELETE /api/v1/sources/:id. The row is kept
// with its health history; only the active flag flips.
func (h *SourceHandler) DeactivateSource(c *gin.Context) {
	if err := h.sources.SetActive(c.Request.Context(), c.Param("id"), false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to deactivate source: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// ResetBreaker handles POST /api/v1/sources/:id/reset-breaker.
func (h *SourceHandler) ResetBreaker(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sources.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get source: " + err.Error(),
		})
		return
	}

	if err := h.health.ResetBreaker(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reset breaker: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// CheckSource handles POST /api/v1/sources/:id/check, running an
// immediate out-of-rotation check.
func (h *SourceHandler) CheckSource(c *gin.Context) {
	src, err := h.sources.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get source: " + err.Error(),
		})
		return
	}

	middleware.GetLogger(c).WithField("source_name", src.Name).Info("Manual source check requested")
	result := h.checker.CheckSource(c.Request.Context(), *src)
	c.JSON(http.StatusOK, result)
}
