package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marek/contextpool/internal/domain"
	"github.com/marek/contextpool/internal/service"
)

// IngestHandler handles document ingestion endpoints.
type IngestHandler struct {
	pipeline *service.Pipeline
}

// NewIngestHandler creates a new ingest handler.
// Parameters:
//   - pipeline: ingestion pipeline instance.
// Returns:
//   - *IngestHandler: initialized handler.
func NewIngestHandler(pipeline *service.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

// Ingest handles POST /api/v1/ingest.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req service.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if req.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	result := h.pipeline.IngestText(c.Request.Context(), req)

	switch result.Status {
	case domain.IngestStatusRejected:
		c.JSON(http.StatusUnprocessableEntity, result)
	case domain.IngestStatusError:
		c.JSON(http.StatusInternalServerError, result)
	default:
		c.JSON(http.StatusOK, result)
	}
}
