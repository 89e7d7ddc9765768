package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marek/contextpool/internal/domain"
	"github.com/marek/contextpool/internal/logger"
	"github.com/marek/contextpool/internal/repository"
	"github.com/marek/contextpool/internal/storage"
)

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the slice of the vector store the pipeline needs:
// batch writes and tenant-scoped nearest-neighbor lookups.
type VectorIndex interface {
	UpsertBatch(ctx context.Context, points []repository.VectorPoint) error
	SearchNearest(ctx context.Context, vector []float32, tenantID string) (*repository.NearestHit, error)
}

// IngestRequest is one document to ingest. Every entrypoint (file,
// email, web, manual) funnels into the same pipeline through this type.
type IngestRequest struct {
	Text           string                 `json:"text"`
	Title          string                 `json:"title"`
	TenantID       string                 `json:"tenant_id"`
	Source         string                 `json:"source,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	SkipGuardrails bool                   `json:"skip_guardrails,omitempty"`
}

// PipelineConfig holds ingestion tunables.
type PipelineConfig struct {
	ChunkSize           int
	ChunkOverlap        int
	SimilarityThreshold float32
}

// Pipeline is the guarded, idempotent ingestion path: guardrails, then
// chunking, then embedding, then similarity dedup, then one batch write
// to the vector store.
type Pipeline struct {
	guardrails *GuardrailRunner
	embedder   Embedder
	index      VectorIndex
	archive    storage.DocumentArchive
	cfg        PipelineConfig
	log        *logger.Logger
	now        func() time.Time
}

// NewPipeline creates an ingestion pipeline. archive may be nil when raw
// document archival is disabled.
func NewPipeline(
	guardrails *GuardrailRunner,
	embedder Embedder,
	index VectorIndex,
	archive storage.DocumentArchive,
	cfg PipelineConfig,
	log *logger.Logger,
) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.98
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Pipeline{
		guardrails: guardrails,
		embedder:   embedder,
		index:      index,
		archive:    archive,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// logFor returns a logger from context if available, otherwise the pipeline's own.
func (p *Pipeline) logFor(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.log
}

// IngestText runs one document through the full pipeline. It never
// returns an error or panics past this boundary: failures land in the
// result's Errors with status "error" so batch and scheduled callers
// can continue with other documents.
func (p *Pipeline) IngestText(ctx context.Context, req IngestRequest) (result *domain.IngestResult) {
	result = &domain.IngestResult{Status: domain.IngestStatusSuccess}

	defer func() {
		if r := recover(); r != nil {
			result.Status = domain.IngestStatusError
			result.Errors = append(result.Errors, fmt.Sprintf("panic: %v", r))
			p.logFor(ctx).WithField("panic", fmt.Sprintf("%v", r)).Error("Ingest pipeline panicked")
		}
	}()

	log := p.logFor(ctx).WithFields(logger.Fields{
		logger.FieldTenantID: req.TenantID,
		"title":              req.Title,
	})

	guard := p.guardrails.Run(ctx, req.Text, req.SkipGuardrails)
	if guard.Rejected {
		result.Status = domain.IngestStatusRejected
		log.WithField("copyright_rejected", guard.CopyrightRejected).
			Info("Document rejected by guardrails")
		return result
	}

	docID := uuid.New().String()
	p.archiveRaw(ctx, req, docID)

	chunks := SplitText(guard.Text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	result.ChunksCreated = len(chunks)
	if len(chunks) == 0 {
		log.Info("Document produced no chunks")
		return result
	}

	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		result.Status = domain.IngestStatusError
		result.Errors = append(result.Errors, fmt.Sprintf("embedding failed: %v", err))
		return result
	}
	if len(vectors) != len(chunks) {
		result.Status = domain.IngestStatusError
		result.Errors = append(result.Errors, fmt.Sprintf("embedding count mismatch: got %d, expected %d", len(vectors), len(chunks)))
		return result
	}

	loadedAt := p.now().UTC()
	var points []repository.VectorPoint
	for i, chunk := range chunks {
		hit, err := p.index.SearchNearest(ctx, vectors[i], req.TenantID)
		if err != nil {
			result.Status = domain.IngestStatusError
			result.Errors = append(result.Errors, fmt.Sprintf("dedup search failed: %v", err))
			return result
		}
		// Inclusive threshold: an exact-duplicate score of 0.98 is a duplicate.
		if hit != nil && hit.Score >= p.cfg.SimilarityThreshold {
			result.DuplicatesSkipped++
			continue
		}

		points = append(points, repository.VectorPoint{
			ID:      uuid.New().String(),
			Vector:  vectors[i],
			Payload: p.buildPayload(req, guard, loadedAt, docID, i, chunk),
		})
	}

	// All-duplicates is a normal outcome: nothing to write, nothing added.
	if len(points) > 0 {
		if err := p.index.UpsertBatch(ctx, points); err != nil {
			result.Status = domain.IngestStatusError
			result.Errors = append(result.Errors, fmt.Sprintf("vector upsert failed: %v", err))
			return result
		}
		result.DocumentsAdded = 1
	}

	log.WithFields(logger.Fields{
		"chunks":     result.ChunksCreated,
		"duplicates": result.DuplicatesSkipped,
		"stored":     len(points),
	}).Info("Document ingested")

	return result
}

// buildPayload merges caller metadata with the fixed fields. Fixed keys
// always win on conflict.
func (p *Pipeline) buildPayload(req IngestRequest, guard domain.GuardrailResult, loadedAt time.Time, docID string, chunkIndex int, chunkText string) map[string]interface{} {
	payload := make(map[string]interface{}, len(req.Metadata)+8)
	for k, v := range req.Metadata {
		payload[k] = v
	}

	source := req.Source
	if source == "" {
		source = "manual"
	}

	payload["tenant_id"] = req.TenantID
	payload["title"] = req.Title
	payload["loaded_at"] = loadedAt.Format("2006-01-02T15:04:05Z")
	payload["loaded_at_ts"] = loadedAt.Unix()
	payload["source"] = source
	payload["pii_anonymized"] = guard.PIIAnonymized
	payload["document_id"] = docID
	payload["chunk_index"] = chunkIndex
	payload["chunk_text"] = chunkText
	return payload
}

// archiveRaw stores the original text before any transformation. Archive
// failures are logged but never fail the ingestion.
func (p *Pipeline) archiveRaw(ctx context.Context, req IngestRequest, docID string) {
	if p.archive == nil {
		return
	}
	key := fmt.Sprintf("%s/%s.txt", req.TenantID, docID)
	if err := p.archive.Put(ctx, key, []byte(req.Text), "text/plain; charset=utf-8"); err != nil {
		p.logFor(ctx).WithError(err).WithField("archive_key", key).
			Warn("Failed to archive raw document")
	}
}
