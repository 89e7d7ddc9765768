package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/marek/contextpool/internal/domain"
	"github.com/marek/contextpool/internal/repository"
)

type fakeEmbedder struct {
	err    error
	panics bool
	calls  int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.panics {
		panic("embedder exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1.0}
	}
	return vectors, nil
}

type fakeIndex struct {
	searchScore float32
	searchHit   bool
	searchErr   error
	upsertErr   error

	searchTenants []string
	upserted      []repository.VectorPoint
	upsertCalls   int
}

func (f *fakeIndex) UpsertBatch(ctx context.Context, points []repository.VectorPoint) error {
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeIndex) SearchNearest(ctx context.Context, vector []float32, tenantID string) (*repository.NearestHit, error) {
	f.searchTenants = append(f.searchTenants, tenantID)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if !f.searchHit {
		return nil, nil
	}
	return &repository.NearestHit{ID: "existing", Score: f.searchScore}, nil
}

func newTestPipeline(embedder Embedder, index VectorIndex) *Pipeline {
	guardrails := NewGuardrailRunner(nil, nil, 0.7, nil)
	return NewPipeline(guardrails, embedder, index, nil, PipelineConfig{
		ChunkSize:           50,
		ChunkOverlap:        0,
		SimilarityThreshold: 0.98,
	}, nil)
}

func TestIngestStoresChunks(t *testing.T) {
	index := &fakeIndex{}
	pipeline := newTestPipeline(&fakeEmbedder{}, index)

	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40)
	result := pipeline.IngestText(context.Background(), IngestRequest{
		Text:     text,
		Title:    "doc",
		TenantID: "tenant-1",
	})

	if result.Status != domain.IngestStatusSuccess {
		t.Fatalf("status = %s, want success (errors: %v)", result.Status, result.Errors)
	}
	if result.ChunksCreated != 2 {
		t.Errorf("ChunksCreated = %d, want 2", result.ChunksCreated)
	}
	if result.DocumentsAdded != 1 {
		t.Errorf("DocumentsAdded = %d, want 1", result.DocumentsAdded)
	}
	if len(index.upserted) != 2 {
		t.Errorf("upserted %d points, want 2", len(index.upserted))
	}
	if index.upsertCalls != 1 {
		t.Errorf("upsert calls = %d, want one batch write", index.upsertCalls)
	}
	for _, tenant := range index.searchTenants {
		if tenant != "tenant-1" {
			t.Errorf("dedup search used tenant %q, want tenant-1", tenant)
		}
	}
}

// TestIngestDuplicateThreshold verifies the inclusive similarity cutoff
func TestIngestDuplicateThreshold(t *testing.T) {
	testCases := []struct {
		name           string
		score          float32
		wantDuplicates int
		wantStored     int
	}{
		{name: "below threshold stored", score: 0.9799, wantDuplicates: 0, wantStored: 1},
		{name: "exactly at threshold skipped", score: 0.98, wantDuplicates: 1, wantStored: 0},
		{name: "above threshold skipped", score: 0.999, wantDuplicates: 1, wantStored: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			index := &fakeIndex{searchHit: true, searchScore: tc.score}
			pipeline := newTestPipeline(&fakeEmbedder{}, index)

			result := pipeline.IngestText(context.Background(), IngestRequest{
				Text:     "one small chunk",
				TenantID: "tenant-1",
			})

			if result.Status != domain.IngestStatusSuccess {
				t.Fatalf("status = %s, want success", result.Status)
			}
			if result.DuplicatesSkipped != tc.wantDuplicates {
				t.Errorf("DuplicatesSkipped = %d, want %d", result.DuplicatesSkipped, tc.wantDuplicates)
			}
			if len(index.upserted) != tc.wantStored {
				t.Errorf("stored %d points, want %d", len(index.upserted), tc.wantStored)
			}
		})
	}
}

func TestIngestAllDuplicatesAddsNothing(t *testing.T) {
	index := &fakeIndex{searchHit: true, searchScore: 0.99}
	pipeline := newTestPipeline(&fakeEmbedder{}, index)

	result := pipeline.IngestText(context.Background(), IngestRequest{
		Text:     "already known content",
		TenantID: "tenant-1",
	})

	if result.Status != domain.IngestStatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}
	if result.DocumentsAdded != 0 {
		t.Errorf("DocumentsAdded = %d, want 0 when every chunk is a duplicate", result.DocumentsAdded)
	}
	if index.upsertCalls != 0 {
		t.Errorf("upsert calls = %d, want 0", index.upsertCalls)
	}
}

// TestIngestPayloadFixedFieldsWin verifies caller metadata cannot
// override the reserved payload keys
func TestIngestPayloadFixedFieldsWin(t *testing.T) {
	index := &fakeIndex{}
	pipeline := newTestPipeline(&fakeEmbedder{}, index)

	result := pipeline.IngestText(context.Background(), IngestRequest{
		Text:     "content",
		Title:    "real title",
		TenantID: "tenant-1",
		Metadata: map[string]interface{}{
			"tenant_id": "spoofed",
			"title":     "spoofed",
			"author":    "alice",
		},
	})

	if result.Status != domain.IngestStatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}
	if len(index.upserted) != 1 {
		t.Fatalf("stored %d points, want 1", len(index.upserted))
	}

	payload := index.upserted[0].Payload
	if payload["tenant_id"] != "tenant-1" {
		t.Errorf("tenant_id = %v, want tenant-1", payload["tenant_id"])
	}
	if payload["title"] != "real title" {
		t.Errorf("title = %v, want real title", payload["title"])
	}
	if payload["author"] != "alice" {
		t.Errorf("custom metadata author = %v, want alice", payload["author"])
	}
	if payload["source"] != "manual" {
		t.Errorf("source = %v, want manual default", payload["source"])
	}
	if payload["chunk_index"] != 0 {
		t.Errorf("chunk_index = %v, want 0", payload["chunk_index"])
	}
}

func TestIngestEmbedderFailureContained(t *testing.T) {
	pipeline := newTestPipeline(&fakeEmbedder{err: errors.New("api down")}, &fakeIndex{})

	result := pipeline.IngestText(context.Background(), IngestRequest{
		Text:     "content",
		TenantID: "tenant-1",
	})

	if result.Status != domain.IngestStatusError {
		t.Fatalf("status = %s, want error", result.Status)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "api down") {
		t.Errorf("errors = %v, want embedding failure message", result.Errors)
	}
}

func TestIngestPanicContained(t *testing.T) {
	pipeline := newTestPipeline(&fakeEmbedder{panics: true}, &fakeIndex{})

	result := pipeline.IngestText(context.Background(), IngestRequest{
		Text:     "content",
		TenantID: "tenant-1",
	})

	if result.Status != domain.IngestStatusError {
		t.Fatalf("status = %s, want error after recovered panic", result.Status)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "panic") {
		t.Errorf("errors = %v, want panic message", result.Errors)
	}
}

func TestIngestDedupSearchFailureContained(t *testing.T) {
	index := &fakeIndex{searchErr: errors.New("qdrant unavailable")}
	pipeline := newTestPipeline(&fakeEmbedder{}, index)

	result := pipeline.IngestText(context.Background(), IngestRequest{
		Text:     "content",
		TenantID: "tenant-1",
	})

	if result.Status != domain.IngestStatusError {
		t.Fatalf("status = %s, want error", result.Status)
	}
	if index.upsertCalls != 0 {
		t.Errorf("upsert calls = %d, want 0 after search failure", index.upsertCalls)
	}
}

func TestIngestCopyrightRejectedBeforeEmbedding(t *testing.T) {
	cp := &fakeCopyrightClassifier{
		result: &CopyrightResult{IsCopyrighted: true, Confidence: 0.9},
	}
	guardrails := NewGuardrailRunner(nil, cp, 0.7, nil)
	embedder := &fakeEmbedder{}
	index := &fakeIndex{}
	pipeline := NewPipeline(guardrails, embedder, index, nil, PipelineConfig{}, nil)

	result := pipeline.IngestText(context.Background(), IngestRequest{
		Text:     "copyrighted material",
		TenantID: "tenant-1",
	})

	if result.Status != domain.IngestStatusRejected {
		t.Fatalf("status = %s, want rejected", result.Status)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times, want 0 for rejected content", embedder.calls)
	}
	if index.upsertCalls != 0 {
		t.Errorf("upsert calls = %d, want 0 for rejected content", index.upsertCalls)
	}
}
