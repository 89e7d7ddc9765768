package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/marek/contextpool/internal/domain"
)

// ScrapeWorkflow is the external scrape-and-extract collaborator. The
// pool checker treats the outcome as opaque and only inspects Error and
// counts.
type ScrapeWorkflow interface {
	Scrape(ctx context.Context, companyID, sourceID, url, urlType string) (*domain.ScrapeOutcome, error)
}

// HTTPScrapeWorkflow calls the extraction service over HTTP.
type HTTPScrapeWorkflow struct {
	client  *resty.Client
	baseURL string
}

// NewHTTPScrapeWorkflow creates a workflow client for the given base URL.
func NewHTTPScrapeWorkflow(baseURL, apiKey string) *HTTPScrapeWorkflow {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &HTTPScrapeWorkflow{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type scrapeRequest struct {
	CompanyID string `json:"company_id"`
	SourceID  string `json:"source_id"`
	URL       string `json:"url"`
	URLType   string `json:"url_type,omitempty"`
}

type scrapeResponse struct {
	ContextUnitIDs []string `json:"context_unit_ids"`
	ChangeInfo     struct {
		ChangeType string `json:"change_type"`
	} `json:"change_info"`
	Error string `json:"error,omitempty"`
}

// Scrape invokes the scrape-and-extract workflow for one source.
func (w *HTTPScrapeWorkflow) Scrape(ctx context.Context, companyID, sourceID, url, urlType string) (*domain.ScrapeOutcome, error) {
	var result scrapeResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(scrapeRequest{
			CompanyID: companyID,
			SourceID:  sourceID,
			URL:       url,
			URLType:   urlType,
		}).
		SetResult(&result).
		Post(w.baseURL + "/workflows/scrape")
	if err != nil {
		return nil, fmt.Errorf("failed to call scrape workflow: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("scrape workflow error: status %d", resp.StatusCode())
	}

	return &domain.ScrapeOutcome{
		ContextUnitIDs: result.ContextUnitIDs,
		ChangeType:     result.ChangeInfo.ChangeType,
		Error:          result.Error,
	}, nil
}
