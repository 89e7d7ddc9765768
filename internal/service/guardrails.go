package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/marek/contextpool/internal/domain"
	"github.com/marek/contextpool/internal/logger"
)

// PIIEntity is one detected span of personal data. Offsets are rune
// positions into the classified text.
type PIIEntity struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
}

// PIIResult is the PII classifier's verdict.
type PIIResult struct {
	HasPII   bool        `json:"has_pii"`
	Entities []PIIEntity `json:"entities"`
}

// CopyrightResult is the copyright classifier's verdict.
type CopyrightResult struct {
	IsCopyrighted bool    `json:"is_copyrighted"`
	Confidence    float64 `json:"confidence"`
}

// PIIClassifier detects personal data in text. Any backend satisfying
// this shape is substitutable.
type PIIClassifier interface {
	ClassifyPII(ctx context.Context, text string) (*PIIResult, error)
}

// CopyrightClassifier judges whether text is copyrighted material.
type CopyrightClassifier interface {
	ClassifyCopyright(ctx context.Context, text string) (*CopyrightResult, error)
}

// GuardrailRunner gates content before persistence: PII spans are
// anonymized in place, copyrighted content is rejected outright.
//
// Classifier outages fail open: the text passes through unchecked and an
// error-level guardrail_degraded log records the lost protection. Flip
// failOpen to false to reject instead when a classifier is unreachable.
type GuardrailRunner struct {
	pii                 PIIClassifier
	copyright           CopyrightClassifier
	copyrightConfidence float64
	failOpen            bool
	log                 *logger.Logger
}

// NewGuardrailRunner creates a GuardrailRunner. copyrightConfidence is
// the rejection bar, 0.7 by default; strictly greater rejects.
func NewGuardrailRunner(pii PIIClassifier, copyright CopyrightClassifier, copyrightConfidence float64, log *logger.Logger) *GuardrailRunner {
	if copyrightConfidence <= 0 {
		copyrightConfidence = 0.7
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &GuardrailRunner{
		pii:                 pii,
		copyright:           copyright,
		copyrightConfidence: copyrightConfidence,
		failOpen:            true,
		log:                 log,
	}
}

// Run executes the PII and copyright checks over text. With skip, both
// checks are bypassed entirely (trusted/internal replays); there is no
// partial-skip mode.
func (g *GuardrailRunner) Run(ctx context.Context, text string, skip bool) domain.GuardrailResult {
	result := domain.GuardrailResult{Text: text}
	if skip {
		return result
	}

	if g.pii != nil {
		piiRes, err := g.pii.ClassifyPII(ctx, text)
		switch {
		case err != nil:
			g.log.WithError(err).WithField("guardrail_degraded", "pii").
				Error("PII classifier unavailable, passing content through unchecked")
			if !g.failOpen {
				result.Rejected = true
				return result
			}
		case piiRes.HasPII:
			result.PIIDetected = true
			result.Text = anonymizePII(text, piiRes.Entities)
			result.PIIAnonymized = result.Text != text
		}
	}

	if g.copyright != nil {
		cpRes, err := g.copyright.ClassifyCopyright(ctx, result.Text)
		switch {
		case err != nil:
			g.log.WithError(err).WithField("guardrail_degraded", "copyright").
				Error("Copyright classifier unavailable, passing content through unchecked")
			if !g.failOpen {
				result.Rejected = true
				return result
			}
		case cpRes.IsCopyrighted && cpRes.Confidence > g.copyrightConfidence:
			result.CopyrightRejected = true
			result.Rejected = true
		}
	}

	return result
}

// anonymizePII replaces each entity span with a bracketed type tag.
// Spans are applied in descending start-offset order so earlier
// replacements don't invalidate later offsets.
func anonymizePII(text string, entities []PIIEntity) string {
	if len(entities) == 0 {
		return text
	}

	sorted := make([]PIIEntity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start > sorted[j].Start
	})

	runes := []rune(text)
	for _, e := range sorted {
		start, end := e.Start, e.End
		if start < 0 {
			start = 0
		}
		if end > len(runes) {
			end = len(runes)
		}
		if start >= end {
			continue
		}
		tag := []rune("[" + strings.ToUpper(e.Type) + "]")
		runes = append(runes[:start], append(tag, runes[end:]...)...)
	}
	return string(runes)
}

// HTTPClassifier talks to the external guardrail classifier service and
// implements both classifier interfaces.
type HTTPClassifier struct {
	client  *resty.Client
	baseURL string
}

// NewHTTPClassifier creates a classifier client for the given base URL.
func NewHTTPClassifier(baseURL, apiKey string) *HTTPClassifier {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &HTTPClassifier{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type classifyRequest struct {
	Text string `json:"text"`
}

// ClassifyPII calls the PII detection endpoint.
func (c *HTTPClassifier) ClassifyPII(ctx context.Context, text string) (*PIIResult, error) {
	var result PIIResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(classifyRequest{Text: text}).
		SetResult(&result).
		Post(c.baseURL + "/classify/pii")
	if err != nil {
		return nil, fmt.Errorf("failed to call PII classifier: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("PII classifier error: status %d", resp.StatusCode())
	}
	return &result, nil
}

// ClassifyCopyright calls the copyright detection endpoint.
func (c *HTTPClassifier) ClassifyCopyright(ctx context.Context, text string) (*CopyrightResult, error) {
	var result CopyrightResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(classifyRequest{Text: text}).
		SetResult(&result).
		Post(c.baseURL + "/classify/copyright")
	if err != nil {
		return nil, fmt.Errorf("failed to call copyright classifier: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("copyright classifier error: status %d", resp.StatusCode())
	}
	return &result, nil
}
