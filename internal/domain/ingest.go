package domain

// IngestStatus is the terminal outcome of one ingestion call.
type IngestStatus string

const (
	IngestStatusSuccess  IngestStatus = "success"
	IngestStatusRejected IngestStatus = "rejected"
	IngestStatusError    IngestStatus = "error"
)

// GuardrailResult is the outcome of running the guardrail pipeline over
// one document. Rejected means the caller must stop processing: no
// chunking, no storage.
type GuardrailResult struct {
	Text              string `json:"text"`
	PIIDetected       bool   `json:"pii_detected"`
	PIIAnonymized     bool   `json:"pii_anonymized"`
	CopyrightRejected bool   `json:"copyright_rejected"`
	Rejected          bool   `json:"rejected"`
}

// IngestResult summarizes one ingestion call. Errors never propagate
// past the pipeline boundary; they show up here instead so batch and
// scheduled callers can continue with other documents.
type IngestResult struct {
	Status            IngestStatus `json:"status"`
	DocumentsAdded    int          `json:"documents_added"`
	ChunksCreated     int          `json:"chunks_created"`
	DuplicatesSkipped int          `json:"duplicates_skipped"`
	Errors            []string     `json:"errors,omitempty"`
}

// ScrapeOutcome is the structured result of the external scrape-and-
// extract workflow. The pool checker treats it as opaque and only
// inspects Error and counts.
type ScrapeOutcome struct {
	ContextUnitIDs []string `json:"context_unit_ids"`
	ChangeType     string   `json:"change_type"`
	Error          string   `json:"error,omitempty"`
}

// CheckResult is the per-source outcome of one pool checker cycle.
type CheckResult struct {
	SourceID     string        `json:"source_id"`
	SourceName   string        `json:"source_name"`
	Success      bool          `json:"success"`
	TimedOut     bool          `json:"timed_out"`
	Canceled     bool          `json:"canceled,omitempty"`
	Error        string        `json:"error,omitempty"`
	Category     ErrorCategory `json:"category,omitempty"`
	ChangeType   string        `json:"change_type,omitempty"`
	UnitsCreated int           `json:"units_created"`
}
