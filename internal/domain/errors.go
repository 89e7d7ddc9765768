package domain

import "strings"

// ErrorCategory buckets a source failure reason for operator diagnostics.
// Categorization never changes breaker logic; the breaker only counts.
type ErrorCategory string

const (
	ErrorPermanent403     ErrorCategory = "permanent_http_403"
	ErrorPermanent404     ErrorCategory = "permanent_http_404"
	ErrorPermanent410     ErrorCategory = "permanent_http_410"
	ErrorTransientTimeout ErrorCategory = "transient_timeout"
	ErrorTransient5xx     ErrorCategory = "transient_http_5xx"
	ErrorTransientNetwork ErrorCategory = "transient_network"
	ErrorUnknown          ErrorCategory = "unknown"
)

// CategorizeError classifies a failure message by substring match.
// Permanent HTTP statuses are checked first so "404 after timeout retry"
// style messages land in the permanent bucket.
func CategorizeError(msg string) ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return ErrorPermanent403
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		return ErrorPermanent404
	case strings.Contains(lower, "410") || strings.Contains(lower, "gone"):
		return ErrorPermanent410
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded"):
		return ErrorTransientTimeout
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "504") ||
		strings.Contains(lower, "bad gateway") || strings.Contains(lower, "service unavailable"):
		return ErrorTransient5xx
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "broken pipe") ||
		strings.Contains(lower, "eof"):
		return ErrorTransientNetwork
	default:
		return ErrorUnknown
	}
}

// Permanent reports whether this category is a permanent-class failure.
func (c ErrorCategory) Permanent() bool {
	switch c {
	case ErrorPermanent403, ErrorPermanent404, ErrorPermanent410:
		return true
	}
	return false
}
