package domain

import "testing"

// TestCategorizeError verifies substring-based failure bucketing
func TestCategorizeError(t *testing.T) {
	testCases := []struct {
		name string
		msg  string
		want ErrorCategory
	}{
		{name: "forbidden status", msg: "HTTP 403 Forbidden", want: ErrorPermanent403},
		{name: "not found status", msg: "fetch failed: 404 Not Found", want: ErrorPermanent404},
		{name: "gone status", msg: "resource gone (410)", want: ErrorPermanent410},
		{name: "plain timeout", msg: "Timeout after 120s", want: ErrorTransientTimeout},
		{name: "context deadline", msg: "context deadline exceeded", want: ErrorTransientTimeout},
		{name: "server error", msg: "upstream returned 503 Service Unavailable", want: ErrorTransient5xx},
		{name: "bad gateway", msg: "502 Bad Gateway", want: ErrorTransient5xx},
		{name: "connection refused", msg: "dial tcp 10.0.0.1:443: connection refused", want: ErrorTransientNetwork},
		{name: "dns failure", msg: "lookup example.com: no such host", want: ErrorTransientNetwork},
		{name: "unknown garbage", msg: "something odd happened", want: ErrorUnknown},
		{name: "empty message", msg: "", want: ErrorUnknown},
		// Permanent statuses win over transient words in the same message.
		{name: "permanent beats timeout", msg: "got 404 after timeout retry", want: ErrorPermanent404},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CategorizeError(tc.msg); got != tc.want {
				t.Errorf("CategorizeError(%q) = %s, want %s", tc.msg, got, tc.want)
			}
		})
	}
}

func TestErrorCategoryPermanent(t *testing.T) {
	permanent := []ErrorCategory{ErrorPermanent403, ErrorPermanent404, ErrorPermanent410}
	for _, c := range permanent {
		if !c.Permanent() {
			t.Errorf("%s should be permanent", c)
		}
	}
	transient := []ErrorCategory{ErrorTransientTimeout, ErrorTransient5xx, ErrorTransientNetwork, ErrorUnknown}
	for _, c := range transient {
		if c.Permanent() {
			t.Errorf("%s should not be permanent", c)
		}
	}
}
