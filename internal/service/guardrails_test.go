package service

import (
	"context"
	"errors"
	"testing"
)

type fakePIIClassifier struct {
	result *PIIResult
	err    error
	calls  int
}

func (f *fakePIIClassifier) ClassifyPII(ctx context.Context, text string) (*PIIResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeCopyrightClassifier struct {
	result *CopyrightResult
	err    error
	calls  int
}

func (f *fakeCopyrightClassifier) ClassifyCopyright(ctx context.Context, text string) (*CopyrightResult, error) {
	f.calls++
	return f.result, f.err
}

func TestGuardrailsAnonymizesPII(t *testing.T) {
	pii := &fakePIIClassifier{
		result: &PIIResult{
			HasPII: true,
			Entities: []PIIEntity{
				{Start: 5, End: 9, Type: "name"},
				{Start: 13, End: 21, Type: "phone"},
			},
		},
	}
	runner := NewGuardrailRunner(pii, nil, 0.7, nil)

	got := runner.Run(context.Background(), "Call John at 555-1234", false)
	if got.Rejected {
		t.Fatal("PII content should not be rejected, only anonymized")
	}
	if !got.PIIDetected || !got.PIIAnonymized {
		t.Errorf("expected PII detected and anonymized, got %+v", got)
	}
	want := "Call [NAME] at [PHONE]"
	if got.Text != want {
		t.Errorf("anonymized text = %q, want %q", got.Text, want)
	}
}

// TestGuardrailsAnonymizeUnicode verifies entity offsets are rune-based
func TestGuardrailsAnonymizeUnicode(t *testing.T) {
	// "héllo Ana" with Ana at rune offsets 6..9
	pii := &fakePIIClassifier{
		result: &PIIResult{
			HasPII:   true,
			Entities: []PIIEntity{{Start: 6, End: 9, Type: "name"}},
		},
	}
	runner := NewGuardrailRunner(pii, nil, 0.7, nil)

	got := runner.Run(context.Background(), "héllo Ana", false)
	if got.Text != "héllo [NAME]" {
		t.Errorf("anonymized text = %q, want %q", got.Text, "héllo [NAME]")
	}
}

func TestGuardrailsAnonymizeClampsOutOfRangeSpans(t *testing.T) {
	pii := &fakePIIClassifier{
		result: &PIIResult{
			HasPII: true,
			Entities: []PIIEntity{
				{Start: -3, End: 2, Type: "x"},
				{Start: 4, End: 99, Type: "y"},
			},
		},
	}
	runner := NewGuardrailRunner(pii, nil, 0.7, nil)

	got := runner.Run(context.Background(), "abcdef", false)
	if got.Text != "[X]cd[Y]" {
		t.Errorf("anonymized text = %q, want %q", got.Text, "[X]cd[Y]")
	}
}

func TestGuardrailsCopyrightThreshold(t *testing.T) {
	testCases := []struct {
		name       string
		confidence float64
		wantReject bool
	}{
		{name: "below threshold", confidence: 0.5, wantReject: false},
		// Exactly at the threshold passes; rejection requires strictly greater.
		{name: "at threshold", confidence: 0.7, wantReject: false},
		{name: "above threshold", confidence: 0.71, wantReject: true},
		{name: "certain", confidence: 1.0, wantReject: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cp := &fakeCopyrightClassifier{
				result: &CopyrightResult{IsCopyrighted: true, Confidence: tc.confidence},
			}
			runner := NewGuardrailRunner(nil, cp, 0.7, nil)

			got := runner.Run(context.Background(), "some text", false)
			if got.Rejected != tc.wantReject {
				t.Errorf("Rejected = %v, want %v", got.Rejected, tc.wantReject)
			}
			if got.CopyrightRejected != tc.wantReject {
				t.Errorf("CopyrightRejected = %v, want %v", got.CopyrightRejected, tc.wantReject)
			}
		})
	}
}

func TestGuardrailsNotCopyrightedHighConfidence(t *testing.T) {
	cp := &fakeCopyrightClassifier{
		result: &CopyrightResult{IsCopyrighted: false, Confidence: 0.99},
	}
	runner := NewGuardrailRunner(nil, cp, 0.7, nil)

	if got := runner.Run(context.Background(), "original work", false); got.Rejected {
		t.Error("non-copyrighted content should never be rejected")
	}
}

// TestGuardrailsFailOpen verifies classifier outages let content through
func TestGuardrailsFailOpen(t *testing.T) {
	pii := &fakePIIClassifier{err: errors.New("connection refused")}
	cp := &fakeCopyrightClassifier{err: errors.New("connection refused")}
	runner := NewGuardrailRunner(pii, cp, 0.7, nil)

	got := runner.Run(context.Background(), "unchecked text", false)
	if got.Rejected {
		t.Error("fail-open run should not reject")
	}
	if got.Text != "unchecked text" {
		t.Errorf("text = %q, want original passthrough", got.Text)
	}
}

func TestGuardrailsSkipBypassesClassifiers(t *testing.T) {
	pii := &fakePIIClassifier{
		result: &PIIResult{HasPII: true, Entities: []PIIEntity{{Start: 0, End: 4, Type: "name"}}},
	}
	cp := &fakeCopyrightClassifier{
		result: &CopyrightResult{IsCopyrighted: true, Confidence: 0.99},
	}
	runner := NewGuardrailRunner(pii, cp, 0.7, nil)

	got := runner.Run(context.Background(), "John wrote this", true)
	if got.Rejected || got.PIIDetected {
		t.Errorf("skip run should be untouched, got %+v", got)
	}
	if got.Text != "John wrote this" {
		t.Errorf("text = %q, want original", got.Text)
	}
	if pii.calls != 0 || cp.calls != 0 {
		t.Errorf("classifiers called %d/%d times, want 0/0", pii.calls, cp.calls)
	}
}
