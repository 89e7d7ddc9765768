package service

import (
	"strings"
	"testing"
)

func TestSplitTextEmptyInput(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{name: "empty string", text: ""},
		{name: "whitespace only", text: "   \n\t  "},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SplitText(tc.text, 100, 10); got != nil {
				t.Errorf("SplitText(%q) = %v, want nil", tc.text, got)
			}
		})
	}
}

func TestSplitTextShortInput(t *testing.T) {
	chunks := SplitText("short text", 100, 10)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "short text" {
		t.Errorf("chunk = %q, want %q", chunks[0], "short text")
	}
}

// TestSplitTextParagraphBoundary verifies that the paragraph separator is
// preferred over mid-text cuts
func TestSplitTextParagraphBoundary(t *testing.T) {
	para1 := strings.Repeat("a", 40)
	para2 := strings.Repeat("b", 40)
	text := para1 + "\n\n" + para2

	chunks := SplitText(text, 50, 0)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != para1 {
		t.Errorf("first chunk = %q, want %q", chunks[0], para1)
	}
	if chunks[1] != para2 {
		t.Errorf("second chunk = %q, want %q", chunks[1], para2)
	}
}

// TestSplitTextSeparatorFallback verifies the cascade falls through to
// raw rune windows when no separator exists
func TestSplitTextSeparatorFallback(t *testing.T) {
	text := strings.Repeat("x", 25)

	chunks := SplitText(text, 10, 0)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunks)
	}
	wantLens := []int{10, 10, 5}
	for i, chunk := range chunks {
		if len(chunk) != wantLens[i] {
			t.Errorf("chunk %d length = %d, want %d", i, len(chunk), wantLens[i])
		}
	}
}

// TestSplitTextRuneOverlap verifies that fixed windows carry the overlap
func TestSplitTextRuneOverlap(t *testing.T) {
	chunks := SplitText("abcdefghij", 6, 2)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "abcdef" {
		t.Errorf("first chunk = %q, want %q", chunks[0], "abcdef")
	}
	if chunks[1] != "efghij" {
		t.Errorf("second chunk = %q, want %q", chunks[1], "efghij")
	}
}

// TestSplitTextRuneOffsets verifies chunking counts runes, not bytes
func TestSplitTextRuneOffsets(t *testing.T) {
	text := strings.Repeat("日", 15)

	chunks := SplitText(text, 10, 0)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if got := len([]rune(chunks[0])); got != 10 {
		t.Errorf("first chunk rune length = %d, want 10", got)
	}
	if got := len([]rune(chunks[1])); got != 5 {
		t.Errorf("second chunk rune length = %d, want 5", got)
	}
}

// TestSplitTextChunkSizeInvariant checks that no chunk exceeds the limit
// across a mixed document
func TestSplitTextChunkSizeInvariant(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("First paragraph with a few sentences. It keeps going for a while. And a bit more.\n\n")
	sb.WriteString("Second paragraph is here.\n")
	sb.WriteString(strings.Repeat("word ", 80))
	sb.WriteString("\n\n")
	sb.WriteString(strings.Repeat("z", 300))

	const size = 100
	chunks := SplitText(sb.String(), size, 20)
	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}
	for i, chunk := range chunks {
		if got := len([]rune(chunk)); got > size {
			t.Errorf("chunk %d rune length = %d, exceeds %d", i, got, size)
		}
		if strings.TrimSpace(chunk) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestSplitTextDefaultsOnBadParams(t *testing.T) {
	// Overlap >= size is ignored rather than looping forever.
	chunks := SplitText(strings.Repeat("y", 30), 10, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
}
