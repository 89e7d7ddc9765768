package service

import "strings"

// separatorCascade orders split boundaries from most to least preferred:
// paragraph breaks beat line breaks beat sentence ends beat word gaps.
// Text with none of these is cut at raw character positions.
var separatorCascade = []string{"\n\n", "\n", ". ", " "}

// SplitText splits text into chunks of at most chunkSize runes, carrying
// chunkOverlap trailing runes of each chunk into the next. Empty or
// whitespace-only input yields no chunks.
func SplitText(text string, chunkSize, chunkOverlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return splitRecursive(text, chunkSize, chunkOverlap, 0)
}

func splitRecursive(text string, size, overlap, sepIdx int) []string {
	if runeLen(text) <= size {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}
	if sepIdx >= len(separatorCascade) {
		return splitRunes(text, size, overlap)
	}

	sep := separatorCascade[sepIdx]
	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		// Separator absent, fall through to the next boundary type.
		return splitRecursive(text, size, overlap, sepIdx+1)
	}

	var chunks []string
	var cur string
	for _, part := range parts {
		if runeLen(part) > size {
			// A single piece too large for any chunk: flush what we
			// have and split the piece at a finer boundary.
			if trimmed := strings.TrimSpace(cur); trimmed != "" {
				chunks = append(chunks, trimmed)
			}
			cur = ""
			chunks = append(chunks, splitRecursive(part, size, overlap, sepIdx+1)...)
			continue
		}
		if cur != "" && runeLen(cur)+runeLen(part) > size {
			chunks = append(chunks, strings.TrimSpace(cur))
			cur = overlapTail(cur, overlap)
			if runeLen(cur)+runeLen(part) > size {
				// Overlap would push past the limit; drop it for this chunk.
				cur = ""
			}
		}
		cur += part
	}
	if trimmed := strings.TrimSpace(cur); trimmed != "" {
		// The trailing fragment may be pure overlap already emitted.
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], trimmed) {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks
}

// splitRunes cuts text into fixed windows of size runes, stepping by
// size-overlap so consecutive windows share overlap runes.
func splitRunes(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if trimmed := strings.TrimSpace(string(runes[start:end])); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// overlapTail returns the last n runes of s.
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func runeLen(s string) int {
	return len([]rune(s))
}
