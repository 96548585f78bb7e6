// Package chunk slices document content into overlapping windows for
// embedding. Windows are measured in UTF-8 characters, not bytes, so
// multi-byte text chunks cleanly; byte offsets into the original content are
// recorded alongside.
package chunk

import (
	"strings"
)

// Chunk is one window of content.
type Chunk struct {
	// Text is the raw window text, untrimmed.
	Text string
	// Position is the zero-based index among non-empty chunks.
	Position int
	// ByteStart and ByteEnd delimit [start, end) in the original content.
	ByteStart int
	ByteEnd   int
	// TokenCount is the estimated token count (chars/4, rounded up).
	TokenCount int
}

// SlidingWindow chunks content with a window of size characters advancing by
// size-overlap characters. Windows that are empty after trimming are skipped
// and do not consume a position.
func SlidingWindow(content string, size, overlap int) []Chunk {
	if content == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	stride := size - overlap

	// Byte offset of every rune plus the terminal offset, so a window
	// [i, i+size) in characters maps straight to a byte range.
	offsets := make([]int, 0, len(content)+1)
	for i := range content {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(content))
	runeCount := len(offsets) - 1

	var chunks []Chunk
	position := 0
	for start := 0; start < runeCount; start += stride {
		end := start + size
		if end > runeCount {
			end = runeCount
		}

		byteStart := offsets[start]
		byteEnd := offsets[end]
		text := content[byteStart:byteEnd]
		if strings.TrimSpace(text) == "" {
			if end == runeCount {
				break
			}
			continue
		}

		chunks = append(chunks, Chunk{
			Text:       text,
			Position:   position,
			ByteStart:  byteStart,
			ByteEnd:    byteEnd,
			TokenCount: EstimateTokens(text),
		})
		position++

		if end == runeCount {
			break
		}
	}

	return chunks
}

// EstimateTokens approximates the token count of text as one token per four
// characters, rounded up.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
