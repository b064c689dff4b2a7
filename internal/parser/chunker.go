package parser

import (
	"regexp"
	"strings"

	"studybuddy/internal/models"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	garbageRe    = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?;:'"()\-]`)
)

// CleanText collapses whitespace runs to single spaces and drops characters
// that are neither letters, digits, nor common punctuation.
func CleanText(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = garbageRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ChunkText splits content into fixed-size windows of at most maxChars bytes,
// each starting overlapChars bytes before the end of its predecessor. Offsets
// are byte offsets into content. Chunking the same content twice yields the
// same chunks.
func ChunkText(content string, maxChars, overlapChars int) []models.Chunk {
	if maxChars <= 0 || len(content) == 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	stride := maxChars - overlapChars
	var chunks []models.Chunk
	for start := 0; start < len(content); start += stride {
		end := start + maxChars
		if end > len(content) {
			end = len(content)
		}
		overlap := 0
		if start > 0 {
			overlap = overlapChars
		}
		chunks = append(chunks, models.Chunk{
			Content:     content[start:end],
			StartOffset: start,
			Overlap:     overlap,
			ChunkID:     len(chunks) + 1,
		})
		if end == len(content) {
			break
		}
	}
	return chunks
}

// Reassemble is the inverse of ChunkText: it concatenates chunks, skipping
// each chunk's leading overlap, and returns the original content.
func Reassemble(chunks []models.Chunk) string {
	var b strings.Builder
	for _, chunk := range chunks {
		if chunk.Overlap >= len(chunk.Content) {
			continue
		}
		b.WriteString(chunk.Content[chunk.Overlap:])
	}
	return b.String()
}
