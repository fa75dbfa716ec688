package chunking

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/wordbatch/internal/document"
)

const (
	// ElisionMarker separates the kept head and tail of truncated text.
	ElisionMarker = "\n...\n"

	// MinChunkTarget is the floor applied to chunk targets.
	MinChunkTarget = 200

	// minTruncatable is the length at or below which text is never cut.
	minTruncatable = 10

	headShare = 70
)

// EstimateTokens returns ceil(chars/4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// Truncate shapes text to fit maxTokens. A budget <= 0 means unlimited.
//
// When the estimate exceeds the budget the metadata is flagged as truncated
// and the text keeps its first 70% and last 30% of a 4*maxTokens character
// window, joined by ElisionMarker. Text of 10 characters or fewer is flagged
// but returned as is. The result is always strictly shorter than the input
// when it is modified.
func Truncate(text string, meta document.Meta, maxTokens int) (string, document.Meta) {
	est := EstimateTokens(text)
	if meta.TokenEst == 0 {
		meta.TokenEst = est
	}
	if maxTokens <= 0 || est <= maxTokens {
		return text, meta
	}

	meta.WasTruncated = true
	runes := []rune(text)
	n := len(runes)
	if n <= minTruncatable {
		return text, meta
	}

	markerLen := utf8.RuneCountInString(ElisionMarker)
	keep := min(maxTokens*4, n-markerLen-1)
	head := keep * headShare / 100
	tail := keep - head

	var b strings.Builder
	b.WriteString(strings.TrimRight(string(runes[:head]), " \t\r\n"))
	b.WriteString(ElisionMarker)
	b.WriteString(strings.TrimLeft(string(runes[n-tail:]), " \t\r\n"))
	return b.String(), meta
}

// Paragraphs splits text on line boundaries, trimming each line and
// dropping blank ones.
func Paragraphs(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if p := strings.TrimSpace(line); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Chunk greedily packs paragraphs into chunks of at most target tokens
// (floored at MinChunkTarget). A paragraph is never split, so a chunk holding
// a single oversized paragraph may exceed the target. At least one chunk is
// always returned; empty input yields [""].
func Chunk(text string, target int) []string {
	paragraphs := Paragraphs(text)
	if len(paragraphs) == 0 {
		return []string{""}
	}
	target = max(target, MinChunkTarget)

	var (
		chunks        []string
		current       []string
		currentTokens int
	)
	for _, p := range paragraphs {
		tokens := EstimateTokens(p)
		if len(current) > 0 && currentTokens+tokens > target {
			chunks = append(chunks, strings.Join(current, "\n"))
			current = current[:0]
			currentTokens = 0
		}
		current = append(current, p)
		currentTokens += tokens
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}
