package indexer

import (
	"iter"
	"strings"
	"unicode/utf8"
)

const (
	defaultMaxChunkSize = 1000 // Max runes per chunk
	defaultChunkOverlap = 200  // Runes carried over between consecutive chunks
)

// Break preference order: paragraph, line, sentence, word, hard cut.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter splits plain text into overlapping chunks. Chunks are cut at the
// largest natural boundary that fits: paragraph breaks first, then line
// breaks, then sentence ends, then word boundaries, and only as a last
// resort mid-word. Size is measured in runes, not bytes.
type Splitter struct {
	maxSize int
	overlap int
}

// NewSplitter creates a splitter with the default chunk size and overlap.
func NewSplitter() *Splitter {
	return &Splitter{
		maxSize: defaultMaxChunkSize,
		overlap: defaultChunkOverlap,
	}
}

// NewSplitterWith creates a splitter with explicit size and overlap.
// overlap must be smaller than maxSize or the splitter could not advance.
func NewSplitterWith(maxSize, overlap int) *Splitter {
	if maxSize <= 0 {
		maxSize = defaultMaxChunkSize
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = maxSize / 5
	}
	return &Splitter{
		maxSize: maxSize,
		overlap: overlap,
	}
}

// Split returns all chunks for the given text. Empty or whitespace-only
// input yields no chunks.
func (s *Splitter) Split(text string) []Chunk {
	var chunks []Chunk
	for _, chunk := range s.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Chunks returns a restartable iterator over the chunks of text. Text at or
// under the max size comes back as a single chunk; longer text is cut into
// overlapping windows.
func (s *Splitter) Chunks(text string) iter.Seq2[int, Chunk] {
	return func(yield func(int, Chunk) bool) {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return
		}

		runes := []rune(trimmed)
		if len(runes) <= s.maxSize {
			yield(0, Chunk{Index: 0, Text: trimmed})
			return
		}

		start := 0
		index := 0
		for start < len(runes) {
			end := start + s.maxSize
			if end >= len(runes) {
				end = len(runes)
			} else {
				end = s.findBreak(runes, start, end)
			}

			chunkText := strings.TrimSpace(string(runes[start:end]))
			if chunkText != "" {
				if !yield(index, Chunk{Index: index, Text: chunkText}) {
					return
				}
				index++
			}

			if end >= len(runes) {
				return
			}

			// Back up by the overlap, but always make forward progress.
			next := end - s.overlap
			if next <= start {
				next = end
			}
			start = next
		}
	}
}

// findBreak returns the cut position within runes[start:limit], preferring
// the latest occurrence of the strongest separator. Cuts inside the overlap
// region are rejected so they cannot stall progress. Falls back to a hard
// cut at limit when no usable separator appears in the window.
func (s *Splitter) findBreak(runes []rune, start, limit int) int {
	window := string(runes[start:limit])

	for _, sep := range separators {
		if pos := strings.LastIndex(window, sep); pos > 0 {
			// pos is a byte offset into the window; convert back to runes.
			cut := start + utf8.RuneCountInString(window[:pos]) + utf8.RuneCountInString(sep)
			if cut > start+s.overlap && cut <= limit {
				return cut
			}
		}
	}

	return limit
}
