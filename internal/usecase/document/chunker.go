package document

import "strings"

// Default word window.
const (
	DefaultChunkWords   = 200
	DefaultChunkOverlap = 0
)

// WordChunker splits text into windows of whitespace-separated words.
type WordChunker struct {
	size    int
	overlap int
}

// NewWordChunker creates a chunker. Overlap is clamped below size.
func NewWordChunker(size, overlap int) *WordChunker {
	if size <= 0 {
		size = DefaultChunkWords
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &WordChunker{size: size, overlap: overlap}
}

// Split returns the chunk texts of text, in order. Blank text has no chunks.
func (c *WordChunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var out []string
	step := c.size - c.overlap
	for start := 0; start < len(words); start += step {
		end := min(start+c.size, len(words))
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}
