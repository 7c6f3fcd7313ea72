// Package result holds the immutable values that flow out of retrieval.
package result

import "github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"

// Passage is a single retrieved chunk.
type Passage struct {
	id       string
	text     string
	metadata metadata.Metadata
	score    float64
}

// NewPassage creates a passage. score is the backend's similarity.
func NewPassage(id, text string, md metadata.Metadata, score float64) Passage {
	return Passage{id: id, text: text, metadata: md, score: score}
}

// ID returns the chunk id.
func (p Passage) ID() string { return p.id }

// Text returns the chunk text.
func (p Passage) Text() string { return p.text }

// Metadata returns the chunk metadata.
func (p Passage) Metadata() metadata.Metadata { return p.metadata }

// Score returns the backend similarity score.
func (p Passage) Score() float64 { return p.score }

// Ranked is the ordered answer to one query; index 0 is most relevant.
type Ranked struct {
	query    string
	passages []Passage
}

// NewRanked creates a ranked result. The passage slice is copied.
func NewRanked(query string, passages []Passage) Ranked {
	return Ranked{query: query, passages: clonePassages(passages)}
}

// Query returns the query text.
func (r Ranked) Query() string { return r.query }

// Passages returns a copy of the ordered passages.
func (r Ranked) Passages() []Passage { return clonePassages(r.passages) }

// Len returns the number of passages.
func (r Ranked) Len() int { return len(r.passages) }

// At returns the i-th passage.
func (r Ranked) At(i int) Passage { return r.passages[i] }

// WithPassages returns a new Ranked for the same query with a different ordering.
func (r Ranked) WithPassages(passages []Passage) Ranked {
	return NewRanked(r.query, passages)
}

func clonePassages(in []Passage) []Passage {
	if in == nil {
		return nil
	}
	out := make([]Passage, len(in))
	copy(out, in)
	return out
}
