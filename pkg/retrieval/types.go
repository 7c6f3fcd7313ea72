package retrieval

import (
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
)

// Metadata describes a document. All fields are optional.
type Metadata = metadata.Metadata

// Filter constrains queries, deletes and listings by metadata.
type Filter = metadata.Filter

// Source is the origin of a document.
type Source = metadata.Source

// Known document sources.
const (
	SourceEmail = metadata.SourceEmail
	SourceFile  = metadata.SourceFile
	SourceChat  = metadata.SourceChat
)

// Document is an input document. An empty ID is assigned on upsert.
type Document struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Query is one natural-language query. TopK <= 0 selects the default.
type Query struct {
	Text   string
	Filter *Filter
	TopK   int
}

// Passage is one retrieved chunk.
type Passage struct {
	ID       string
	Text     string
	Metadata Metadata
	Score    float64 // similarity from the datastore
}

// Result holds the passages retrieved for one query, best first.
type Result struct {
	Query    string
	Passages []Passage
}

// DeleteRequest selects chunks to delete. At least one selector is required;
// ids and a filter together select documents matching both.
type DeleteRequest struct {
	IDs    []string // document ids
	Filter *Filter
	All    bool
}

// ListRequest pages through stored documents.
type ListRequest struct {
	Filter *Filter
	Limit  int
	Offset int
}

// DocumentSummary describes one stored document.
type DocumentSummary struct {
	DocumentID string
	ChunkCount int
	Metadata   Metadata
	SampleText string
}

// Page is one page of documents plus the total count.
type Page struct {
	Documents []DocumentSummary
	Total     int
}

// HealthStatus represents the aggregated pipeline health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component -> "ok"/"error"
}

func fromRanked(rs []result.Ranked) []Result {
	out := make([]Result, len(rs))
	for i, r := range rs {
		passages := make([]Passage, r.Len())
		for j := range r.Len() {
			p := r.At(j)
			passages[j] = Passage{ID: p.ID(), Text: p.Text(), Metadata: p.Metadata(), Score: p.Score()}
		}
		out[i] = Result{Query: r.Query(), Passages: passages}
	}
	return out
}

func toRanked(rs []Result) []result.Ranked {
	out := make([]result.Ranked, len(rs))
	for i, r := range rs {
		passages := make([]result.Passage, len(r.Passages))
		for j, p := range r.Passages {
			passages[j] = result.NewPassage(p.ID, p.Text, p.Metadata, p.Score)
		}
		out[i] = result.NewRanked(r.Query, passages)
	}
	return out
}
