package request

import (
	"fmt"
	"strings"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
)

// Query parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in bytes.
	MaxQueryLength = 8192
	DefaultTopK    = 3
	MaxTopK        = 500
)

// Query is a validated retrieval query.
type Query struct {
	text   string
	filter *metadata.Filter
	topK   int
}

// New validates and normalizes query parameters. topK <= 0 falls back to DefaultTopK.
func New(text string, f *metadata.Filter, topK int) (Query, error) {
	if strings.TrimSpace(text) == "" {
		return Query{}, fmt.Errorf("query is required")
	}
	if len(text) > MaxQueryLength {
		return Query{}, fmt.Errorf("query too long (max %d bytes)", MaxQueryLength)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		return Query{}, fmt.Errorf("top_k must be at most %d", MaxTopK)
	}
	return Query{text: text, filter: f, topK: topK}, nil
}

// Text returns the query text.
func (q Query) Text() string { return q.text }

// Filter returns the metadata filter; nil means unconstrained.
func (q Query) Filter() *metadata.Filter { return q.filter }

// TopK returns the number of nearest neighbors to fetch.
func (q Query) TopK() int { return q.topK }
