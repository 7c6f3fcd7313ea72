package rerank

import (
	"context"
	"strings"
	"unicode"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/model"
)

// LexicalModel is the model name that selects the lexical scorer.
const LexicalModel = "lexical"

// Lexical scores a passage by the share of distinct query terms it contains.
// It needs no model runtime and scores in [0,1].
type Lexical struct{}

// LexicalLoader returns a loader for the lexical scorer.
func LexicalLoader() model.Loader[model.PairScorer] {
	return func(_ context.Context, _ model.Spec) (model.PairScorer, error) {
		return Lexical{}, nil
	}
}

// ScorePairs implements model.PairScorer.
func (Lexical) ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error) {
	terms := uniqueTerms(query)
	scores := make([]float64, len(passages))
	if len(terms) == 0 {
		return scores, nil
	}
	for i, p := range passages {
		if err := ctx.Err(); err != nil {
			return nil, err //nolint:wrapcheck // cancellation is returned as-is
		}
		present := make(map[string]struct{})
		for _, w := range tokenize(p) {
			present[w] = struct{}{}
		}
		matched := 0
		for _, t := range terms {
			if _, ok := present[t]; ok {
				matched++
			}
		}
		scores[i] = float64(matched) / float64(len(terms))
	}
	return scores, nil
}

func uniqueTerms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range tokenize(text) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// tokenize lowercases and splits on anything but letters, digits and '_',
// dropping single-character words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
