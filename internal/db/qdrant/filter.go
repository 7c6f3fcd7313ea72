package qdrant

import (
	"github.com/qdrant/go-client/qdrant"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/filter"
)

// buildFilter renders an expression as a Qdrant filter. Nil matches everything.
func buildFilter(expr filter.Expression) *qdrant.Filter {
	if expr.IsEmpty() {
		return nil
	}
	return &qdrant.Filter{
		Must:    buildConditions(expr.Must()),
		Should:  buildConditions(expr.Should()),
		MustNot: buildConditions(expr.MustNot()),
	}
}

func buildConditions(conds []filter.Condition) []*qdrant.Condition {
	if len(conds) == 0 {
		return nil
	}
	out := make([]*qdrant.Condition, 0, len(conds))
	for _, c := range conds {
		switch {
		case c.IsMatch():
			out = append(out, qdrant.NewMatch(c.Key(), c.Match()))
		case c.IsRange():
			r := c.Range()
			out = append(out, qdrant.NewRange(c.Key(), &qdrant.Range{
				Gt:  r.GT(),
				Gte: r.GTE(),
				Lt:  r.LT(),
				Lte: r.LTE(),
			}))
		}
	}
	return out
}
