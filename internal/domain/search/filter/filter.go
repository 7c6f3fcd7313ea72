// Package filter is the backend-neutral predicate produced from metadata filters.
// Each datastore renders an Expression in its own dialect.
package filter

import (
	"fmt"
	"strconv"
)

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 32

// Expression is a predicate with must/should/must_not boolean semantics.
// The zero value matches everything.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates an Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	for name, group := range map[string][]Condition{"must": must, "should": should, "must_not": mustNot} {
		if len(group) > MaxConditionsPerGroup {
			return Expression{}, fmt.Errorf("too many %s conditions (max %d)", name, MaxConditionsPerGroup)
		}
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the conditions that all have to hold.
func (e Expression) Must() []Condition { return e.must }

// Should returns the conditions of which at least one has to hold.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the conditions that must not hold.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// Matches evaluates the expression against stored attributes.
// Used by datastores without a native predicate language.
func (e Expression) Matches(attrs map[string]any) bool {
	for _, c := range e.must {
		if !c.Matches(attrs) {
			return false
		}
	}
	for _, c := range e.mustNot {
		if c.Matches(attrs) {
			return false
		}
	}
	if len(e.should) == 0 {
		return true
	}
	for _, c := range e.should {
		if c.Matches(attrs) {
			return true
		}
	}
	return false
}

// Condition is a single clause: either an exact match or a numeric range.
type Condition struct {
	key       string
	match     string
	isMatch   bool
	rangeExpr *Range
}

// NewMatch creates an exact match condition. An empty match value selects
// attributes stored as the empty string.
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, match: match, isMatch: true}, nil
}

// NewRange creates a numeric range condition.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

// Key returns the attribute name.
func (c Condition) Key() string { return c.key }

// Match returns the exact match value.
func (c Condition) Match() string { return c.match }

// Range returns the numeric range.
func (c Condition) Range() *Range { return c.rangeExpr }

// IsMatch reports whether this is a match condition.
func (c Condition) IsMatch() bool { return c.isMatch }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

// Matches evaluates the condition against stored attributes. Absent keys never match.
func (c Condition) Matches(attrs map[string]any) bool {
	v, ok := attrs[c.key]
	if !ok {
		return false
	}
	if c.IsMatch() {
		s, ok := v.(string)
		return ok && s == c.match
	}
	if c.IsRange() {
		f, ok := toFloat(v)
		return ok && c.rangeExpr.Contains(f)
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Range is a numeric interval with gt/gte/lt/lte bounds.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one bound is required; gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether f lies inside the range.
func (r Range) Contains(f float64) bool {
	switch {
	case r.gt != nil && f <= *r.gt:
		return false
	case r.gte != nil && f < *r.gte:
		return false
	case r.lt != nil && f >= *r.lt:
		return false
	case r.lte != nil && f > *r.lte:
		return false
	}
	return true
}
