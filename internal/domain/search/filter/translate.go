package filter

import (
	"fmt"
	"strconv"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
)

// Translate maps a metadata filter onto an Expression, field by field.
// Scalar fields become equality conditions; the date bounds become one range
// condition each on created_at, in epoch seconds. A nil or empty filter yields
// the empty expression. Unparseable dates return domain.ErrInvalidFilter.
func Translate(f *metadata.Filter) (Expression, error) {
	if f.IsEmpty() {
		return Expression{}, nil
	}

	var must []Condition
	addMatch := func(key string, v *string) error {
		if v == nil {
			return nil
		}
		c, err := NewMatch(key, *v)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
		}
		must = append(must, c)
		return nil
	}

	if f.Source != nil {
		src := string(*f.Source)
		if err := addMatch(metadata.KeySource, &src); err != nil {
			return Expression{}, err
		}
	}
	for _, field := range []struct {
		key string
		val *string
	}{
		{metadata.KeySourceID, f.SourceID},
		{metadata.KeyURL, f.URL},
		{metadata.KeyAuthor, f.Author},
		{metadata.KeyDocumentID, f.DocumentID},
		{metadata.KeyFilename, f.Filename},
	} {
		if err := addMatch(field.key, field.val); err != nil {
			return Expression{}, err
		}
	}

	if f.Filesize != nil {
		size := float64(*f.Filesize)
		c, err := exact(metadata.KeyFilesize, size)
		if err != nil {
			return Expression{}, err
		}
		must = append(must, c)
	}

	if f.StartDate != nil {
		c, err := dateBound(*f.StartDate, true)
		if err != nil {
			return Expression{}, err
		}
		must = append(must, c)
	}
	if f.EndDate != nil {
		c, err := dateBound(*f.EndDate, false)
		if err != nil {
			return Expression{}, err
		}
		must = append(must, c)
	}

	return NewExpression(must, nil, nil)
}

func exact(key string, v float64) (Condition, error) {
	r, err := NewRangeFilter(nil, &v, nil, &v)
	if err != nil {
		return Condition{}, err
	}
	return NewRange(key, r)
}

func dateBound(text string, lower bool) (Condition, error) {
	epoch, err := metadata.ParseTimestamp(text)
	if err != nil {
		name := "end_date"
		if lower {
			name = "start_date"
		}
		return Condition{}, fmt.Errorf("%w: %s: %w", domain.ErrInvalidFilter, name, err)
	}
	bound := float64(epoch)
	var r Range
	if lower {
		r, err = NewRangeFilter(nil, &bound, nil, nil)
	} else {
		r, err = NewRangeFilter(nil, nil, nil, &bound)
	}
	if err != nil {
		return Condition{}, err
	}
	return NewRange(metadata.KeyCreatedAt, r)
}

// String renders the expression for logs.
func (e Expression) String() string {
	if e.IsEmpty() {
		return "*"
	}
	s := ""
	for i, c := range e.must {
		if i > 0 {
			s += " AND "
		}
		s += c.String()
	}
	return s
}

// String renders the condition for logs.
func (c Condition) String() string {
	if c.IsMatch() {
		return c.key + "==" + strconv.Quote(c.match)
	}
	if c.IsRange() {
		r := c.rangeExpr
		switch {
		case r.gte != nil && r.lte != nil && *r.gte == *r.lte:
			return c.key + "==" + strconv.FormatFloat(*r.gte, 'f', -1, 64)
		case r.gte != nil && r.lte != nil:
			return fmt.Sprintf("%s in [%g, %g]", c.key, *r.gte, *r.lte)
		case r.gte != nil:
			return c.key + ">=" + strconv.FormatFloat(*r.gte, 'f', -1, 64)
		case r.lte != nil:
			return c.key + "<=" + strconv.FormatFloat(*r.lte, 'f', -1, 64)
		}
	}
	return c.key
}
