package filter

import (
	"errors"
	"testing"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
)

func strPtr(s string) *string { return &s }

func TestTranslate_Empty(t *testing.T) {
	for name, f := range map[string]*metadata.Filter{"nil": nil, "zero": {}} {
		t.Run(name, func(t *testing.T) {
			expr, err := Translate(f)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !expr.IsEmpty() {
				t.Errorf("expected empty expression, got %s", expr)
			}
		})
	}
}

func TestTranslate_SourceAndStartDate(t *testing.T) {
	src := metadata.SourceFile
	expr, err := Translate(&metadata.Filter{
		Source:    &src,
		StartDate: strPtr("2024-01-01T00:00:00Z"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	must := expr.Must()
	if len(must) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(must))
	}
	if !must[0].IsMatch() || must[0].Key() != "source" || must[0].Match() != "file" {
		t.Errorf("first condition = %s", must[0])
	}
	r := must[1].Range()
	if must[1].Key() != "created_at" || r == nil {
		t.Fatalf("second condition = %s", must[1])
	}
	if r.GTE() == nil || *r.GTE() != 1704067200 {
		t.Errorf("gte = %v, want 1704067200", r.GTE())
	}
	if r.LTE() != nil || r.GT() != nil || r.LT() != nil {
		t.Error("start date alone must be one-sided")
	}
	if got := expr.String(); got != `source=="file" AND created_at>=1704067200` {
		t.Errorf("String() = %s", got)
	}
}

func TestTranslate_BothDates(t *testing.T) {
	expr, err := Translate(&metadata.Filter{
		StartDate: strPtr("2024-01-01T00:00:00Z"),
		EndDate:   strPtr("2024-01-31T23:59:59.900+00:00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	must := expr.Must()
	if len(must) != 2 {
		t.Fatalf("expected 2 range conditions, got %d", len(must))
	}
	if *must[0].Range().GTE() != 1704067200 {
		t.Errorf("start = %v", *must[0].Range().GTE())
	}
	if *must[1].Range().LTE() != 1706745599 {
		t.Errorf("end = %v (must be floored)", *must[1].Range().LTE())
	}
}

func TestTranslate_EndDateOnly(t *testing.T) {
	expr, err := Translate(&metadata.Filter{EndDate: strPtr("2024-01-01")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := expr.Must()[0].Range()
	if r.GTE() != nil || r.LTE() == nil || *r.LTE() != 1704067200 {
		t.Errorf("unexpected range %s", expr)
	}
}

func TestTranslate_ScalarFields(t *testing.T) {
	size := int64(2048)
	expr, err := Translate(&metadata.Filter{
		DocumentID: strPtr("doc-1"),
		SourceID:   strPtr("s-1"),
		URL:        strPtr("https://x"),
		Author:     strPtr("jane"),
		Filename:   strPtr("a.pdf"),
		Filesize:   &size,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"document_id": "doc-1", "source_id": "s-1", "url": "https://x",
		"author": "jane", "filename": "a.pdf",
	}
	seenSize := false
	for _, c := range expr.Must() {
		if c.IsMatch() {
			if want[c.Key()] != c.Match() {
				t.Errorf("%s = %q, want %q", c.Key(), c.Match(), want[c.Key()])
			}
			delete(want, c.Key())
			continue
		}
		if c.Key() == "filesize" && *c.Range().GTE() == 2048 && *c.Range().LTE() == 2048 {
			seenSize = true
		}
	}
	if len(want) != 0 {
		t.Errorf("missing conditions: %v", want)
	}
	if !seenSize {
		t.Error("filesize equality missing")
	}

	attrs := map[string]any{
		"document_id": "doc-1", "source_id": "s-1", "url": "https://x",
		"author": "jane", "filename": "a.pdf", "filesize": int64(2048),
	}
	if !expr.Matches(attrs) {
		t.Error("expression should match its own attributes")
	}
	attrs["author"] = "john"
	if expr.Matches(attrs) {
		t.Error("expression should reject a different author")
	}
}

func TestTranslate_InvalidDate(t *testing.T) {
	_, err := Translate(&metadata.Filter{StartDate: strPtr("last tuesday")})
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestTranslate_EmptyStringValue(t *testing.T) {
	expr, err := Translate(&metadata.Filter{Author: strPtr("")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	must := expr.Must()
	if len(must) != 1 || !must[0].IsMatch() || must[0].Key() != metadata.KeyAuthor || must[0].Match() != "" {
		t.Fatalf("must = %+v, want author == \"\"", must)
	}
	if !expr.Matches(map[string]any{metadata.KeyAuthor: ""}) {
		t.Error("empty author must match a stored empty author")
	}
	if expr.Matches(map[string]any{metadata.KeyAuthor: "jane"}) {
		t.Error("empty author must not match a non-empty author")
	}
	if expr.Matches(map[string]any{}) {
		t.Error("empty author must not match an absent author")
	}
}
