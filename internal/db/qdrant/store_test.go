package qdrant

import (
	"testing"

	domchunk "github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/filter"
)

func TestPointID_Stable(t *testing.T) {
	a, b := PointID("doc_0"), PointID("doc_0")
	if a != b {
		t.Fatalf("PointID not deterministic: %s vs %s", a, b)
	}
	if PointID("doc_1") == a {
		t.Fatal("distinct chunks share a point id")
	}
	if len(a) != 36 {
		t.Errorf("PointID = %q, want UUID text", a)
	}
}

func TestSplitAddr(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"localhost:6334", "localhost", 6334, false},
		{"qdrant", "qdrant", defaultPort, false},
		{"qdrant:abc", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			host, port, err := splitAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (host != tt.wantHost || port != tt.wantPort) {
				t.Errorf("got %s:%d", host, port)
			}
		})
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	src := metadata.SourceEmail
	created := "2024-01-31T23:59:59Z"
	size := int64(2048)
	author := "Jane"
	md := metadata.Metadata{Source: &src, CreatedAt: &created, Filesize: &size, Author: &author}.WithDocumentID("doc")
	c, err := domchunk.New("doc_0", "hello", md, []float32{1, 0})
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}

	payload, err := toPayload(c)
	if err != nil {
		t.Fatalf("toPayload: %v", err)
	}
	if payload[metadata.KeyCreatedAt].GetIntegerValue() != 1706745599 {
		t.Errorf("created_at = %v", payload[metadata.KeyCreatedAt])
	}

	id, text, got := fromPayload(payload)
	if id != "doc_0" || text != "hello" {
		t.Errorf("id, text = %q, %q", id, text)
	}
	if *got.CreatedAt != created || *got.Filesize != size || *got.Source != src || *got.Author != author {
		t.Errorf("metadata = %+v", got)
	}
	if got.URL != nil {
		t.Error("absent url must stay nil")
	}
}

func TestToPayload_BadTimestamp(t *testing.T) {
	bad := "yesterday"
	md := metadata.Metadata{CreatedAt: &bad}.WithDocumentID("doc")
	c := domchunk.Reconstruct("doc_0", "x", md, nil)
	if _, err := toPayload(c); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildFilter(t *testing.T) {
	if buildFilter(filter.Expression{}) != nil {
		t.Fatal("empty expression must map to nil filter")
	}

	gte := 1704067200.0
	r, _ := filter.NewRangeFilter(nil, &gte, nil, nil)
	match, _ := filter.NewMatch("source", "file")
	rng, _ := filter.NewRange("created_at", r)
	expr, _ := filter.NewExpression([]filter.Condition{match, rng}, nil, nil)

	f := buildFilter(expr)
	if len(f.GetMust()) != 2 || f.GetShould() != nil {
		t.Fatalf("filter = %+v", f)
	}
	field := f.GetMust()[0].GetField()
	if field.GetKey() != "source" || field.GetMatch().GetKeyword() != "file" {
		t.Errorf("match = %+v", field)
	}
	rf := f.GetMust()[1].GetField()
	if rf.GetRange().GetGte() != gte || rf.GetRange().Lte != nil {
		t.Errorf("range = %+v", rf.GetRange())
	}
}
