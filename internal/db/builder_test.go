package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_ChunkSchema(t *testing.T) {
	idx, err := NewIndex("chunks:idx").
		Prefix("chunk:").
		Tag("source", "document_id").
		Numeric("created_at", "filesize").
		VectorHNSW("__vector", "vector", 1024, DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(idx.Fields) != 5 {
		t.Fatalf("fields count = %d, want 5", len(idx.Fields))
	}
	if f := idx.Fields[0]; f.Name != "source" || f.Type != IndexFieldTag || !f.TagCaseSensitive {
		t.Errorf("field[0] = %+v, want case-sensitive source TAG", f)
	}
	if f := idx.Fields[1]; f.TagSeparator != TagValueSeparator || !f.TagIndexEmpty {
		t.Errorf("field[1] = %+v, want control-character separator with empty values indexed", f)
	}
	if f := idx.Fields[3]; f.Name != "filesize" || f.Type != IndexFieldNumeric {
		t.Errorf("field[3] = %+v, want filesize NUMERIC", f)
	}
	v := idx.Fields[4]
	if v.Alias != "vector" || v.VectorAlgo != VectorHNSW || v.VectorDim != 1024 || v.VectorDistance != DistanceCosine {
		t.Errorf("vector field = %+v", v)
	}
	if v.VectorM != 16 || v.VectorEFConstruct != 200 {
		t.Errorf("hnsw params = %d/%d", v.VectorM, v.VectorEFConstruct)
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *IndexBuilder
		wantErr string
	}{
		{"empty name", NewIndex("").Tag("x"), "index name is required"},
		{"no fields", NewIndex("idx"), "at least one field"},
		{"vector without dim", NewIndex("idx").VectorHNSW("v", "", 0, DistanceCosine, 0, 0), "positive DIM"},
		{"invalid characters", NewIndex("idx with spaces").Tag("x"), "invalid characters"},
		{
			"multi-character separator",
			&IndexBuilder{def: IndexDefinition{Name: "idx", Fields: []IndexField{
				{Name: "author", Type: IndexFieldTag, TagSeparator: ", "},
			}}},
			"single character",
		},
		{"duplicate alias", NewIndex("idx").Tag("vector").VectorHNSW("__vector", "vector", 4, DistanceCosine, 0, 0), "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx, err := NewIndex("my-idx").
		Prefix("doc:").
		Tag("cat").
		VectorHNSW("__vector", "vector", 512, DistanceCosine, 0, 0).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := "FT.CREATE my-idx ON HASH PREFIX doc: SCHEMA cat TAG __vector AS vector VECTOR HNSW"
	if got := idx.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for s, want := range map[string]bool{
		"retrieval:chunks:idx": true,
		"a-b_c":                true,
		"":                     false,
		"has space":            false,
		"semi;colon":           false,
	} {
		if got := IsValidIdentifier(s); got != want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", s, got, want)
		}
	}
}
