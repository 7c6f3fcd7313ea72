package chunk

import (
	"testing"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
)

func TestNew_RequiresDocumentID(t *testing.T) {
	if _, err := New("c1", "text", metadata.Metadata{}, nil); err == nil {
		t.Fatal("expected error without document_id")
	}
	empty := ""
	if _, err := New("c1", "text", metadata.Metadata{DocumentID: &empty}, nil); err == nil {
		t.Fatal("expected error with empty document_id")
	}
}

func TestNew_Valid(t *testing.T) {
	md := metadata.Metadata{}.WithDocumentID("doc")
	c, err := New(ID("doc", 2), "hello", md, []float32{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID() != "doc_2" {
		t.Errorf("ID() = %q", c.ID())
	}
	if c.DocumentID() != "doc" {
		t.Errorf("DocumentID() = %q", c.DocumentID())
	}
	if c.Text() != "hello" || len(c.Vector()) != 1 {
		t.Errorf("unexpected chunk %+v", c)
	}
}

func TestNew_RequiresID(t *testing.T) {
	md := metadata.Metadata{}.WithDocumentID("doc")
	if _, err := New("", "text", md, nil); err == nil {
		t.Fatal("expected error without id")
	}
}
