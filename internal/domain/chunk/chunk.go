// Package chunk holds ingestion values: source documents and their embedded chunks.
package chunk

import (
	"fmt"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
)

// Document is a source document submitted for ingestion.
type Document struct {
	ID       string
	Text     string
	Metadata metadata.Metadata
}

// Chunk is a stored slice of a document with its embedding.
type Chunk struct {
	id       string
	text     string
	metadata metadata.Metadata
	vector   []float32
}

// New creates a chunk. Metadata must carry a document id.
func New(id, text string, md metadata.Metadata, vector []float32) (Chunk, error) {
	if id == "" {
		return Chunk{}, fmt.Errorf("chunk id is required")
	}
	if md.DocumentID == nil || *md.DocumentID == "" {
		return Chunk{}, fmt.Errorf("chunk %s: document_id is required", id)
	}
	return Chunk{id: id, text: text, metadata: md, vector: vector}, nil
}

// Reconstruct restores a chunk from storage without validation.
func Reconstruct(id, text string, md metadata.Metadata, vector []float32) Chunk {
	return Chunk{id: id, text: text, metadata: md, vector: vector}
}

// ID returns the chunk id.
func (c Chunk) ID() string { return c.id }

// Text returns the chunk text.
func (c Chunk) Text() string { return c.text }

// Metadata returns the chunk metadata.
func (c Chunk) Metadata() metadata.Metadata { return c.metadata }

// Vector returns the embedding. Nil when loaded without vectors.
func (c Chunk) Vector() []float32 { return c.vector }

// DocumentID returns the parent document id.
func (c Chunk) DocumentID() string {
	if c.metadata.DocumentID == nil {
		return ""
	}
	return *c.metadata.DocumentID
}

// ID builds the chunk id for the n-th chunk of a document.
func ID(documentID string, n int) string {
	return fmt.Sprintf("%s_%d", documentID, n)
}
