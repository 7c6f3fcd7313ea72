package chunk

import (
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/db"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
)

// Hash fields reserved for chunk content; metadata attributes use their stored names.
const (
	fieldContent = "__content"
	fieldVector  = "__vector"
	vectorAlias  = "vector"
)

// HNSWConfig holds HNSW index parameters.
type HNSWConfig struct {
	M              int
	EFConstruction int
}

// tagFields are the string metadata attributes, matched exactly.
var tagFields = []string{
	metadata.KeySource,
	metadata.KeySourceID,
	metadata.KeyURL,
	metadata.KeyAuthor,
	metadata.KeyDocumentID,
	metadata.KeyFilename,
}

// numericFields are range-filterable metadata attributes.
var numericFields = []string{
	metadata.KeyCreatedAt,
	metadata.KeyFilesize,
}

// buildIndex creates the chunk index definition for vectors of dim dimensions.
func buildIndex(name, prefix string, dim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	//nolint:wrapcheck // validation errors are self-describing
	return db.NewIndex(name).
		Prefix(prefix).
		Tag(tagFields...).
		Numeric(numericFields...).
		VectorHNSW(fieldVector, vectorAlias, dim, db.DistanceCosine, hnsw.M, hnsw.EFConstruction).
		Build()
}

// returnFields lists the hash fields read back for a chunk; vectors are never returned.
func returnFields() []string {
	out := make([]string, 0, 1+len(tagFields)+len(numericFields))
	out = append(out, fieldContent)
	out = append(out, tagFields...)
	return append(out, numericFields...)
}
