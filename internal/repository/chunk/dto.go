package chunk

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/db"
	domchunk "github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
)

// toHash flattens a chunk into hash fields.
func toHash(c domchunk.Chunk) (map[string]string, error) {
	fields, err := metadata.ToStrings(c.Metadata())
	if err != nil {
		return nil, fmt.Errorf("chunk %s metadata: %w", c.ID(), err)
	}
	fields[fieldContent] = c.Text()
	fields[fieldVector] = encodeVector(c.Vector())
	return fields, nil
}

// toPassage converts a KNN hit into a passage.
func toPassage(prefix string, e db.SearchEntry) result.Passage {
	return result.NewPassage(
		strings.TrimPrefix(e.Key, prefix),
		e.Fields[fieldContent],
		metadata.FromStrings(e.Fields),
		e.Score,
	)
}

// toChunk converts a listing hit into a chunk without its vector.
func toChunk(prefix string, e db.SearchEntry) domchunk.Chunk {
	return domchunk.Reconstruct(
		strings.TrimPrefix(e.Key, prefix),
		e.Fields[fieldContent],
		metadata.FromStrings(e.Fields),
		nil,
	)
}

// encodeVector serializes []float32 as little-endian FLOAT32, the layout FT indexes read.
func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
