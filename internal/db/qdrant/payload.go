package qdrant

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	domchunk "github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
)

// Payload keys reserved for chunk content.
const (
	payloadChunkID = "chunk_id"
	payloadText    = "text"
)

// PointID derives a stable point UUID from a chunk id; Qdrant only accepts
// UUIDs and unsigned integers as point ids.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func toPayload(c domchunk.Chunk) (map[string]*qdrant.Value, error) {
	attrs, err := metadata.ToStorage(c.Metadata())
	if err != nil {
		return nil, fmt.Errorf("chunk %s metadata: %w", c.ID(), err)
	}
	payload := make(map[string]*qdrant.Value, len(attrs)+2)
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			payload[k] = qdrant.NewValueString(val)
		case int64:
			payload[k] = qdrant.NewValueInt(val)
		}
	}
	payload[payloadChunkID] = qdrant.NewValueString(c.ID())
	payload[payloadText] = qdrant.NewValueString(c.Text())
	return payload, nil
}

func fromPayload(payload map[string]*qdrant.Value) (id, text string, md metadata.Metadata) {
	attrs := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			attrs[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			attrs[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			attrs[k] = kind.DoubleValue
		}
	}
	return payload[payloadChunkID].GetStringValue(), payload[payloadText].GetStringValue(), metadata.FromStorage(attrs)
}
