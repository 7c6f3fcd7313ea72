// Package qdrant is the Qdrant vector store: one point per chunk, metadata
// in the payload, cosine distance.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	domchunk "github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/filter"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
)

const (
	// DefaultCollection is used when no collection name is configured.
	DefaultCollection = "retrieval_chunks"
	defaultPort       = 6334
	scrollPage        = 256
)

// Config holds connection settings.
type Config struct {
	Addr       string // host:port of the gRPC endpoint
	APIKey     string
	UseTLS     bool
	Collection string
}

// Store implements the vector store over Qdrant.
type Store struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger
}

// NewStore connects to Qdrant.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	host, port, err := splitAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{client: client, collection: collection, logger: logger}, nil
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort, nil //nolint:nilerr // bare host uses the default port
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in qdrant addr %q: %w", addr, err)
	}
	return host, port, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close() //nolint:wrapcheck // close errors are not actionable
}

// Ping checks server health.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

// WaitForReady polls Ping until success or timeout.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("qdrant not ready after %s: %w", timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// EnsureIndex creates the collection for vectors of dim dimensions and its
// payload indexes unless the collection exists.
func (s *Store) EnsureIndex(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim), //nolint:gosec // dim is a positive model dimension
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}

	for name, kind := range payloadIndexes {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      name,
			FieldType:      kind.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("create payload index %s: %w", name, err)
		}
	}

	s.logger.Info("Qdrant collection created",
		zap.String("collection", s.collection), zap.Int("dimensions", dim))
	return nil
}

// payloadIndexes are the filterable metadata attributes.
var payloadIndexes = map[string]qdrant.FieldType{
	metadata.KeySource:     qdrant.FieldType_FieldTypeKeyword,
	metadata.KeySourceID:   qdrant.FieldType_FieldTypeKeyword,
	metadata.KeyURL:        qdrant.FieldType_FieldTypeKeyword,
	metadata.KeyAuthor:     qdrant.FieldType_FieldTypeKeyword,
	metadata.KeyDocumentID: qdrant.FieldType_FieldTypeKeyword,
	metadata.KeyFilename:   qdrant.FieldType_FieldTypeKeyword,
	metadata.KeyCreatedAt:  qdrant.FieldType_FieldTypeInteger,
	metadata.KeyFilesize:   qdrant.FieldType_FieldTypeInteger,
}

// Upsert stores chunks as points keyed by a UUID derived from the chunk id.
func (s *Store) Upsert(ctx context.Context, chunks []domchunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload, err := toPayload(c)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(c.ID())),
			Vectors: qdrant.NewVectors(c.Vector()...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// NearestNeighbors returns up to limit chunks most similar to vector among those matching predicate.
func (s *Store) NearestNeighbors(
	ctx context.Context, vector []float32, predicate filter.Expression, limit int,
) ([]result.Passage, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildFilter(predicate),
		Limit:          qdrant.PtrOf(uint64(limit)), //nolint:gosec // limit is validated positive upstream
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	out := make([]result.Passage, 0, len(points))
	for _, p := range points {
		id, text, md := fromPayload(p.GetPayload())
		out = append(out, result.NewPassage(id, text, md, float64(p.GetScore())))
	}
	return out, nil
}

// DeleteByDocumentIDs removes every chunk of the given documents.
func (s *Store) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return s.deleteWhere(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeywords(metadata.KeyDocumentID, documentIDs...)},
	})
}

// DeleteByFilter removes every chunk matching predicate.
func (s *Store) DeleteByFilter(ctx context.Context, predicate filter.Expression) error {
	f := buildFilter(predicate)
	if f == nil {
		f = &qdrant.Filter{}
	}
	return s.deleteWhere(ctx, f)
}

// DeleteAll removes every point of the collection.
func (s *Store) DeleteAll(ctx context.Context) error {
	return s.deleteWhere(ctx, &qdrant.Filter{})
}

func (s *Store) deleteWhere(ctx context.Context, f *qdrant.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: f},
		},
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Chunks returns every chunk matching predicate, without vectors.
// Scroll offsets are inclusive, so each page asks for one extra point whose
// id starts the next page.
func (s *Store) Chunks(ctx context.Context, predicate filter.Expression) ([]domchunk.Chunk, error) {
	var (
		out    []domchunk.Chunk
		offset *qdrant.PointId
	)
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         buildFilter(predicate),
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPage + 1)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll points: %w", err)
		}

		page := points
		if len(points) > scrollPage {
			page = points[:scrollPage]
		}
		for _, p := range page {
			id, text, md := fromPayload(p.GetPayload())
			out = append(out, domchunk.Reconstruct(id, text, md, nil))
		}
		if len(points) <= scrollPage {
			return out, nil
		}
		offset = points[scrollPage].GetId()
	}
}
