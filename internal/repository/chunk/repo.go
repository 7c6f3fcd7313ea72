// Package chunk is the Redis-backed chunk repository: one hash per chunk,
// indexed by an FT index with tag, numeric and HNSW vector fields.
package chunk

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/db"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	domchunk "github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/filter"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
)

// Defaults for key layout and paging.
const (
	DefaultPrefix    = "retrieval:chunk:"
	DefaultIndexName = "retrieval:chunks:idx"
	listPageSize     = 1000
)

// store is the consumer interface for chunk hashes (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys []string) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
}

// Config holds key layout and index parameters. Zero values select defaults.
type Config struct {
	Prefix    string
	IndexName string
	HNSW      HNSWConfig
}

// Repo implements the vector store over a Redis-compatible backend.
type Repo struct {
	store  store
	prefix string
	index  string
	hnsw   HNSWConfig
	dim    int
	logger *zap.Logger
}

// New creates a chunk repository.
func New(s store, cfg Config, logger *zap.Logger) *Repo {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}
	return &Repo{
		store:  s,
		prefix: cfg.Prefix,
		index:  cfg.IndexName,
		hnsw:   cfg.HNSW,
		logger: logger,
	}
}

// EnsureIndex creates the chunk index for vectors of dim dimensions unless it exists.
// Must be called before the first Upsert.
func (r *Repo) EnsureIndex(ctx context.Context, dim int) error {
	r.dim = dim
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(r.index, r.prefix, dim, r.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	r.logger.Info("Chunk index created", zap.String("index", r.index), zap.Int("dimensions", dim))
	return nil
}

// Upsert stores chunks, replacing any chunk with the same id.
func (r *Repo) Upsert(ctx context.Context, chunks []domchunk.Chunk) error {
	items := make([]db.HashSetItem, 0, len(chunks))
	for _, c := range chunks {
		if r.dim > 0 && len(c.Vector()) != r.dim {
			return fmt.Errorf("chunk %s: got %d, want %d: %w",
				c.ID(), len(c.Vector()), r.dim, domain.ErrVectorDimMismatch)
		}
		fields, err := toHash(c)
		if err != nil {
			return err
		}
		items = append(items, db.HashSetItem{Key: r.key(c.ID()), Fields: fields})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset chunks: %w", err)
	}
	return nil
}

// NearestNeighbors returns up to limit chunks most similar to vector among those matching predicate.
func (r *Repo) NearestNeighbors(
	ctx context.Context, vector []float32, predicate filter.Expression, limit int,
) ([]result.Passage, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.index,
		VectorField:  vectorAlias,
		Filters:      predicate,
		Vector:       vector,
		K:            limit,
		ReturnFields: returnFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	out := make([]result.Passage, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, toPassage(r.prefix, e))
	}
	return out, nil
}

// DeleteByDocumentIDs removes every chunk of the given documents.
func (r *Repo) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error {
	for start := 0; start < len(documentIDs); start += filter.MaxConditionsPerGroup {
		end := min(start+filter.MaxConditionsPerGroup, len(documentIDs))
		should := make([]filter.Condition, 0, end-start)
		for _, id := range documentIDs[start:end] {
			cond, err := filter.NewMatch(metadata.KeyDocumentID, id)
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
			}
			should = append(should, cond)
		}
		expr, err := filter.NewExpression(nil, should, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		if err := r.DeleteByFilter(ctx, expr); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByFilter removes every chunk matching predicate.
func (r *Repo) DeleteByFilter(ctx context.Context, predicate filter.Expression) error {
	entries, err := r.listAll(ctx, predicate, []string{metadata.KeyDocumentID})
	if err != nil {
		return err
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return r.del(ctx, keys)
}

// DeleteAll removes every chunk under the repository prefix.
func (r *Repo) DeleteAll(ctx context.Context) error {
	keys, err := r.store.Scan(ctx, r.prefix+"*")
	if err != nil {
		return fmt.Errorf("scan chunks: %w", err)
	}
	return r.del(ctx, keys)
}

// Chunks returns every chunk matching predicate, without vectors.
func (r *Repo) Chunks(ctx context.Context, predicate filter.Expression) ([]domchunk.Chunk, error) {
	entries, err := r.listAll(ctx, predicate, returnFields())
	if err != nil {
		return nil, err
	}
	out := make([]domchunk.Chunk, len(entries))
	for i, e := range entries {
		out[i] = toChunk(r.prefix, e)
	}
	return out, nil
}

// listAll pages through the index until every match has been read.
func (r *Repo) listAll(ctx context.Context, predicate filter.Expression, fields []string) ([]db.SearchEntry, error) {
	var out []db.SearchEntry
	for offset := 0; ; offset += listPageSize {
		res, err := r.store.SearchList(ctx, &db.ListQuery{
			IndexName:    r.index,
			Filters:      predicate,
			Offset:       offset,
			Limit:        listPageSize,
			ReturnFields: fields,
		})
		if err != nil {
			return nil, fmt.Errorf("list chunks: %w", err)
		}
		out = append(out, res.Entries...)
		if len(res.Entries) < listPageSize || offset+listPageSize >= res.Total {
			return out, nil
		}
	}
}

func (r *Repo) del(ctx context.Context, keys []string) error {
	n, err := r.store.DelMulti(ctx, keys)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	r.logger.Debug("Chunks deleted", zap.Int("count", n))
	return nil
}

func (r *Repo) key(id string) string {
	return r.prefix + id
}
