// Package document handles ingestion: chunking, embedding, storing,
// deleting and listing documents.
package document

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/filter"
)

const (
	defaultPageSize = 100
	sampleRunes     = 200
)

// DeleteRequest selects what to delete. At least one selector is required.
type DeleteRequest struct {
	IDs       []string
	Filter    *metadata.Filter
	DeleteAll bool
}

// ListRequest pages through stored documents.
type ListRequest struct {
	Filter *metadata.Filter
	Limit  int
	Offset int
}

// Summary describes one stored document.
type Summary struct {
	DocumentID string
	ChunkCount int
	Metadata   metadata.Metadata
	SampleText string
}

// Page is one page of document summaries.
type Page struct {
	Documents []Summary
	Total     int
}

// Service handles document ingestion with automatic vectorization.
type Service struct {
	store   Store
	embed   Embedder
	chunker *WordChunker
	logger  *zap.Logger
}

// New creates a document service.
func New(store Store, embed Embedder, chunker *WordChunker, logger *zap.Logger) *Service {
	return &Service{store: store, embed: embed, chunker: chunker, logger: logger}
}

// Upsert chunks, embeds and stores documents, replacing any chunks a
// document already had. Returns the document ids in input order.
func (s *Service) Upsert(ctx context.Context, docs []chunk.Document) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}

	ids := make([]string, len(docs))
	var texts []string
	type pending struct {
		id   string
		text string
		md   metadata.Metadata
	}
	var parts []pending
	seen := make(map[string]struct{}, len(docs))

	for i, doc := range docs {
		pieces := s.chunker.Split(doc.Text)
		if len(pieces) == 0 {
			return nil, fmt.Errorf("document %d: text is required: %w", i, domain.ErrInvalidRequest)
		}
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("document %d: duplicate id %q: %w", i, id, domain.ErrInvalidRequest)
		}
		seen[id] = struct{}{}
		ids[i] = id

		md := doc.Metadata.WithDocumentID(id)
		if _, err := metadata.ToStorage(md); err != nil {
			return nil, fmt.Errorf("document %s: %w: %w", id, domain.ErrInvalidRequest, err)
		}
		for n, text := range pieces {
			parts = append(parts, pending{id: chunk.ID(id, n), text: text, md: md})
			texts = append(texts, text)
		}
	}

	vectors, err := s.embed.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("vectorize chunks: %w", err)
	}

	chunks := make([]chunk.Chunk, len(parts))
	for i, p := range parts {
		c, err := chunk.New(p.id, p.text, p.md, vectors[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		chunks[i] = c
	}

	if err := s.store.DeleteByDocumentIDs(ctx, ids); err != nil {
		return nil, fmt.Errorf("delete previous chunks: %w", err)
	}
	if err := s.store.Upsert(ctx, chunks); err != nil {
		return nil, fmt.Errorf("upsert chunks: %w", err)
	}

	s.logger.Info("Documents upserted",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
	)
	return ids, nil
}

// Delete removes documents by id, by metadata filter, or everything.
// When both ids and a filter are given, only documents matching both are removed.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) error {
	hasIDs := len(req.IDs) > 0
	hasFilter := !req.Filter.IsEmpty()
	if !hasIDs && !hasFilter && !req.DeleteAll {
		return fmt.Errorf("one of ids, filter, or delete_all is required: %w", domain.ErrInvalidRequest)
	}

	if req.DeleteAll {
		if err := s.store.DeleteAll(ctx); err != nil {
			return fmt.Errorf("delete all: %w", err)
		}
		s.logger.Warn("All documents deleted")
		return nil
	}

	if !hasFilter {
		if err := s.store.DeleteByDocumentIDs(ctx, req.IDs); err != nil {
			return fmt.Errorf("delete by ids: %w", err)
		}
		return nil
	}

	expr, err := filter.Translate(req.Filter)
	if err != nil {
		return err //nolint:wrapcheck // already carries ErrInvalidFilter
	}
	if !hasIDs {
		if err := s.store.DeleteByFilter(ctx, expr); err != nil {
			return fmt.Errorf("delete by filter: %w", err)
		}
		return nil
	}
	return s.deleteMatchingIDs(ctx, expr, req.IDs)
}

// deleteMatchingIDs removes chunks that match expr and belong to one of ids.
// Ids are grouped per expression the same way DeleteByDocumentIDs batches them.
func (s *Service) deleteMatchingIDs(ctx context.Context, expr filter.Expression, ids []string) error {
	for start := 0; start < len(ids); start += filter.MaxConditionsPerGroup {
		end := min(start+filter.MaxConditionsPerGroup, len(ids))
		should := make([]filter.Condition, 0, end-start)
		for _, id := range ids[start:end] {
			cond, err := filter.NewMatch(metadata.KeyDocumentID, id)
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
			}
			should = append(should, cond)
		}
		batch, err := filter.NewExpression(expr.Must(), should, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		if err := s.store.DeleteByFilter(ctx, batch); err != nil {
			return fmt.Errorf("delete by ids and filter: %w", err)
		}
	}
	return nil
}

// List groups stored chunks by document, sorted by document id.
func (s *Service) List(ctx context.Context, req ListRequest) (Page, error) {
	if req.Limit <= 0 {
		req.Limit = defaultPageSize
	}
	if req.Offset < 0 {
		return Page{}, fmt.Errorf("offset must be >= 0: %w", domain.ErrInvalidRequest)
	}

	expr, err := filter.Translate(req.Filter)
	if err != nil {
		return Page{}, err //nolint:wrapcheck // already carries ErrInvalidFilter
	}

	chunks, err := s.store.Chunks(ctx, expr)
	if err != nil {
		return Page{}, fmt.Errorf("list chunks: %w", err)
	}

	byDoc := make(map[string][]chunk.Chunk)
	for _, c := range chunks {
		id := c.DocumentID()
		if id == "" {
			continue
		}
		byDoc[id] = append(byDoc[id], c)
	}

	docIDs := make([]string, 0, len(byDoc))
	for id := range byDoc {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	total := len(docIDs)
	start := min(req.Offset, total)
	end := min(start+req.Limit, total)

	summaries := make([]Summary, 0, end-start)
	for _, id := range docIDs[start:end] {
		group := byDoc[id]
		sort.SliceStable(group, func(a, b int) bool {
			return chunkIndex(group[a].ID()) < chunkIndex(group[b].ID())
		})
		first := group[0]
		summaries = append(summaries, Summary{
			DocumentID: id,
			ChunkCount: len(group),
			Metadata:   first.Metadata(),
			SampleText: truncateRunes(first.Text(), sampleRunes),
		})
	}
	return Page{Documents: summaries, Total: total}, nil
}

// chunkIndex parses n from "<docID>_<n>"; unparseable ids sort last.
func chunkIndex(id string) int {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return int(^uint(0) >> 1)
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
