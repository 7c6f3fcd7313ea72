package retrieval

import (
	"context"
	"strings"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/request"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
	documentuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/document"
)

// --- searchUseCase mock ---

type mockSearchUC struct {
	queryFn  func(ctx context.Context, queries []request.Query) ([]result.Ranked, error)
	refineFn func(ctx context.Context, results []result.Ranked) []result.Ranked
}

func (m *mockSearchUC) Query(ctx context.Context, queries []request.Query) ([]result.Ranked, error) {
	return m.queryFn(ctx, queries)
}

func (m *mockSearchUC) Refine(ctx context.Context, results []result.Ranked) []result.Ranked {
	return m.refineFn(ctx, results)
}

// --- documentUseCase mock ---

type mockDocumentUC struct {
	upsertFn func(ctx context.Context, docs []chunk.Document) ([]string, error)
	deleteFn func(ctx context.Context, req documentuc.DeleteRequest) error
	listFn   func(ctx context.Context, req documentuc.ListRequest) (documentuc.Page, error)
}

func (m *mockDocumentUC) Upsert(ctx context.Context, docs []chunk.Document) ([]string, error) {
	return m.upsertFn(ctx, docs)
}

func (m *mockDocumentUC) Delete(ctx context.Context, req documentuc.DeleteRequest) error {
	return m.deleteFn(ctx, req)
}

func (m *mockDocumentUC) List(ctx context.Context, req documentuc.ListRequest) (documentuc.Page, error) {
	return m.listFn(ctx, req)
}

// --- encoder fake ---

// vocabEncoder embeds text as term counts over a fixed vocabulary plus a
// constant bias dimension, so no vector is ever zero.
type vocabEncoder struct {
	vocab map[string]int
	calls int
}

func newVocabEncoder(words ...string) *vocabEncoder {
	v := make(map[string]int, len(words))
	for i, w := range words {
		v[w] = i
	}
	return &vocabEncoder{vocab: v}
}

func (e *vocabEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, len(e.vocab)+1)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			if idx, ok := e.vocab[w]; ok {
				vec[idx]++
			}
		}
		vec[len(e.vocab)] = 0.1
		out[i] = vec
	}
	return out, nil
}

// --- helpers ---

func testClient(searchSvc searchUseCase, docSvc documentUseCase) *Client {
	return &Client{searchSvc: searchSvc, docSvc: docSvc}
}
