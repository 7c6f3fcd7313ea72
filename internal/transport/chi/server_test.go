package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/request"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
	documentuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/document"
	healthuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/health"
)

type fakeRetriever struct {
	queries []request.Query
	results []result.Ranked
	err     error
	refine  func([]result.Ranked) []result.Ranked
}

func (f *fakeRetriever) Query(_ context.Context, queries []request.Query) ([]result.Ranked, error) {
	f.queries = queries
	return f.results, f.err
}

func (f *fakeRetriever) Refine(_ context.Context, results []result.Ranked) []result.Ranked {
	if f.refine != nil {
		return f.refine(results)
	}
	return results
}

type fakeDocuments struct {
	upserted []chunk.Document
	ids      []string
	deleted  *documentuc.DeleteRequest
	listed   *documentuc.ListRequest
	page     documentuc.Page
	err      error
}

func (f *fakeDocuments) Upsert(_ context.Context, docs []chunk.Document) ([]string, error) {
	f.upserted = docs
	return f.ids, f.err
}

func (f *fakeDocuments) Delete(_ context.Context, req documentuc.DeleteRequest) error {
	f.deleted = &req
	return f.err
}

func (f *fakeDocuments) List(_ context.Context, req documentuc.ListRequest) (documentuc.Page, error) {
	f.listed = &req
	return f.page, f.err
}

type fakeHealth struct{ report healthuc.Report }

func (f fakeHealth) Check(context.Context) healthuc.Report { return f.report }

func newTestRouter(r *fakeRetriever, d *fakeDocuments) http.Handler {
	h := fakeHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}}
	return NewRouter(NewServer(r, d, h, zap.NewNop()), nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestQuery_OK(t *testing.T) {
	src := metadata.SourceFile
	r := &fakeRetriever{results: []result.Ranked{
		result.NewRanked("what is go", []result.Passage{
			result.NewPassage("d1_0", "Go is a language", metadata.Metadata{Source: &src}, 0.91),
		}),
	}}
	h := newTestRouter(r, &fakeDocuments{})

	rr := do(t, h, http.MethodPost, "/query", `{"queries":[{"query":"what is go","filter":{"source":"file"},"top_k":5}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	if len(r.queries) != 1 || r.queries[0].TopK() != 5 || r.queries[0].Filter() == nil {
		t.Fatalf("queries = %+v", r.queries)
	}

	var resp queryResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || len(resp.Results[0].Results) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	got := resp.Results[0].Results[0]
	if got.ID != "d1_0" || got.Score != 0.91 || got.Metadata.Source == nil || *got.Metadata.Source != src {
		t.Errorf("passage = %+v", got)
	}
}

func TestQuery_DefaultTopK(t *testing.T) {
	r := &fakeRetriever{}
	h := newTestRouter(r, &fakeDocuments{})

	rr := do(t, h, http.MethodPost, "/query", `{"queries":[{"query":"q"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if r.queries[0].TopK() != request.DefaultTopK {
		t.Errorf("top_k = %d, want %d", r.queries[0].TopK(), request.DefaultTopK)
	}
}

func TestQuery_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed", `{"queries":`, codeBadRequest},
		{"unknown field", `{"queries":[],"extra":1}`, codeBadRequest},
		{"no queries", `{"queries":[]}`, codeValidationFailed},
		{"empty text", `{"queries":[{"query":"  "}]}`, codeValidationFailed},
		{"top_k too large", fmt.Sprintf(`{"queries":[{"query":"q","top_k":%d}]}`, request.MaxTopK+1), codeValidationFailed},
		{"unknown source", `{"queries":[{"query":"q","filter":{"source":"fax"}}]}`, codeInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRetriever{}
			rr := do(t, newTestRouter(r, &fakeDocuments{}), http.MethodPost, "/query", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if e := decodeError(t, rr); e.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", e.Code, tt.wantCode)
			}
			if r.queries != nil {
				t.Error("retriever must not be called")
			}
		})
	}
}

func TestQuery_DomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid filter", fmt.Errorf("bad date: %w", domain.ErrInvalidFilter), http.StatusBadRequest, codeInvalidFilter},
		{"embedding", fmt.Errorf("embed: %w", domain.ErrEmbeddingProviderError), http.StatusBadGateway, codeEmbeddingError},
		{"model load", fmt.Errorf("load: %w", domain.ErrModelLoad), http.StatusServiceUnavailable, codeModelUnavailable},
		{"internal", errors.New("redis: connection reset"), http.StatusInternalServerError, codeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRetriever{err: tt.err}
			rr := do(t, newTestRouter(r, &fakeDocuments{}), http.MethodPost, "/query", `{"queries":[{"query":"q"}]}`)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			e := decodeError(t, rr)
			if e.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", e.Code, tt.wantCode)
			}
			if tt.wantStatus >= 500 && strings.Contains(e.Message, "redis") {
				t.Errorf("message leaks internals: %q", e.Message)
			}
		})
	}
}

func TestRerank_ReturnsRefined(t *testing.T) {
	r := &fakeRetriever{refine: func(in []result.Ranked) []result.Ranked {
		out := make([]result.Ranked, len(in))
		for i, rk := range in {
			ps := rk.Passages()
			for l, j := 0, len(ps)-1; l < j; l, j = l+1, j-1 {
				ps[l], ps[j] = ps[j], ps[l]
			}
			out[i] = rk.WithPassages(ps)
		}
		return out
	}}
	h := newTestRouter(r, &fakeDocuments{})

	body := `{"results":[{"query":"q","results":[{"id":"a","text":"x","metadata":{},"score":0.9},{"id":"b","text":"y","metadata":{},"score":0.5}]}]}`
	rr := do(t, h, http.MethodPost, "/rerank", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp queryResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	got := resp.Results[0].Results
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("order = %s,%s, want b,a", got[0].ID, got[1].ID)
	}
}

func TestUpsert_OK(t *testing.T) {
	d := &fakeDocuments{ids: []string{"doc-1", "generated"}}
	h := newTestRouter(&fakeRetriever{}, d)

	body := `{"documents":[{"id":"doc-1","text":"hello","metadata":{"source":"email","author":"Jane"}},{"text":"world"}]}`
	rr := do(t, h, http.MethodPost, "/upsert", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp upsertResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.IDs) != 2 || resp.IDs[0] != "doc-1" {
		t.Errorf("ids = %v", resp.IDs)
	}
	if len(d.upserted) != 2 || d.upserted[0].Metadata.Author == nil || *d.upserted[0].Metadata.Author != "Jane" {
		t.Errorf("upserted = %+v", d.upserted)
	}
	if d.upserted[1].ID != "" {
		t.Errorf("missing id should stay empty, got %q", d.upserted[1].ID)
	}
}

func TestUpsert_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{"empty", `{"documents":[]}`, nil},
		{"unknown source", `{"documents":[{"text":"t","metadata":{"source":"fax"}}]}`, nil},
		{"service rejects", `{"documents":[{"text":""}]}`, fmt.Errorf("text is required: %w", domain.ErrInvalidRequest)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, newTestRouter(&fakeRetriever{}, &fakeDocuments{err: tt.err}), http.MethodPost, "/upsert", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	d := &fakeDocuments{}
	h := newTestRouter(&fakeRetriever{}, d)

	rr := do(t, h, http.MethodPost, "/delete", `{"ids":["a","b"],"filter":{"author":"x"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp deleteResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Error("success = false")
	}
	if d.deleted == nil || len(d.deleted.IDs) != 2 || d.deleted.Filter == nil || d.deleted.DeleteAll {
		t.Errorf("delete request = %+v", d.deleted)
	}
}

func TestDelete_NoSelector(t *testing.T) {
	d := &fakeDocuments{err: fmt.Errorf("one of ids, filter, or delete_all is required: %w", domain.ErrInvalidRequest)}
	rr := do(t, newTestRouter(&fakeRetriever{}, d), http.MethodPost, "/delete", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != codeValidationFailed {
		t.Errorf("code = %s", e.Code)
	}
}

func TestList(t *testing.T) {
	d := &fakeDocuments{page: documentuc.Page{
		Documents: []documentuc.Summary{{DocumentID: "d1", ChunkCount: 3, SampleText: "hello"}},
		Total:     7,
	}}
	h := newTestRouter(&fakeRetriever{}, d)

	rr := do(t, h, http.MethodPost, "/list", `{"limit":1,"offset":2,"filter":{"source":"chat"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp listResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 7 || len(resp.Documents) != 1 || resp.Documents[0].ChunkCount != 3 {
		t.Errorf("resp = %+v", resp)
	}
	if d.listed.Limit != 1 || d.listed.Offset != 2 || *d.listed.Filter.Source != metadata.SourceChat {
		t.Errorf("list request = %+v", d.listed)
	}
}

func TestListDocuments_QueryParams(t *testing.T) {
	d := &fakeDocuments{}
	h := newTestRouter(&fakeRetriever{}, d)

	rr := do(t, h, http.MethodGet, "/documents?limit=10&offset=20&source=file&document_id=abc&start_date=2024-01-01", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	f := d.listed.Filter
	if d.listed.Limit != 10 || d.listed.Offset != 20 {
		t.Errorf("paging = %d/%d", d.listed.Limit, d.listed.Offset)
	}
	if f.Source == nil || *f.Source != metadata.SourceFile || *f.DocumentID != "abc" || *f.StartDate != "2024-01-01" {
		t.Errorf("filter = %+v", f)
	}
	if f.Author != nil {
		t.Errorf("author = %v, want nil", *f.Author)
	}
}

func TestListDocuments_BadParam(t *testing.T) {
	d := &fakeDocuments{}
	rr := do(t, newTestRouter(&fakeRetriever{}, d), http.MethodGet, "/documents?limit=ten", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if d.listed != nil {
		t.Error("service must not be called")
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			hr := fakeHealth{report: healthuc.Report{
				Status: tt.status,
				Checks: map[string]healthuc.CheckResult{healthuc.ComponentDatabase: healthuc.CheckOK},
			}}
			h := NewRouter(NewServer(&fakeRetriever{}, &fakeDocuments{}, hr, zap.NewNop()), []string{"secret"})

			rr := do(t, h, http.MethodGet, "/health", "")
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			var resp healthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != string(tt.status) || resp.Checks["database"] != "ok" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestRouter_RequiresAuth(t *testing.T) {
	h := NewRouter(NewServer(&fakeRetriever{}, &fakeDocuments{}, fakeHealth{}, zap.NewNop()), []string{"secret"})
	rr := do(t, h, http.MethodPost, "/query", `{"queries":[{"query":"q"}]}`)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	rr := do(t, newTestRouter(&fakeRetriever{}, &fakeDocuments{}), http.MethodGet, "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

type panicRetriever struct{ fakeRetriever }

func (panicRetriever) Query(context.Context, []request.Query) ([]result.Ranked, error) {
	panic("boom")
}

func TestRouter_RecoversPanic(t *testing.T) {
	h := NewRouter(NewServer(&panicRetriever{}, &fakeDocuments{}, fakeHealth{}, zap.NewNop()), nil)
	rr := do(t, h, http.MethodPost, "/query", `{"queries":[{"query":"q"}]}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != codeInternalError {
		t.Errorf("code = %s", e.Code)
	}
}
