package chi

import (
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
	documentuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/document"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type queryItem struct {
	Query  string           `json:"query"`
	Filter *metadata.Filter `json:"filter,omitempty"`
	TopK   int              `json:"top_k,omitempty"`
}

type queryRequest struct {
	Queries []queryItem `json:"queries"`
}

type passageDTO struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata metadata.Metadata `json:"metadata"`
	Score    float64           `json:"score"`
}

type rankedDTO struct {
	Query   string       `json:"query"`
	Results []passageDTO `json:"results"`
}

type queryResponse struct {
	Results []rankedDTO `json:"results"`
}

type rerankRequest struct {
	Results []rankedDTO `json:"results"`
}

type documentDTO struct {
	ID       string             `json:"id,omitempty"`
	Text     string             `json:"text"`
	Metadata *metadata.Metadata `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Documents []documentDTO `json:"documents"`
}

type upsertResponse struct {
	IDs []string `json:"ids"`
}

type deleteRequest struct {
	IDs       []string         `json:"ids,omitempty"`
	Filter    *metadata.Filter `json:"filter,omitempty"`
	DeleteAll bool             `json:"delete_all,omitempty"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

type listRequest struct {
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
	Filter *metadata.Filter `json:"filter,omitempty"`
}

type summaryDTO struct {
	DocumentID string            `json:"document_id"`
	ChunkCount int               `json:"chunk_count"`
	Metadata   metadata.Metadata `json:"metadata"`
	SampleText string            `json:"sample_text"`
}

type listResponse struct {
	Documents []summaryDTO `json:"documents"`
	Total     int          `json:"total"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func rankedToDTO(rs []result.Ranked) []rankedDTO {
	out := make([]rankedDTO, len(rs))
	for i, r := range rs {
		passages := make([]passageDTO, r.Len())
		for j := range r.Len() {
			p := r.At(j)
			passages[j] = passageDTO{ID: p.ID(), Text: p.Text(), Metadata: p.Metadata(), Score: p.Score()}
		}
		out[i] = rankedDTO{Query: r.Query(), Results: passages}
	}
	return out
}

func rankedFromDTO(rs []rankedDTO) []result.Ranked {
	out := make([]result.Ranked, len(rs))
	for i, r := range rs {
		passages := make([]result.Passage, len(r.Results))
		for j, p := range r.Results {
			passages[j] = result.NewPassage(p.ID, p.Text, p.Metadata, p.Score)
		}
		out[i] = result.NewRanked(r.Query, passages)
	}
	return out
}

func pageToDTO(p documentuc.Page) listResponse {
	docs := make([]summaryDTO, len(p.Documents))
	for i, d := range p.Documents {
		docs[i] = summaryDTO{
			DocumentID: d.DocumentID,
			ChunkCount: d.ChunkCount,
			Metadata:   d.Metadata,
			SampleText: d.SampleText,
		}
	}
	return listResponse{Documents: docs, Total: p.Total}
}
