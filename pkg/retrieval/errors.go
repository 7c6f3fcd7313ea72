package retrieval

import "github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrInvalidFilter          = domain.ErrInvalidFilter
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrModelLoad              = domain.ErrModelLoad
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrRerankProviderError    = domain.ErrRerankProviderError
)
