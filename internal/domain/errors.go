package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest signals a malformed API request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidFilter signals a metadata filter that cannot be translated (e.g. unparseable date).
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrModelLoad signals that a model could not be loaded. Fatal at startup.
	ErrModelLoad = errors.New("model load failed")
	// ErrEmbeddingProviderError signals an embedding runtime failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRerankProviderError signals a reranking runtime failure.
	ErrRerankProviderError = errors.New("rerank provider error")
)

// EmbedError identifies the batch that failed inside a multi-text encode.
type EmbedError struct {
	BatchStart int
	BatchSize  int
	FirstText  string
	Err        error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("encode batch [%d:%d] (first input %q): %v",
		e.BatchStart, e.BatchStart+e.BatchSize, preview(e.FirstText), e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

func preview(s string) string {
	const maxRunes = 64
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
