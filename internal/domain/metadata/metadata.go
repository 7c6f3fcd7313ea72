// Package metadata holds chunk metadata, metadata filters and their storage mapping.
package metadata

import "fmt"

// Source is the origin of a document.
type Source string

const (
	// SourceEmail is a document from email.
	SourceEmail Source = "email"
	// SourceFile is an uploaded file.
	SourceFile Source = "file"
	// SourceChat is a chat transcript.
	SourceChat Source = "chat"
)

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceEmail, SourceFile, SourceChat:
		return true
	}
	return false
}

// ParseSource validates a source string.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.IsValid() {
		return "", fmt.Errorf("unknown source %q", s)
	}
	return src, nil
}

// Metadata describes a stored chunk. All fields are optional; nil means absent.
type Metadata struct {
	Source     *Source `json:"source,omitempty"`
	SourceID   *string `json:"source_id,omitempty"`
	URL        *string `json:"url,omitempty"`
	CreatedAt  *string `json:"created_at,omitempty"` // ISO-8601
	Author     *string `json:"author,omitempty"`
	DocumentID *string `json:"document_id,omitempty"`
	Filename   *string `json:"filename,omitempty"`
	Filesize   *int64  `json:"filesize,omitempty"`
}

// WithDocumentID returns a copy of m bound to documentID.
func (m Metadata) WithDocumentID(documentID string) Metadata {
	m.DocumentID = &documentID
	return m
}

// Filter constrains results by metadata. Present fields are ANDed.
type Filter struct {
	DocumentID *string `json:"document_id,omitempty"`
	Source     *Source `json:"source,omitempty"`
	SourceID   *string `json:"source_id,omitempty"`
	URL        *string `json:"url,omitempty"`
	Author     *string `json:"author,omitempty"`
	Filename   *string `json:"filename,omitempty"`
	Filesize   *int64  `json:"filesize,omitempty"`
	StartDate  *string `json:"start_date,omitempty"` // ISO-8601
	EndDate    *string `json:"end_date,omitempty"`   // ISO-8601
}

// IsEmpty reports whether the filter imposes no constraint.
func (f *Filter) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.DocumentID == nil && f.Source == nil && f.SourceID == nil && f.URL == nil &&
		f.Author == nil && f.Filename == nil && f.Filesize == nil &&
		f.StartDate == nil && f.EndDate == nil
}
