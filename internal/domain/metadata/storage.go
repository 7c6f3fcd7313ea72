package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stored attribute names.
const (
	KeySource     = "source"
	KeySourceID   = "source_id"
	KeyURL        = "url"
	KeyCreatedAt  = "created_at"
	KeyAuthor     = "author"
	KeyDocumentID = "document_id"
	KeyFilename   = "filename"
	KeyFilesize   = "filesize"
)

// isoLayouts are tried in order once a trailing Z has been rewritten to +00:00.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts ISO-8601 text to epoch seconds, floored (time.Unix keeps
// the sub-second part non-negative, so pre-1970 fractions round down too).
// A trailing "Z" is normalized to "+00:00"; inputs without an offset are UTC.
func ParseTimestamp(s string) (int64, error) {
	text := strings.TrimSpace(s)
	if strings.HasSuffix(text, "Z") || strings.HasSuffix(text, "z") {
		text = text[:len(text)-1] + "+00:00"
	}
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unparseable timestamp %q", s)
}

// FormatTimestamp renders epoch seconds as RFC 3339 in UTC.
func FormatTimestamp(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format(time.RFC3339)
}

// ToStorage flattens metadata into backend attributes. created_at becomes epoch seconds.
func ToStorage(m Metadata) (map[string]any, error) {
	out := make(map[string]any, 8)
	if m.Source != nil {
		out[KeySource] = string(*m.Source)
	}
	putString(out, KeySourceID, m.SourceID)
	putString(out, KeyURL, m.URL)
	putString(out, KeyAuthor, m.Author)
	putString(out, KeyDocumentID, m.DocumentID)
	putString(out, KeyFilename, m.Filename)
	if m.Filesize != nil {
		out[KeyFilesize] = *m.Filesize
	}
	if m.CreatedAt != nil {
		epoch, err := ParseTimestamp(*m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("created_at: %w", err)
		}
		out[KeyCreatedAt] = epoch
	}
	return out, nil
}

func putString(out map[string]any, key string, v *string) {
	if v != nil {
		out[key] = *v
	}
}

// FromStorage rebuilds Metadata from backend attributes.
// Values may be typed (int64, float64, string) or string-encoded, as hash stores return them.
// Absent or malformed fields stay nil.
func FromStorage(attrs map[string]any) Metadata {
	var m Metadata
	if s, ok := stringAttr(attrs, KeySource); ok {
		src := Source(s)
		m.Source = &src
	}
	m.SourceID = stringPtr(attrs, KeySourceID)
	m.URL = stringPtr(attrs, KeyURL)
	m.Author = stringPtr(attrs, KeyAuthor)
	m.DocumentID = stringPtr(attrs, KeyDocumentID)
	m.Filename = stringPtr(attrs, KeyFilename)
	if n, ok := intAttr(attrs, KeyFilesize); ok {
		m.Filesize = &n
	}
	if n, ok := intAttr(attrs, KeyCreatedAt); ok {
		ts := FormatTimestamp(n)
		m.CreatedAt = &ts
	}
	return m
}

// FromStrings is FromStorage for string-valued attribute maps.
func FromStrings(attrs map[string]string) Metadata {
	m := make(map[string]any, len(attrs))
	for k, v := range attrs {
		m[k] = v
	}
	return FromStorage(m)
}

// ToStrings is ToStorage rendered as strings, for hash-based stores.
func ToStrings(md Metadata) (map[string]string, error) {
	attrs, err := ToStorage(md)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		}
	}
	return out, nil
}

func stringAttr(attrs map[string]any, key string) (string, bool) {
	s, ok := attrs[key].(string)
	return s, ok
}

func stringPtr(attrs map[string]any, key string) *string {
	if s, ok := stringAttr(attrs, key); ok {
		return &s
	}
	return nil
}

func intAttr(attrs map[string]any, key string) (int64, bool) {
	switch v := attrs[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	}
	return 0, false
}
