package request

import (
	"strings"
	"testing"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		topK     int
		wantTopK int
		wantErr  bool
	}{
		{"defaults", "What is machine learning?", 0, DefaultTopK, false},
		{"explicit", "q", 5, 5, false},
		{"max", "q", MaxTopK, MaxTopK, false},
		{"over max", "q", MaxTopK + 1, 0, true},
		{"empty", "", 3, 0, true},
		{"blank", "   ", 3, 0, true},
		{"too long", strings.Repeat("a", MaxQueryLength+1), 3, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New(tt.text, nil, tt.topK)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.TopK() != tt.wantTopK {
				t.Errorf("TopK() = %d, want %d", q.TopK(), tt.wantTopK)
			}
			if q.Text() != tt.text {
				t.Errorf("Text() = %q", q.Text())
			}
		})
	}
}

func TestNew_KeepsFilter(t *testing.T) {
	author := "jane"
	f := &metadata.Filter{Author: &author}
	q, err := New("q", f, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Filter() != f {
		t.Error("Filter() should return the given filter")
	}
}
