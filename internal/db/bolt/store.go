// Package bolt is the embedded vector store: chunks persisted in a bbolt
// file, mirrored in memory and searched by brute-force cosine similarity.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	domchunk "github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/filter"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
)

var bucketChunks = []byte("chunks")

type entry struct {
	text   string
	attrs  map[string]any
	vector []float32
}

type storedChunk struct {
	Text   string         `json:"t"`
	Attrs  map[string]any `json:"m,omitempty"`
	Vector []float32      `json:"v"`
}

// Store implements the vector store over a bbolt file.
type Store struct {
	db     *bbolt.DB
	logger *zap.Logger

	mu     sync.RWMutex
	dim    int
	chunks map[string]entry
}

// Open opens (or creates) the database file and loads every chunk into memory.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChunks)
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chunks bucket: %w", err)
	}

	s := &Store{db: db, logger: logger, chunks: make(map[string]entry)}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("Bolt store opened", zap.String("path", path), zap.Int("chunks", len(s.chunks)))
	return s, nil
}

func (s *Store) load() error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			var sc storedChunk
			if err := json.Unmarshal(v, &sc); err != nil {
				s.logger.Warn("Skipping corrupt chunk", zap.ByteString("id", k), zap.Error(err))
				return nil
			}
			s.chunks[string(k)] = entry{text: sc.Text, attrs: sc.Attrs, vector: sc.Vector}
			if s.dim == 0 {
				s.dim = len(sc.Vector)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	return nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close() //nolint:wrapcheck // close errors are not actionable
}

// Ping reports whether the database file is open.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(*bbolt.Tx) error { return nil }) //nolint:wrapcheck // bbolt.ErrDatabaseNotOpen is descriptive
}

// EnsureIndex fixes the vector dimension. Stored vectors of another dimension are an error.
func (s *Store) EnsureIndex(_ context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim != 0 && s.dim != dim {
		return fmt.Errorf("stored vectors have %d dimensions, model has %d: %w",
			s.dim, dim, domain.ErrVectorDimMismatch)
	}
	s.dim = dim
	return nil
}

// Upsert stores chunks, replacing any chunk with the same id.
func (s *Store) Upsert(_ context.Context, chunks []domchunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]entry, len(chunks))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for _, c := range chunks {
			if s.dim != 0 && len(c.Vector()) != s.dim {
				return fmt.Errorf("chunk %s: got %d, want %d: %w",
					c.ID(), len(c.Vector()), s.dim, domain.ErrVectorDimMismatch)
			}
			attrs, err := metadata.ToStorage(c.Metadata())
			if err != nil {
				return fmt.Errorf("chunk %s metadata: %w", c.ID(), err)
			}
			data, err := json.Marshal(storedChunk{Text: c.Text(), Attrs: attrs, Vector: c.Vector()})
			if err != nil {
				return fmt.Errorf("marshal chunk %s: %w", c.ID(), err)
			}
			if err := b.Put([]byte(c.ID()), data); err != nil {
				return fmt.Errorf("put chunk %s: %w", c.ID(), err)
			}
			staged[c.ID()] = entry{text: c.Text(), attrs: attrs, vector: c.Vector()}
		}
		return nil
	})
	if err != nil {
		return err //nolint:wrapcheck // wrapped inside the transaction
	}

	for id, e := range staged {
		s.chunks[id] = e
		if s.dim == 0 {
			s.dim = len(e.vector)
		}
	}
	return nil
}

// NearestNeighbors returns up to limit chunks most similar to vector among those matching predicate.
// Ties are broken by chunk id.
func (s *Store) NearestNeighbors(
	_ context.Context, vector []float32, predicate filter.Expression, limit int,
) ([]result.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(vector) != s.dim {
		return nil, fmt.Errorf("query has %d dimensions, store has %d: %w",
			len(vector), s.dim, domain.ErrVectorDimMismatch)
	}

	type scored struct {
		id    string
		score float64
	}
	hits := make([]scored, 0, len(s.chunks))
	for id, e := range s.chunks {
		if !predicate.Matches(e.attrs) {
			continue
		}
		hits = append(hits, scored{id: id, score: cosineSimilarity(vector, e.vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})

	n := min(limit, len(hits))
	out := make([]result.Passage, n)
	for i := range n {
		e := s.chunks[hits[i].id]
		out[i] = result.NewPassage(hits[i].id, e.text, metadata.FromStorage(e.attrs), hits[i].score)
	}
	return out, nil
}

// DeleteByDocumentIDs removes every chunk of the given documents.
func (s *Store) DeleteByDocumentIDs(_ context.Context, documentIDs []string) error {
	want := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		want[id] = true
	}
	return s.deleteWhere(func(e entry) bool {
		id, _ := e.attrs[metadata.KeyDocumentID].(string)
		return want[id]
	})
}

// DeleteByFilter removes every chunk matching predicate.
func (s *Store) DeleteByFilter(_ context.Context, predicate filter.Expression) error {
	return s.deleteWhere(func(e entry) bool { return predicate.Matches(e.attrs) })
}

// DeleteAll removes every chunk.
func (s *Store) DeleteAll(_ context.Context) error {
	return s.deleteWhere(func(entry) bool { return true })
}

func (s *Store) deleteWhere(match func(entry) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, e := range s.chunks {
		if match(e) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return fmt.Errorf("delete chunk %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err //nolint:wrapcheck // wrapped inside the transaction
	}
	for _, id := range ids {
		delete(s.chunks, id)
	}
	s.logger.Debug("Chunks deleted", zap.Int("count", len(ids)))
	return nil
}

// Chunks returns every chunk matching predicate, without vectors, ordered by id.
func (s *Store) Chunks(_ context.Context, predicate filter.Expression) ([]domchunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domchunk.Chunk, 0)
	for id, e := range s.chunks {
		if predicate.Matches(e.attrs) {
			out = append(out, domchunk.Reconstruct(id, e.text, metadata.FromStorage(e.attrs), nil))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
