// Package storage opens the configured vector datastore.
package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/config"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/db/bolt"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/db/qdrant"
	dbRedis "github.com/blaizeai/chatgpt-retrieval-plugin/internal/db/redis"
	chunkrepo "github.com/blaizeai/chatgpt-retrieval-plugin/internal/repository/chunk"
	documentuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/document"
	searchuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/search"
)

// VectorStore is everything the services need from a datastore.
type VectorStore interface {
	documentuc.Store
	searchuc.Backend
	EnsureIndex(ctx context.Context, dim int) error
}

// Storage is the selected datastore with its readiness probe.
type Storage struct {
	VectorStore
	ping  func(ctx context.Context) error
	close func()
}

// Ping checks datastore connectivity.
func (s *Storage) Ping(ctx context.Context) error { return s.ping(ctx) }

// Close releases the datastore connection.
func (s *Storage) Close() { s.close() }

// Open connects to the datastore named by cfg.Driver and waits for it to
// become ready. Redis and Valkey share the rueidis store.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Storage, error) {
	readiness := time.Duration(cfg.ReadinessTimeout) * time.Second
	if readiness <= 0 {
		readiness = 10 * time.Second
	}

	switch cfg.Driver {
	case config.DriverBolt:
		st, err := bolt.Open(cfg.BoltPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		return &Storage{VectorStore: st, ping: st.Ping, close: func() { _ = st.Close() }}, nil

	case config.DriverRedis, config.DriverValkey:
		st, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Addrs, Password: cfg.Password})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
		}
		if err := st.WaitForReady(ctx, readiness); err != nil {
			st.Close()
			return nil, fmt.Errorf("%s not ready: %w", cfg.Driver, err)
		}
		repo := chunkrepo.New(st, chunkrepo.Config{
			Prefix:    cfg.KeyPrefix,
			IndexName: cfg.IndexName,
			HNSW:      chunkrepo.HNSWConfig{M: cfg.HNSWM, EFConstruction: cfg.HNSWEFConstruct},
		}, logger)
		return &Storage{VectorStore: repo, ping: st.Ping, close: st.Close}, nil

	case config.DriverQdrant:
		st, err := qdrant.NewStore(qdrant.Config{
			Addr:       cfg.Qdrant.Addr,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create qdrant store: %w", err)
		}
		if err := st.WaitForReady(ctx, readiness); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("qdrant not ready: %w", err)
		}
		return &Storage{VectorStore: st, ping: st.Ping, close: func() { _ = st.Close() }}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
