package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/config"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/device"
	logpkg "github.com/blaizeai/chatgpt-retrieval-plugin/internal/logger"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/metrics"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/model"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/repository/embcache"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/storage"
	chiTransport "github.com/blaizeai/chatgpt-retrieval-plugin/internal/transport/chi"
	openaiEmb "github.com/blaizeai/chatgpt-retrieval-plugin/internal/transport/openai"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/transport/tei"
	documentuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/document"
	embeddinguc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/embedding"
	healthuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/health"
	rerankuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/rerank"
	searchuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/search"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/version"
)

const modelLoadTimeout = 2 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(_ *cobra.Command, _ []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	embedDev, rerankDev, err := probeDevices(cfg)
	if err != nil {
		return err
	}
	cfg.ApplyDeviceDefaults(embedDev, rerankDev)

	logger.Info("Starting retrieval API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Stringer("embedding_device", embedDev),
		zap.String("rerank_model", cfg.Rerank.Model),
		zap.Stringer("rerank_device", rerankDev),
		zap.Bool("rerank_enabled", cfg.Rerank.IsEnabled()),
	)

	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer store.Close()
	logger.Info("Connected to datastore", zap.String("driver", cfg.Database.Driver))

	guards := device.NewGuards()

	// Embedding pipeline: runtime -> handle -> vectorizer (+ query cache)
	embedHandle := model.NewHandle(
		model.Spec{Model: cfg.Embedding.Model, Device: embedDev, MaxLength: cfg.Embedding.MaxLength},
		model.Widen[*openaiEmb.Encoder, model.Encoder](openaiEmb.Loader(openaiEmb.Config{
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			Dimensions:        cfg.Embedding.Dimensions,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			Logger:            logger,
		})),
	)
	queryCache, err := embcache.New(cfg.Embedding.CacheSize, metrics.EmbeddingCacheTotal)
	if err != nil {
		return fmt.Errorf("create query cache: %w", err)
	}
	vectorizer := embeddinguc.NewVectorizer(embedHandle, queryCache, guards, cfg.Embedding.BatchSize, logger)

	// Relevance pipeline: runtime -> handle -> scorer -> refiner
	scorer := rerankuc.NewScorer(model.NewHandle(
		model.Spec{Model: cfg.Rerank.Model, Device: rerankDev, MaxLength: cfg.Rerank.MaxLength},
		rerankLoader(cfg.Rerank, logger),
	), guards, logger)
	refiner := rerankuc.NewRefiner(scorer, rerankuc.RefinerConfig{
		Enabled:         cfg.Rerank.IsEnabled(),
		CandidateWindow: cfg.Rerank.CandidateWindow,
		FinalWindow:     cfg.Rerank.FinalWindow,
	}, logger)

	// Load models eagerly: a load failure must stop startup, not the first request.
	loadCtx, cancelLoad := context.WithTimeout(ctx, modelLoadTimeout)
	defer cancelLoad()
	if err := vectorizer.Load(loadCtx); err != nil {
		return fmt.Errorf("load embedding model: %w", err)
	}
	var rerankChecker healthuc.Checker
	if cfg.Rerank.IsEnabled() {
		if err := scorer.Load(loadCtx); err != nil {
			return fmt.Errorf("load rerank model: %w", err)
		}
		rerankChecker = scorer
	}

	dim, err := vectorizer.Dimensions(loadCtx)
	if err != nil {
		return fmt.Errorf("resolve embedding dimension: %w", err)
	}
	if err := store.EnsureIndex(loadCtx, dim); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	logger.Info("Models loaded", zap.Int("dimensions", dim))

	searchSvc := searchuc.New(store, vectorizer, refiner)
	docSvc := documentuc.New(store, vectorizer,
		documentuc.NewWordChunker(cfg.Ingest.ChunkWords, cfg.Ingest.ChunkOverlap), logger)
	healthSvc := healthuc.New(store, vectorizer, rerankChecker)

	server := chiTransport.NewServer(searchSvc, docSvc, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func rerankLoader(cfg config.RerankConfig, logger *zap.Logger) model.Loader[model.PairScorer] {
	if cfg.Model == rerankuc.LexicalModel {
		return rerankuc.LexicalLoader()
	}
	return model.Widen[*tei.Scorer, model.PairScorer](tei.Loader(tei.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		Logger:  logger,
	}))
}
