package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/device"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/request"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/model"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/repository/embcache"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/storage"
	documentuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/document"
	embeddinguc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/embedding"
	healthuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/health"
	rerankuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/rerank"
	searchuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/search"
)

// Internal interfaces for substitution in tests.
type searchUseCase interface {
	Query(ctx context.Context, queries []request.Query) ([]result.Ranked, error)
	Refine(ctx context.Context, results []result.Ranked) []result.Ranked
}

type documentUseCase interface {
	Upsert(ctx context.Context, docs []chunk.Document) ([]string, error)
	Delete(ctx context.Context, req documentuc.DeleteRequest) error
	List(ctx context.Context, req documentuc.ListRequest) (documentuc.Page, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the embedded retrieval pipeline.
type Client struct {
	store     *storage.Storage
	searchSvc searchUseCase
	docSvc    documentUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New opens the datastore, loads the models and prepares the index for the
// encoder's vector dimension. The context bounds startup only.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.db.Driver == "" {
		return nil, errors.New("retrieval: datastore required (use WithBolt, WithRedis, WithValkey or WithQdrant)")
	}
	if cfg.encoder == nil {
		return nil, errors.New("retrieval: encoder required (use WithEncoder)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	devName := cfg.device
	if devName == "" {
		devName = string(device.CPU)
	}
	dev, err := device.Probe(devName)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	store, err := storage.Open(ctx, cfg.db, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	c, err := wireClient(ctx, store, cfg, dev, obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(
	ctx context.Context, store *storage.Storage, cfg *clientConfig, dev device.Descriptor, obs *observer,
) (*Client, error) {
	logger := zap.NewNop()
	defaults := device.DefaultsFor(dev.Kind)
	guards := device.NewGuards()

	cacheSize := cfg.cacheSize
	if cacheSize <= 0 {
		cacheSize = defaults.CacheSize
	}
	cache, err := embcache.New(cacheSize, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	batchSize := cfg.batchSize
	if batchSize <= 0 {
		batchSize = defaults.BatchSize
	}
	vectorizer := embeddinguc.NewVectorizer(
		model.NewHandle(model.Spec{Device: dev}, staticLoader[model.Encoder](cfg.encoder)),
		cache, guards, batchSize, logger,
	)

	refinerCfg := rerankuc.RefinerConfig{
		Enabled:         cfg.scorer != nil || cfg.lexical,
		CandidateWindow: defaults.CandidateWindow,
		FinalWindow:     defaults.FinalWindow,
	}
	if cfg.candidateWindow > 0 {
		refinerCfg.CandidateWindow = cfg.candidateWindow
	}
	if cfg.finalWindow > 0 {
		refinerCfg.FinalWindow = cfg.finalWindow
	}

	var (
		scorerLoader  model.Loader[model.PairScorer] = rerankuc.LexicalLoader()
		rerankChecker healthuc.Checker
	)
	if cfg.scorer != nil {
		scorerLoader = staticLoader[model.PairScorer](cfg.scorer)
	}
	scorer := rerankuc.NewScorer(model.NewHandle(model.Spec{Device: dev}, scorerLoader), guards, logger)
	if refinerCfg.Enabled {
		if err := scorer.Load(ctx); err != nil {
			return nil, fmt.Errorf("retrieval: load scorer: %w", err)
		}
		rerankChecker = scorer
	}

	dim, err := vectorizer.Dimensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieval: resolve embedding dimension: %w", err)
	}
	if err := store.EnsureIndex(ctx, dim); err != nil {
		return nil, fmt.Errorf("retrieval: ensure index: %w", err)
	}

	return &Client{
		store:     store,
		searchSvc: searchuc.New(store, vectorizer, rerankuc.NewRefiner(scorer, refinerCfg, logger)),
		docSvc: documentuc.New(store, vectorizer,
			documentuc.NewWordChunker(cfg.chunkWords, cfg.chunkOverlap), logger),
		healthSvc: healthuc.New(store, vectorizer, rerankChecker),
		obs:       obs,
	}, nil
}

// Close releases the datastore connection.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks datastore connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Query answers each query with its nearest passages, refined when a scorer
// is configured. Results are in query order.
func (c *Client) Query(ctx context.Context, queries ...Query) (_ []Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query", start, err) }()

	reqs := make([]request.Query, len(queries))
	for i, q := range queries {
		r, qerr := request.New(q.Text, q.Filter, q.TopK)
		if qerr != nil {
			return nil, fmt.Errorf("query %d: %w: %w", i, ErrInvalidRequest, qerr)
		}
		reqs[i] = r
	}

	ranked, err := c.searchSvc.Query(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return fromRanked(ranked), nil
}

// Rerank refines externally retrieved results. It never fails: a result
// whose scoring fails keeps its order.
func (c *Client) Rerank(ctx context.Context, results []Result) []Result {
	start := time.Now()
	defer c.obs.observe("rerank", start, nil)

	return fromRanked(c.searchSvc.Refine(ctx, toRanked(results)))
}

// Upsert chunks, embeds and stores documents, replacing earlier versions.
// Returns the document ids in input order.
func (c *Client) Upsert(ctx context.Context, docs ...Document) (_ []string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("upsert", start, err) }()

	in := make([]chunk.Document, len(docs))
	for i, d := range docs {
		in[i] = chunk.Document{ID: d.ID, Text: d.Text, Metadata: d.Metadata}
	}
	ids, err := c.docSvc.Upsert(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}
	return ids, nil
}

// Delete removes the chunks selected by req.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete", start, err) }()

	err = c.docSvc.Delete(ctx, documentuc.DeleteRequest{IDs: req.IDs, Filter: req.Filter, DeleteAll: req.All})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// List returns one page of stored documents.
func (c *Client) List(ctx context.Context, req ListRequest) (_ Page, err error) {
	start := time.Now()
	defer func() { c.obs.observe("list", start, err) }()

	p, err := c.docSvc.List(ctx, documentuc.ListRequest{Filter: req.Filter, Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		return Page{}, fmt.Errorf("list: %w", err)
	}
	out := Page{Documents: make([]DocumentSummary, len(p.Documents)), Total: p.Total}
	for i, d := range p.Documents {
		out.Documents[i] = DocumentSummary{
			DocumentID: d.DocumentID,
			ChunkCount: d.ChunkCount,
			Metadata:   d.Metadata,
			SampleText: d.SampleText,
		}
	}
	return out, nil
}

// Health checks the datastore and the models.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{Status: string(report.Status), Checks: checks}
}
