package retrieval

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	db config.DatabaseConfig

	encoder Encoder
	scorer  Scorer
	lexical bool

	device          string
	batchSize       int
	cacheSize       int
	candidateWindow int
	finalWindow     int
	chunkWords      int
	chunkOverlap    int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithBolt stores chunks in an embedded bbolt file at path.
func WithBolt(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.db.Driver = config.DriverBolt
		c.db.BoltPath = path
	})
}

// WithRedis stores chunks in Redis with the search module.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.db.Driver = config.DriverRedis
		c.db.Addrs = []string{addr}
		c.db.Password = password
	})
}

// WithValkey stores chunks in Valkey with the search module.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.db.Driver = config.DriverValkey
		c.db.Addrs = []string{addr}
		c.db.Password = password
	})
}

// WithQdrant stores chunks in a Qdrant collection reached over gRPC.
func WithQdrant(addr, apiKey, collection string) Option {
	return optionFunc(func(c *clientConfig) {
		c.db.Driver = config.DriverQdrant
		c.db.Qdrant = config.QdrantConfig{Addr: addr, APIKey: apiKey, Collection: collection}
	})
}

// WithHNSW configures HNSW index parameters for Redis and Valkey.
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.db.HNSWM = m
		c.db.HNSWEFConstruct = efConstruct
	})
}

// WithEncoder sets the embedding model. Required.
func WithEncoder(e Encoder) Option {
	return optionFunc(func(c *clientConfig) {
		c.encoder = e
	})
}

// WithScorer enables relevance refinement with the given cross-encoder.
func WithScorer(s Scorer) Option {
	return optionFunc(func(c *clientConfig) {
		c.scorer = s
		c.lexical = false
	})
}

// WithLexicalScorer enables relevance refinement with the built-in
// query term overlap scorer.
func WithLexicalScorer() Option {
	return optionFunc(func(c *clientConfig) {
		c.scorer = nil
		c.lexical = true
	})
}

// WithDevice pins the device name (cpu, mps, cuda, cuda:N) the encoder and
// scorer run on. Calls on accelerators are serialized. Default: cpu.
func WithDevice(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.device = name
	})
}

// WithBatchSize sets how many texts are encoded per Encode call.
// Default: device dependent.
func WithBatchSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.batchSize = size
	})
}

// WithQueryCache sets the number of query vectors kept in memory.
// Default: device dependent.
func WithQueryCache(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheSize = size
	})
}

// WithRefineWindows sets how many candidates are scored (k) and how many
// passages are kept after scoring (n).
func WithRefineWindows(k, n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.candidateWindow = k
		c.finalWindow = n
	})
}

// WithChunking sets the chunk size in words and the overlap between chunks.
// Default: 200 words, no overlap.
func WithChunking(words, overlap int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkWords = words
		c.chunkOverlap = overlap
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
