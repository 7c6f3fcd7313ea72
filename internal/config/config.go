// Package config loads the service configuration: a YAML file per
// environment with ${VAR} expansion, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/device"
)

// Supported datastore drivers.
const (
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverQdrant = "qdrant"
)

// Config holds the retrieval service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. No keys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys" env:"BEARER_TOKEN" envSeparator:","`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port" env:"PORT"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig selects and configures the vector store.
type DatabaseConfig struct {
	Driver           string       `yaml:"driver" env:"DATASTORE"` // bolt, redis, valkey, qdrant (default: bolt)
	Addrs            []string     `yaml:"addrs" env:"REDIS_ADDRS" envSeparator:","`
	Password         string       `yaml:"password" env:"REDIS_PASSWORD"`
	ReadinessTimeout int          `yaml:"readiness_timeout_sec"`
	KeyPrefix        string       `yaml:"key_prefix"`
	IndexName        string       `yaml:"index_name"`
	HNSWM            int          `yaml:"hnsw_m"`
	HNSWEFConstruct  int          `yaml:"hnsw_ef_construction"`
	BoltPath         string       `yaml:"bolt_path" env:"BOLT_PATH"`
	Qdrant           QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Addr       string `yaml:"addr" env:"QDRANT_ADDR"`
	APIKey     string `yaml:"api_key" env:"QDRANT_API_KEY"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`
}

// EmbeddingConfig configures the vectorizer and its runtime.
// Zero batch size, max length and cache size are filled from device defaults.
type EmbeddingConfig struct {
	Model             string  `yaml:"model" env:"EMBEDDING_MODEL"`
	Device            string  `yaml:"device" env:"EMBEDDING_DEVICE"` // empty = probe
	BatchSize         int     `yaml:"batch_size" env:"EMBEDDING_BATCH"`
	MaxLength         int     `yaml:"max_length" env:"EMBEDDING_MAX_LEN"`
	CacheSize         int     `yaml:"cache_size" env:"EMBEDDING_CACHE_SIZE"`
	BaseURL           string  `yaml:"base_url" env:"EMBEDDING_BASE_URL"`
	APIKey            string  `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	Dimensions        int     `yaml:"dimensions"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// RerankConfig configures the relevance scorer and the refiner.
// Zero windows and max length are filled from device defaults.
type RerankConfig struct {
	Model           string `yaml:"model" env:"RERANK_MODEL"` // "lexical" selects the in-process scorer
	Device          string `yaml:"device" env:"RERANK_DEVICE"`
	Enabled         *bool  `yaml:"enabled" env:"RERANK_ENABLE"`
	CandidateWindow int    `yaml:"candidate_window" env:"RERANK_K"`
	FinalWindow     int    `yaml:"final_window" env:"RERANK_FINAL_N"`
	MaxLength       int    `yaml:"max_length" env:"RERANK_MAX_LEN"`
	BaseURL         string `yaml:"base_url" env:"RERANK_BASE_URL"`
	APIKey          string `yaml:"api_key" env:"RERANK_API_KEY"`
	TimeoutSec      int    `yaml:"timeout_sec"`
}

// IsEnabled reports whether refinement is on. Defaults to true.
func (r RerankConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// IngestConfig holds chunking settings.
type IngestConfig struct {
	ChunkWords   int `yaml:"chunk_words"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod),
// then applies .env and process environment overrides.
func Load(envName string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(envName)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse env overrides: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(envName string) Config {
	cfg, err := Load(envName)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if e := os.Getenv("ENV"); e != "" {
		return e
	}
	return "local"
}

// ApplyDefaults fills empty device-independent fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverBolt
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.HNSWM <= 0 {
		c.Database.HNSWM = 16
	}
	if c.Database.HNSWEFConstruct <= 0 {
		c.Database.HNSWEFConstruct = 200
	}
	if c.Database.BoltPath == "" {
		c.Database.BoltPath = filepath.Join("data", "chunks.db")
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "BAAI/bge-m3"
	}
	if c.Rerank.Model == "" {
		c.Rerank.Model = "BAAI/bge-reranker-v2-m3"
	}
	if c.Rerank.TimeoutSec <= 0 {
		c.Rerank.TimeoutSec = 30
	}
	if c.Ingest.ChunkWords <= 0 {
		c.Ingest.ChunkWords = 200
	}
}

// ApplyDeviceDefaults fills the tuning fields left unset from the defaults of
// the probed devices.
func (c *Config) ApplyDeviceDefaults(embed, rerank device.Descriptor) {
	ed := device.DefaultsFor(embed.Kind)
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = ed.BatchSize
	}
	if c.Embedding.MaxLength <= 0 {
		c.Embedding.MaxLength = ed.MaxLength
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = ed.CacheSize
	}

	rd := device.DefaultsFor(rerank.Kind)
	if c.Rerank.CandidateWindow <= 0 {
		c.Rerank.CandidateWindow = rd.CandidateWindow
	}
	if c.Rerank.FinalWindow <= 0 {
		c.Rerank.FinalWindow = rd.FinalWindow
	}
	if c.Rerank.MaxLength <= 0 {
		c.Rerank.MaxLength = rd.MaxLength
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverBolt:
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case DriverQdrant:
		if c.Database.Qdrant.Addr == "" {
			return fmt.Errorf("database.qdrant.addr is required for driver %q", DriverQdrant)
		}
	default:
		return fmt.Errorf("database.driver must be one of bolt, redis, valkey, qdrant, got %q", c.Database.Driver)
	}
	if c.Embedding.BatchSize < 0 || c.Embedding.MaxLength < 0 || c.Embedding.CacheSize < 0 {
		return errors.New("embedding batch_size, max_length and cache_size must not be negative")
	}
	if c.Rerank.CandidateWindow < 0 || c.Rerank.FinalWindow < 0 || c.Rerank.MaxLength < 0 {
		return errors.New("rerank windows and max_length must not be negative")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkWords {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, %d), got %d", c.Ingest.ChunkWords, c.Ingest.ChunkOverlap)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(envName string) string {
	filename := fmt.Sprintf("%s.yaml", envName)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
