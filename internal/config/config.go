// Package config loads docrag settings from defaults, config files, a
// .env file and DOCRAG_* environment variables, in that order.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// Project config file names, in lookup order.
var ProjectFiles = []string{".docrag.yaml", ".docrag.yml", ".docrag.toml"}

// DataDirName is the per-project directory holding local stores.
const DataDirName = ".docrag"

// Config is the complete docrag configuration.
type Config struct {
	Version    int              `yaml:"version" toml:"version" json:"version"`
	Chunking   ChunkingConfig   `yaml:"chunking" toml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" toml:"embeddings" json:"embeddings"`
	Completion CompletionConfig `yaml:"completion" toml:"completion" json:"completion"`
	Store      StoreConfig      `yaml:"store" toml:"store" json:"store"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" toml:"retrieval" json:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest" toml:"ingest" json:"ingest"`
	Sources    SourcesConfig    `yaml:"sources" toml:"sources" json:"sources"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging" json:"logging"`
	Server     ServerConfig     `yaml:"server" toml:"server" json:"server"`
}

// ChunkingConfig configures the splitter.
type ChunkingConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size" toml:"max_chunk_size" json:"max_chunk_size"`
	Overlap      int `yaml:"overlap" toml:"overlap" json:"overlap"`
}

// EmbeddingsConfig configures the embedding provider and its retry policy.
// Durations are Go duration strings ("500ms", "2s").
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" toml:"provider" json:"provider"` // openai, azure, ollama, static
	Model      string `yaml:"model" toml:"model" json:"model"`
	BaseURL    string `yaml:"base_url" toml:"base_url" json:"base_url"`
	APIVersion string `yaml:"api_version" toml:"api_version" json:"api_version"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions" json:"dimensions"` // 0 keeps the model default
	APIKey     string `yaml:"-" toml:"-" json:"-"`

	BatchSize    int     `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	MaxAttempts  int     `yaml:"max_attempts" toml:"max_attempts" json:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay" toml:"initial_delay" json:"initial_delay"`
	Multiplier   float64 `yaml:"multiplier" toml:"multiplier" json:"multiplier"`
	MaxDelay     string  `yaml:"max_delay" toml:"max_delay" json:"max_delay"`
	Timeout      string  `yaml:"timeout" toml:"timeout" json:"timeout"`
	MinInterval  string  `yaml:"min_interval" toml:"min_interval" json:"min_interval"`
	CacheSize    int     `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
}

// CompletionConfig configures the chat-completion provider.
type CompletionConfig struct {
	Provider    string   `yaml:"provider" toml:"provider" json:"provider"` // openai, azure, ollama, extractive
	Model       string   `yaml:"model" toml:"model" json:"model"`
	BaseURL     string   `yaml:"base_url" toml:"base_url" json:"base_url"`
	APIVersion  string   `yaml:"api_version" toml:"api_version" json:"api_version"`
	APIKey      string   `yaml:"-" toml:"-" json:"-"`
	Timeout     string   `yaml:"timeout" toml:"timeout" json:"timeout"`
	Temperature *float64 `yaml:"temperature,omitempty" toml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`

	// BreakerFailures consecutive failures open the circuit for BreakerReset.
	BreakerFailures int    `yaml:"breaker_failures" toml:"breaker_failures" json:"breaker_failures"`
	BreakerReset    string `yaml:"breaker_reset" toml:"breaker_reset" json:"breaker_reset"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	Backend string      `yaml:"backend" toml:"backend" json:"backend"` // memory, file, hnsw, sqlite, mongo
	Dir     string      `yaml:"dir" toml:"dir" json:"dir"`             // empty: <project>/.docrag
	Metric  string      `yaml:"metric" toml:"metric" json:"metric"`    // cosine or l2
	Mongo   MongoConfig `yaml:"mongo" toml:"mongo" json:"mongo"`
}

// MongoConfig configures the Cosmos DB for MongoDB vCore backend.
type MongoConfig struct {
	URI        string `yaml:"-" toml:"-" json:"-"`
	Database   string `yaml:"database" toml:"database" json:"database"`
	Collection string `yaml:"collection" toml:"collection" json:"collection"`
	IndexName  string `yaml:"index_name" toml:"index_name" json:"index_name"`
	NumLists   int    `yaml:"num_lists" toml:"num_lists" json:"num_lists"`
	EfSearch   int    `yaml:"ef_search,omitempty" toml:"ef_search,omitempty" json:"ef_search,omitempty"` // vector-hnsw only
	Timeout    string `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// RetrievalConfig tunes question answering.
type RetrievalConfig struct {
	K           int     `yaml:"k" toml:"k" json:"k"`
	MinScore    float64 `yaml:"min_score" toml:"min_score" json:"min_score"`
	MemoryPairs int     `yaml:"memory_pairs" toml:"memory_pairs" json:"memory_pairs"` // negative disables memory
}

// IngestConfig tunes the indexer and folder walks.
type IngestConfig struct {
	Extensions       []string `yaml:"extensions" toml:"extensions" json:"extensions"`
	Workers          int      `yaml:"workers" toml:"workers" json:"workers"`
	BatchSize        int      `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	IDStrategy       string   `yaml:"id_strategy" toml:"id_strategy" json:"id_strategy"` // content or uuid
	RespectGitignore bool     `yaml:"respect_gitignore" toml:"respect_gitignore" json:"respect_gitignore"`
	IncludeHidden    bool     `yaml:"include_hidden" toml:"include_hidden" json:"include_hidden"`
	Exclude          []string `yaml:"exclude" toml:"exclude" json:"exclude"`
	WatchDebounce    string   `yaml:"watch_debounce" toml:"watch_debounce" json:"watch_debounce"`
}

// SourcesConfig holds blob-store connection settings for ingest URIs.
type SourcesConfig struct {
	MinIO MinIOConfig `yaml:"minio" toml:"minio" json:"minio"`
	S3    S3Config    `yaml:"s3" toml:"s3" json:"s3"`
}

// MinIOConfig configures minio:// sources. Keys come from the environment.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl" json:"use_ssl"`
	Region    string `yaml:"region" toml:"region" json:"region"`
	AccessKey string `yaml:"-" toml:"-" json:"-"`
	SecretKey string `yaml:"-" toml:"-" json:"-"`
}

// S3Config configures s3:// sources. Credentials follow the AWS SDK chain.
type S3Config struct {
	Region       string `yaml:"region" toml:"region" json:"region"`
	Endpoint     string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style" toml:"use_path_style" json:"use_path_style"`
}

// LoggingConfig configures the JSON log file.
type LoggingConfig struct {
	Level     string `yaml:"level" toml:"level" json:"level"`
	File      string `yaml:"file" toml:"file" json:"file"` // empty: ~/.docrag/logs/docrag.log
	MaxSizeMB int    `yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" toml:"max_files" json:"max_files"`
	Stderr    bool   `yaml:"stderr" toml:"stderr" json:"stderr"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Name      string `yaml:"name" toml:"name" json:"name"`
	Transport string `yaml:"transport" toml:"transport" json:"transport"` // stdio or http
	Addr      string `yaml:"addr" toml:"addr" json:"addr"`                // http listen address
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Chunking: ChunkingConfig{
			MaxChunkSize: 300,
			Overlap:      0,
		},
		Embeddings: EmbeddingsConfig{
			Provider:     "openai",
			Model:        "text-embedding-3-small",
			BatchSize:    16,
			MaxAttempts:  5,
			InitialDelay: "1s",
			Multiplier:   2.0,
			MaxDelay:     "16s",
			Timeout:      "60s",
			MinInterval:  "0s",
			CacheSize:    1000,
		},
		Completion: CompletionConfig{
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			Timeout:         "120s",
			BreakerFailures: 3,
			BreakerReset:    "30s",
		},
		Store: StoreConfig{
			Backend: "file",
			Metric:  "cosine",
			Mongo: MongoConfig{
				Database:   "docrag",
				Collection: "chunks",
				IndexName:  "vectorSearchIndex",
				NumLists:   1,
				Timeout:    "30s",
			},
		},
		Retrieval: RetrievalConfig{
			K:           5,
			MinScore:    0.4,
			MemoryPairs: 5,
		},
		Ingest: IngestConfig{
			Extensions:       []string{".txt", ".md", ".pdf"},
			Workers:          min(runtime.NumCPU(), 8),
			BatchSize:        16,
			IDStrategy:       "content",
			RespectGitignore: true,
			WatchDebounce:    "500ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Server: ServerConfig{
			Name:      "docrag",
			Transport: "stdio",
			Addr:      "127.0.0.1:8765",
		},
	}
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/docrag/config.yaml, or
// ~/.config/docrag/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml")
}

// UserConfigExists reports whether the user config file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for the project in dir:
//  1. defaults
//  2. user config
//  3. project file (.docrag.yaml, .docrag.yml or .docrag.toml), or
//     explicitFile when non-empty
//  4. dir/.env, never overriding variables already set
//  5. DOCRAG_* environment variables
func Load(dir, explicitFile string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if explicitFile != "" {
		if !fileExists(explicitFile) {
			return nil, errors.New(errors.ErrCodeConfigNotFound, "config file not found: "+explicitFile, nil)
		}
		if err := cfg.LoadFile(explicitFile); err != nil {
			return nil, err
		}
	} else if path := FindProjectFile(dir); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if cfg.Store.Dir == "" {
		cfg.Store.Dir = filepath.Join(dir, DataDirName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindProjectFile returns the first project config file in dir, or "".
func FindProjectFile(dir string) string {
	for _, name := range ProjectFiles {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

// LoadFile decodes path onto c. Keys absent from the file keep their
// current values. The format follows the extension.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigError("read config file "+path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(c)
	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(c); stderrors.Is(err, io.EOF) {
			err = nil // empty document
		}
	default:
		return errors.ConfigError("unsupported config format "+filepath.Ext(path), nil).
			WithSuggestion("use .yaml, .yml or .toml")
	}
	if err != nil {
		return errors.New(errors.ErrCodeConfigInvalid, "parse config file "+path, err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid, "parse "+path, err)
	}
	return nil
}

// applyEnv applies DOCRAG_* overrides and reads secrets.
func (c *Config) applyEnv() {
	setString(&c.Embeddings.Provider, "DOCRAG_EMBEDDINGS_PROVIDER")
	setString(&c.Embeddings.Model, "DOCRAG_EMBEDDINGS_MODEL")
	setString(&c.Embeddings.BaseURL, "DOCRAG_EMBEDDINGS_BASE_URL")
	setString(&c.Embeddings.MinInterval, "DOCRAG_EMBEDDINGS_MIN_INTERVAL")
	setInt(&c.Embeddings.Dimensions, "DOCRAG_EMBEDDINGS_DIMENSIONS")

	setString(&c.Completion.Provider, "DOCRAG_COMPLETION_PROVIDER")
	setString(&c.Completion.Model, "DOCRAG_COMPLETION_MODEL")
	setString(&c.Completion.BaseURL, "DOCRAG_COMPLETION_BASE_URL")

	setString(&c.Store.Backend, "DOCRAG_STORE_BACKEND")
	setString(&c.Store.Dir, "DOCRAG_STORE_DIR")

	setInt(&c.Retrieval.K, "DOCRAG_RETRIEVAL_K")
	setFloat(&c.Retrieval.MinScore, "DOCRAG_RETRIEVAL_MIN_SCORE")

	setInt(&c.Ingest.Workers, "DOCRAG_INGEST_WORKERS")

	setString(&c.Sources.MinIO.Endpoint, "DOCRAG_MINIO_ENDPOINT")
	setString(&c.Sources.S3.Region, "DOCRAG_S3_REGION")
	setString(&c.Sources.S3.Endpoint, "DOCRAG_S3_ENDPOINT")

	setString(&c.Logging.Level, "DOCRAG_LOG_LEVEL")

	// Secrets are never read from config files.
	c.Embeddings.APIKey = firstEnv("DOCRAG_EMBEDDINGS_API_KEY", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY")
	c.Completion.APIKey = firstEnv("DOCRAG_COMPLETION_API_KEY", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY")
	c.Store.Mongo.URI = firstEnv("DOCRAG_MONGO_URI", "MONGODB_URI")
	c.Sources.MinIO.AccessKey = firstEnv("DOCRAG_MINIO_ACCESS_KEY", "MINIO_ACCESS_KEY")
	c.Sources.MinIO.SecretKey = firstEnv("DOCRAG_MINIO_SECRET_KEY", "MINIO_SECRET_KEY")
}

// Offline switches both providers to the local fallbacks.
func (c *Config) Offline() {
	c.Embeddings.Provider = "static"
	c.Completion.Provider = "extractive"
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Chunking.MaxChunkSize <= 0 {
		return invalid("chunking.max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		return invalid("chunking.overlap must be in [0, max_chunk_size), got %d", c.Chunking.Overlap)
	}

	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "openai", "azure", "ollama", "static"); err != nil {
		return err
	}
	if err := oneOf("completion.provider", c.Completion.Provider, "openai", "azure", "ollama", "extractive"); err != nil {
		return err
	}
	if err := oneOf("store.backend", c.Store.Backend, "memory", "file", "hnsw", "sqlite", "mongo"); err != nil {
		return err
	}
	if err := oneOf("store.metric", c.Store.Metric, "cosine", "l2"); err != nil {
		return err
	}
	if err := oneOf("ingest.id_strategy", c.Ingest.IDStrategy, "content", "uuid"); err != nil {
		return err
	}
	if err := oneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := oneOf("server.transport", c.Server.Transport, "stdio", "http"); err != nil {
		return err
	}

	if c.Embeddings.MaxAttempts < 1 {
		return invalid("embeddings.max_attempts must be at least 1, got %d", c.Embeddings.MaxAttempts)
	}
	if c.Embeddings.Multiplier < 1 {
		return invalid("embeddings.multiplier must be at least 1, got %g", c.Embeddings.Multiplier)
	}
	if c.Retrieval.K <= 0 {
		return invalid("retrieval.k must be positive, got %d", c.Retrieval.K)
	}
	if c.Retrieval.MinScore < -1 || c.Retrieval.MinScore > 1 {
		return invalid("retrieval.min_score must be in [-1, 1], got %g", c.Retrieval.MinScore)
	}
	if c.Ingest.Workers <= 0 || c.Ingest.BatchSize <= 0 {
		return invalid("ingest.workers and ingest.batch_size must be positive")
	}

	for key, v := range map[string]string{
		"embeddings.initial_delay": c.Embeddings.InitialDelay,
		"embeddings.max_delay":     c.Embeddings.MaxDelay,
		"embeddings.timeout":       c.Embeddings.Timeout,
		"embeddings.min_interval":  c.Embeddings.MinInterval,
		"completion.timeout":       c.Completion.Timeout,
		"completion.breaker_reset": c.Completion.BreakerReset,
		"store.mongo.timeout":      c.Store.Mongo.Timeout,
		"ingest.watch_debounce":    c.Ingest.WatchDebounce,
	} {
		if _, err := ParseDuration(v); err != nil {
			return invalid("%s: %v", key, err)
		}
	}
	return nil
}

// WriteYAML writes c to path. Secrets are tagged out and never written.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError("create config dir", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IOError("write config file", err)
	}
	return nil
}

// ParseDuration parses a Go duration string. Empty means zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// MustDuration parses a duration that Validate has already accepted.
func MustDuration(s string) time.Duration {
	d, _ := ParseDuration(s)
	return d
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...), nil)
}

func oneOf(key, value string, allowed ...string) error {
	v := strings.ToLower(value)
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return invalid("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
