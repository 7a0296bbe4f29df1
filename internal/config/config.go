package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"

	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

const (
	StoreTypeMemory   = "memory"
	StoreTypeMongo    = "mongo"
	StoreTypePgvector = "pgvector"
)

type Config struct {
	Port           int              `json:"port"`
	LogConfig      logger.LogConfig `json:"log_config"`
	CORSAllowlist  []string         `json:"cors_allowlist"`
	AskRateLimitMs int              `json:"ask_rate_limit_ms"`
	Store          StoreConfig      `json:"store"`
	Embedding      EmbeddingConfig  `json:"embedding"`
	LLM            LLMConfig        `json:"llm"`
	Chunking       ChunkingConfig   `json:"chunking"`
	Retrieval      RetrievalConfig  `json:"retrieval"`
	Assistant      AssistantConfig  `json:"assistant"`
	Ingest         IngestConfig     `json:"ingest"`
}

type StoreConfig struct {
	Type     string         `json:"type"`
	Timeout  int            `json:"timeout"`
	Mongo    MongoConfig    `json:"mongo"`
	Postgres DatabaseConfig `json:"postgres"`
}

type MongoConfig struct {
	URI                string `json:"uri"`
	Database           string `json:"database"`
	Collection         string `json:"collection"`
	DocumentCollection string `json:"document_collection"`
	VectorIndex        string `json:"vector_index"`
	NumCandidates      int    `json:"num_candidates"`
	ConnectTimeout     int    `json:"connect_timeout"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type EmbeddingConfig struct {
	Provider        string                 `json:"provider"`
	Model           string                 `json:"model"`
	Dimension       int                    `json:"dimension"`
	Timeout         int                    `json:"timeout"`
	BatchWorkers    int                    `json:"batch_workers"`
	CacheSize       int                    `json:"cache_size"`
	CacheTTL        int                    `json:"cache_ttl"`
	DBCache         bool                   `json:"db_cache"`
	CacheMaxAgeDays int                    `json:"cache_max_age_days"`
	Data            map[string]interface{} `json:"data"`
}

type ProviderRef struct {
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Data     map[string]interface{} `json:"data"`
}

type LLMConfig struct {
	Provider  string                 `json:"provider"`
	Model     string                 `json:"model"`
	Timeout   int                    `json:"timeout"`
	Warmup    *bool                  `json:"warmup"`
	Data      map[string]interface{} `json:"data"`
	Fallbacks []ProviderRef          `json:"fallbacks"`
}

func (c LLMConfig) WarmupEnabled() bool {
	return c.Warmup == nil || *c.Warmup
}

const defaultChunkOverlap = 200

// ChunkingConfig keeps Overlap as a pointer so an explicit 0 survives
// defaulting.
type ChunkingConfig struct {
	Size    int  `json:"size"`
	Overlap *int `json:"overlap"`
}

func (c ChunkingConfig) OverlapSize() int {
	if c.Overlap == nil {
		return defaultChunkOverlap
	}
	return *c.Overlap
}

type RetrievalConfig struct {
	TopK            int     `json:"top_k"`
	MinScore        float64 `json:"min_score"`
	MaxContextChars int     `json:"max_context_chars"`
}

type AssistantConfig struct {
	Persona        string `json:"persona"`
	IdentityAnswer string `json:"identity_answer"`
	RefusalPhrase  string `json:"refusal_phrase"`
}

type IngestConfig struct {
	Source   SourceConfig `json:"source"`
	Schedule string       `json:"schedule"`
}

type SourceConfig struct {
	Type         string   `json:"type"`
	Dir          string   `json:"dir"`
	ExtractedDir string   `json:"extracted_dir"`
	S3           S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%w: load %s: %v", appErr.ErrConfiguration, file, err)
		}
	}
	return nil
}

// Load reads the optional json config at path, applies environment overrides
// and defaults, then validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open config: %v", appErr.ErrConfiguration, err)
		}
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: decode config: %v", appErr.ErrConfiguration, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", appErr.ErrConfiguration, key, v)
		}
		*dst = n
		return nil
	}
	data := func(key, field string, dst *map[string]interface{}) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if *dst == nil {
			*dst = map[string]interface{}{}
		}
		(*dst)[field] = strings.TrimSpace(v)
	}

	str("LOG_LEVEL", &cfg.LogConfig.Level)
	str("STORE_TYPE", &cfg.Store.Type)
	str("MONGO_URI", &cfg.Store.Mongo.URI)
	str("MONGO_DB_NAME", &cfg.Store.Mongo.Database)
	str("MONGO_COLLECTION_NAME", &cfg.Store.Mongo.Collection)
	str("MONGO_VECTOR_INDEX_NAME", &cfg.Store.Mongo.VectorIndex)
	str("PG_DSN", &cfg.Store.Postgres.DSN)
	str("EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	str("EMBEDDING_MODEL", &cfg.Embedding.Model)
	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("LLM_MODEL", &cfg.LLM.Model)
	str("INGEST_DIR", &cfg.Ingest.Source.Dir)

	for key, dst := range map[string]*int{
		"PORT":                &cfg.Port,
		"EMBEDDING_DIMENSION": &cfg.Embedding.Dimension,
		"CHUNK_SIZE":          &cfg.Chunking.Size,
		"RETRIEVAL_K":         &cfg.Retrieval.TopK,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("CHUNK_OVERLAP"); ok && strings.TrimSpace(v) != "" {
		var overlap int
		if err := num("CHUNK_OVERLAP", &overlap); err != nil {
			return err
		}
		cfg.Chunking.Overlap = &overlap
	}
	for key, dst := range map[string]*int{
		"ASK_RATE_LIMIT_MS": &cfg.AskRateLimitMs,
		"MAX_CONTEXT_CHARS": &cfg.Retrieval.MaxContextChars,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("RETRIEVAL_MIN_SCORE"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%w: RETRIEVAL_MIN_SCORE must be a number, got %q", appErr.ErrConfiguration, v)
		}
		cfg.Retrieval.MinScore = f
	}

	data("EMBEDDING_BASE_URL", "base_url", &cfg.Embedding.Data)
	data("EMBEDDING_API_KEY", "api_key", &cfg.Embedding.Data)
	data("LLM_BASE_URL", "base_url", &cfg.LLM.Data)
	data("LLM_API_KEY", "api_key", &cfg.LLM.Data)
	if v, ok := lookup("OLLAMA_BASE_URL"); ok && strings.TrimSpace(v) != "" {
		for _, item := range []struct {
			provider string
			data     *map[string]interface{}
		}{
			{cfg.Embedding.Provider, &cfg.Embedding.Data},
			{cfg.LLM.Provider, &cfg.LLM.Data},
		} {
			if item.provider != "" && item.provider != "ollama" {
				continue
			}
			if _, exists := (*item.data)["base_url"]; exists {
				continue
			}
			data("OLLAMA_BASE_URL", "base_url", item.data)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	cfg.Store.Type = strings.ToLower(strings.TrimSpace(cfg.Store.Type))
	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreTypeMongo
	}
	if cfg.Store.Timeout <= 0 {
		cfg.Store.Timeout = 10
	}
	if cfg.Store.Mongo.Database == "" {
		cfg.Store.Mongo.Database = "jamb_rag_db"
	}
	if cfg.Store.Mongo.Collection == "" {
		cfg.Store.Mongo.Collection = "jamb_documents"
	}
	if cfg.Store.Mongo.DocumentCollection == "" {
		cfg.Store.Mongo.DocumentCollection = "raw_documents"
	}
	if cfg.Store.Mongo.VectorIndex == "" {
		cfg.Store.Mongo.VectorIndex = "vector_index"
	}
	if cfg.Store.Mongo.ConnectTimeout <= 0 {
		cfg.Store.Mongo.ConnectTimeout = 5
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-minilm"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 384
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30
	}
	if cfg.Embedding.BatchWorkers <= 0 {
		cfg.Embedding.BatchWorkers = 4
	}
	if cfg.Embedding.CacheMaxAgeDays <= 0 {
		cfg.Embedding.CacheMaxAgeDays = 30
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.2:1b"
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 120
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 1000
	}
	if cfg.Chunking.Overlap == nil {
		overlap := defaultChunkOverlap
		cfg.Chunking.Overlap = &overlap
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Retrieval.MaxContextChars <= 0 {
		cfg.Retrieval.MaxContextChars = 16000
	}
	if cfg.Assistant.Persona == "" {
		cfg.Assistant.Persona = "You are a JAMB assistant."
	}
	if cfg.Assistant.IdentityAnswer == "" {
		cfg.Assistant.IdentityAnswer = "I am your JAMB Assistant, an AI designed to provide information based on JAMB documents."
	}
	if cfg.Assistant.RefusalPhrase == "" {
		cfg.Assistant.RefusalPhrase = "The information is not available in the provided documents."
	}
	cfg.Ingest.Source.Type = strings.ToLower(strings.TrimSpace(cfg.Ingest.Source.Type))
	if cfg.Ingest.Source.Type == "" {
		if cfg.Ingest.Source.Dir != "" {
			cfg.Ingest.Source.Type = "dir"
		} else {
			cfg.Ingest.Source.Type = "builtin"
		}
	}
	if cfg.Ingest.Source.S3.Region == "" {
		cfg.Ingest.Source.S3.Region = "us-east-1"
	}
}

func validate(cfg *Config) error {
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", appErr.ErrConfiguration, fmt.Sprintf(format, args...))
	}
	overlap := cfg.Chunking.OverlapSize()
	if cfg.Chunking.Size <= 0 || overlap < 0 {
		return fail("chunking.size must be positive and chunking.overlap non-negative")
	}
	if overlap >= cfg.Chunking.Size {
		return fail("chunking.overlap (%d) must be smaller than chunking.size (%d)", overlap, cfg.Chunking.Size)
	}
	if cfg.Retrieval.TopK < 1 {
		return fail("retrieval.top_k must be >= 1")
	}
	if cfg.Embedding.Dimension <= 0 {
		return fail("embedding.dimension must be positive")
	}
	switch cfg.Store.Type {
	case StoreTypeMemory:
	case StoreTypeMongo:
		if cfg.Store.Mongo.URI == "" {
			return fail("MONGO_URI is not set")
		}
	case StoreTypePgvector:
		if cfg.Store.Postgres.DSN == "" && cfg.Store.Postgres.Host == "" {
			return fail("store.postgres dsn or host is required for pgvector store")
		}
	default:
		return fail("store.type must be memory, mongo or pgvector")
	}
	switch cfg.Ingest.Source.Type {
	case "builtin":
	case "dir":
		if cfg.Ingest.Source.Dir == "" {
			return fail("ingest.source.dir is required for dir source")
		}
	case "s3":
		s3 := cfg.Ingest.Source.S3
		if s3.Bucket == "" {
			return fail("ingest.source.s3.bucket is required for s3 source")
		}
	default:
		return fail("ingest.source.type must be builtin, dir or s3")
	}
	return nil
}

// Settings lists the effective non-secret settings so that any divergence from
// defaults is visible in the health output.
func (c *Config) Settings() map[string]interface{} {
	settings := map[string]interface{}{
		"store_type":         c.Store.Type,
		"embedding_provider": c.Embedding.Provider,
		"embedding_model":    c.Embedding.Model,
		"embedding_dim":      c.Embedding.Dimension,
		"llm_provider":       c.LLM.Provider,
		"llm_model":          c.LLM.Model,
		"chunk_size":         c.Chunking.Size,
		"chunk_overlap":      c.Chunking.OverlapSize(),
		"retrieval_k":        c.Retrieval.TopK,
		"min_score":          c.Retrieval.MinScore,
		"max_context_chars":  c.Retrieval.MaxContextChars,
		"store_timeout_s":    c.Store.Timeout,
		"embed_timeout_s":    c.Embedding.Timeout,
		"llm_timeout_s":      c.LLM.Timeout,
		"ask_rate_limit_ms":  c.AskRateLimitMs,
		"ingest_source_type": c.Ingest.Source.Type,
		"ingest_schedule":    c.Ingest.Schedule,
	}
	switch c.Store.Type {
	case StoreTypeMongo:
		settings["database"] = c.Store.Mongo.Database
		settings["collection"] = c.Store.Mongo.Collection
		settings["vector_index"] = c.Store.Mongo.VectorIndex
	case StoreTypePgvector:
		settings["database"] = c.Store.Postgres.DBName
	}
	return settings
}
