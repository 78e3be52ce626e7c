package ragline

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the ragline engine. Values follow the
// environment variables named in the external interfaces, with validated
// bounds applied by LoadConfigFromEnv.
type Config struct {
	SQLitePath string

	QdrantURL        string
	QdrantCollection string
	VectorSize       int

	Embedding LLMConfig
	Chat      LLMConfig
	Reranker  RerankerConfig

	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int

	SearchLimit     int
	SearchThreshold float64

	QueryExpansion bool
	HydeEnabled    bool
	AutoSummary    bool
	AutoTags       bool

	MaxParallelCalls int

	RelevanceThreshold float64
	GroundingThreshold float64
	VerificationCache  CacheConfig

	LockTimeout time.Duration
}

// LLMConfig configures an OpenAI-compatible gateway endpoint.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// RerankerConfig configures the cross-encoder reranker gateway.
type RerankerConfig struct {
	Enabled           bool
	Model             string
	TopN              int
	CandidateMultiplier int
}

// CacheConfig bounds an LRU cache by entry count and time-to-live.
type CacheConfig struct {
	Capacity int
	TTL      time.Duration
}

// DefaultConfig returns a Config with the defaults named throughout §4 and §6
// of the specification. Every field can be overridden by LoadConfigFromEnv.
func DefaultConfig() Config {
	return Config{
		SQLitePath:       "ragline.db",
		QdrantURL:        "http://localhost:6334",
		QdrantCollection: "ragline",
		VectorSize:       1024,

		Embedding: LLMConfig{
			BaseURL: "http://localhost:4000",
			Model:   "text-embedding-3-small",
			Timeout: 30 * time.Second,
		},
		Chat: LLMConfig{
			BaseURL: "http://localhost:4000",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Reranker: RerankerConfig{
			Enabled:             false,
			Model:               "rerank-english-v3.0",
			TopN:                10,
			CandidateMultiplier: 4,
		},

		ChunkSize:    512,
		ChunkOverlap: 50,
		MinChunkSize: 100,

		SearchLimit:     10,
		SearchThreshold: 0.5,

		QueryExpansion: false,
		HydeEnabled:    false,
		AutoSummary:    false,
		AutoTags:       false,

		MaxParallelCalls: 3,

		RelevanceThreshold: 0.6,
		GroundingThreshold: 0.7,
		VerificationCache: CacheConfig{
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},

		LockTimeout: 300 * time.Second,
	}
}

// LoadConfigFromEnv starts from DefaultConfig and applies environment
// variable overrides, validating bounds per §6. Out-of-range values fall
// back to the default rather than failing hard, mirroring the teacher's
// tolerant env-parsing style in cmd/server/main.go.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.QdrantURL = v
	}
	if v := os.Getenv("QDRANT_COLLECTION"); v != "" {
		cfg.QdrantCollection = v
	}
	if n, ok := envInt("VECTOR_SIZE"); ok && n >= 64 && n <= 4096 {
		cfg.VectorSize = n
	}

	if v := os.Getenv("LITELLM_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("LITELLM_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if ms, ok := envInt("LITELLM_TIMEOUT"); ok && ms >= 1000 && ms <= 300000 {
		d := time.Duration(ms) * time.Millisecond
		cfg.Embedding.Timeout = d
		cfg.Chat.Timeout = d
	}

	if n, ok := envInt("CHUNK_SIZE"); ok && n >= 50 && n <= 10000 {
		cfg.ChunkSize = n
	}
	if n, ok := envInt("CHUNK_OVERLAP"); ok && n >= 0 && n <= 1000 {
		cfg.ChunkOverlap = n
	}
	if n, ok := envInt("MIN_CHUNK_SIZE"); ok && n >= 10 && n <= 1000 {
		cfg.MinChunkSize = n
	}

	if n, ok := envInt("SEARCH_LIMIT"); ok && n >= 1 && n <= 100 {
		cfg.SearchLimit = n
	}
	if f, ok := envFloat("SEARCH_THRESHOLD"); ok {
		cfg.SearchThreshold = f
	}

	if b, ok := envBool("RERANKING_ENABLED"); ok {
		cfg.Reranker.Enabled = b
	}
	if v := os.Getenv("RERANKER_MODEL"); v != "" {
		cfg.Reranker.Model = v
	}
	if n, ok := envInt("RERANK_TOP_N"); ok && n >= 1 && n <= 50 {
		cfg.Reranker.TopN = n
	}
	if n, ok := envInt("RERANK_CANDIDATES"); ok && n >= 1 && n <= 20 {
		cfg.Reranker.CandidateMultiplier = n
	}

	if b, ok := envBool("QUERY_EXPANSION"); ok {
		cfg.QueryExpansion = b
	}
	if b, ok := envBool("HYDE_ENABLED"); ok {
		cfg.HydeEnabled = b
	}
	if b, ok := envBool("AUTO_SUMMARY"); ok {
		cfg.AutoSummary = b
	}
	if b, ok := envBool("AUTO_TAGS"); ok {
		cfg.AutoTags = b
	}

	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
