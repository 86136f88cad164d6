package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	// S3
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool

	// Text extraction: pdf, docconv or mistral
	Extractor     string
	MistralAPIKey string

	// Language model: openrouter or ollama
	LLMProvider       string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string
	OllamaHost        string
	OllamaModel       string
	PromptsFile       string

	// Embeddings: openai or ollama
	EmbeddingProvider  string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	EmbeddingModel     string
	EmbeddingDimension int

	// Vector index: qdrant, pgvector or memory
	VectorDB         string
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	PGVectorURL      string

	// Pipeline
	ChunkSize            int
	ChunkOverlap         int
	QATopK               int
	WorkerConcurrency    int
	StageTimeout         time.Duration
	StaleProcessingAfter time.Duration
	SweepInterval        time.Duration

	// Upload limits
	MaxFileSize int64
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", "data/documents.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		S3Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", "research-storage"),
		S3UseSSL:          getEnv("S3_USE_SSL", "false") == "true",

		Extractor:     getEnv("EXTRACTOR", "pdf"),
		MistralAPIKey: getEnv("MISTRAL_API_KEY", ""),

		LLMProvider:       getEnv("LLM_PROVIDER", "openrouter"),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OllamaHost:        getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama3.2"),
		PromptsFile:       getEnv("PROMPTS_FILE", ""),

		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "openai"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		VectorDB:         getEnv("VECTOR_DB", "qdrant"),
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "research-papers"),
		PGVectorURL:      getEnv("PGVECTOR_URL", ""),
	}

	cfg.EmbeddingDimension = getEnvInt("EMBEDDING_DIMENSION", 1536, &errs)
	cfg.QdrantPort = getEnvInt("QDRANT_PORT", 6334, &errs)
	cfg.ChunkSize = getEnvInt("CHUNK_SIZE", 1000, &errs)
	cfg.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", 200, &errs)
	cfg.QATopK = getEnvInt("QA_TOP_K", 5, &errs)
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 4, &errs)
	cfg.MaxFileSize = int64(getEnvInt("MAX_FILE_SIZE", 50<<20, &errs))
	cfg.StageTimeout = getEnvDuration("STAGE_TIMEOUT", 0, &errs)
	cfg.StaleProcessingAfter = getEnvDuration("STALE_PROCESSING_AFTER", time.Hour, &errs)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 5*time.Minute, &errs)

	errs = append(errs, cfg.validate()...)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadRecordStore reads only the settings needed to open the record store,
// without requiring provider credentials.
func LoadRecordStore() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", "data/documents.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
	cfg.StaleProcessingAfter = getEnvDuration("STALE_PROCESSING_AFTER", time.Hour, &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error

	switch c.LLMProvider {
	case "openrouter":
		if c.OpenRouterAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENROUTER_API_KEY is required"))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider))
	}

	switch c.EmbeddingProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required"))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("unsupported EMBEDDING_PROVIDER %q", c.EmbeddingProvider))
	}

	switch c.Extractor {
	case "pdf", "docconv":
	case "mistral":
		if c.MistralAPIKey == "" {
			errs = append(errs, fmt.Errorf("MISTRAL_API_KEY is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported EXTRACTOR %q", c.Extractor))
	}

	switch c.VectorDB {
	case "qdrant", "memory":
	case "pgvector":
		if c.PGVectorURL == "" {
			errs = append(errs, fmt.Errorf("PGVECTOR_URL is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported VECTOR_DB %q", c.VectorDB))
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive"))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)"))
	}
	if c.QATopK <= 0 {
		errs = append(errs, fmt.Errorf("QA_TOP_K must be positive"))
	}
	if c.WorkerConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be positive"))
	}
	if c.EmbeddingDimension <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSION must be positive"))
	}

	return errs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
