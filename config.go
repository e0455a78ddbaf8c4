package examgen

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	IndexSQLite = "sqlite"
	IndexQdrant = "qdrant"

	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config holds all examgen configuration
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Store     StoreConfig     `yaml:"store"`
	Paths     PathsConfig     `yaml:"paths"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// ProviderConfig selects the chat-completion backend
type ProviderConfig struct {
	Type        string  `yaml:"type" validate:"oneof=openai gemini"`
	Model       string  `yaml:"model" validate:"required"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gt=0"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// EmbeddingConfig configures the OpenAI-compatible embedder used by the
// local index and qdrant
type EmbeddingConfig struct {
	Model      string `yaml:"model" validate:"required"`
	Dimensions int    `yaml:"dimensions" validate:"gte=0"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
}

// IndexConfig selects the similarity index backend
type IndexConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=sqlite qdrant"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection" validate:"required"`
	QdrantHost string `yaml:"qdrant_host"`
	QdrantPort int    `yaml:"qdrant_port"`
}

// StoreConfig selects where the cache and history live
type StoreConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=file redis"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	Prefix    string `yaml:"prefix"`
}

// PathsConfig holds file locations
type PathsConfig struct {
	OutputDir   string `yaml:"output_dir" validate:"required"`
	CacheFile   string `yaml:"cache_file"`
	HistoryFile string `yaml:"history_file"`
	LogDir      string `yaml:"log_dir"`
}

// RetrievalConfig holds adaptive retrieval and history settings
type RetrievalConfig struct {
	RetrieveOptions `yaml:",inline"`
	HistoryLimit    int `yaml:"history_limit"`
	HistoryLines    int `yaml:"history_lines"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Type:        ProviderOpenAI,
			Model:       "openai/gpt-4o-mini",
			BaseURL:     "https://openrouter.ai/api/v1",
			MaxTokens:   2200,
			Temperature: 0.4,
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 384,
		},
		Index: IndexConfig{
			Backend:    IndexSQLite,
			Path:       "./index.db",
			Collection: "exam_bank",
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Store: StoreConfig{
			Backend:   StoreFile,
			RedisAddr: "localhost:6379",
			Prefix:    "examgen",
		},
		Paths: PathsConfig{
			OutputDir:   "outputs",
			CacheFile:   "outputs/cache.json",
			HistoryFile: "outputs/history.jsonl",
			LogDir:      "logs",
		},
		Retrieval: RetrievalConfig{
			RetrieveOptions: DefaultRetrieveOptions(),
			HistoryLimit:    20,
			HistoryLines:    6,
		},
		LogLevel: "info",
	}
}

// LoadConfig loads .env, reads the YAML file at path over the defaults
// (expanding ${VAR} references) and applies environment overrides. An empty
// path skips the file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	switch c.Provider.Type {
	case ProviderGemini:
		c.Provider.APIKey = getEnv("GEMINI_API_KEY", c.Provider.APIKey)
	default:
		c.Provider.APIKey = getEnv("OPENROUTER_API_KEY", getEnv("OPENAI_API_KEY", c.Provider.APIKey))
		c.Provider.BaseURL = getEnv("OPENAI_BASE_URL", c.Provider.BaseURL)
	}
	c.Embedding.APIKey = getEnv("OPENAI_API_KEY", c.Embedding.APIKey)

	c.Index.Path = getEnv("EXAMGEN_INDEX_PATH", c.Index.Path)
	c.Index.QdrantHost = getEnv("QDRANT_HOST", c.Index.QdrantHost)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks enums and bounds. Credentials are checked separately by
// ValidateCompletion and ValidateEmbedding since not every command needs both.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid config: %s failed %s %s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("invalid config: %w", err)
}

// ValidateCompletion fails with ErrMissingCredential when the selected
// provider has no API key
func (c *Config) ValidateCompletion() error {
	if c.Provider.APIKey != "" {
		return nil
	}
	switch c.Provider.Type {
	case ProviderGemini:
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingCredential)
	default:
		return fmt.Errorf("%w: OPENROUTER_API_KEY or OPENAI_API_KEY is not set", ErrMissingCredential)
	}
}

// ValidateEmbedding fails with ErrMissingCredential when no key is
// available for the embedder
func (c *Config) ValidateEmbedding() error {
	if c.EmbeddingAPIKey() == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is not set for embeddings", ErrMissingCredential)
	}
	return nil
}

// EmbeddingAPIKey returns the embedder key. The completion key is reused
// when both talk to the same OpenAI-compatible endpoint.
func (c *Config) EmbeddingAPIKey() string {
	if c.Embedding.APIKey != "" {
		return c.Embedding.APIKey
	}
	if c.Provider.Type == ProviderOpenAI && c.Provider.BaseURL == c.Embedding.BaseURL {
		return c.Provider.APIKey
	}
	return ""
}

// GeneratorConfig derives the orchestrator settings
func (c *Config) GeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Retrieve:     c.Retrieval.RetrieveOptions,
		HistoryLimit: c.Retrieval.HistoryLimit,
		HistoryLines: c.Retrieval.HistoryLines,
		MaxTokens:    c.Provider.MaxTokens,
		Temperature:  c.Provider.Temperature,
		OutputDir:    c.Paths.OutputDir,
		LogDir:       c.Paths.LogDir,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
