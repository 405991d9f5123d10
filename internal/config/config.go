// Package config provides configuration loading for ragd.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RAGD_SERVER_PORT, RAGD_VECTORSTORE_PATH, ...)
//  2. YAML config file
//  3. Defaults (Default)
//
// Provider credentials additionally fall back to the conventional variables
// GOOGLE_GEMINI_API_KEY, GEMINI_API_KEY and OPENAI_API_KEY.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
)

var (
	// ErrInvalidConfig indicates a setting outside its allowed range.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingCredentials indicates a provider that needs an API key has none.
	ErrMissingCredentials = errors.New("missing provider credentials")
)

// Config holds the complete ragd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Generation    GenerationConfig    `koanf:"generation"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Chunking      ChunkingConfig      `koanf:"chunking"`
	Redaction     RedactionConfig     `koanf:"redaction"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Synthesis     SynthesisConfig     `koanf:"synthesis"`
	Auth          AuthConfig          `koanf:"auth"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string          `koanf:"host"`
	Port            int             `koanf:"port"`
	ShutdownTimeout Duration        `koanf:"shutdown_timeout"`
	ReadTimeout     Duration        `koanf:"read_timeout"`
	WriteTimeout    Duration        `koanf:"write_timeout"`
	RateLimit       RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig bounds chat requests per tenant. RPS 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	ServiceName string          `koanf:"service_name"`
	Logging     LoggingConfig   `koanf:"logging"`
	Telemetry   TelemetryConfig `koanf:"telemetry"`
}

// LoggingConfig is the file/env view of logging.Config.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	OTEL     bool   `koanf:"otel"`
	Sampling bool   `koanf:"sampling"`
}

// TelemetryConfig is the file/env view of telemetry.Config.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "gemini", "openai", "tei", "fastembed".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	// Dimension is optional; zero lets the provider decide.
	Dimension int    `koanf:"dimension"`
	CacheDir  string `koanf:"cache_dir"`
}

// GenerationConfig selects the generative model and its decoding bounds.
type GenerationConfig struct {
	// Provider is one of "gemini", "openai".
	Provider    string  `koanf:"provider"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      Secret  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
	TopP        float64 `koanf:"top_p"`
	TopK        int     `koanf:"top_k"`
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	// Provider is one of "chromem", "qdrant", "sqlite".
	Provider   string `koanf:"provider"`
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	// Metric must be "cosine"; similarity is reported as 1 - distance.
	Metric   string       `koanf:"metric"`
	Compress bool         `koanf:"compress"`
	Qdrant   QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds the gRPC connection settings for Qdrant.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey Secret `koanf:"api_key"`
}

// ChunkingConfig controls how documents are split before embedding.
type ChunkingConfig struct {
	MaxSentences int `koanf:"max_sentences"`
}

// RedactionConfig masks credentials in documents before they are indexed.
type RedactionConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Replacement string   `koanf:"replacement"`
	AllowList   []string `koanf:"allow_list"`
}

// RetrievalConfig controls nearest-neighbour lookups.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// SynthesisConfig controls answer composition.
type SynthesisConfig struct {
	FallbackAnswer string `koanf:"fallback_answer"`
}

// AuthConfig maps API keys to tenants.
type AuthConfig struct {
	// KeysFile is a TOML file of [[keys]] entries.
	KeysFile string `koanf:"keys_file"`
	// Keys maps tenant -> name of the environment variable holding its key.
	Keys map[string]string `koanf:"keys"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(2 * time.Minute),
		},
		Observability: ObservabilityConfig{
			ServiceName: "ragd",
			Logging: LoggingConfig{
				Level:    "info",
				Format:   "json",
				Sampling: true,
			},
			Telemetry: TelemetryConfig{
				Endpoint:   "localhost:4317",
				Protocol:   "grpc",
				Insecure:   true,
				SampleRate: 1.0,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider: "gemini",
			Model:    "gemini-embedding-001",
		},
		Generation: GenerationConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Temperature: 0.3,
			MaxTokens:   1000,
			TopP:        0.8,
			TopK:        10,
		},
		VectorStore: VectorStoreConfig{
			Provider:   "chromem",
			Path:       "./data/vectors",
			Collection: "clients_docs",
			Metric:     "cosine",
			Compress:   true,
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
		},
		Chunking:  ChunkingConfig{MaxSentences: 3},
		Retrieval: RetrievalConfig{TopK: 4},
		Synthesis: SynthesisConfig{
			FallbackAnswer: "Je ne trouve pas d'information pertinente dans vos documents pour répondre à cette question.",
		},
	}
}

// applyCredentialFallbacks fills unset provider keys from the conventional
// environment variables.
func applyCredentialFallbacks(cfg *Config) {
	fill := func(provider string, key *Secret) {
		if key.IsSet() {
			return
		}
		switch provider {
		case "gemini":
			*key = Secret(firstEnv("GOOGLE_GEMINI_API_KEY", "GEMINI_API_KEY"))
		case "openai":
			*key = Secret(firstEnv("OPENAI_API_KEY"))
		}
	}
	fill(cfg.Embeddings.Provider, &cfg.Embeddings.APIKey)
	fill(cfg.Generation.Provider, &cfg.Generation.APIKey)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the configuration. Every failure is a configuration-kind
// error wrapping ErrInvalidConfig or ErrMissingCredentials.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return apperr.Configuration("config.validate", err)
	}
	if err := c.Generation.validate(); err != nil {
		return apperr.Configuration("config.validate", err)
	}
	return nil
}

// ValidateIngestion checks everything except the generative model, which
// indexing never calls.
func (c *Config) ValidateIngestion() error {
	if err := c.validate(); err != nil {
		return apperr.Configuration("config.validate", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d (must be 1-65535)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must be positive", ErrInvalidConfig)
	}
	if c.Server.RateLimit.RPS < 0 {
		return fmt.Errorf("%w: server.rate_limit.rps must be >= 0", ErrInvalidConfig)
	}
	if c.Server.RateLimit.RPS > 0 && c.Server.RateLimit.Burst < 1 {
		return fmt.Errorf("%w: server.rate_limit.burst must be >= 1 when rps is set", ErrInvalidConfig)
	}

	switch c.Embeddings.Provider {
	case "gemini":
		if !c.Embeddings.APIKey.IsSet() {
			return fmt.Errorf("%w: embeddings provider gemini requires an API key (GOOGLE_GEMINI_API_KEY)", ErrMissingCredentials)
		}
	case "openai":
		if !c.Embeddings.APIKey.IsSet() && c.Embeddings.BaseURL == "" {
			return fmt.Errorf("%w: embeddings provider openai requires an API key or a base_url", ErrMissingCredentials)
		}
	case "tei":
		if c.Embeddings.BaseURL == "" {
			return fmt.Errorf("%w: embeddings provider tei requires base_url", ErrInvalidConfig)
		}
	case "fastembed":
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("%w: embeddings.model is required", ErrInvalidConfig)
	}

	if err := c.VectorStore.validate(); err != nil {
		return err
	}

	if c.Chunking.MaxSentences < 1 {
		return fmt.Errorf("%w: chunking.max_sentences must be >= 1", ErrInvalidConfig)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("%w: retrieval.top_k must be >= 1", ErrInvalidConfig)
	}
	if c.Synthesis.FallbackAnswer == "" {
		return fmt.Errorf("%w: synthesis.fallback_answer is required", ErrInvalidConfig)
	}

	telemetry := c.Observability.Telemetry
	if telemetry.SampleRate < 0 || telemetry.SampleRate > 1 {
		return fmt.Errorf("%w: observability.telemetry.sample_rate must be 0-1", ErrInvalidConfig)
	}
	return nil
}

func (g *GenerationConfig) validate() error {
	switch g.Provider {
	case "gemini":
		if !g.APIKey.IsSet() {
			return fmt.Errorf("%w: generation provider gemini requires an API key (GOOGLE_GEMINI_API_KEY)", ErrMissingCredentials)
		}
	case "openai":
		if !g.APIKey.IsSet() && g.BaseURL == "" {
			return fmt.Errorf("%w: generation provider openai requires an API key or a base_url", ErrMissingCredentials)
		}
	default:
		return fmt.Errorf("%w: unknown generation provider %q", ErrInvalidConfig, g.Provider)
	}
	if g.Model == "" {
		return fmt.Errorf("%w: generation.model is required", ErrInvalidConfig)
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("%w: generation.temperature %v (must be 0-2)", ErrInvalidConfig, g.Temperature)
	}
	if g.MaxTokens < 1 {
		return fmt.Errorf("%w: generation.max_tokens must be >= 1", ErrInvalidConfig)
	}
	if g.TopP <= 0 || g.TopP > 1 {
		return fmt.Errorf("%w: generation.top_p %v (must be in (0, 1])", ErrInvalidConfig, g.TopP)
	}
	if g.TopK < 0 {
		return fmt.Errorf("%w: generation.top_k must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func (v *VectorStoreConfig) validate() error {
	switch v.Provider {
	case "chromem", "sqlite":
		// An empty chromem path selects an in-memory store; sqlite needs a file.
		if v.Provider == "sqlite" && v.Path == "" {
			return fmt.Errorf("%w: vectorstore.path is required for sqlite", ErrInvalidConfig)
		}
	case "qdrant":
		if v.Qdrant.Host == "" {
			return fmt.Errorf("%w: vectorstore.qdrant.host is required", ErrInvalidConfig)
		}
		if v.Qdrant.Port < 1 || v.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: vectorstore.qdrant.port %d", ErrInvalidConfig, v.Qdrant.Port)
		}
	default:
		return fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, v.Provider)
	}
	if v.Collection == "" {
		return fmt.Errorf("%w: vectorstore.collection is required", ErrInvalidConfig)
	}
	if v.Metric != "cosine" {
		return fmt.Errorf("%w: vectorstore.metric %q (only cosine is supported)", ErrInvalidConfig, v.Metric)
	}
	return nil
}
