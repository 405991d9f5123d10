package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
)

// clearProviderEnv isolates tests from credentials set in the developer's shell.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GOOGLE_GEMINI_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ragd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoad_DefaultsWithGeminiKey(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GOOGLE_GEMINI_API_KEY", "g-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.Embeddings.Provider)
	assert.Equal(t, "gemini-embedding-001", cfg.Embeddings.Model)
	assert.Equal(t, "gemini-2.5-flash", cfg.Generation.Model)
	assert.Equal(t, "g-key", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, "g-key", cfg.Generation.APIKey.Value())
	assert.Equal(t, 0.3, cfg.Generation.Temperature)
	assert.Equal(t, 1000, cfg.Generation.MaxTokens)
	assert.Equal(t, 0.8, cfg.Generation.TopP)
	assert.Equal(t, 10, cfg.Generation.TopK)
	assert.Equal(t, "cosine", cfg.VectorStore.Metric)
	assert.Equal(t, "clients_docs", cfg.VectorStore.Collection)
	assert.Equal(t, 3, cfg.Chunking.MaxSentences)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
}

func TestLoad_MissingCredentialsIsConfigurationError(t *testing.T) {
	clearProviderEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestLoadWithFile_YAMLThenEnv(t *testing.T) {
	clearProviderEnv(t)
	path := writeConfig(t, `
server:
  port: 9191
  shutdown_timeout: 3s
  rate_limit:
    rps: 5
    burst: 10
embeddings:
  provider: tei
  model: BAAI/bge-small-en-v1.5
  base_url: http://localhost:8080
generation:
  provider: openai
  model: gpt-4o-mini
  api_key: sk-test
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
auth:
  keys_file: /etc/ragd/keys.toml
  keys:
    tenantA: clientA
`, 0o600)

	t.Setenv("RAGD_SERVER_PORT", "9292")
	t.Setenv("RAGD_VECTORSTORE_QDRANT_PORT", "7000")
	t.Setenv("RAGD_GENERATION_MAX_TOKENS", "512")
	t.Setenv("RAGD_OBSERVABILITY_LOGGING_LEVEL", "debug")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9292, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 5.0, cfg.Server.RateLimit.RPS)
	assert.Equal(t, 10, cfg.Server.RateLimit.Burst)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, "openai", cfg.Generation.Provider)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey.Value())
	assert.Equal(t, 512, cfg.Generation.MaxTokens)
	assert.Equal(t, 0.3, cfg.Generation.Temperature, "unset fields keep defaults")
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 7000, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, "/etc/ragd/keys.toml", cfg.Auth.KeysFile)
	assert.Equal(t, "clientA", cfg.Auth.Keys["tenantA"])
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	clearProviderEnv(t)
	path := writeConfig(t, "server:\n  port: 9000\n", 0o644)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Skip("cannot set permissions")
	}

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_Missing(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"RAGD_SERVER_PORT":                     "server.port",
		"RAGD_SERVER_RATE_LIMIT_RPS":           "server.rate_limit.rps",
		"RAGD_VECTORSTORE_QDRANT_USE_TLS":      "vectorstore.qdrant.use_tls",
		"RAGD_VECTORSTORE_PATH":                "vectorstore.path",
		"RAGD_EMBEDDINGS_BASE_URL":             "embeddings.base_url",
		"RAGD_OBSERVABILITY_TELEMETRY_ENABLED": "observability.telemetry.enabled",
		"RAGD_OBSERVABILITY_SERVICE_NAME":      "observability.service_name",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Embeddings.APIKey = "k"
		cfg.Generation.APIKey = "k"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, ErrInvalidConfig},
		{"non-cosine metric", func(c *Config) { c.VectorStore.Metric = "l2" }, ErrInvalidConfig},
		{"unknown store", func(c *Config) { c.VectorStore.Provider = "faiss" }, ErrInvalidConfig},
		{"sqlite without path", func(c *Config) { c.VectorStore.Provider = "sqlite"; c.VectorStore.Path = "" }, ErrInvalidConfig},
		{"unknown embedder", func(c *Config) { c.Embeddings.Provider = "bert" }, ErrInvalidConfig},
		{"tei without url", func(c *Config) { c.Embeddings.Provider = "tei" }, ErrInvalidConfig},
		{"fastembed needs no key", func(c *Config) { c.Embeddings.Provider = "fastembed"; c.Embeddings.APIKey = "" }, nil},
		{"openai local base url", func(c *Config) {
			c.Generation.Provider = "openai"
			c.Generation.APIKey = ""
			c.Generation.BaseURL = "http://localhost:11434/v1"
		}, nil},
		{"gemini generation without key", func(c *Config) { c.Generation.APIKey = "" }, ErrMissingCredentials},
		{"temperature too high", func(c *Config) { c.Generation.Temperature = 3 }, ErrInvalidConfig},
		{"top_p zero", func(c *Config) { c.Generation.TopP = 0 }, ErrInvalidConfig},
		{"zero sentences", func(c *Config) { c.Chunking.MaxSentences = 0 }, ErrInvalidConfig},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }, ErrInvalidConfig},
		{"rate limit without burst", func(c *Config) { c.Server.RateLimit.RPS = 1 }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, apperr.Is(err, apperr.KindConfiguration))
		})
	}
}

func TestConfig_ValidateIngestion(t *testing.T) {
	cfg := Default()
	cfg.Embeddings.APIKey = "k"
	cfg.Generation.APIKey = ""

	assert.NoError(t, cfg.ValidateIngestion())
	assert.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)

	cfg.Embeddings.APIKey = ""
	assert.ErrorIs(t, cfg.ValidateIngestion(), ErrMissingCredentials)
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "super-secret")
	assert.Equal(t, "super-secret", s.Value())

	data, err := json.Marshal(struct{ Key Secret }{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(data))

	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
