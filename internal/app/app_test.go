package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
)

func teiServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = []float32{0, 3, 4}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hail damage is covered."}, "finish_reason": "stop"}]
		}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Embeddings.Provider = "tei"
	cfg.Embeddings.BaseURL = teiServer(t).URL
	cfg.VectorStore.Provider = "chromem"
	cfg.VectorStore.Path = ""
	return cfg
}

func TestNewIngestion(t *testing.T) {
	cfg := testConfig(t)
	logger := logging.NewTestLogger()

	ing, err := NewIngestion(context.Background(), cfg, logger.Logger)
	require.NoError(t, err)
	defer func() { assert.NoError(t, ing.Close()) }()

	res, err := ing.Indexer.Index(context.Background(), "Hail damage is covered. Floods are not.", "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", res.Tenant)
	assert.Equal(t, 1, res.Chunks)
	logger.AssertField(t, "ingestion initialized", "vectorstore", "chromem")
}

func TestNewIngestion_BadStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Metric = "l2"

	_, err := NewIngestion(context.Background(), cfg, logging.Nop())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestNewIngestion_BadRedactionAllowList(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redaction.Enabled = true
	cfg.Redaction.AllowList = []string{"("}

	_, err := NewIngestion(context.Background(), cfg, logging.Nop())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestNewPipeline_AnswersPerTenant(t *testing.T) {
	var calls atomic.Int32
	cfg := testConfig(t)
	cfg.Generation.Provider = "openai"
	cfg.Generation.BaseURL = chatServer(t, &calls).URL
	cfg.Generation.Model = "test-model"

	p, err := NewPipeline(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, p.Close()) }()

	ctx := context.Background()
	_, err = p.Service.Index(ctx, "Hail damage is covered.", "acme")
	require.NoError(t, err)

	answer, err := p.Service.GenerateAnswer(ctx, "Is hail covered?", "acme")
	require.NoError(t, err)
	assert.Equal(t, "Hail damage is covered.", answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "acme", answer.Sources[0].Metadata["tenant"])
	assert.Equal(t, int32(1), calls.Load())

	answer, err = p.Service.GenerateAnswer(ctx, "Is hail covered?", "other")
	require.NoError(t, err)
	assert.Equal(t, synthesis.FallbackAnswer, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[keys]]
key = "file-key"
tenant = "tenantA"
`), 0o600))
	t.Setenv("RAGD_TEST_TENANT_B_KEY", "env-key")

	r, err := NewRegistry(config.AuthConfig{
		KeysFile: path,
		Keys:     map[string]string{"tenantB": "RAGD_TEST_TENANT_B_KEY"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	owner, ok := r.Resolve("file-key")
	assert.True(t, ok)
	assert.Equal(t, "tenantA", owner)

	owner, ok = r.Resolve("env-key")
	assert.True(t, ok)
	assert.Equal(t, "tenantB", owner)
}

func TestNewRegistry_MissingFile(t *testing.T) {
	_, err := NewRegistry(config.AuthConfig{KeysFile: filepath.Join(t.TempDir(), "absent.toml")})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestNewObservability(t *testing.T) {
	cfg := config.Default()

	obs, err := NewObservability(context.Background(), cfg, "test", LogOptions{Stderr: true})
	require.NoError(t, err)
	assert.False(t, obs.Telemetry.Enabled())
	assert.NoError(t, obs.Shutdown(context.Background()))
}
