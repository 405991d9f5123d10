package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/synthesis"
)

func TestAskServer(t *testing.T) {
	var gotKey string
	var gotReq ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		gotKey = r.Header.Get("X-API-KEY")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(ChatResponse{Answer: &synthesis.Answer{
			Answer: "Covered up to 5000 EUR.",
			Sources: []synthesis.Source{{
				Content:    "Water damage is covered...",
				Metadata:   map[string]string{"source": "policy.pdf", "tenant": "tenantA"},
				Similarity: 0.8766,
			}},
		}})
	}))
	defer srv.Close()

	answer, err := askServer(context.Background(), srv.Client(), srv.URL, "key-a", "Is water damage covered?")
	require.NoError(t, err)
	assert.Equal(t, "key-a", gotKey)
	assert.Equal(t, "Is water damage covered?", gotReq.Message)
	assert.Equal(t, "Covered up to 5000 EUR.", answer.Answer)

	var out bytes.Buffer
	printAnswer(&out, answer)
	assert.Contains(t, out.String(), "Covered up to 5000 EUR.")
	assert.Contains(t, out.String(), "[1] policy.pdf (similarity 0.8766)")
}

func TestAskServer_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized. Invalid X-API-KEY"}`))
	}))
	defer srv.Close()

	_, err := askServer(context.Background(), srv.Client(), srv.URL, "wrong", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Invalid X-API-KEY")
}

func TestPrintAnswer_NoSources(t *testing.T) {
	var out bytes.Buffer
	printAnswer(&out, &synthesis.Answer{Answer: synthesis.FallbackAnswer})
	assert.Equal(t, synthesis.FallbackAnswer+"\n", out.String())
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	status, err := checkHealth(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", status)
}

func TestCheckHealth_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "starting", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := checkHealth(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestIndexCommand(t *testing.T) {
	tei := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = []float32{1, 0, 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer tei.Close()

	t.Setenv("RAGD_EMBEDDINGS_PROVIDER", "tei")
	t.Setenv("RAGD_EMBEDDINGS_BASE_URL", tei.URL)
	t.Setenv("RAGD_VECTORSTORE_PROVIDER", "sqlite")
	t.Setenv("RAGD_VECTORSTORE_PATH", t.TempDir())

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tenantA"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tenantA", "policy.txt"),
		[]byte("Water damage is covered. Floods are excluded."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "loose.txt"), []byte("No owner."), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"index", root})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Indexed 1 file(s), 1 chunk(s)")
	assert.Contains(t, out.String(), "skipped: ")
}
