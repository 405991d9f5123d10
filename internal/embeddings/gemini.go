package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini embedding provider.
type GeminiConfig struct {
	APIKey string
	// Model defaults to gemini-embedding-001.
	Model string
	// Dimension truncates output vectors when non-zero.
	Dimension int
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
}

// GeminiProvider embeds text with the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiProvider creates a Gemini client.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model, dim: cfg.Dimension}, nil
}

// EmbedDocuments sends all texts in a single EmbedContent call.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	var embedCfg *genai.EmbedContentConfig
	if p.dim > 0 {
		d := int32(p.dim)
		embedCfg = &genai.EmbedContentConfig{OutputDimensionality: &d}
	}

	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, embedCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %w", ErrEmbeddingFailed, err)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e != nil {
			vectors[i] = e.Values
		}
	}
	return vectors, nil
}

// EmbedQuery embeds one text.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no embedding", ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

// Dimension returns the configured output dimensionality (0 = model default).
func (p *GeminiProvider) Dimension() int {
	return p.dim
}

// Close is a no-op; the client holds no releasable resources.
func (p *GeminiProvider) Close() error {
	return nil
}
