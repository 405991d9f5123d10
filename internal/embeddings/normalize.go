package embeddings

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
)

// Normalize divides v by its Euclidean norm. The result is a new slice; a
// zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Gateway wraps a Provider so every vector it returns is unit length.
type Gateway struct {
	provider Provider
	model    string
	metrics  *Metrics
}

// NewGateway wraps p. model labels metrics.
func NewGateway(p Provider, model string, metrics *Metrics) *Gateway {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Gateway{provider: p, model: model, metrics: metrics}
}

// EmbedDocuments embeds texts in one provider call and normalizes the result.
func (g *Gateway) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	if len(texts) == 0 {
		return nil, apperr.Validation("embeddings.embed_documents", ErrEmptyInput)
	}

	start := time.Now()
	defer func() {
		g.metrics.RecordGeneration(ctx, g.model, "embed_documents", time.Since(start), len(texts), err)
	}()

	raw, err := g.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, apperr.Upstream("embeddings.embed_documents", err)
	}
	if len(raw) != len(texts) {
		return nil, apperr.Upstream("embeddings.embed_documents",
			fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(raw), len(texts)))
	}

	vectors = make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			return nil, apperr.Upstream("embeddings.embed_documents",
				fmt.Errorf("%w: empty vector at index %d", ErrEmbeddingFailed, i))
		}
		vectors[i] = Normalize(v)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query and normalizes the result.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	if text == "" {
		return nil, apperr.Validation("embeddings.embed_query", ErrEmptyInput)
	}

	start := time.Now()
	defer func() {
		g.metrics.RecordGeneration(ctx, g.model, "embed_query", time.Since(start), 1, err)
	}()

	raw, err := g.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, apperr.Upstream("embeddings.embed_query", err)
	}
	if len(raw) == 0 {
		return nil, apperr.Upstream("embeddings.embed_query", fmt.Errorf("%w: empty vector", ErrEmbeddingFailed))
	}
	return Normalize(raw), nil
}

// Dimension returns the wrapped provider's dimension.
func (g *Gateway) Dimension() int {
	return g.provider.Dimension()
}

// Close closes the wrapped provider.
func (g *Gateway) Close() error {
	return g.provider.Close()
}
