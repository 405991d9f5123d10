// Package embeddings maps text to unit-length float32 vectors.
//
// Providers (Gemini, OpenAI-compatible endpoints, TEI, local FastEmbed)
// return raw vectors. NewProvider always wraps them in a Gateway, which
// checks that one vector came back per input, L2-normalizes every vector,
// records metrics, and tags provider failures as upstream errors. Nothing
// downstream trusts a provider to normalize.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates an empty text list or an empty query.
	ErrEmptyInput = errors.New("empty embedding input")

	// ErrInvalidConfig indicates an unusable provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmbeddingFailed indicates the provider call failed or returned a
	// malformed response.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder produces raw embeddings for documents and queries.
type Embedder interface {
	// EmbedDocuments returns one vector per text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder that owns client resources.
type Provider interface {
	Embedder
	// Dimension returns the vector length, or 0 when the model decides.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}
