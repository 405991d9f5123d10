// Package retriever finds a tenant's chunks most similar to a query.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// DefaultTopK is used when Retrieve gets k <= 0.
const DefaultTopK = 4

// ErrEmptyQuery is returned for an empty question.
var ErrEmptyQuery = errors.New("empty query")

var tracer = otel.Tracer("ragd.retriever")

// QueryEmbedder embeds a single query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever runs tenant-scoped similarity search.
type Retriever struct {
	embedder QueryEmbedder
	store    vectorstore.Store
	topK     int
	logger   *logging.Logger
}

// New creates a Retriever. The store must rank by cosine distance, because
// Similarity assumes it. topK <= 0 uses DefaultTopK.
func New(embedder QueryEmbedder, store vectorstore.Store, topK int, logger *logging.Logger) (*Retriever, error) {
	if embedder == nil || store == nil {
		return nil, apperr.Configuration("retriever.new", errors.New("embedder and store are required"))
	}
	if m := store.Metric(); m != vectorstore.MetricCosine {
		return nil, apperr.Configuration("retriever.new",
			fmt.Errorf("%w: store ranks by %q, need %q", vectorstore.ErrUnsupportedMetric, m, vectorstore.MetricCosine))
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Retriever{embedder: embedder, store: store, topK: topK, logger: logger}, nil
}

// Retrieve returns up to k chunks of owner nearest to query, by ascending
// distance. k <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query, owner string, k int) ([]vectorstore.Result, error) {
	ctx, span := tracer.Start(ctx, "ragd.retriever")
	defer span.End()

	if k <= 0 {
		k = r.topK
	}
	span.SetAttributes(attribute.String("tenant", owner), attribute.Int("k", k))

	filter, err := vectorstore.ForTenant(owner)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, apperr.Validation("retriever.retrieve", err)
	}
	if strings.TrimSpace(query) == "" {
		span.SetStatus(codes.Error, ErrEmptyQuery.Error())
		return nil, apperr.Validation("retriever.retrieve", ErrEmptyQuery)
	}
	ctx = logging.WithTenant(ctx, owner)

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, apperr.Upstream("retriever.embed_query", err)
	}

	hits, err := r.store.Query(ctx, embedding, filter, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying store: %w", err)
	}

	results := make([]vectorstore.Result, 0, len(hits))
	for _, h := range hits {
		if h.Tenant() != owner {
			// The store filter should make this impossible.
			r.logger.Error(ctx, "dropping result owned by another tenant",
				zap.String("result_tenant", h.Tenant()),
			)
			continue
		}
		results = append(results, h)
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "retrieved")
	r.logger.Debug(ctx, "retrieved chunks", zap.Int("k", k), zap.Int("results", len(results)))
	return results, nil
}

// Similarity converts a cosine distance to a similarity rounded to 4
// decimal places.
func Similarity(distance float64) float64 {
	return math.Round((1-distance)*10000) / 10000
}
