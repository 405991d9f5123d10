// Package indexer turns tenant documents into stored vector records.
//
// A document is chunked, embedded in one batch, and written with one Upsert.
// Every record is tagged with the owning tenant. There is no deduplication:
// indexing the same text twice stores it twice.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/redact"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var tracer = otel.Tracer("ragd.indexer")

// Embedder embeds a batch of texts, one vector per text in order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes the indexer.
type Config struct {
	// MaxSentences per chunk. Zero uses chunker.DefaultMaxSentences.
	MaxSentences int
	// WatchDebounce is how long Watch waits after the last event on a file
	// before indexing it. Zero uses 500ms.
	WatchDebounce time.Duration
	// Redactor, when set, masks credentials before chunking.
	Redactor *redact.Redactor
}

// Result describes one indexed document.
type Result struct {
	Tenant string   `json:"tenant"`
	Chunks int      `json:"chunks"`
	IDs    []string `json:"ids"`
}

// Indexer writes documents to a vector store.
type Indexer struct {
	embedder     Embedder
	store        vectorstore.Store
	maxSentences int
	debounce     time.Duration
	redactor     *redact.Redactor
	logger       *logging.Logger
}

// New creates an Indexer.
func New(embedder Embedder, store vectorstore.Store, cfg Config, logger *logging.Logger) (*Indexer, error) {
	if embedder == nil {
		return nil, apperr.Configuration("indexer.new", fmt.Errorf("embedder is required"))
	}
	if store == nil {
		return nil, apperr.Configuration("indexer.new", fmt.Errorf("store is required"))
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = chunker.DefaultMaxSentences
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = 500 * time.Millisecond
	}
	return &Indexer{
		embedder:     embedder,
		store:        store,
		maxSentences: cfg.MaxSentences,
		debounce:     cfg.WatchDebounce,
		redactor:     cfg.Redactor,
		logger:       logger,
	}, nil
}

// Index chunks text, embeds all chunks in one call, and stores them under
// owner. Text without chunks writes nothing.
func (ix *Indexer) Index(ctx context.Context, text, owner string) (Result, error) {
	ctx, span := tracer.Start(ctx, "ragd.indexer")
	defer span.End()

	if err := tenant.Validate(owner); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, apperr.Validation("indexer.index", err)
	}
	ctx = logging.WithTenant(ctx, owner)
	span.SetAttributes(attribute.String("tenant", owner))

	if ix.redactor != nil {
		var report redact.Report
		text, report = ix.redactor.Redact(text)
		if report.Total > 0 {
			span.SetAttributes(attribute.Int("redactions", report.Total))
			ix.logger.Info(ctx, "redacted credentials from document", zap.Any("by_rule", report.ByRule))
		}
	}

	chunks := chunker.Chunk(text, ix.maxSentences)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	if len(chunks) == 0 {
		ix.logger.Info(ctx, "document produced no chunks")
		return Result{Tenant: owner}, nil
	}

	vectors, err := ix.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, apperr.Upstream("indexer.embed", err)
	}
	if len(vectors) != len(chunks) {
		err := fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		span.SetStatus(codes.Error, err.Error())
		return Result{}, apperr.Upstream("indexer.embed", err)
	}

	records := make([]vectorstore.Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = uuid.NewString()
		records[i] = vectorstore.Record{
			ID:        ids[i],
			Embedding: vectors[i],
			Content:   c,
			Metadata:  map[string]string{vectorstore.TenantKey: owner},
		}
	}

	if err := ix.store.Upsert(ctx, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("storing %d chunks: %w", len(records), err)
	}

	span.SetStatus(codes.Ok, "indexed")
	ix.logger.Info(ctx, "document indexed", zap.Int("chunks", len(chunks)))
	return Result{Tenant: owner, Chunks: len(chunks), IDs: ids}, nil
}
