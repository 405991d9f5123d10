// Package rag wires retrieval and synthesis into question answering.
package rag

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/indexer"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// ErrIndexingDisabled is returned by Index when no indexer is configured.
var ErrIndexingDisabled = errors.New("indexing is not enabled")

var tracer = otel.Tracer("ragd.rag")

// Retriever finds a tenant's relevant chunks. k <= 0 uses its default.
type Retriever interface {
	Retrieve(ctx context.Context, query, tenant string, k int) ([]vectorstore.Result, error)
}

// Synthesizer composes an answer from retrieved chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, query, tenant string, results []vectorstore.Result) (*synthesis.Answer, error)
}

// Indexer stores a tenant document.
type Indexer interface {
	Index(ctx context.Context, text, tenant string) (indexer.Result, error)
}

// Service answers questions. It holds only injected handles and is safe for
// concurrent use.
type Service struct {
	retriever   Retriever
	synthesizer Synthesizer
	indexer     Indexer
	logger      *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIndexer enables Index.
func WithIndexer(ix Indexer) Option {
	return func(s *Service) {
		s.indexer = ix
	}
}

// NewService creates a Service.
func NewService(retriever Retriever, synthesizer Synthesizer, logger *logging.Logger, opts ...Option) (*Service, error) {
	if retriever == nil || synthesizer == nil {
		return nil, apperr.Configuration("rag.new_service", errors.New("retriever and synthesizer are required"))
	}
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{retriever: retriever, synthesizer: synthesizer, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GenerateAnswer retrieves tenant's chunks for query and synthesizes an
// answer from them.
func (s *Service) GenerateAnswer(ctx context.Context, query, tenant string) (answer *synthesis.Answer, err error) {
	ctx, span := tracer.Start(ctx, "ragd.rag")
	defer span.End()
	ctx = logging.WithTenant(ctx, tenant)
	span.SetAttributes(attribute.String("tenant", tenant))

	start := time.Now()
	var retrieved int
	defer func() {
		AnswerDuration.Observe(time.Since(start).Seconds())
		switch {
		case err != nil:
			AnswersTotal.WithLabelValues(OutcomeError).Inc()
		case retrieved == 0:
			AnswersTotal.WithLabelValues(OutcomeFallback).Inc()
		default:
			AnswersTotal.WithLabelValues(OutcomeAnswered).Inc()
		}
	}()

	results, err := s.retriever.Retrieve(ctx, query, tenant, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn(ctx, "retrieval failed", zap.Error(err), zap.String("kind", string(apperr.KindOf(err))))
		return nil, err
	}
	retrieved = len(results)
	span.SetAttributes(attribute.Int("results", retrieved))

	answer, err = s.synthesizer.Synthesize(ctx, query, tenant, results)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "synthesis failed", zap.Error(err))
		return nil, err
	}

	span.SetStatus(codes.Ok, "answered")
	s.logger.Info(ctx, "answered question",
		zap.Int("sources", len(answer.Sources)),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}

// Index stores a document for tenant.
func (s *Service) Index(ctx context.Context, text, tenant string) (indexer.Result, error) {
	if s.indexer == nil {
		return indexer.Result{}, apperr.Configuration("rag.index", ErrIndexingDisabled)
	}
	return s.indexer.Index(ctx, text, tenant)
}

// CanIndex reports whether Index is enabled.
func (s *Service) CanIndex() bool {
	return s.indexer != nil
}
