// Package synthesis turns retrieved chunks into a grounded answer.
package synthesis

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retriever"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// FallbackAnswer is returned without a model call when nothing was retrieved.
const FallbackAnswer = "Je ne trouve pas d'information pertinente dans vos documents pour répondre à cette question."

// PreviewRunes is the length of a source preview before the ellipsis.
const PreviewRunes = 200

var tracer = otel.Tracer("ragd.synthesis")

// Answer is the reply to one question.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Source is a retrieved chunk cited by an Answer.
type Source struct {
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float64           `json:"similarity"`
}

// Config tunes the synthesizer.
type Config struct {
	// FallbackAnswer overrides the default empty-context reply.
	FallbackAnswer string
	// Decoding defaults to llm.DefaultDecoding().
	Decoding *llm.Decoding
}

// Synthesizer asks the generator for an answer grounded in the results.
type Synthesizer struct {
	generator llm.Generator
	fallback  string
	decoding  llm.Decoding
	logger    *logging.Logger
}

// New creates a Synthesizer.
func New(generator llm.Generator, cfg Config, logger *logging.Logger) (*Synthesizer, error) {
	if generator == nil {
		return nil, apperr.Configuration("synthesis.new", errors.New("generator is required"))
	}
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Synthesizer{
		generator: generator,
		fallback:  cfg.FallbackAnswer,
		decoding:  llm.DefaultDecoding(),
		logger:    logger,
	}
	if s.fallback == "" {
		s.fallback = FallbackAnswer
	}
	if cfg.Decoding != nil {
		s.decoding = *cfg.Decoding
	}
	return s, nil
}

// Synthesize answers query for owner from results. With no results it
// returns the fallback answer and never calls the model.
func (s *Synthesizer) Synthesize(ctx context.Context, query, owner string, results []vectorstore.Result) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "ragd.synthesis")
	defer span.End()
	span.SetAttributes(attribute.Int("results", len(results)))
	ctx = logging.WithTenant(ctx, owner)

	if len(results) == 0 {
		s.logger.Info(ctx, "no relevant documents, returning fallback answer")
		span.SetStatus(codes.Ok, "fallback")
		return &Answer{Answer: s.fallback, Sources: []Source{}}, nil
	}

	ex := llm.Exchange{
		System:  SystemPrompt(owner),
		Priming: Priming,
		User:    UserPrompt(query, FormatContext(results), owner),
	}
	text, err := s.generator.Generate(ctx, ex, s.decoding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "generation failed", zap.Error(err))
		return nil, apperr.Upstream("synthesis.generate", err)
	}

	span.SetStatus(codes.Ok, "answered")
	return &Answer{Answer: text, Sources: Sources(results)}, nil
}

// Sources builds previews of results in retrieval order.
func Sources(results []vectorstore.Result) []Source {
	out := make([]Source, len(results))
	for i, r := range results {
		meta := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		out[i] = Source{
			Content:    Preview(r.Content),
			Metadata:   meta,
			Similarity: retriever.Similarity(r.Distance),
		}
	}
	return out
}

// Preview returns the first PreviewRunes runes of content followed by "...".
// The ellipsis is appended even to shorter content.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) > PreviewRunes {
		runes = runes[:PreviewRunes]
	}
	return string(runes) + "..."
}
