// Package app assembles ragd components from configuration. Both the
// server and the CLI build their pipeline here so they share one store
// layout and one set of provider settings.
package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/indexer"
	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/redact"
	"github.com/fyrsmithlabs/ragd/internal/retriever"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Observability holds the process logger and telemetry providers.
type Observability struct {
	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry
}

// Shutdown flushes telemetry and syncs the logger.
func (o *Observability) Shutdown(ctx context.Context) error {
	err := o.Telemetry.Shutdown(ctx)
	_ = o.Logger.Sync()
	return err
}

// LogOptions adjusts the logger built by NewObservability.
type LogOptions struct {
	// Stderr keeps stdout free for protocol traffic.
	Stderr bool
}

// NewObservability initializes telemetry first so the logger can bridge to
// its provider.
func NewObservability(ctx context.Context, cfg *config.Config, version string, opts LogOptions) (*Observability, error) {
	service := cfg.Observability.ServiceName

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability.Telemetry, service, version))
	if err != nil {
		return nil, apperr.Configuration("app.observability", err)
	}

	logCfg, err := logging.FromSettings(cfg.Observability.Logging, service)
	if err != nil {
		return nil, apperr.Configuration("app.observability", err)
	}
	if opts.Stderr {
		logCfg.Output.Stdout = false
		logCfg.Output.Stderr = true
	}

	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, apperr.Configuration("app.observability", err)
	}
	for _, e := range tel.Errors() {
		logger.Warn(ctx, "telemetry degraded", zap.Error(e))
	}
	return &Observability{Logger: logger, Telemetry: tel}, nil
}

// Ingestion is the write side of the pipeline: embeddings, store and
// indexer.
type Ingestion struct {
	Embedder *embeddings.Gateway
	Store    vectorstore.Store
	Indexer  *indexer.Indexer
}

// Close releases the store and the embedding provider.
func (i *Ingestion) Close() error {
	var errs []error
	if i.Store != nil {
		errs = append(errs, i.Store.Close())
	}
	if i.Embedder != nil {
		errs = append(errs, i.Embedder.Close())
	}
	return errors.Join(errs...)
}

// NewIngestion builds the embedding gateway, opens the configured store
// and wires the indexer to both.
func NewIngestion(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Ingestion, error) {
	z := logger.Underlying()

	var redactor *redact.Redactor
	if cfg.Redaction.Enabled {
		r, err := redact.New(redact.Config{
			Replacement: cfg.Redaction.Replacement,
			AllowList:   cfg.Redaction.AllowList,
		})
		if err != nil {
			return nil, apperr.Configuration("app.redaction", err)
		}
		redactor = r
	}

	gateway, err := embeddings.NewProvider(ctx, cfg.Embeddings, z)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.New(ctx, cfg.VectorStore, z)
	if err != nil {
		_ = gateway.Close()
		return nil, err
	}

	ix, err := indexer.New(gateway, store, indexer.Config{
		MaxSentences: cfg.Chunking.MaxSentences,
		Redactor:     redactor,
	}, logger.Named("indexer"))
	if err != nil {
		_ = store.Close()
		_ = gateway.Close()
		return nil, err
	}

	logger.Info(ctx, "ingestion initialized",
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("collection", cfg.VectorStore.Collection),
		zap.Bool("redaction", redactor != nil),
	)
	return &Ingestion{Embedder: gateway, Store: store, Indexer: ix}, nil
}

// Pipeline is the full question-answering stack.
type Pipeline struct {
	*Ingestion
	Service *rag.Service
}

// NewPipeline builds ingestion plus the retriever, the generator, the
// synthesizer and the service over them.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Pipeline, error) {
	ing, err := NewIngestion(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := newService(ctx, cfg, ing, logger)
	if err != nil {
		_ = ing.Close()
		return nil, err
	}
	return &Pipeline{Ingestion: ing, Service: svc}, nil
}

func newService(ctx context.Context, cfg *config.Config, ing *Ingestion, logger *logging.Logger) (*rag.Service, error) {
	r, err := retriever.New(ing.Embedder, ing.Store, cfg.Retrieval.TopK, logger.Named("retriever"))
	if err != nil {
		return nil, err
	}

	gen, err := llm.NewGenerator(ctx, cfg.Generation, logger.Underlying())
	if err != nil {
		return nil, err
	}

	decoding := llm.DecodingFrom(cfg.Generation)
	s, err := synthesis.New(gen, synthesis.Config{
		FallbackAnswer: cfg.Synthesis.FallbackAnswer,
		Decoding:       &decoding,
	}, logger.Named("synthesis"))
	if err != nil {
		return nil, err
	}

	return rag.NewService(r, s, logger.Named("rag"), rag.WithIndexer(ing.Indexer))
}

// NewRegistry loads API keys from the keys file and from the environment
// variables named in auth.keys.
func NewRegistry(cfg config.AuthConfig) (*tenant.Registry, error) {
	var entries []tenant.KeyEntry
	if cfg.KeysFile != "" {
		fromFile, err := tenant.LoadKeysFile(cfg.KeysFile)
		if err != nil {
			return nil, apperr.Configuration("app.registry", err)
		}
		entries = append(entries, fromFile...)
	}
	entries = append(entries, tenant.KeysFromEnv(cfg.Keys)...)

	r, err := tenant.NewRegistry(entries...)
	if err != nil {
		return nil, apperr.Configuration("app.registry", err)
	}
	return r, nil
}
