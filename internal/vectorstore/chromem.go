package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const backendChromem = "chromem"

// errPrecomputedOnly is returned if chromem ever tries to embed text itself.
var errPrecomputedOnly = errors.New("chromem: embeddings are computed by the embedding gateway")

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string
	// Compress gzips the persisted files.
	Compress bool
	// Collection defaults to "clients_docs".
	Collection string
}

// ChromemStore implements Store on chromem-go.
//
// chromem-go keeps all vectors in memory and persists each document as a gob
// file under Path. Tenant scoping uses chromem's metadata where-filter.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	logger     *zap.Logger
}

// NewChromemStore opens (or creates) the store and its collection.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		cfg.Collection = "clients_docs"
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem DB: %w", err)
		}
		cfg.Path = path
	}

	// A nil embedding func makes chromem fall back to OpenAI, so pass one
	// that always fails.
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, precomputedEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", cfg.Path),
		zap.Bool("persistent", cfg.Path != ""),
		zap.String("collection", cfg.Collection),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemStore{db: db, collection: collection, name: cfg.Collection, logger: logger}, nil
}

func precomputedEmbeddings(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Upsert adds records. chromem replaces documents with an existing ID.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendChromem, "upsert", start, err) }()

	span.SetAttributes(attribute.Int("record_count", len(records)))
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  copyMetadata(r.Metadata),
			Embedding: r.Embedding,
		}
	}

	// Concurrency of 1: embeddings are already present.
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", s.name, err)
	}

	RecordsWritten.WithLabelValues(backendChromem).Add(float64(len(records)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted records",
		zap.String("collection", s.name),
		zap.Int("count", len(records)),
	)
	return nil
}

// Query returns filter's tenant's nearest records.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, filter TenantFilter, k int) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendChromem, "query", start, err) }()

	if err := validateQuery(embedding, filter, k); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("k", k))

	// chromem requires nResults <= collection size; the where filter may
	// shrink the result set further.
	count := s.collection.Count()
	if count == 0 {
		return []Result{}, nil
	}
	if k > count {
		k = count
	}

	where := map[string]string{TenantKey: filter.Tenant()}
	hits, err := s.collection.QueryEmbedding(ctx, embedding, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.name, err)
	}

	results = make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Content:  h.Content,
			Metadata: copyMetadata(h.Metadata),
			Distance: 1 - float64(h.Similarity),
		})
	}
	sortByDistance(results)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Metric returns MetricCosine.
func (s *ChromemStore) Metric() Metric {
	return MetricCosine
}

// Len returns the number of records across all tenants.
func (s *ChromemStore) Len() int {
	return s.collection.Count()
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}
