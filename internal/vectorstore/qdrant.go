package vectorstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	backendQdrant = "qdrant"
	contentKey    = "content"
)

// QdrantConfig configures the Qdrant gRPC store.
type QdrantConfig struct {
	Host       string
	Port       int
	UseTLS     bool
	APIKey     string
	Collection string
	// MaxMessageSize bounds gRPC messages. Default 50MB.
	MaxMessageSize int
}

// ApplyDefaults fills unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "clients_docs"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate checks the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	return ValidateCollectionName(c.Collection)
}

// QdrantStore implements Store on a Qdrant server. The collection is created
// on first write with the vector size of that write and a keyword index on
// the tenant field.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger
	ready      atomic.Bool
}

// NewQdrantStore connects and health-checks the server.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}

	s := &QdrantStore{client: client, collection: cfg.Collection, logger: logger}
	exists, err := client.CollectionExists(hctx, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("checking collection %s: %w", cfg.Collection, err)
	}
	s.ready.Store(exists)

	logger.Info("qdrant store initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
		zap.Bool("collection_exists", exists),
	)
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, size int) error {
	if s.ready.Load() {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(size),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", s.collection, err)
		}
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      TenantKey,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("creating tenant index: %w", err)
		}
		s.logger.Info("created qdrant collection",
			zap.String("collection", s.collection),
			zap.Int("vector_size", size),
		)
	}
	s.ready.Store(true)
	return nil
}

// Upsert writes records as points; IDs must be UUIDs.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendQdrant, "upsert", start, err) }()

	span.SetAttributes(attribute.Int("record_count", len(records)))
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if _, err := uuid.Parse(r.ID); err != nil {
			return fmt.Errorf("%w: qdrant point id %q is not a UUID", ErrInvalidRecord, r.ID)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: recordPayload(r),
		}
	}

	if err := s.ensureCollection(ctx, len(records[0].Embedding)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to %s: %w", s.collection, err)
	}

	RecordsWritten.WithLabelValues(backendQdrant).Add(float64(len(records)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query runs a filtered nearest-neighbour search.
func (s *QdrantStore) Query(ctx context.Context, embedding []float32, filter TenantFilter, k int) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendQdrant, "query", start, err) }()

	if err := validateQuery(embedding, filter, k); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("k", k))

	if !s.ready.Load() {
		exists, err := s.client.CollectionExists(ctx, s.collection)
		if err != nil {
			return nil, fmt.Errorf("checking collection %s: %w", s.collection, err)
		}
		if !exists {
			return []Result{}, nil
		}
		s.ready.Store(true)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         tenantCondition(filter),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching %s: %w", s.collection, err)
	}

	results = make([]Result, len(points))
	for i, p := range points {
		results[i] = pointResult(p.GetPayload(), p.GetScore())
	}
	sortByDistance(results)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Metric returns MetricCosine; collections are created with cosine distance.
func (s *QdrantStore) Metric() Metric {
	return MetricCosine
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func tenantCondition(filter TenantFilter) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(TenantKey, filter.Tenant())},
	}
}

// recordPayload stores content next to the metadata under a reserved key.
func recordPayload(r Record) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		payload[k] = qdrant.NewValueString(v)
	}
	payload[contentKey] = qdrant.NewValueString(r.Content)
	return payload
}

// pointResult converts a scored point. Qdrant reports cosine similarity.
func pointResult(payload map[string]*qdrant.Value, score float32) Result {
	res := Result{
		Metadata: make(map[string]string, len(payload)),
		Distance: 1 - float64(score),
	}
	for k, v := range payload {
		if k == contentKey {
			res.Content = v.GetStringValue()
			continue
		}
		if sv, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			res.Metadata[k] = sv.StringValue
		}
	}
	return res
}
