package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // SQLite driver
)

const backendSQLite = "sqlite"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	tenant     TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_tenant ON records(collection, tenant);
`

// SQLiteConfig configures the single-file store.
type SQLiteConfig struct {
	// Path is the directory holding vectors.db.
	Path       string
	Collection string
}

// SQLiteStore implements Store on a SQLite file. Queries load the tenant's
// rows and rank them by exact cosine distance, which suits small per-tenant
// corpora.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	collection string
	logger     *zap.Logger
}

// NewSQLiteStore opens Path/vectors.db in WAL mode and ensures the schema.
func NewSQLiteStore(cfg SQLiteConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		cfg.Collection = "clients_docs"
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}

	dir, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dir, "vectors.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite store initialized",
		zap.String("path", dbPath),
		zap.String("collection", cfg.Collection),
	)
	return &SQLiteStore{db: db, path: dbPath, collection: cfg.Collection, logger: logger}, nil
}

// Upsert writes all records in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, span := tracer.Start(ctx, "SQLiteStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendSQLite, "upsert", start, err) }()

	span.SetAttributes(attribute.Int("record_count", len(records)))
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records(id, collection, tenant, content, metadata, embedding, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			collection = excluded.collection,
			tenant     = excluded.tenant,
			content    = excluded.content,
			metadata   = excluded.metadata,
			embedding  = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, s.collection, r.Tenant(), r.Content, string(meta), encodeEmbedding(r.Embedding), now); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("inserting %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("committing: %w", err)
	}

	RecordsWritten.WithLabelValues(backendSQLite).Add(float64(len(records)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query ranks every row of the tenant by cosine distance.
func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, filter TenantFilter, k int) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "SQLiteStore.Query")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendSQLite, "query", start, err) }()

	if err := validateQuery(embedding, filter, k); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("k", k))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM records WHERE collection = ? AND tenant = ?`,
		s.collection, filter.Tenant())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	results = []Result{}
	for rows.Next() {
		var (
			id, content, meta string
			blob              []byte
		)
		if err := rows.Scan(&id, &content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		if len(vec) != len(embedding) {
			s.logger.Warn("skipping record with mismatched dimension",
				zap.String("id", id),
				zap.Int("dimension", len(vec)),
				zap.Int("query_dimension", len(embedding)),
			)
			continue
		}
		var metadata map[string]string
		if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
			return nil, fmt.Errorf("record %s: decoding metadata: %w", id, err)
		}
		results = append(results, Result{
			Content:  content,
			Metadata: metadata,
			Distance: cosineDistance(embedding, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	sortByDistance(results)
	if len(results) > k {
		results = results[:k]
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Metric returns MetricCosine.
func (s *SQLiteStore) Metric() Metric {
	return MetricCosine
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// cosineDistance returns 1 - cos(a, b). Zero-magnitude vectors are at
// distance 1 from everything.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// encodeEmbedding stores float32s little-endian without a length prefix.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
