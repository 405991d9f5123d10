package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/fyrsmithlabs/ragd/internal/tenant"
)

// TenantKey is the metadata key holding a record's owner.
const TenantKey = "tenant"

var (
	// ErrMissingTenant is returned for records without a tenant tag and for
	// queries with a zero TenantFilter.
	ErrMissingTenant = errors.New("missing tenant")

	// ErrInvalidConfig indicates an unusable store configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")

	// ErrInvalidRecord indicates a record that cannot be stored.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidQuery indicates a malformed query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidCollectionName indicates a collection name outside ^[a-z0-9_]{1,64}$.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrUnsupportedMetric indicates a distance metric other than cosine.
	ErrUnsupportedMetric = errors.New("unsupported distance metric")

	collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)
)

// Metric names the distance function a store ranks by.
type Metric string

// MetricCosine is 1 - cosine similarity. It is the only supported metric.
const MetricCosine Metric = "cosine"

// ParseMetric accepts "cosine" only.
func ParseMetric(s string) (Metric, error) {
	if Metric(s) != MetricCosine {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMetric, s)
	}
	return MetricCosine, nil
}

// Record is one stored chunk.
type Record struct {
	ID        string
	Embedding []float32
	Content   string
	Metadata  map[string]string
}

// Tenant returns the record's owner tag.
func (r Record) Tenant() string {
	return r.Metadata[TenantKey]
}

// Result is one query hit.
type Result struct {
	Content  string
	Metadata map[string]string
	// Distance is the cosine distance to the query; lower is closer.
	Distance float64
}

// Tenant returns the hit's owner tag.
func (r Result) Tenant() string {
	return r.Metadata[TenantKey]
}

// TenantFilter restricts a query to one tenant's records. The zero value is
// rejected by every backend.
type TenantFilter struct {
	tenant string
}

// ForTenant builds a filter for a validated tenant ID.
func ForTenant(id string) (TenantFilter, error) {
	if err := tenant.Validate(id); err != nil {
		return TenantFilter{}, err
	}
	return TenantFilter{tenant: id}, nil
}

// Tenant returns the filtered tenant ID.
func (f TenantFilter) Tenant() string {
	return f.tenant
}

// IsZero reports whether f was not built by ForTenant.
func (f TenantFilter) IsZero() bool {
	return f.tenant == ""
}

// Store is a tenant-scoped vector store.
type Store interface {
	// Upsert writes records, replacing any with the same ID.
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to k records of filter's tenant nearest to
	// embedding, by ascending distance.
	Query(ctx context.Context, embedding []float32, filter TenantFilter, k int) ([]Result, error)
	// Metric reports the distance function used for ranking.
	Metric() Metric
	// Close releases the backend.
	Close() error
}

// ValidateCollectionName checks name against ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

func validateRecords(records []Record) error {
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has no id", ErrInvalidRecord, i)
		}
		if len(r.Embedding) == 0 {
			return fmt.Errorf("%w: record %s has no embedding", ErrInvalidRecord, r.ID)
		}
		if err := tenant.Validate(r.Tenant()); err != nil {
			return fmt.Errorf("%w: record %s: %v", ErrMissingTenant, r.ID, err)
		}
	}
	return nil
}

func validateQuery(embedding []float32, filter TenantFilter, k int) error {
	if filter.IsZero() {
		return ErrMissingTenant
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrInvalidQuery)
	}
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}
	return nil
}

func sortByDistance(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
