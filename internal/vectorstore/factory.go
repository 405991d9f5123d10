package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/config"
)

// New opens the configured backend. Any failure is a configuration error.
func New(ctx context.Context, cfg config.VectorStoreConfig, logger *zap.Logger) (Store, error) {
	if _, err := ParseMetric(cfg.Metric); err != nil {
		return nil, apperr.Configuration("vectorstore.new", err)
	}

	var (
		store Store
		err   error
	)
	switch cfg.Provider {
	case "chromem", "":
		store, err = NewChromemStore(ChromemConfig{
			Path:       cfg.Path,
			Compress:   cfg.Compress,
			Collection: cfg.Collection,
		}, logger)
	case "sqlite":
		store, err = NewSQLiteStore(SQLiteConfig{
			Path:       cfg.Path,
			Collection: cfg.Collection,
		}, logger)
	case "qdrant":
		store, err = NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			UseTLS:     cfg.Qdrant.UseTLS,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			Collection: cfg.Collection,
		}, logger)
	default:
		err = fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, apperr.Configuration("vectorstore.new", err)
	}
	return store, nil
}
